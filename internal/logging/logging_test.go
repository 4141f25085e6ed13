package logging

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"
	"testing"
)

func TestBumpLevel(t *testing.T) {
	t.Parallel()
	levels := namedLevels
	for i := 0; i+1 < len(levels); i++ {
		if got, want := BumpLevel(levels[i], false), levels[i+1]; got != want {
			t.Errorf("BumpLevel(%v, false) = %v, want %v", LevelString(levels[i]), LevelString(got), LevelString(want))
		}
		if got, want := BumpLevel(levels[i+1], true), levels[i]; got != want {
			t.Errorf("BumpLevel(%v, true) = %v, want %v", LevelString(levels[i+1]), LevelString(got), LevelString(want))
		}
	}
	if got, want := BumpLevel(LevelCritical, false), LevelCritical+4; got != want {
		t.Errorf("BumpLevel(CRITICAL, false) = %v, want %v", got, want)
	}
	if got, want := BumpLevel(LevelTrace, true), LevelTrace-4; got != want {
		t.Errorf("BumpLevel(TRACE, true) = %v, want %v", got, want)
	}
	if got, want := BumpLevel(LevelVerbose+1, true), LevelVerbose; got != want {
		t.Errorf("BumpLevel(VERBOSE+1, true) = %v, want %v", got, want)
	}
}

func TestStringToLevel(t *testing.T) {
	t.Parallel()
	for _, name := range validLevels {
		lvl, err := StringToLevel(name)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := LevelString(lvl), strings.ToUpper(name); got != want {
			t.Errorf("LevelString(StringToLevel(%q)) = %q", name, got)
		}
	}
	if lvl, err := StringToLevel("NOTICE"); err != nil || lvl != LevelNotice {
		t.Errorf("StringToLevel(NOTICE) = %v, %v; want %v", lvl, err, LevelNotice)
	}
	if _, err := StringToLevel("loud"); err == nil {
		t.Error("no error for an unknown level")
	}
}

func TestLevelString(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		lvl  slog.Level
		want string
	}{
		{LevelInfo, "INFO"},
		{LevelVerbose + 1, "VERBOSE+1"},
		{LevelCritical + 3, "CRITICAL+3"},
		{LevelTrace - 2, "TRACE-2"},
	} {
		if got := LevelString(tc.lvl); got != tc.want {
			t.Errorf("LevelString(%d) = %q, want %q", tc.lvl, got, tc.want)
		}
	}
}

func TestNewHandler(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, LevelVerbose))
	log.Debug("hidden")
	log.Log(t.Context(), LevelVerbose, "shown")
	log.Log(t.Context(), LevelCritical, "bad")
	got := buf.String()
	if regexp.MustCompile(`hidden`).MatchString(got) {
		t.Errorf("debug message logged at verbose level:\n%s", got)
	}
	for _, re := range []string{`level=VERBOSE msg=shown`, `level=CRITICAL msg=bad`} {
		if !regexp.MustCompile(re).MatchString(got) {
			t.Errorf("output does not match %q:\n%s", re, got)
		}
	}
}
