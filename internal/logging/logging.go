// Package logging defines the named [slog.Level] values used throughout the resolver.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
)

const (
	LevelTrace    = slog.LevelDebug - 4 // -8
	LevelDebug    = slog.LevelDebug     // -4
	LevelVerbose  = slog.LevelDebug + 2 // -2
	LevelInfo     = slog.LevelInfo      // 0
	LevelNotice   = slog.LevelInfo + 2  // 2
	LevelWarn     = slog.LevelWarn      // 4
	LevelError    = slog.LevelError     // 8
	LevelCritical = slog.LevelError + 4 // 12
)

var validLevels = []string{"trace", "debug", "verbose", "info", "notice", "warn", "error", "critical"}

// namedLevels parallels validLevels.
var namedLevels = []slog.Level{LevelTrace, LevelDebug, LevelVerbose, LevelInfo, LevelNotice, LevelWarn, LevelError, LevelCritical}

// BumpLevel returns lvl bumped to the next higher (more severe) or lower (less severe) named level.
// Beyond the named levels it moves in steps of 4.
func BumpLevel(lvl slog.Level, lower bool) slog.Level {
	if lower {
		for _, n := range slices.Backward(namedLevels) {
			if n < lvl {
				return n
			}
		}
		return lvl - 4
	}
	for _, n := range namedLevels {
		if n > lvl {
			return n
		}
	}
	return lvl + 4
}

func StringToLevel(arg string) (slog.Level, error) {
	arg = strings.ToLower(arg)
	switch arg {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "verbose":
		return LevelVerbose, nil
	case "info":
		return LevelInfo, nil
	case "notice":
		return LevelNotice, nil
	case "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "critical":
		return LevelCritical, nil
	default:
		if slices.Contains(validLevels, arg) {
			panic("need to update the switch cases")
		}
		return 0, fmt.Errorf("invalid log level; expected one of: %v", strings.Join(validLevels, ", "))
	}
}

// LevelString returns the upper-case name of lvl.  Levels between two named levels are rendered
// relative to the lower one, e.g. "VERBOSE+1".
func LevelString(lvl slog.Level) string {
	for i, n := range slices.Backward(namedLevels) {
		if lvl < n {
			continue
		}
		name := strings.ToUpper(validLevels[i])
		if lvl == n {
			return name
		}
		return fmt.Sprintf("%s+%d", name, lvl-n)
	}
	return fmt.Sprintf("TRACE%d", lvl-LevelTrace)
}

// NewHandler returns a text handler that writes to w, filters by lvl, and renders the named levels
// (VERBOSE, NOTICE, CRITICAL) by name.
func NewHandler(w io.Writer, lvl slog.Leveler) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.LevelKey {
				if l, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(LevelString(l))
				}
			}
			return a
		},
	})
}
