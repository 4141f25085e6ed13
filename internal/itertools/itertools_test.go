package itertools

import (
	"maps"
	"slices"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type num int

func (n num) String() string { return "#" + strconv.Itoa(int(n)) }

func TestSeq(t *testing.T) {
	t.Parallel()
	even := func(i int) bool { return i%2 == 0 }
	for _, tc := range []struct {
		desc string
		got  []string
		want []string
	}{
		{"range", slices.Collect(Map(Range(0, 4), strconv.Itoa)), []string{"0", "1", "2", "3"}},
		{"empty range", slices.Collect(Map(Range(3, 3), strconv.Itoa)), nil},
		{"filter", slices.Collect(Map(Filter(Range(0, 7), even), strconv.Itoa)), []string{"0", "2", "4", "6"}},
		{"take", slices.Collect(Map(Take(Range(0, 100), 3), strconv.Itoa)), []string{"0", "1", "2"}},
		{"take more than available", slices.Collect(Map(Take(Range(0, 2), 5), strconv.Itoa)), []string{"0", "1"}},
		{"take none", slices.Collect(Map(Take(Range(0, 2), 0), strconv.Itoa)), nil},
		{"stringify", slices.Collect(Stringify(slices.Values([]num{1, 2}))), []string{"#1", "#2"}},
		{
			"map21",
			slices.Sorted(Map21(Filter2(maps.All(map[string]int{"a": 1, "b": 2, "c": 3}),
				func(_ string, v int) bool { return v != 2 }),
				func(k string, v int) string { return k + strconv.Itoa(v) })),
			[]string{"a1", "c3"},
		},
	} {
		if diff := cmp.Diff(tc.want, tc.got); diff != "" {
			t.Errorf("%s (-want +got):\n%s", tc.desc, diff)
		}
	}
}

func TestTake_DoesNotOverread(t *testing.T) {
	t.Parallel()
	pulled := 0
	seq := Map(Range(0, 10), func(i int) int { pulled++; return i })
	for range Take(seq, 2) {
	}
	if pulled != 2 {
		t.Errorf("pulled %d values, want 2", pulled)
	}
}

func TestEarlyBreak(t *testing.T) {
	t.Parallel()
	var got []int
	for v := range Filter(Range(0, 10), func(int) bool { return true }) {
		if v == 3 {
			break
		}
		got = append(got, v)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, got); diff != "" {
		t.Errorf("-want +got:\n%s", diff)
	}
}
