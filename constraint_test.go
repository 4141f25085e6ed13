package wheelresolve_test

import (
	"testing"

	. "github.com/rhansen/wheelresolve"
	fx "github.com/rhansen/wheelresolve/internal/test/fakeindex"
)

func TestConstraint(t *testing.T) {
	t.Parallel()
	ix := fx.New(t).Add(fx.Id("foo@1.0")).Add(fx.Id("foo@2.0"))
	f := ix.Factory(Options{})
	cands := collect(t)(f.FindCandidates(t.Context(), "foo", []Requirement{makeReq(t, f, "foo")}, nil, EmptyConstraint(), false))
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	v2, v1 := cands[0], cands[1]

	if !EmptyConstraint().IsEmpty() || !(Constraint{}).IsEmpty() {
		t.Error("empty constraint is not empty")
	}
	lt2 := ConstraintFromInstallRequirement(parseReq(t, "foo<2"))
	pinned := ConstraintFromInstallRequirement(parseReq(t, "foo @ "+ix.FileLink("foo", "foo-2.0.tar.gz").URL))
	for _, tc := range []struct {
		desc string
		c    Constraint
		cand Candidate
		want bool
	}{
		{"empty", EmptyConstraint(), v2, true},
		{"zero value", Constraint{}, v2, true},
		{"specifier excludes", lt2, v2, false},
		{"specifier allows", lt2, v1, true},
		{"link pinned", pinned, v2, true},
		{"other link", pinned, v1, false},
		{"and", lt2.And(pinned), v2, false},
		{"and with zero value", Constraint{}.And(lt2), v1, true},
	} {
		if got := tc.c.IsSatisfiedBy(tc.cand); got != tc.want {
			t.Errorf("%s: IsSatisfiedBy(%v) = %v, want %v", tc.desc, tc.cand, got, tc.want)
		}
	}
	if lt2.And(pinned).IsEmpty() {
		t.Error("combined constraint is empty")
	}
}
