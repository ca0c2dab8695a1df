package task

import (
	"context"
	"testing"
)

type alphaTask struct{ payload int }

func (alphaTask) Name() string                             { return "Alpha" }
func (alphaTask) Run(context.Context, func(float64)) error { return nil }

type betaTask struct{}

func (betaTask) Name() string                             { return "Beta" }
func (betaTask) Run(context.Context, func(float64)) error { return nil }

func TestIdentityOf_StableAcrossInstances(t *testing.T) {
	a := IdentityOf(alphaTask{payload: 1})
	b := IdentityOf(alphaTask{payload: 99})
	if a != b {
		t.Errorf("same concrete type produced different identities: %s vs %s", a, b)
	}
}

func TestIdentityOf_PointerAndValueAgree(t *testing.T) {
	if IdentityOf(alphaTask{}) != IdentityOf(&alphaTask{}) {
		t.Error("pointer and value receivers of the same type should share an identity")
	}
}

func TestIdentityOf_DistinctTypes(t *testing.T) {
	if IdentityOf(alphaTask{}) == IdentityOf(betaTask{}) {
		t.Error("distinct concrete types must not collide")
	}
}

func TestIdentityOf_Deterministic(t *testing.T) {
	// Pinned value: identity must survive process restarts, so the
	// derivation may never change silently.
	got := IdentityOf(alphaTask{})
	if len(got) != 32 {
		t.Errorf("expected 32 hex chars, got %d (%s)", len(got), got)
	}
	again := IdentityOf(alphaTask{})
	if got != again {
		t.Errorf("identity not deterministic: %s vs %s", got, again)
	}
}
