package rules

import (
	"errors"
	"reflect"
	"testing"
)

func TestFreeThrowFixedSequenceRunsToTotal(t *testing.T) {
	c := NewFreeThrowController()
	if err := c.Start(FreeThrowSequence{ID: "s1", ShooterID: "p1", Total: 3, Live: true}); err != nil {
		t.Fatalf("start: %v", err)
	}

	results := []bool{false, false, false}
	for i, made := range results {
		attempt, err := c.Record(made)
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if attempt.Number != i+1 || attempt.Total != 3 {
			t.Fatalf("attempt %d: unexpected %+v", i+1, attempt)
		}
		final := i == len(results)-1
		if attempt.Final != final {
			t.Fatalf("attempt %d: final %t", i+1, attempt.Final)
		}
		if attempt.LiveMiss != final {
			t.Fatalf("attempt %d: only the last miss is live", i+1)
		}
	}
	if c.Active() {
		t.Fatal("sequence should be closed")
	}
}

func TestOneAndOneTermination(t *testing.T) {
	tests := []struct {
		first   bool
		second  bool
		attempt int
	}{
		{first: false, attempt: 1},
		{first: true, second: true, attempt: 2},
		{first: true, second: false, attempt: 2},
	}
	for _, tt := range tests {
		c := NewFreeThrowController()
		if err := c.Start(FreeThrowSequence{ID: "s", ShooterID: "p", Total: 2, OneAndOne: true, Live: true}); err != nil {
			t.Fatalf("start: %v", err)
		}
		attempt, _ := c.Record(tt.first)
		if !tt.first {
			if !attempt.Final || c.Active() {
				t.Fatal("missed front end must end the sequence")
			}
			continue
		}
		if attempt.Final {
			t.Fatal("made front end earns a second attempt")
		}
		attempt, _ = c.Record(tt.second)
		if !attempt.Final || attempt.Number != tt.attempt {
			t.Fatalf("expected final attempt %d, got %+v", tt.attempt, attempt)
		}
	}
}

func TestFreeThrowControllerGuards(t *testing.T) {
	c := NewFreeThrowController()
	if _, err := c.Record(true); !errors.Is(err, ErrNoFreeThrowSequence) {
		t.Fatalf("expected no sequence, got %v", err)
	}
	if _, err := c.Cancel(); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
	bad := []FreeThrowSequence{
		{ID: "x", Total: 2},
		{ID: "x", ShooterID: "p", Total: 0},
		{ID: "x", ShooterID: "p", Total: 4},
		{ID: "x", ShooterID: "p", Total: 3, OneAndOne: true},
	}
	for _, seq := range bad {
		if err := c.Start(seq); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", seq, err)
		}
	}
	if err := c.Start(FreeThrowSequence{ID: "a", ShooterID: "p", Total: 1}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(FreeThrowSequence{ID: "b", ShooterID: "p", Total: 1}); !errors.Is(err, ErrSequenceActive) {
		t.Fatalf("expected sequence active, got %v", err)
	}
}

func TestFreeThrowCancelAndResume(t *testing.T) {
	c := NewFreeThrowController()
	_ = c.Start(FreeThrowSequence{ID: "s", ShooterID: "p", Total: 3})
	_, _ = c.Record(true)

	plan, err := c.Plan(false)
	if err != nil || plan.Number != 2 || plan.Final {
		t.Fatalf("unexpected plan %+v (%v)", plan, err)
	}
	if got := c.Sequence().Results; !reflect.DeepEqual(got, []bool{true}) {
		t.Fatalf("plan must not record, got %v", got)
	}

	seq, err := c.Cancel()
	if err != nil || len(seq.Results) != 1 {
		t.Fatalf("cancel returned %+v (%v)", seq, err)
	}

	seq.Results = append(seq.Results, false)
	if err := c.Resume(*seq, 2); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := c.Sequence(); got.Attempt() != 2 || !reflect.DeepEqual(got.Results, []bool{true}) {
		t.Fatalf("expected to await attempt 2, got %+v", got)
	}
	if err := c.Resume(*seq, 5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid resume point, got %v", err)
	}
}
