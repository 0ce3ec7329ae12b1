package rules

import "fmt"

// FreeThrowSequence is the state of a free throw award being shot.
type FreeThrowSequence struct {
	ID        string `json:"id"`
	ShooterID string `json:"shooter_id"`
	// FoulEventID links the sequence to the foul that awarded it, if any.
	FoulEventID string `json:"foul_event_id,omitempty"`
	Total       int    `json:"total"`
	OneAndOne   bool   `json:"one_and_one"`
	Live        bool   `json:"live"`
	Results     []bool `json:"results"`
}

// Attempt returns the 1-based number of the attempt awaiting a result.
func (s *FreeThrowSequence) Attempt() int {
	return len(s.Results) + 1
}

// Done reports whether no further attempts are owed.
func (s *FreeThrowSequence) Done() bool {
	n := len(s.Results)
	if s.OneAndOne && n == 1 && !s.Results[0] {
		return true
	}
	return n >= s.Total
}

func (s *FreeThrowSequence) clone() *FreeThrowSequence {
	c := *s
	c.Results = append([]bool(nil), s.Results...)
	return &c
}

// FreeThrowAttempt describes the outcome of recording one result.
type FreeThrowAttempt struct {
	Number int  `json:"number"`
	Total  int  `json:"total"`
	Made   bool `json:"made"`
	// Final is set when this attempt ends the sequence.
	Final bool `json:"final"`
	// LiveMiss is set when a missed final attempt leaves a live ball.
	LiveMiss bool `json:"live_miss"`
}

// FreeThrowController sequences the attempts of one free throw award at a time.
type FreeThrowController struct {
	seq *FreeThrowSequence
}

// NewFreeThrowController creates an idle controller.
func NewFreeThrowController() *FreeThrowController {
	return &FreeThrowController{}
}

// Active reports whether a sequence is awaiting results.
func (c *FreeThrowController) Active() bool {
	return c.seq != nil
}

// Sequence returns a copy of the active sequence, or nil when idle.
func (c *FreeThrowController) Sequence() *FreeThrowSequence {
	if c.seq == nil {
		return nil
	}
	return c.seq.clone()
}

// Start opens a new sequence.
func (c *FreeThrowController) Start(seq FreeThrowSequence) error {
	if c.seq != nil {
		return ErrSequenceActive
	}
	if seq.ShooterID == "" {
		return fmt.Errorf("%w: free throw shooter is required", ErrInvalidInput)
	}
	if seq.Total < 1 || seq.Total > 3 {
		return fmt.Errorf("%w: free throw count must be between 1 and 3, got %d", ErrInvalidInput, seq.Total)
	}
	if seq.OneAndOne && seq.Total != 2 {
		return fmt.Errorf("%w: one-and-one sequences have two attempts", ErrInvalidInput)
	}
	c.seq = seq.clone()
	if c.seq.Results == nil {
		c.seq.Results = make([]bool, 0, c.seq.Total)
	}
	return nil
}

// Plan reports what recording a result would do without changing state.
func (c *FreeThrowController) Plan(made bool) (FreeThrowAttempt, error) {
	if c.seq == nil {
		return FreeThrowAttempt{}, ErrNoFreeThrowSequence
	}
	next := c.seq.clone()
	next.Results = append(next.Results, made)
	final := next.Done()
	return FreeThrowAttempt{
		Number:   len(next.Results),
		Total:    c.seq.Total,
		Made:     made,
		Final:    final,
		LiveMiss: final && !made && c.seq.Live,
	}, nil
}

// Record stores a result and closes the sequence once it is complete.
func (c *FreeThrowController) Record(made bool) (FreeThrowAttempt, error) {
	attempt, err := c.Plan(made)
	if err != nil {
		return attempt, err
	}
	c.seq.Results = append(c.seq.Results, made)
	if attempt.Final {
		c.seq = nil
	}
	return attempt, nil
}

// Cancel abandons the active sequence. Committed attempts are unaffected.
func (c *FreeThrowController) Cancel() (*FreeThrowSequence, error) {
	if c.seq == nil {
		return nil, ErrNoFreeThrowSequence
	}
	seq := c.seq
	c.seq = nil
	return seq, nil
}

// Resume restores a sequence so that it awaits attempt number attempt again.
// It is used when the attempt's committed result is undone.
func (c *FreeThrowController) Resume(seq FreeThrowSequence, attempt int) error {
	if attempt < 1 || attempt > len(seq.Results)+1 {
		return fmt.Errorf("%w: cannot resume at attempt %d", ErrInvalidInput, attempt)
	}
	restored := seq.clone()
	restored.Results = restored.Results[:attempt-1]
	c.seq = restored
	return nil
}
