package rules

import (
	"fmt"
	"slices"
)

// AttributionState is the step of the shot/assist/rebound workflow.
type AttributionState int

const (
	AttributionIdle AttributionState = iota
	AttributionPendingShot
	AttributionPendingAssist
	AttributionPendingRebound
)

var attributionStateNames = map[AttributionState]string{
	AttributionIdle:           "IDLE",
	AttributionPendingShot:    "PENDING_SHOT",
	AttributionPendingAssist:  "PENDING_ASSIST",
	AttributionPendingRebound: "PENDING_REBOUND",
}

func (s AttributionState) String() string {
	if name, ok := attributionStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ATTRIBUTION_%d", int(s))
}

// PendingShot is a tapped shot awaiting shooter and make/miss.
type PendingShot struct {
	ID       string    `json:"id"`
	Location *Location `json:"location,omitempty"`
	Zone     Zone      `json:"zone"`
	ShotType ShotType  `json:"shot_type"`
}

// PendingAssist is a made shot awaiting an assister or "no assist".
type PendingAssist struct {
	ShotEventID string   `json:"shot_event_id"`
	ScorerID    string   `json:"scorer_id"`
	TeamID      string   `json:"team_id"`
	Options     []string `json:"options"`
}

// PendingRebound is a live miss awaiting a rebounder or team rebound.
type PendingRebound struct {
	// SourceEventID is the missed shot or free throw.
	SourceEventID  string   `json:"source_event_id"`
	ShooterID      string   `json:"shooter_id"`
	ShootingTeamID string   `json:"shooting_team_id"`
	Options        []string `json:"options"`
	TeamOptions    []string `json:"team_options"`
}

// AttributionWorkflow holds at most one open shot, assist or rebound prompt.
type AttributionWorkflow struct {
	state   AttributionState
	shot    *PendingShot
	assist  *PendingAssist
	rebound *PendingRebound
}

// NewAttributionWorkflow creates an idle workflow.
func NewAttributionWorkflow() *AttributionWorkflow {
	return &AttributionWorkflow{state: AttributionIdle}
}

// State returns the current step.
func (w *AttributionWorkflow) State() AttributionState { return w.state }

// Idle reports whether no prompt is open.
func (w *AttributionWorkflow) Idle() bool { return w.state == AttributionIdle }

// Shot returns the open shot prompt, or nil.
func (w *AttributionWorkflow) Shot() *PendingShot {
	if w.shot == nil {
		return nil
	}
	c := *w.shot
	return &c
}

// Assist returns the open assist prompt, or nil.
func (w *AttributionWorkflow) Assist() *PendingAssist {
	if w.assist == nil {
		return nil
	}
	c := *w.assist
	c.Options = slices.Clone(w.assist.Options)
	return &c
}

// Rebound returns the open rebound prompt, or nil.
func (w *AttributionWorkflow) Rebound() *PendingRebound {
	if w.rebound == nil {
		return nil
	}
	c := *w.rebound
	c.Options = slices.Clone(w.rebound.Options)
	c.TeamOptions = slices.Clone(w.rebound.TeamOptions)
	return &c
}

func (w *AttributionWorkflow) requireIdle() error {
	if w.state != AttributionIdle {
		return fmt.Errorf("%w: %s is open", ErrInteractionPending, w.state)
	}
	return nil
}

// BeginShot opens a shot prompt. The shot type is derived from the location
// when one is given, otherwise override is used.
func (w *AttributionWorkflow) BeginShot(id string, loc *Location, override ShotType) (*PendingShot, error) {
	if err := w.requireIdle(); err != nil {
		return nil, err
	}
	shot := &PendingShot{ID: id, Zone: ZoneUnknown, ShotType: override}
	if loc != nil {
		if err := loc.Validate(); err != nil {
			return nil, err
		}
		l := *loc
		shot.Location = &l
		shot.Zone, shot.ShotType = Classify(l)
		if override.Valid() && override != shot.ShotType {
			shot.ShotType = override
		}
	}
	if !shot.ShotType.Valid() {
		return nil, fmt.Errorf("%w: shot type is required without a location", ErrInvalidInput)
	}
	w.shot = shot
	w.state = AttributionPendingShot
	return w.Shot(), nil
}

// TakeShot closes the open shot prompt and returns it.
func (w *AttributionWorkflow) TakeShot() (*PendingShot, error) {
	if w.state != AttributionPendingShot {
		return nil, fmt.Errorf("%w: no shot is pending", ErrNoPendingInteraction)
	}
	shot := w.shot
	w.reset()
	return shot, nil
}

// OpenAssist opens an assist prompt for a made shot.
func (w *AttributionWorkflow) OpenAssist(a PendingAssist) error {
	if err := w.requireIdle(); err != nil {
		return err
	}
	a.Options = slices.DeleteFunc(slices.Clone(a.Options), func(id string) bool { return id == a.ScorerID })
	w.assist = &a
	w.state = AttributionPendingAssist
	return nil
}

// CheckAssister validates that playerID is an offered assister.
func (w *AttributionWorkflow) CheckAssister(playerID string) (*PendingAssist, error) {
	if w.state != AttributionPendingAssist {
		return nil, fmt.Errorf("%w: no assist is pending", ErrNoPendingInteraction)
	}
	if !slices.Contains(w.assist.Options, playerID) {
		return nil, fmt.Errorf("%w: %s cannot be credited with the assist", ErrInvalidSelection, playerID)
	}
	return w.Assist(), nil
}

// OpenRebound opens a rebound prompt for a live miss.
func (w *AttributionWorkflow) OpenRebound(r PendingRebound) error {
	if err := w.requireIdle(); err != nil {
		return err
	}
	r.Options = slices.Clone(r.Options)
	r.TeamOptions = slices.Clone(r.TeamOptions)
	w.rebound = &r
	w.state = AttributionPendingRebound
	return nil
}

// CheckRebounder validates that playerID is an offered rebounder.
func (w *AttributionWorkflow) CheckRebounder(playerID string) (*PendingRebound, error) {
	if w.state != AttributionPendingRebound {
		return nil, fmt.Errorf("%w: no rebound is pending", ErrNoPendingInteraction)
	}
	if !slices.Contains(w.rebound.Options, playerID) {
		return nil, fmt.Errorf("%w: %s cannot be credited with the rebound", ErrInvalidSelection, playerID)
	}
	return w.Rebound(), nil
}

// CheckTeamRebound validates that teamID is an offered team rebound.
func (w *AttributionWorkflow) CheckTeamRebound(teamID string) (*PendingRebound, error) {
	if w.state != AttributionPendingRebound {
		return nil, fmt.Errorf("%w: no rebound is pending", ErrNoPendingInteraction)
	}
	if !slices.Contains(w.rebound.TeamOptions, teamID) {
		return nil, fmt.Errorf("%w: team %s cannot be credited with the rebound", ErrInvalidSelection, teamID)
	}
	return w.Rebound(), nil
}

// Complete closes an assist or rebound prompt after its resolution.
func (w *AttributionWorkflow) Complete() {
	if w.state == AttributionPendingAssist || w.state == AttributionPendingRebound {
		w.reset()
	}
}

// Cancel closes whatever prompt is open.
func (w *AttributionWorkflow) Cancel() (AttributionState, error) {
	if w.state == AttributionIdle {
		return AttributionIdle, ErrNoPendingInteraction
	}
	prev := w.state
	w.reset()
	return prev, nil
}

// References reports whether the open prompt depends on eventID.
func (w *AttributionWorkflow) References(eventID string) bool {
	switch w.state {
	case AttributionPendingAssist:
		return w.assist.ShotEventID == eventID
	case AttributionPendingRebound:
		return w.rebound.SourceEventID == eventID
	}
	return false
}

func (w *AttributionWorkflow) reset() {
	w.state = AttributionIdle
	w.shot = nil
	w.assist = nil
	w.rebound = nil
}
