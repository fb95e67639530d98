package scheduler

import (
	"time"

	"github.com/hunter-volkman/image-emailer/internal/config"
)

// Action is the closed set of things a tick can decide to do. The variants
// are computed per wake-up, consumed immediately, and never persisted.
type Action interface {
	isAction()
}

// CaptureAction fires a capture standing in for the given schedule slot.
// When the process was down across several slots they collapse into one
// catch-up labelled with the latest overdue instant.
type CaptureAction struct {
	Instant config.TimeOfDay
}

// SendAction dispatches the daily report for a date.
type SendAction struct {
	Date time.Time
}

// ArtifactAction builds the animated artifact for a date's bucket. Never
// scheduler-triggered; it enters through the manual command path.
type ArtifactAction struct {
	Date time.Time
}

func (CaptureAction) isAction()  {}
func (SendAction) isAction()     {}
func (ArtifactAction) isAction() {}

// Outcome reports one executed action from a tick.
type Outcome struct {
	Action    Action
	Committed bool
	Err       error
}
