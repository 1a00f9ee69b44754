package sync

import "github.com/klauern/blocksync/internal/model"

// ProgressType identifies the kind of a progress event.
type ProgressType string

const (
	// ProgressStatus carries a textual status update.
	ProgressStatus ProgressType = "status"
	// ProgressPercent carries a 0-100 completion update.
	ProgressPercent ProgressType = "percent"
	// ProgressState reports a state machine transition.
	ProgressState ProgressType = "state"
)

// ProgressEvent is emitted by the orchestrator while a batch runs.
type ProgressEvent struct {
	Type     ProgressType
	State    State
	Message  string
	Percent  int
	Identity model.Identity
}

// ProgressFunc receives progress events. It must not block for long.
type ProgressFunc func(ProgressEvent)

// Percentages for batch milestones. Item progress is spread between
// percentMutateStart and percentMutateEnd.
const (
	percentScanned     = 5
	percentDiffed      = 10
	percentBackedUp    = 20
	percentMutateStart = 20
	percentMutateEnd   = 90
	percentSaved       = 95
	percentDone        = 100
)

func itemPercent(done, total int) int {
	if total <= 0 {
		return percentMutateEnd
	}
	return percentMutateStart + (percentMutateEnd-percentMutateStart)*done/total
}

func (o *Orchestrator) emit(ev ProgressEvent) {
	if o.progress == nil {
		return
	}
	if ev.State == "" {
		ev.State = o.state
	}
	o.progress(ev)
}

func (o *Orchestrator) status(msg string) {
	o.emit(ProgressEvent{Type: ProgressStatus, Message: msg})
}

func (o *Orchestrator) percent(p int) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	o.emit(ProgressEvent{Type: ProgressPercent, Percent: p})
}
