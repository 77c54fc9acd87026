// Package unloggedbuild implements the unlogged-build controller
// (component I, spec §4.6): a single-live-build state machine used
// while an index or table is built impersonating UNLOGGED to skip WAL
// overhead, then converted to PERMANENT once built.
package unloggedbuild

import "github.com/pkg/errors"

// State is one of the four states in spec §4.6's table.
type State uint8

const (
	NotInProgress State = iota
	Phase1
	Phase2
	NotPermanent
)

func (s State) String() string {
	switch s {
	case NotInProgress:
		return "not_in_progress"
	case Phase1:
		return "phase_1"
	case Phase2:
		return "phase_2"
	case NotPermanent:
		return "not_permanent"
	default:
		return "unknown"
	}
}

// ErrInternal marks an impossible transition, per spec §7 item 4: a
// commit/prepare observed while a build isn't NOT_IN_PROGRESS.
var ErrInternal = errors.New("unloggedbuild: internal error")

// Controller holds the single live build's state. There is at most one
// build in progress per backend, matching the source's process-global.
type Controller struct {
	state State
}

func New() *Controller { return &Controller{state: NotInProgress} }

func (c *Controller) State() State { return c.state }

// StartPermanent begins phase 1 on a permanent, empty relation that
// will impersonate UNLOGGED for the duration of the build.
func (c *Controller) StartPermanent() error {
	if c.state != NotInProgress {
		return errors.Wrapf(ErrInternal, "StartPermanent: build already in progress (%s)", c.state)
	}
	c.state = Phase1
	return nil
}

// StartNotPermanent begins a build on an already-temp/unlogged
// relation: no WAL trickery is needed, the state exists only so End is
// symmetric.
func (c *Controller) StartNotPermanent() error {
	if c.state != NotInProgress {
		return errors.Wrapf(ErrInternal, "StartNotPermanent: build already in progress (%s)", c.state)
	}
	c.state = NotPermanent
	return nil
}

// FinishPhase1 transitions Phase1 -> Phase2.
func (c *Controller) FinishPhase1() error {
	if c.state != Phase1 {
		return errors.Wrapf(ErrInternal, "FinishPhase1: not in phase 1 (%s)", c.state)
	}
	c.state = Phase2
	return nil
}

// End completes the build, whatever phase it's in, returning to
// NOT_IN_PROGRESS. For a NotPermanent build this is a no-op beyond the
// state reset; for Phase2 the caller is responsible for dropping the
// local unlogged copy.
func (c *Controller) End() error {
	if c.state == NotInProgress {
		return errors.Wrap(ErrInternal, "End: no build in progress")
	}
	c.state = NotInProgress
	return nil
}

// Abort unconditionally resets to NOT_IN_PROGRESS. Cleanup of any local
// file is left to the engine's pending-delete machinery.
func (c *Controller) Abort() {
	c.state = NotInProgress
}

// OnCommitOrPrepare implements the transaction-hook contract: anything
// but NOT_IN_PROGRESS observed here is an internal error, since a
// build must End before its transaction commits.
func (c *Controller) OnCommitOrPrepare() error {
	if c.state != NotInProgress {
		return errors.Wrapf(ErrInternal, "commit/prepare observed with build state %s", c.state)
	}
	return nil
}
