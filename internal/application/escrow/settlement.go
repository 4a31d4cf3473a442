package escrow

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// step is one external side effect of a transition together with its compensation.
type step struct {
	name  string
	apply func(ctx context.Context) error
	undo  func(ctx context.Context) error
}

// settlement stages the external effects of one transition and commits them together with the
// local state: steps apply in order, then commit runs; any failure undoes the applied steps in
// reverse order so neither custody nor payout is left half-done.
type settlement struct {
	op      string
	assetID uint64
	steps   []step
}

func newSettlement(op string, assetID uint64) *settlement {
	return &settlement{op: op, assetID: assetID}
}

func (s *settlement) add(name string, apply, undo func(ctx context.Context) error) {
	s.steps = append(s.steps, step{name: name, apply: apply, undo: undo})
}

// run applies all steps and then commit. A step failure is returned as a collaborator error;
// commit errors are returned as-is. Compensation failures are joined onto the returned error.
func (s *settlement) run(ctx context.Context, commit func(ctx context.Context) error) error {
	applied := 0
	for _, st := range s.steps {
		if err := st.apply(ctx); err != nil {
			log.Warn().Err(err).Str("op", s.op).Uint64("asset_id", s.assetID).Str("step", st.name).Msg("settlement step failed, rolling back")
			return s.rollback(collaboratorErr(s.op, err), applied)
		}
		applied++
	}
	if err := commit(ctx); err != nil {
		log.Warn().Err(err).Str("op", s.op).Uint64("asset_id", s.assetID).Msg("settlement commit failed, rolling back")
		return s.rollback(err, applied)
	}
	return nil
}

func (s *settlement) rollback(cause error, applied int) error {
	// compensations run even if the caller's context is already cancelled
	ctx := context.Background()
	var undoErrs []error
	for i := applied - 1; i >= 0; i-- {
		st := s.steps[i]
		if st.undo == nil {
			continue
		}
		if err := st.undo(ctx); err != nil {
			log.Error().Err(err).Str("op", s.op).Uint64("asset_id", s.assetID).Str("step", st.name).Msg("settlement compensation failed")
			undoErrs = append(undoErrs, err)
		}
	}
	if len(undoErrs) == 0 {
		return cause
	}
	return errors.Join(append([]error{cause}, undoErrs...)...)
}
