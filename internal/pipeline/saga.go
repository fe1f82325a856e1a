package pipeline

import (
	"context"
	"fmt"

	"leadgen-platform/pkg/logger"
)

// saga runs steps in order. When a step fails, the undo of every step that
// already completed runs in reverse order.
type saga struct {
	steps []sagaStep
}

type sagaStep struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

func (s *saga) add(name string, do, undo func(ctx context.Context) error) {
	s.steps = append(s.steps, sagaStep{name: name, do: do, undo: undo})
}

func (s *saga) run(ctx context.Context) error {
	for i, st := range s.steps {
		if err := st.do(ctx); err != nil {
			s.compensate(ctx, i)
			return fmt.Errorf("%s: %w", st.name, err)
		}
	}
	return nil
}

func (s *saga) compensate(ctx context.Context, failedAt int) {
	// Compensation must finish even if the request was cancelled.
	ctx = context.WithoutCancel(ctx)
	for i := failedAt - 1; i >= 0; i-- {
		st := s.steps[i]
		if st.undo == nil {
			continue
		}
		if err := st.undo(ctx); err != nil {
			logger.From(ctx).Error("saga compensation failed", "step", st.name, "err", err)
		}
	}
}
