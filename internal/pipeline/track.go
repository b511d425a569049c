package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/company-finder/internal/model"
)

// Store failures are logged and never end a run.

func (r *run) createRun(ctx context.Context, req model.Request) string {
	st := r.p.deps.Store
	if st == nil {
		return uuid.New().String()
	}
	rec, err := st.CreateRun(ctx, req)
	if err != nil {
		zap.L().Warn("pipeline: failed to create run", zap.Error(err))
		return uuid.New().String()
	}
	r.tracked = true
	return rec.ID
}

func (r *run) setStatus(ctx context.Context, status model.RunStatus) {
	if !r.tracked {
		return
	}
	if err := r.p.deps.Store.UpdateRunStatus(ctx, r.id, status); err != nil {
		r.log.Warn("pipeline: failed to update status", zap.String("status", string(status)), zap.Error(err))
	}
}

func (r *run) createPhase(ctx context.Context, name string) *model.RunPhase {
	if !r.tracked {
		return nil
	}
	phase, err := r.p.deps.Store.CreatePhase(ctx, r.id, name)
	if err != nil {
		r.log.Warn("pipeline: failed to create phase", zap.String("phase", name), zap.Error(err))
		return nil
	}
	return phase
}

func (r *run) completePhase(ctx context.Context, phase *model.RunPhase, pr *model.PhaseResult) {
	if phase == nil {
		return
	}
	if err := r.p.deps.Store.CompletePhase(context.WithoutCancel(ctx), phase.ID, pr); err != nil {
		r.log.Warn("pipeline: failed to complete phase", zap.String("phase", pr.Name), zap.Error(err))
	}
}

func (r *run) complete(ctx context.Context, records []model.MergedRecord) {
	r.p.deps.Metrics.RunFinished(string(model.RunStatusDone))
	if !r.tracked {
		return
	}
	if err := r.p.deps.Store.CompleteRun(context.WithoutCancel(ctx), r.id, records); err != nil {
		r.log.Warn("pipeline: failed to save records", zap.Error(err))
	}
}

func (r *run) fail(ctx context.Context, err error) {
	r.p.deps.Metrics.RunFinished(string(model.RunStatusFailed))
	if !r.tracked {
		return
	}
	// The run context may be the reason for the failure.
	if storeErr := r.p.deps.Store.FailRun(context.WithoutCancel(ctx), r.id, err.Error()); storeErr != nil {
		r.log.Warn("pipeline: failed to mark run failed", zap.Error(errors.Join(err, storeErr)))
	}
}
