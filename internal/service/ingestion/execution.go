package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"duck-ingest/internal/domain"
)

// pendingExecution is an execution row that has been started and must be
// sealed exactly once.
type pendingExecution struct {
	id      string
	mapping *domain.TableMapping
	counts  domain.ExecutionCounts
	started time.Time
	sealed  bool

	violationsTotal  int
	violationsLogged int
}

func (o *Orchestrator) beginExecution(ctx context.Context, mapping *domain.TableMapping, execType string) (*pendingExecution, error) {
	trigger, ok := domain.TriggerFromContext(ctx)
	if !ok {
		trigger = domain.Trigger{By: o.cfg.TriggeredBy, Type: domain.TriggerTypeManual}
	}
	mode := domain.ExecutionModeLive
	if o.cfg.DryRun {
		mode = domain.ExecutionModeDryRun
	}

	id, err := o.catalog.StartExecution(ctx, domain.StartExecutionRequest{
		MappingID:     mapping.ID,
		ExecutionType: execType,
		ExecutionMode: mode,
		TriggeredBy:   trigger.By,
		Parameters: map[string]string{
			"trigger":         trigger.Type,
			"batch_size":      strconv.Itoa(o.cfg.BatchSize),
			"validation_mode": string(o.cfg.ValidationMode),
			"load_strategy":   mapping.LoadStrategy,
			"merge_strategy":  mapping.MergeStrategy,
		},
	})
	if err != nil {
		return nil, err
	}
	return &pendingExecution{id: id, mapping: mapping, started: time.Now()}, nil
}

// seal writes the terminal status. A second call is a no-op.
func (p *pendingExecution) seal(ctx context.Context, catalog domain.LineageWriter, status string, errMsg *string) error {
	if p.sealed {
		return nil
	}
	p.sealed = true
	return catalog.EndExecution(ctx, p.id, status, p.counts, errMsg)
}

func (p *pendingExecution) result(status string) *MappingResult {
	return &MappingResult{
		ExecutionID:      p.id,
		MappingID:        p.mapping.ID,
		MappingCode:      p.mapping.Code,
		Status:           status,
		Counts:           p.counts,
		ViolationsTotal:  p.violationsTotal,
		ViolationsLogged: p.violationsLogged,
		Duration:         time.Since(p.started),
	}
}

// withExecution starts an execution row for mapping, runs fn and seals the
// row on every exit path. A panic in fn is recovered into the returned
// error; a cancelled context seals the row as CANCELLED. Sealing ignores
// cancellation of ctx, and a seal failure is joined into the error.
func (o *Orchestrator) withExecution(
	ctx context.Context,
	mapping *domain.TableMapping,
	execType string,
	fn func(ctx context.Context, p *pendingExecution) error,
) (res *MappingResult, err error) {
	p, err := o.beginExecution(ctx, mapping, execType)
	if err != nil {
		return nil, fmt.Errorf("start execution of %s: %w", mapping.Code, err)
	}
	logger := o.logger.With("mapping", mapping.Code, "execution_id", p.id)
	logger.Info("execution started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in mapping %s: %v", mapping.Code, r)
		}

		status := domain.ExecutionStatusSuccess
		var errMsg *string
		if err != nil {
			status = domain.ExecutionStatusFailed
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				status = domain.ExecutionStatusCancelled
			}
			msg := err.Error()
			errMsg = &msg
		}

		if sealErr := p.seal(context.WithoutCancel(ctx), o.catalog, status, errMsg); sealErr != nil {
			logger.Error("seal execution", "status", status, "error", sealErr)
			err = errors.Join(err, fmt.Errorf("seal execution %s: %w", p.id, sealErr))
		}

		res = p.result(status)
		o.observer.ObserveExecution(mapping.Code, status, res.Duration)
		if err != nil {
			logger.Error("execution finished", "status", status, "duration", res.Duration, "error", err)
			return
		}
		logger.Info("execution finished", "status", status, "duration", res.Duration,
			"extracted", p.counts.Extracted, "rejected", p.counts.Rejected, "loaded", p.counts.Loaded)
	}()

	return nil, fn(ctx, p)
}
