package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/provisio/provisio/pkg/stores"
	"github.com/provisio/provisio/pkg/telemetry"
)

// Runner drives a configuration pass: one evaluation per catalog package,
// strictly in declaration order, sharing a single option namespace. The
// first fatal error aborts the pass; packages already resolved keep their
// verdicts in the report.
type Runner struct {
	evaluator *Evaluator
	logger    zerolog.Logger

	store   stores.Store
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	events  *telemetry.EventPublisher
}

// RunnerConfig carries the runner's optional collaborators. Any field
// may be nil; the runner degrades to evaluation only.
type RunnerConfig struct {
	// Store persists pass history for auditing.
	Store stores.Store

	// Metrics records evaluation and pass counters.
	Metrics *telemetry.Metrics

	// Tracer emits a span per pass and per evaluation.
	Tracer *telemetry.Tracer

	// Events publishes pass and decision events.
	Events *telemetry.EventPublisher
}

// NewRunner creates a pass runner around an evaluator.
func NewRunner(evaluator *Evaluator, logger zerolog.Logger, cfg RunnerConfig) *Runner {
	return &Runner{
		evaluator: evaluator,
		logger:    logger.With().Str("component", "runner").Logger(),
		store:     cfg.Store,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		events:    cfg.Events,
	}
}

// Run evaluates the catalog packages in order and returns the pass
// report. The returned error is the fatal condition that aborted the
// pass, if any; the report is always populated with the decisions made
// before the abort.
func (r *Runner) Run(ctx context.Context, catalogPath string, evals []Evaluation) (*Report, error) {
	report := &Report{
		ID:          uuid.New().String(),
		CatalogPath: catalogPath,
		StartedAt:   time.Now().UTC(),
		Status:      PassStatusCompleted,
	}

	ctx, endPass := r.startPassSpan(ctx, report.ID, catalogPath)
	defer endPass()

	r.logger.Info().
		Str("pass_id", report.ID).
		Str("catalog", catalogPath).
		Int("packages", len(evals)).
		Msg("configuration pass started")

	r.recordPassStarted(ctx, report)

	opts := NewOptions()
	var fatal error

	for i := range evals {
		if err := ctx.Err(); err != nil {
			fatal = NewInternalError("configuration pass cancelled", err).WithCode(ErrCodeInternal)
			break
		}

		dec, err := r.evaluator.Evaluate(ctx, &evals[i], opts)
		if dec != nil {
			report.add(*dec)
			r.recordDecision(ctx, report.ID, i, dec)
		}
		if err != nil {
			fatal = err
			break
		}
	}

	report.CompletedAt = time.Now().UTC()

	if fatal != nil {
		report.Status = PassStatusFailed
		var ee *EngineError
		if !errors.As(fatal, &ee) {
			ee = NewInternalError(fatal.Error(), fatal)
		}
		report.Failure = ee
	}

	r.recordPassFinished(ctx, report)

	r.logger.Info().
		Str("pass_id", report.ID).
		Str("status", string(report.Status)).
		Int("from_source", report.Summary.FromSource).
		Int("from_system", report.Summary.FromSystem).
		Msg("configuration pass finished")

	return report, fatal
}

// startPassSpan opens the pass span when tracing is wired.
func (r *Runner) startPassSpan(ctx context.Context, passID, catalogPath string) (context.Context, func()) {
	if r.tracer == nil {
		return ctx, func() {}
	}
	ctx, span := r.tracer.StartPassSpan(ctx, passID, catalogPath)
	return ctx, func() { span.End() }
}

func (r *Runner) recordPassStarted(ctx context.Context, report *Report) {
	if r.metrics != nil {
		r.metrics.RecordPassStarted(report.CatalogPath)
	}
	if r.events != nil {
		if err := r.events.PublishPassStarted(report.ID, report.CatalogPath); err != nil {
			r.logger.Warn().Err(err).Msg("failed to publish pass-started event")
		}
	}
	if r.store != nil {
		pass := &stores.Pass{
			ID:          report.ID,
			CatalogPath: report.CatalogPath,
			Status:      stores.PassStatusRunning,
			StartedAt:   report.StartedAt,
		}
		if err := r.store.CreatePass(ctx, pass); err != nil {
			r.logger.Warn().Err(err).Msg("failed to record pass in history store")
		}
	}
}

func (r *Runner) recordDecision(ctx context.Context, passID string, seq int, dec *Decision) {
	if r.metrics != nil {
		r.metrics.RecordEvaluation(dec.Verdict.String(), dec.Duration)
		if dec.AlreadyBuilt {
			r.metrics.RecordMarkerHit()
		}
	}
	if r.events != nil {
		if err := r.events.PublishDecision(passID, dec.Package, dec.Verdict.String(), dec.AlreadyBuilt); err != nil {
			r.logger.Warn().Err(err).Msg("failed to publish decision event")
		}
	}
	if r.store != nil {
		row := &stores.Decision{
			PassID:       passID,
			Seq:          seq,
			Package:      dec.Package,
			Verdict:      dec.Verdict.String(),
			Preference:   string(dec.Preference),
			Required:     dec.Required.String(),
			AlreadyBuilt: dec.AlreadyBuilt,
		}
		if len(dec.Notes) > 0 {
			note := strings.Join(dec.Notes, "; ")
			row.Note = &note
		}
		if err := r.store.AppendDecision(ctx, row); err != nil {
			r.logger.Warn().Err(err).Msg("failed to record decision in history store")
		}
	}
}

func (r *Runner) recordPassFinished(ctx context.Context, report *Report) {
	duration := report.CompletedAt.Sub(report.StartedAt)

	if r.metrics != nil {
		r.metrics.RecordPassCompleted(string(report.Status), duration)
		if report.Failure != nil {
			r.metrics.RecordError(string(report.Failure.Class), report.Failure.Code)
			if report.Failure.Class == ErrorClassConflict {
				r.metrics.RecordConflict()
			}
		}
	}

	if r.events != nil {
		var err error
		if report.Failure != nil {
			if report.Failure.Class == ErrorClassConflict {
				if perr := r.events.PublishConflict(report.ID, report.Failure.Package, report.Failure.Message); perr != nil {
					r.logger.Warn().Err(perr).Msg("failed to publish conflict event")
				}
			}
			err = r.events.PublishPassFailed(report.ID, report.Failure.Error())
		} else {
			err = r.events.PublishPassCompleted(report.ID, string(report.Status), duration)
		}
		if err != nil {
			r.logger.Warn().Err(err).Msg("failed to publish pass-finished event")
		}
	}

	if r.store != nil {
		var failPkg, failMsg *string
		status := stores.PassStatusCompleted
		if report.Failure != nil {
			status = stores.PassStatusFailed
			failPkg = &report.Failure.Package
			msg := report.Failure.Message
			failMsg = &msg
		}
		if err := r.store.FinishPass(ctx, report.ID, status, failPkg, failMsg); err != nil {
			r.logger.Warn().Err(err).Msg("failed to finish pass in history store")
		}
	}
}
