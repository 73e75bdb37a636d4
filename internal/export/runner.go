package export

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"mdh-device-export/internal/mdh"
	"mdh-device-export/internal/measurement"
	"mdh-device-export/internal/telemetry"
)

// TokenSource mints platform access tokens. *auth.Provider implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Job describes one export run.
type Job struct {
	ProjectID string
	// SegmentID restricts the run to a segment's participants. Ignored when ParticipantIDs is set.
	SegmentID string
	// ParticipantIDs skips listing entirely.
	ParticipantIDs []string
	Namespaces     []measurement.Namespace
	Spec           measurement.Spec
}

// Summary reports what a run did.
type Summary struct {
	Participants int
	Records      int
	// RecordsByNamespace counts written records per namespace name.
	RecordsByNamespace map[string]int
	Diagnostics        []mdh.Diagnostic
}

// Runner fetches device data for a Job and streams it to a Sink.
type Runner struct {
	Tokens      TokenSource
	Client      *mdh.Client
	Sink        Sink
	Emitter     telemetry.DiagnosticEmitter
	Logger      *zap.Logger
	PageSize    int
	Concurrency int
}

// Run executes job. Records are written namespace by namespace, each in participant order and then
// in the job's measurement order. Diagnostics never fail the run; authentication, listing, sink
// errors and cancellation do.
func (r *Runner) Run(ctx context.Context, job Job) (sum *Summary, err error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	emitter := r.Emitter
	if emitter == nil {
		emitter = telemetry.Nop{}
	}
	if err := job.Spec.Validate(); err != nil {
		return nil, err
	}
	if len(job.Namespaces) == 0 {
		return nil, errors.New("export: job names no namespaces")
	}

	ctx, span := otel.Tracer("mdh-device-export/internal/export").Start(ctx, "export.Run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	token, err := r.Tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := r.participants(ctx, token, job)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("mdh.participants", len(ids)))
	logger.Info("export: participants resolved", zap.Int("count", len(ids)), zap.String("segment", job.SegmentID))

	sum = &Summary{Participants: len(ids), RecordsByNamespace: make(map[string]int, len(job.Namespaces))}
	for _, ns := range job.Namespaces {
		ret := measurement.NewRetriever(r.Client, ns, r.Concurrency, logger)
		res, err := ret.Fetch(ctx, token, job.ProjectID, ids, job.Spec)
		if err != nil {
			return nil, err
		}
		for _, d := range res.Diagnostics {
			logDiagnostic(logger, d)
			if err := emitter.Emit(ctx, d); err != nil {
				logger.Warn("export: diagnostic emit failed", zap.Error(err))
			}
		}
		sum.Diagnostics = append(sum.Diagnostics, res.Diagnostics...)

		for _, rec := range recordsOf(ns.Name, res.Records, ids, job.Spec.Measurements) {
			if err := r.Sink.Write(ctx, rec); err != nil {
				return nil, fmt.Errorf("export: write %s record: %w", ns.Name, err)
			}
			sum.Records++
			sum.RecordsByNamespace[ns.Name]++
		}
		logger.Info("export: namespace done",
			zap.String("namespace", ns.Name),
			zap.Int("records", sum.RecordsByNamespace[ns.Name]),
			zap.Int("diagnostics", len(res.Diagnostics)),
		)
	}
	if err := r.Sink.Flush(ctx); err != nil {
		return nil, fmt.Errorf("export: flush: %w", err)
	}
	span.SetAttributes(attribute.Int("mdh.records", sum.Records))
	return sum, nil
}

func (r *Runner) participants(ctx context.Context, token string, job Job) ([]string, error) {
	switch {
	case len(job.ParticipantIDs) > 0:
		return job.ParticipantIDs, nil
	case job.SegmentID != "":
		return r.Client.ListSegmentParticipants(ctx, token, job.ProjectID, job.SegmentID, r.PageSize)
	default:
		return r.Client.ListAllParticipants(ctx, token, job.ProjectID, r.PageSize)
	}
}

func logDiagnostic(logger *zap.Logger, d mdh.Diagnostic) {
	fields := []zap.Field{
		zap.String("kind", string(d.Kind)),
		zap.String("namespace", d.Namespace),
		zap.String("participant", d.ParticipantID),
		zap.String("measurement", d.Measurement),
	}
	if d.StatusCode != 0 {
		fields = append(fields, zap.Int("status", d.StatusCode))
	}
	if d.Message != "" {
		fields = append(fields, zap.String("message", d.Message))
	}
	switch d.Kind {
	case mdh.DiagSkipped, mdh.DiagFailed:
		logger.Warn("export: pair skipped", fields...)
	default:
		logger.Info("export: pair has no records", fields...)
	}
}
