package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"mdh-device-export/internal/mdh"
	"mdh-device-export/internal/telemetry"
)

const loggerName = "mdh-device-export/diagnostics"

// recordEmitter is the part of otellog.Logger the adapter needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewDiagnosticEmitter returns a DiagnosticEmitter that sends diagnostics as OTel log records via provider.
// If provider is nil, returns a no-op emitter.
func NewDiagnosticEmitter(provider *sdklog.LoggerProvider) telemetry.DiagnosticEmitter {
	if provider == nil {
		return telemetry.Nop{}
	}
	return &otelEmitter{logger: provider.Logger(loggerName)}
}

// NewDiagnosticEmitterWithLogger is NewDiagnosticEmitter over an arbitrary record sink.
func NewDiagnosticEmitterWithLogger(logger recordEmitter) telemetry.DiagnosticEmitter {
	if logger == nil {
		return telemetry.Nop{}
	}
	return &otelEmitter{logger: logger}
}

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts d into a log record. Skipped and failed pairs are warnings; the rest are info.
func (e *otelEmitter) Emit(ctx context.Context, d mdh.Diagnostic) error {
	rec := otellog.Record{}
	rec.SetTimestamp(time.Now().UTC())
	rec.SetBody(otellog.StringValue(d.String()))
	sev, text := severity(d.Kind)
	rec.SetSeverity(sev)
	rec.SetSeverityText(text)

	rec.AddAttributes(otellog.String("mdh.diagnostic.kind", string(d.Kind)))
	if d.Namespace != "" {
		rec.AddAttributes(otellog.String("mdh.namespace", d.Namespace))
	}
	if d.ParticipantID != "" {
		rec.AddAttributes(otellog.String("mdh.participant_id", d.ParticipantID))
	}
	if d.Measurement != "" {
		rec.AddAttributes(otellog.String("mdh.measurement", d.Measurement))
	}
	if d.StatusCode != 0 {
		rec.AddAttributes(otellog.Int("http.response.status_code", d.StatusCode))
	}
	e.logger.Emit(ctx, rec)
	return nil
}

func severity(kind mdh.DiagnosticKind) (otellog.Severity, string) {
	switch kind {
	case mdh.DiagSkipped, mdh.DiagFailed:
		return otellog.SeverityWarn, "WARN"
	default:
		return otellog.SeverityInfo, "INFO"
	}
}
