package telemetry

import (
	"context"

	"mdh-device-export/internal/mdh"
)

// DiagnosticEmitter publishes run diagnostics (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type DiagnosticEmitter interface {
	Emit(ctx context.Context, d mdh.Diagnostic) error
}

// Nop discards every diagnostic.
type Nop struct{}

func (Nop) Emit(context.Context, mdh.Diagnostic) error { return nil }
