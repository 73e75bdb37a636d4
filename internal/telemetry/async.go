package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mdh-device-export/internal/mdh"
)

// emitTimeout bounds a single async emit. ShutdownDrainDuration must not be shorter.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is the longest Drain waits for in-flight emits before OTel providers are shut down.
const ShutdownDrainDuration = emitTimeout

// Async wraps a DiagnosticEmitter so Emit never blocks the caller.
// Each emit runs in its own goroutine on a fresh context bounded by emitTimeout,
// so cancelling the run does not drop diagnostics already handed over.
type Async struct {
	next   DiagnosticEmitter
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewAsync returns an Async around next. A nil next yields an emitter that drops everything.
func NewAsync(next DiagnosticEmitter, logger *zap.Logger) *Async {
	if next == nil {
		next = Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Async{next: next, logger: logger}
}

// Emit hands d to a goroutine and returns nil immediately; failures are logged.
func (a *Async) Emit(_ context.Context, d mdh.Diagnostic) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := a.next.Emit(emitCtx, d); err != nil {
			a.logger.Warn("telemetry: async emit failed", zap.Error(err), zap.String("kind", string(d.Kind)))
		}
	}()
	return nil
}

// Drain waits for in-flight emits, at most ShutdownDrainDuration or until ctx is done.
// Call it after the last Emit. It reports whether everything finished.
func (a *Async) Drain(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(ShutdownDrainDuration)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	a.logger.Warn("telemetry: drain gave up with emits in flight")
	return false
}
