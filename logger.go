package compose

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/compose/driver"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// live holds the contexts whose drivers receive logger updates.
var (
	liveMu   sync.Mutex
	liveCtxs = make(map[*RenderContext]struct{})
)

// SetLogger configures the logger for compose and the drivers of all live
// render contexts. By default compose produces no log output.
// Pass nil to restore the silent default.
//
// Log levels used by compose:
//   - [slog.LevelDebug]: resource churn (targets, buffers, programs)
//   - [slog.LevelInfo]: context creation and capabilities
//   - [slog.LevelWarn]: degraded draw state (blend modes, mipmaps)
//
// Example:
//
//	compose.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	liveMu.Lock()
	defer liveMu.Unlock()
	for ctx := range liveCtxs {
		propagateLogger(ctx.drv, l)
	}
}

// Logger returns the current logger used by compose.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by drivers that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

func propagateLogger(d driver.Driver, l *slog.Logger) {
	if ls, ok := d.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

func track(ctx *RenderContext) {
	liveMu.Lock()
	liveCtxs[ctx] = struct{}{}
	liveMu.Unlock()
	propagateLogger(ctx.drv, Logger())
}

func untrack(ctx *RenderContext) {
	liveMu.Lock()
	delete(liveCtxs, ctx)
	liveMu.Unlock()
}
