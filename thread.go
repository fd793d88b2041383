package compose

// Thread is a render thread handle. At most one RenderContext is current
// on a Thread; activating another context replaces it.
//
// A Thread belongs to the goroutine that drives rendering through it, which
// is usually locked to its OS thread with runtime.LockOSThread.
type Thread struct {
	current *RenderContext
	closed  bool
}

// NewThread returns a handle with no current context.
func NewThread() *Thread { return &Thread{} }

// Current returns the context current on t, or nil.
func (t *Thread) Current() *RenderContext {
	if t == nil {
		return nil
	}
	return t.current
}

// Close clears the current context. Activating a context on a closed
// thread panics.
func (t *Thread) Close() {
	if t.current != nil {
		t.current.thread = nil
	}
	t.current = nil
	t.closed = true
}

func (t *Thread) release(ctx *RenderContext) {
	if t.current == ctx {
		t.current = nil
	}
}
