package compose

import "log/slog"

// idPool recycles driver ids. Acquire and put are its only mutation
// points; ids handed out are owned by the caller until put back.
type idPool[T comparable] struct {
	name    string
	alloc   func() (T, error)
	destroy func(T)
	free    []T
	issued  int
}

func newIDPool[T comparable](name string, alloc func() (T, error), destroy func(T)) *idPool[T] {
	return &idPool[T]{name: name, alloc: alloc, destroy: destroy}
}

// acquire pops a recycled id, or allocates one from the driver.
func (p *idPool[T]) acquire() (T, error) {
	if n := len(p.free); n > 0 {
		id := p.free[n-1]
		p.free = p.free[:n-1]
		return id, nil
	}
	id, err := p.alloc()
	if err != nil {
		var zero T
		return zero, err
	}
	p.issued++
	Logger().Debug("compose: pool allocated", slog.String("pool", p.name), slog.Int("issued", p.issued))
	return id, nil
}

// put returns id to the free list. The driver object stays alive.
func (p *idPool[T]) put(id T) {
	p.free = append(p.free, id)
}

// drain destroys every free id.
func (p *idPool[T]) drain() {
	for _, id := range p.free {
		p.destroy(id)
	}
	p.free = p.free[:0]
}

func (p *idPool[T]) idle() int { return len(p.free) }
