package aggregator

import "sync"

const (
	progressStart = 10
	progressDone  = 100
)

// ProgressFunc observes progress changes in the range [10, 100].
type ProgressFunc func(percent int)

// progressTracker holds a monotonic percentage for one run.
type progressTracker struct {
	mu       sync.Mutex
	total    int
	value    int
	onChange ProgressFunc
}

func newProgressTracker(total int, onChange ProgressFunc) *progressTracker {
	return &progressTracker{total: total, onChange: onChange}
}

func (p *progressTracker) start() {
	p.set(progressStart)
}

// settled records completed fetches out of total.
func (p *progressTracker) settled(completed int) {
	if p.total <= 0 {
		return
	}
	p.set(progressStart + completed*(progressDone-progressStart)/p.total)
}

func (p *progressTracker) finish() {
	p.set(progressDone)
}

func (p *progressTracker) get() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func (p *progressTracker) set(v int) {
	p.mu.Lock()
	if v <= p.value {
		p.mu.Unlock()
		return
	}
	p.value = v
	cb := p.onChange
	p.mu.Unlock()

	if cb != nil {
		cb(v)
	}
}
