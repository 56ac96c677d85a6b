package export

import "sync"

// progress tracks the overall completion of a job as a fraction in [0, 1].
// Extraction fills the first half and upload the second. Values never decrease.
type progress struct {
	mu    sync.Mutex
	value float64
	known bool
}

func (p *progress) reset() {
	p.mu.Lock()
	p.value, p.known = 0, false
	p.mu.Unlock()
}

// setKnown marks the percentage as meaningful once the amount of work is known.
func (p *progress) setKnown(known bool) {
	p.mu.Lock()
	p.known = p.known || known
	p.mu.Unlock()
}

func (p *progress) addExtraction(increment float64) {
	p.add(increment, 0, 0.5)
}

func (p *progress) beginUpload() {
	p.mu.Lock()
	p.value = max(p.value, 0.5)
	p.known = true
	p.mu.Unlock()
}

func (p *progress) addUpload(increment float64) {
	p.add(increment, 0.5, 1)
}

func (p *progress) complete() {
	p.mu.Lock()
	p.value, p.known = 1, true
	p.mu.Unlock()
}

// add applies half of a phase increment, clamped to the phase range.
func (p *progress) add(increment, lo, hi float64) {
	if increment <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.value + increment/2
	next = max(next, lo)
	next = min(next, hi)
	p.value = max(p.value, next)
}

// percent returns 0 to 100, or UnknownProgress.
func (p *progress) percent() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.known {
		return UnknownProgress
	}
	return p.value * 100
}
