package scaling

// Window is a fixed capacity sliding window of backlog samples.
// The oldest sample is evicted once the window is full.
type Window struct {
	samples []float64
	size    int
}

// NewWindow creates a window holding at most size samples (minimum 1).
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{samples: make([]float64, 0, size), size: size}
}

// Push appends a sample, evicting the oldest one when at capacity.
func (w *Window) Push(v float64) {
	if len(w.samples) == w.size {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.size-1]
	}
	w.samples = append(w.samples, v)
}

// Mean returns the arithmetic mean of the stored samples, or false if empty.
func (w *Window) Mean() (float64, bool) {
	if len(w.samples) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range w.samples {
		sum += s
	}
	return sum / float64(len(w.samples)), true
}

// Len returns the number of stored samples.
func (w *Window) Len() int { return len(w.samples) }

// Cap returns the window capacity.
func (w *Window) Cap() int { return w.size }

// Values returns a copy of the stored samples, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.samples))
	copy(out, w.samples)
	return out
}
