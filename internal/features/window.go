package features

import (
	"github.com/andresuchdata/merchops/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// TrailingBuffer keeps the most recent unit values of one series, oldest first.
// It has a fixed capacity; pushing into a full buffer drops the oldest value.
type TrailingBuffer struct {
	values []float64
	start  int
	size   int
	window []float64
}

// NewTrailingBuffer allocates a buffer holding up to capacity values
func NewTrailingBuffer(capacity int) *TrailingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &TrailingBuffer{
		values: make([]float64, capacity),
		window: make([]float64, 0, capacity),
	}
}

// Len returns the number of values held
func (b *TrailingBuffer) Len() int { return b.size }

// Push appends v as the newest value
func (b *TrailingBuffer) Push(v float64) {
	capacity := len(b.values)
	if b.size < capacity {
		b.values[(b.start+b.size)%capacity] = v
		b.size++
		return
	}
	b.values[b.start] = v
	b.start = (b.start + 1) % capacity
}

// Lag returns the k-th value from the end (k=1 is the newest), or missing when
// fewer than k values are held.
func (b *TrailingBuffer) Lag(k int) float64 {
	if k < 1 || k > b.size {
		return domain.Missing
	}
	return b.values[(b.start+b.size-k)%len(b.values)]
}

// Rolling returns the mean and population standard deviation of the newest w values,
// or of all values when fewer than w are held. The mean is missing and the standard
// deviation 0 when the buffer is empty.
func (b *TrailingBuffer) Rolling(w int) (mean, std float64) {
	n := w
	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return domain.Missing, 0
	}
	b.window = b.window[:0]
	for k := n; k >= 1; k-- {
		b.window = append(b.window, b.values[(b.start+b.size-k)%len(b.values)])
	}
	if n == 1 {
		return b.window[0], 0
	}
	mean, std = stat.PopMeanStdDev(b.window, nil)
	return mean, std
}
