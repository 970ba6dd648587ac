package wake

import (
	"context"
	"sync"
)

// Scorer produces a wake confidence for each decimated frame. Implementations
// carry temporal state between calls; Reset discards all of it.
type Scorer interface {
	Score(ctx context.Context, pcm []int16) (float64, error)
	Reset()
}

// WindowScorer keeps a sliding window of the most recent samples and asks the
// Model to score the whole window on every call. Reset empties the window
// completely and is idempotent, so residual excitation from a detection can
// never re-trigger.
type WindowScorer struct {
	model         Model
	windowSamples int

	mu     sync.Mutex
	window []int16
}

var _ Scorer = (*WindowScorer)(nil)

func NewWindowScorer(model Model, windowSamples int) *WindowScorer {
	if windowSamples <= 0 {
		windowSamples = 24000
	}
	return &WindowScorer{
		model:         model,
		windowSamples: windowSamples,
		window:        make([]int16, 0, windowSamples),
	}
}

func (s *WindowScorer) Score(ctx context.Context, pcm []int16) (float64, error) {
	s.mu.Lock()
	if len(pcm) >= s.windowSamples {
		s.window = append(s.window[:0], pcm[len(pcm)-s.windowSamples:]...)
	} else {
		drop := len(s.window) + len(pcm) - s.windowSamples
		if drop > 0 {
			n := copy(s.window, s.window[drop:])
			s.window = s.window[:n]
		}
		s.window = append(s.window, pcm...)
	}
	window := make([]int16, len(s.window))
	copy(window, s.window)
	s.mu.Unlock()

	return s.model.Predict(ctx, window)
}

func (s *WindowScorer) Reset() {
	s.mu.Lock()
	s.window = s.window[:0]
	s.mu.Unlock()
}

// WindowLen reports how many samples the sliding window currently holds.
func (s *WindowScorer) WindowLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.window)
}
