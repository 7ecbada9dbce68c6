package process

import (
	"errors"
	"fmt"

	"eth-economic-model/internal/engine"
)

// IndexError is raised when a policy reads a sample outside the realized path.
type IndexError struct {
	Run    int
	Epoch  int
	Runs   int
	Points int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("sample (run %d, epoch %d) out of range: %d runs x %d points", e.Run, e.Epoch, e.Runs, e.Points)
}

// Samples holds one precomputed path per run.
type Samples struct {
	paths [][]float64
}

func NewSamples(paths [][]float64) (*Samples, error) {
	if len(paths) == 0 {
		return nil, errors.New("no sample paths")
	}
	n := len(paths[0])
	for i, p := range paths {
		if len(p) != n {
			return nil, fmt.Errorf("path %d has %d points, want %d", i, len(p), n)
		}
	}
	return &Samples{paths: paths}, nil
}

func (s *Samples) Runs() int { return len(s.paths) }

// Len is the number of points per path.
func (s *Samples) Len() int { return len(s.paths[0]) }

// At returns the value of run (1-indexed) at the given epoch offset.
func (s *Samples) At(run, epoch int) float64 {
	if run < 1 || run > len(s.paths) || epoch < 0 || epoch >= len(s.paths[run-1]) {
		panic(&IndexError{Run: run, Epoch: epoch, Runs: len(s.paths), Points: s.Len()})
	}
	return s.paths[run-1][epoch]
}

// Path returns a copy of one run's path.
func (s *Samples) Path(run int) []float64 {
	return append([]float64(nil), s.paths[run-1]...)
}

func (s *Samples) Process() engine.Process {
	return s.At
}
