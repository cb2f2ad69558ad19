package maximizer

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/TALUS/internal/optimization"
)

// Grid evaluates the acquisition function on an exhaustive regular grid.
// Deterministic; cost grows as pointsPerDim^d, so it is only practical in
// low dimension. Ties are broken by the first point in row-major grid
// order (last dimension varies fastest).
type Grid struct {
	pointsPerDim int
}

// NewGrid creates a grid maximizer with the given resolution per
// dimension. pointsPerDim must be at least 2 so both bounds are covered.
func NewGrid(pointsPerDim int) (*Grid, error) {
	if pointsPerDim < 2 {
		return nil, optimization.NewErrorf(optimization.KindMaximization,
			"grid needs at least 2 points per dimension, got %d", pointsPerDim).
			WithComponent("grid_maximizer").WithOperation("new")
	}
	return &Grid{pointsPerDim: pointsPerDim}, nil
}

// Maximize scans the full grid and returns the best-scoring point.
func (g *Grid) Maximize(ctx context.Context, acq optimization.AcquisitionFunction, dom optimization.Domain) ([]float64, error) {
	d := dom.Dim()
	lower, upper := dom.Lower(), dom.Upper()

	total := 1
	for i := 0; i < d; i++ {
		total *= g.pointsPerDim
	}

	// Score in batches so one Predict call covers many grid points.
	const batchSize = 1024
	bestScore := math.Inf(-1)
	var best []float64

	batch := make([][]float64, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		X := mat.NewDense(len(batch), d, nil)
		for i, row := range batch {
			X.SetRow(i, row)
		}
		scores, err := acq.Evaluate(X)
		if err != nil {
			return err
		}
		for i, s := range scores {
			// Strict inequality keeps the first-found point on ties.
			if s > bestScore {
				bestScore = s
				best = batch[i]
			}
		}
		batch = batch[:0]
		return nil
	}

	idx := make([]int, d)
	for count := 0; count < total; count++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		point := make([]float64, d)
		for i := 0; i < d; i++ {
			step := (upper[i] - lower[i]) / float64(g.pointsPerDim-1)
			point[i] = lower[i] + float64(idx[i])*step
		}
		batch = append(batch, point)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}

		// Row-major increment: last dimension varies fastest.
		for i := d - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < g.pointsPerDim {
				break
			}
			idx[i] = 0
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if best == nil {
		return nil, errNoCandidate("grid_maximizer", nil)
	}
	return dom.Clamp(best), nil
}
