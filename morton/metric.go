package morton

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// A Metric measures distance between points from their per-axis absolute differences.
//
// Rank folds the differences into a value that orders points the same way the distance does but may
// be cheaper to compute (such as a squared distance). Rank must be non-decreasing in every
// difference, which is what makes clamped box distances a valid lower bound for pruning.
type Metric interface {
	// Rank folds non-negative per-axis differences into a comparable value.
	Rank(deltas []float64) float64
	// Distance converts a rank into a distance.
	Distance(rank float64) float64
	// RankOf converts a distance into a rank.
	RankOf(distance float64) float64
}

// Names of the built-in metrics, as accepted by MetricByName.
const (
	EuclideanName = "euclidean"
	ManhattanName = "manhattan"
	ChebyshevName = "chebyshev"
)

var (
	// Euclidean ranks by squared straight line distance.
	Euclidean Metric = euclidean{}
	// Manhattan ranks by the sum of axis differences.
	Manhattan Metric = manhattan{}
	// Chebyshev ranks by the largest axis difference.
	Chebyshev Metric = chebyshev{}
)

// MetricByName returns the built-in metric with the given name. The empty name is Euclidean.
func MetricByName(name string) (Metric, error) {
	switch strings.ToLower(name) {
	case "", EuclideanName:
		return Euclidean, nil
	case ManhattanName:
		return Manhattan, nil
	case ChebyshevName:
		return Chebyshev, nil
	default:
		return nil, errors.Wrapf(ErrInvalidConfiguration, "unknown metric %q", name)
	}
}

// MaxExactRank is the largest integer rank a float64 holds without rounding.
const MaxExactRank = 1 << 53

// ExactRanks reports whether every rank m gives to two points of a domain of dims components of bits
// bits each is held exactly. Past MaxExactRank distinct ranks round together and compare as ties.
func ExactRanks(m Metric, dims, bits int) bool {
	deltas := make([]float64, dims)
	for j := range deltas {
		deltas[j] = float64(lowMask(bits))
	}
	return m.Rank(deltas) <= MaxExactRank
}

// Rank returns the rank between a and b under m.
func Rank(a, b []uint64, m Metric) float64 {
	var buf [8]float64
	deltas := buf[:0]
	for j := range a {
		if a[j] > b[j] {
			deltas = append(deltas, float64(a[j]-b[j]))
		} else {
			deltas = append(deltas, float64(b[j]-a[j]))
		}
	}
	return m.Rank(deltas)
}

type euclidean struct{}

func (euclidean) Rank(deltas []float64) float64 {
	return floats.Dot(deltas, deltas)
}

func (euclidean) Distance(rank float64) float64 {
	return math.Sqrt(rank)
}

func (euclidean) RankOf(distance float64) float64 {
	return distance * distance
}

type manhattan struct{}

func (manhattan) Rank(deltas []float64) float64 {
	return floats.Sum(deltas)
}

func (manhattan) Distance(rank float64) float64 {
	return rank
}

func (manhattan) RankOf(distance float64) float64 {
	return distance
}

type chebyshev struct{}

func (chebyshev) Rank(deltas []float64) float64 {
	if len(deltas) == 0 {
		return 0
	}
	return floats.Max(deltas)
}

func (chebyshev) Distance(rank float64) float64 {
	return rank
}

func (chebyshev) RankOf(distance float64) float64 {
	return distance
}
