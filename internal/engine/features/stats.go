package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// summary describes a series of observations. All fields are zero for an empty series.
type summary struct {
	total, min, max, mean, std float64
}

func summarize(xs []float64) summary {
	if len(xs) == 0 {
		return summary{}
	}
	mean, variance := stat.PopMeanVariance(xs, nil)
	std := 0.0
	if variance > 0 {
		std = math.Sqrt(variance)
	}
	return summary{
		total: floats.Sum(xs),
		min:   floats.Min(xs),
		max:   floats.Max(xs),
		mean:  mean,
		std:   std,
	}
}

func intsToFloats(xs []int) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}

// rate divides and maps a zero denominator to zero.
func rate(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	r := float64(num) / float64(den)
	if r > 1 {
		return 1
	}
	return r
}
