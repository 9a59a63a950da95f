/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sla

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

type TrendDirection string

const (
	TrendImproving TrendDirection = "IMPROVING"
	TrendDegrading TrendDirection = "DEGRADING"
	TrendStable    TrendDirection = "STABLE"
)

// Statistics summarizes a metric sample series.
type Statistics struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	P50      float64 `json:"p50"`
	P95      float64 `json:"p95"`
	P99      float64 `json:"p99"`
	StdDev   float64 `json:"stdDev"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
	// Outliers are samples whose z-score magnitude exceeds 2.0
	Outliers []float64 `json:"outliers,omitempty"`
	// Trend is the direction of the series over time: increasing values
	// report IMPROVING
	Trend TrendDirection `json:"trend"`
}

const outlierZScore = 2.0

// Describe computes summary statistics for the series in observation
// order. Skewness reports 0 below 3 samples and kurtosis below 4, where
// the unbiased estimators are undefined.
func Describe(samples []float64) Statistics {
	n := len(samples)
	stats := Statistics{Count: n, Trend: TrendStable}
	if n == 0 {
		return stats
	}

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	stats.Mean = stat.Mean(samples, nil)
	stats.Median = stat.Quantile(0.50, stat.LinInterp, sorted, nil)
	stats.P50 = stats.Median
	stats.P95 = stat.Quantile(0.95, stat.LinInterp, sorted, nil)
	stats.P99 = stat.Quantile(0.99, stat.LinInterp, sorted, nil)
	stats.StdDev = stat.PopStdDev(samples, nil)

	if n >= 3 && stats.StdDev > 0 {
		stats.Skewness = stat.Skew(samples, nil)
	}
	if n >= 4 && stats.StdDev > 0 {
		stats.Kurtosis = stat.ExKurtosis(samples, nil)
	}
	if stats.StdDev > 0 {
		for _, s := range samples {
			if math.Abs((s-stats.Mean)/stats.StdDev) > outlierZScore {
				stats.Outliers = append(stats.Outliers, s)
			}
		}
	}
	stats.Trend = trend(samples, stats.StdDev)
	return stats
}

// trend fits a least-squares line over the sample index and reports the
// slope direction. Slopes small relative to the spread are STABLE.
func trend(samples []float64, stdDev float64) TrendDirection {
	n := len(samples)
	if n < 3 {
		return TrendStable
	}
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, samples, nil, false)
	tolerance := 0.01 * (stdDev + 1e-9)
	switch {
	case slope > tolerance:
		return TrendImproving
	case slope < -tolerance:
		return TrendDegrading
	default:
		return TrendStable
	}
}
