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

package optimizer

import (
	"github.com/samber/lo"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
)

// DefaultParetoWindow is the rolling observation count dominance is
// recomputed over.
const DefaultParetoWindow = 200

// ParetoWindow keeps the most recent reward observations in objective
// space and recomputes dominance ranks on every insertion.
type ParetoWindow struct {
	capacity int
	points   []v1.PerformancePoint
}

func NewParetoWindow(capacity int) *ParetoWindow {
	if capacity <= 0 {
		capacity = DefaultParetoWindow
	}
	return &ParetoWindow{capacity: capacity}
}

// Add inserts the point, evicting the oldest when the window is full,
// and reranks the window.
func (w *ParetoWindow) Add(point v1.PerformancePoint) {
	w.points = append(w.points, point)
	if len(w.points) > w.capacity {
		w.points = w.points[len(w.points)-w.capacity:]
	}
	w.rerank()
}

// rerank recomputes every point's dominator count.
func (w *ParetoWindow) rerank() {
	for i := range w.points {
		rank := 0
		for j := range w.points {
			if i != j && w.points[j].Objectives.Dominates(w.points[i].Objectives) {
				rank++
			}
		}
		w.points[i].ParetoRank = rank
	}
}

// Len returns the current window population.
func (w *ParetoWindow) Len() int { return len(w.points) }

// Points returns a copy of the window contents.
func (w *ParetoWindow) Points() []v1.PerformancePoint {
	out := make([]v1.PerformancePoint, len(w.points))
	copy(out, w.points)
	return out
}

// Front returns the rank-0 points, the current Pareto front.
func (w *ParetoWindow) Front() []v1.PerformancePoint {
	return lo.Filter(w.points, func(p v1.PerformancePoint, _ int) bool {
		return p.ParetoRank == 0
	})
}

// Hypervolume is the mean over the front of the product of the five
// normalized objectives.
func (w *ParetoWindow) Hypervolume() float64 {
	front := w.Front()
	if len(front) == 0 {
		return 0
	}
	var sum float64
	for _, p := range front {
		product := 1.0
		for _, v := range p.Objectives.Vector() {
			product *= v
		}
		sum += product
	}
	return sum / float64(len(front))
}

// Spread is the average per-objective range across the front.
func (w *ParetoWindow) Spread() float64 {
	front := w.Front()
	if len(front) == 0 {
		return 0
	}
	var total float64
	for i := 0; i < 5; i++ {
		lowest, highest := front[0].Objectives.Vector()[i], front[0].Objectives.Vector()[i]
		for _, p := range front[1:] {
			v := p.Objectives.Vector()[i]
			if v < lowest {
				lowest = v
			}
			if v > highest {
				highest = v
			}
		}
		total += highest - lowest
	}
	return total / 5
}
