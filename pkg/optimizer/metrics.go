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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/entangleops/qam/pkg/metrics"
)

var (
	adaptationsApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "optimizer",
			Name:      "adaptations_applied_total",
			Help:      "Number of parameter adaptations applied.",
		})
	rollbacksExecuted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "optimizer",
			Name:      "rollbacks_executed_total",
			Help:      "Number of adaptations rolled back.",
		})
	rewardObserved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "optimizer",
			Name:      "composite_reward",
			Help:      "Distribution of observed composite rewards.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		})
)

func init() {
	metrics.Registry.MustRegister(adaptationsApplied, rollbacksExecuted, rewardObserved)
}
