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

package polling

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/entangleops/qam/pkg/metrics"
)

var (
	reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "controller",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of reconcile passes by controller.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"controller"})
	reconcileErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "controller",
			Name:      "reconcile_errors_total",
			Help:      "Number of reconcile passes that returned an error.",
		},
		[]string{"controller"})
)

func init() {
	metrics.Registry.MustRegister(reconcileDuration, reconcileErrors)
}
