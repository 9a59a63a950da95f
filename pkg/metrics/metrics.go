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

// Package metrics holds the shared prometheus registry and the metric-sink
// contract. Subsystem packages register their collectors here on init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "qam"
)

// Registry is the process-wide registry every subsystem registers into.
var Registry = prometheus.NewRegistry()

var (
	MetricSinkPointsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "metricsink",
			Name:      "points_written_total",
			Help:      "Number of points accepted by the buffered metric sink.",
		})
	MetricSinkPointsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "metricsink",
			Name:      "points_dropped_total",
			Help:      "Number of points dropped by the buffered metric sink on overflow.",
		})
)

func init() {
	Registry.MustRegister(MetricSinkPointsWritten, MetricSinkPointsDropped)
}
