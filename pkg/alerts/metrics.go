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

package alerts

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/entangleops/qam/pkg/metrics"
)

const alertSubsystem = "alerts"

var (
	severityLabel = "severity"

	alertsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: alertSubsystem,
			Name:      "delivered_total",
			Help:      "Number of alerts delivered to notification sinks.",
		},
		[]string{severityLabel})
	alertsSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: alertSubsystem,
			Name:      "suppressed_total",
			Help:      "Number of alerts suppressed by the cooldown window.",
		})
	alertsEscalated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: alertSubsystem,
			Name:      "escalated_total",
			Help:      "Number of alerts escalated by correlation thresholds.",
		})
)

func init() {
	metrics.Registry.MustRegister(alertsDelivered, alertsSuppressed, alertsEscalated)
}
