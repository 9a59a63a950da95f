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

package deployment

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/entangleops/qam/pkg/metrics"
)

var (
	deploymentTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "deployment",
			Name:      "transitions_total",
			Help:      "Number of deployment state transitions by target state.",
		},
		[]string{"state"})
	executionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "deployment",
			Name:      "executions_finished_total",
			Help:      "Number of executions reaching a terminal status.",
		},
		[]string{"status"})
)

func init() {
	metrics.Registry.MustRegister(deploymentTransitions, executionsFinished)
}
