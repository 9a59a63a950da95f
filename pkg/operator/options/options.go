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

package options

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"

	v1 "github.com/entangleops/qam/pkg/apis/v1"
	"github.com/entangleops/qam/pkg/utils/env"
)

// Options for running this binary. Precedence is flags over environment
// variables over the config file over defaults.
type Options struct {
	*flag.FlagSet `toml:"-"`

	MetricsPort int    `toml:"metricsPort"`
	LogLevel    string `toml:"logLevel"`
	ConfigFile  string `toml:"-"`

	// Engine loops
	MonitoringInterval time.Duration `toml:"monitoringInterval"`
	ComplianceInterval time.Duration `toml:"complianceInterval"`
	AlertQueueInterval time.Duration `toml:"alertQueueInterval"`

	// Policy gate
	ClassificationTTLDays int           `toml:"classificationTtlDays"`
	ApprovalStageTimeout  time.Duration `toml:"approvalStageTimeout"`
	ApprovalTotalTimeout  time.Duration `toml:"approvalTotalTimeout"`

	// Optimizer defaults applied when a template profile leaves them zero
	OptimizerAlgorithm            string        `toml:"optimizerAlgorithm"`
	OptimizerAlpha                float64       `toml:"optimizerAlpha"`
	OptimizerArmCount             int           `toml:"optimizerArmCount"`
	OptimizerMaxParameterChange   float64       `toml:"optimizerMaxParameterChange"`
	OptimizerLearningRate         float64       `toml:"optimizerLearningRate"`
	OptimizerConvergenceWindow    int           `toml:"optimizerConvergenceWindow"`
	OptimizerMinSamples           int           `toml:"optimizerMinSamples"`
	OptimizerImprovementThreshold float64       `toml:"optimizerImprovementThreshold"`
	OptimizerCooldown             time.Duration `toml:"optimizerCooldown"`

	// Reservation limits
	LimitQuantumMinutes float64 `toml:"limitQuantumMinutes"`
	LimitClassicalCPU   float64 `toml:"limitClassicalCpu"`
	LimitMemoryGB       float64 `toml:"limitMemGb"`
	LimitStorageGB      float64 `toml:"limitStorGb"`

	// SLA engine
	ComplianceWindowDays   int           `toml:"complianceWindowDays"`
	AlertCooldown          time.Duration `toml:"alertCooldown"`
	AlertCorrelationWindow time.Duration `toml:"alertCorrelationWindow"`
}

// New creates an Options struct and registers CLI flags and environment
// variables to fill-in the Options struct fields.
func New() *Options {
	opts := &Options{}
	f := flag.NewFlagSet("qam", flag.ContinueOnError)
	opts.FlagSet = f

	f.IntVar(&opts.MetricsPort, "metrics-port", env.WithDefaultInt("METRICS_PORT", 8080), "The port the metric endpoint binds to")
	f.StringVar(&opts.LogLevel, "log-level", env.WithDefaultString("LOG_LEVEL", "info"), "Log level, one of debug, info, warn, error")
	f.StringVar(&opts.ConfigFile, "config-file", env.WithDefaultString("CONFIG_FILE", ""), "Path to a TOML config file; flags and environment variables override it")

	f.DurationVar(&opts.MonitoringInterval, "monitoring-interval", env.WithDefaultDuration("MONITORING_INTERVAL", 30*time.Second), "Cadence of the metric collection loop")
	f.DurationVar(&opts.ComplianceInterval, "compliance-interval", env.WithDefaultDuration("COMPLIANCE_INTERVAL", 60*time.Second), "Cadence of the compliance validation loop")
	f.DurationVar(&opts.AlertQueueInterval, "alert-queue-interval", env.WithDefaultDuration("ALERT_QUEUE_INTERVAL", 10*time.Second), "Cadence of the alert queue processing loop")

	f.IntVar(&opts.ClassificationTTLDays, "classification-ttl-days", env.WithDefaultInt("CLASSIFICATION_TTL_DAYS", 90), "Days a cached export-control classification stays valid")
	f.DurationVar(&opts.ApprovalStageTimeout, "approval-stage-timeout", env.WithDefaultDuration("APPROVAL_STAGE_TIMEOUT", 24*time.Hour), "Deadline for one approval review stage before escalation")
	f.DurationVar(&opts.ApprovalTotalTimeout, "approval-total-timeout", env.WithDefaultDuration("APPROVAL_TOTAL_TIMEOUT", 72*time.Hour), "Deadline after which a pending approval expires")

	f.StringVar(&opts.OptimizerAlgorithm, "optimizer-algorithm", env.WithDefaultString("OPTIMIZER_ALGORITHM", string(v1.AlgorithmLinUCB)), "Default learner, one of LINUCB, THOMPSON, EPSILON_GREEDY, UCB1")
	f.Float64Var(&opts.OptimizerAlpha, "optimizer-alpha", env.WithDefaultFloat64("OPTIMIZER_ALPHA", v1.DefaultAlpha), "Default LinUCB confidence coefficient")
	f.IntVar(&opts.OptimizerArmCount, "optimizer-arm-count", env.WithDefaultInt("OPTIMIZER_ARM_COUNT", v1.DefaultArmCount), "Default arm count for templates without one")
	f.Float64Var(&opts.OptimizerMaxParameterChange, "optimizer-max-parameter-change", env.WithDefaultFloat64("OPTIMIZER_MAX_PARAMETER_CHANGE", v1.DefaultMaxParameterChange), "Default cap on the relative size of one parameter adaptation")
	f.Float64Var(&opts.OptimizerLearningRate, "optimizer-learning-rate", env.WithDefaultFloat64("OPTIMIZER_LEARNING_RATE", v1.DefaultLearningRate), "Default adaptation step size relative to the parameter span")
	f.IntVar(&opts.OptimizerConvergenceWindow, "optimizer-convergence-window", env.WithDefaultInt("OPTIMIZER_CONVERGENCE_WINDOW", v1.DefaultConvergenceWindow), "Default number of recent rewards compared for improvement")
	f.IntVar(&opts.OptimizerMinSamples, "optimizer-min-samples", env.WithDefaultInt("OPTIMIZER_MIN_SAMPLES", v1.DefaultMinSamples), "Default observations required before the first adaptation")
	f.Float64Var(&opts.OptimizerImprovementThreshold, "optimizer-improvement-threshold", env.WithDefaultFloat64("OPTIMIZER_IMPROVEMENT_THRESHOLD", v1.DefaultImprovementThreshold), "Default reward improvement required to adapt")
	f.DurationVar(&opts.OptimizerCooldown, "optimizer-cooldown", env.WithDefaultDuration("OPTIMIZER_COOLDOWN", v1.DefaultCooldown), "Default minimum time between adaptations")

	f.Float64Var(&opts.LimitQuantumMinutes, "limit-quantum-minutes", env.WithDefaultFloat64("LIMIT_QUANTUM_MINUTES", 1000), "Shared quantum-minutes pool")
	f.Float64Var(&opts.LimitClassicalCPU, "limit-classical-cpu", env.WithDefaultFloat64("LIMIT_CLASSICAL_CPU", 256), "Shared classical CPU pool")
	f.Float64Var(&opts.LimitMemoryGB, "limit-mem-gb", env.WithDefaultFloat64("LIMIT_MEM_GB", 1024), "Shared memory pool in GB")
	f.Float64Var(&opts.LimitStorageGB, "limit-stor-gb", env.WithDefaultFloat64("LIMIT_STOR_GB", 4096), "Shared storage pool in GB")

	f.IntVar(&opts.ComplianceWindowDays, "compliance-window-days", env.WithDefaultInt("COMPLIANCE_WINDOW_DAYS", 7), "Days a violation counts against the compliance score")
	f.DurationVar(&opts.AlertCooldown, "alert-cooldown", env.WithDefaultDuration("ALERT_COOLDOWN", 5*time.Minute), "Suppression window for identical alerts")
	f.DurationVar(&opts.AlertCorrelationWindow, "alert-correlation-window", env.WithDefaultDuration("ALERT_CORRELATION_WINDOW", time.Minute), "Window over which alerts on one agreement aggregate")
	return opts
}

// MustParse reads the user passed flags, environment variables, config
// file and default values. Options are validated and panics if an error
// is returned.
func (o *Options) MustParse() *Options {
	err := o.Parse(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		panic(err)
	}
	if o.ConfigFile != "" {
		if err := o.loadConfigFile(); err != nil {
			panic(err)
		}
	}
	if err := o.Validate(); err != nil {
		panic(err)
	}
	return o
}

// loadConfigFile fills options from the TOML file, then reapplies flags
// so the command line keeps precedence.
func (o *Options) loadConfigFile() error {
	data, err := os.ReadFile(o.ConfigFile)
	if err != nil {
		return fmt.Errorf("reading config file %s, %w", o.ConfigFile, err)
	}
	if err := toml.Unmarshal(data, o); err != nil {
		return fmt.Errorf("parsing config file %s, %w", o.ConfigFile, err)
	}
	var flagErr error
	o.Visit(func(f *flag.Flag) {
		flagErr = multierr.Append(flagErr, o.Set(f.Name, f.Value.String()))
	})
	return flagErr
}

func (o Options) Validate() (err error) {
	if o.MetricsPort <= 0 || o.MetricsPort > 65535 {
		err = multierr.Append(err, fmt.Errorf("metrics-port %d out of range", o.MetricsPort))
	}
	switch o.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("log-level may only be debug, info, warn or error"))
	}
	switch v1.OptimizerAlgorithm(o.OptimizerAlgorithm) {
	case v1.AlgorithmLinUCB, v1.AlgorithmThompson, v1.AlgorithmEpsilonGreedy, v1.AlgorithmUCB1:
	default:
		err = multierr.Append(err, fmt.Errorf("optimizer-algorithm %q is not supported", o.OptimizerAlgorithm))
	}
	if o.OptimizerArmCount < v1.MinArmCount || o.OptimizerArmCount > v1.MaxArmCount {
		err = multierr.Append(err, fmt.Errorf("optimizer-arm-count must be within [%d, %d]", v1.MinArmCount, v1.MaxArmCount))
	}
	if o.OptimizerAlpha <= 0 {
		err = multierr.Append(err, fmt.Errorf("optimizer-alpha must be positive"))
	}
	if o.OptimizerMaxParameterChange <= 0 || o.OptimizerMaxParameterChange > 1 {
		err = multierr.Append(err, fmt.Errorf("optimizer-max-parameter-change must be within (0, 1]"))
	}
	if o.OptimizerLearningRate <= 0 || o.OptimizerLearningRate > 1 {
		err = multierr.Append(err, fmt.Errorf("optimizer-learning-rate must be within (0, 1]"))
	}
	if o.OptimizerConvergenceWindow <= 0 {
		err = multierr.Append(err, fmt.Errorf("optimizer-convergence-window must be positive"))
	}
	if o.OptimizerMinSamples <= 0 {
		err = multierr.Append(err, fmt.Errorf("optimizer-min-samples must be positive"))
	}
	if o.OptimizerImprovementThreshold <= 0 {
		err = multierr.Append(err, fmt.Errorf("optimizer-improvement-threshold must be positive"))
	}
	if o.OptimizerCooldown <= 0 {
		err = multierr.Append(err, fmt.Errorf("optimizer-cooldown must be positive"))
	}
	if o.ApprovalStageTimeout <= 0 || o.ApprovalTotalTimeout < o.ApprovalStageTimeout {
		err = multierr.Append(err, fmt.Errorf("approval timeouts must satisfy 0 < stage <= total"))
	}
	if o.ClassificationTTLDays <= 0 {
		err = multierr.Append(err, fmt.Errorf("classification-ttl-days must be positive"))
	}
	if o.ComplianceWindowDays <= 0 {
		err = multierr.Append(err, fmt.Errorf("compliance-window-days must be positive"))
	}
	for name, v := range map[string]float64{
		"limit-quantum-minutes": o.LimitQuantumMinutes,
		"limit-classical-cpu":   o.LimitClassicalCPU,
		"limit-mem-gb":          o.LimitMemoryGB,
		"limit-stor-gb":         o.LimitStorageGB,
	} {
		if v <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s must be positive", name))
		}
	}
	return err
}

// OptimizerDefaults returns the operator-level optimizer profile that
// seeds every template profile's zero fields.
func (o Options) OptimizerDefaults() v1.OptimizerProfile {
	return v1.OptimizerProfile{
		Algorithm:            v1.OptimizerAlgorithm(o.OptimizerAlgorithm),
		ArmCount:             o.OptimizerArmCount,
		Alpha:                o.OptimizerAlpha,
		MaxParameterChange:   o.OptimizerMaxParameterChange,
		LearningRate:         o.OptimizerLearningRate,
		ConvergenceWindow:    o.OptimizerConvergenceWindow,
		MinSamples:           o.OptimizerMinSamples,
		ImprovementThreshold: o.OptimizerImprovementThreshold,
		Cooldown:             o.OptimizerCooldown,
	}
}

// Limits returns the reservation pool sizes as a resource vector.
func (o Options) Limits() v1.Resources {
	return v1.Resources{
		QuantumMinutes: o.LimitQuantumMinutes,
		ClassicalCPU:   o.LimitClassicalCPU,
		MemoryGB:       o.LimitMemoryGB,
		StorageGB:      o.LimitStorageGB,
	}
}
