// Package config defines run configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat snake_case and match the koanf tags below.
// - Provide New() to build a Config with defaults.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"runtime"
)

// Prior derivation methods accepted by prior_method.
const (
	PriorMethodAggregate  = "aggregate"
	PriorMethodMeanStdDev = "mean_stddev"
	PriorMethodExplicit   = "explicit"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// WorkerCount sets the number of estimation workers.
	WorkerCount int `koanf:"worker_count"`
	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`

	// Input and output locations. "-" means stdin or stdout.
	InputPath    string `koanf:"input_path"`
	InputFormat  string `koanf:"input_format"`
	OutputPath   string `koanf:"output_path"`
	OutputFormat string `koanf:"output_format"`
	ManifestPath string `koanf:"manifest_path"`
	MetricsPath  string `koanf:"metrics_path"`

	// Metric naming for the textfile. Labels can only be set from YAML.
	MetricsNamespace      string            `koanf:"metrics_namespace"`
	MetricsSubsystem      string            `koanf:"metrics_subsystem"`
	MetricsLabels         map[string]string `koanf:"metrics_labels"`
	MetricsLatencyBuckets []float64         `koanf:"metrics_latency_buckets"`

	// PriorMethod selects how alpha0 and beta0 are obtained.
	PriorMethod string `koanf:"prior_method"`

	// Aggregate reference values for the aggregate method.
	GlobalIncidenceRate    float64 `koanf:"global_incidence_rate"`
	GlobalExposureTotal    int64   `koanf:"global_exposure_total"`
	ReferenceExposureScale int64   `koanf:"reference_exposure_scale"`

	// PriorMean and PriorStdDev feed the mean_stddev method.
	PriorMean   float64 `koanf:"prior_mean"`
	PriorStdDev float64 `koanf:"prior_stddev"`

	// Alpha0 and Beta0 feed the explicit method.
	Alpha0 float64 `koanf:"alpha0"`
	Beta0  float64 `koanf:"beta0"`

	// Credible interval tails and root finder limits.
	LowerTail     float64 `koanf:"lower_tail"`
	UpperTail     float64 `koanf:"upper_tail"`
	MaxIterations int     `koanf:"max_iterations"`
	Tolerance     float64 `koanf:"tolerance"`

	// ScaleFactor multiplies rates for reporting, e.g. per 100,000.
	ScaleFactor float64 `koanf:"scale_factor"`

	// TopN is how many extreme areas are logged or printed.
	TopN int `koanf:"top_n"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:      "info",
		LogFormat:     "text",
		WorkerCount:   runtime.NumCPU(),
		QueueSize:     1024,
		InputPath:     "-",
		InputFormat:   "",
		OutputPath:    "-",
		OutputFormat:  "",

		MetricsNamespace: "arearisk",
		MetricsSubsystem: "estimator",

		PriorMethod:   PriorMethodAggregate,
		LowerTail:     0.025,
		UpperTail:     0.975,
		MaxIterations: 200,
		Tolerance:     1e-12,
		ScaleFactor:   100_000,
		TopN:          10,
	}
}
