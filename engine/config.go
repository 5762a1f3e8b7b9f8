package engine

import (
	"github.com/pkg/errors"

	"github.com/gosling-ml/gosling/device"
)

// PerfMode selects what the engine tunes request scheduling hints for.
type PerfMode int

const (
	// PerfModeLatency favors finishing each request as fast as possible.
	PerfModeLatency PerfMode = iota

	// PerfModeThroughput favors many requests in flight over the latency of
	// any one of them.
	PerfModeThroughput
)

//go:generate go tool enumer -type=PerfMode -trimprefix=PerfMode -output=gen_perfmode_enumer.go config.go

// Configuration option names, also accepted by Config.Get.
const (
	KeyDeviceID               = "device_id"
	KeyNumStreams             = "num_streams"
	KeyEnableProfiling        = "enable_profiling"
	KeyDisableTransformations = "disable_transformations"
	KeyPerfMode               = "perf_mode"
)

// Config is the snapshot of compilation and runtime options. It is copied
// into the model at Compile time and frozen from then on.
type Config struct {
	// DeviceID selects the device context to execute on.
	DeviceID device.Num

	// NumStreams is the number of inference streams the model is tuned for.
	// It is reported back as the optimal number of inference requests, a hint
	// rather than a hard limit. Values < 1 are normalized to 1.
	NumStreams int

	// EnableProfiling makes requests record per-node execution times.
	EnableProfiling bool

	// DisableTransformations makes Compile use the graph verbatim, skipping
	// the transformation pipeline.
	DisableTransformations bool

	// PerfMode is a scheduling hint, see PerfMode.
	PerfMode PerfMode
}

// DefaultConfig are the options used when the caller has no opinion.
func DefaultConfig() Config {
	return Config{NumStreams: 1, PerfMode: PerfModeLatency}
}

// normalized returns the config with out-of-range values clamped.
func (c Config) normalized() Config {
	if c.NumStreams < 1 {
		c.NumStreams = 1
	}
	return c
}

// Get returns the value of a recognized option name, or ErrNotFound.
func (c Config) Get(name string) (any, error) {
	switch name {
	case KeyDeviceID:
		return int(c.DeviceID), nil
	case KeyNumStreams:
		return c.NumStreams, nil
	case KeyEnableProfiling:
		return c.EnableProfiling, nil
	case KeyDisableTransformations:
		return c.DisableTransformations, nil
	case KeyPerfMode:
		return c.PerfMode, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "configuration option %q", name)
}
