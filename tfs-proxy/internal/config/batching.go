package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/edgelesssys/sagemaker-tfs/internal/constants"
)

// Batching configures server-side batching of TensorFlow Serving.
type Batching struct {
	Enabled bool
	// MaxBatchSize is the maximum number of instances in a batch.
	MaxBatchSize string `validate:"required,number"`
	// TimeoutMicros is how long TensorFlow Serving waits to fill a batch.
	TimeoutMicros string `validate:"required,number"`
	// MaxEnqueuedBatches bounds the queue of batches waiting for a thread.
	MaxEnqueuedBatches string `validate:"required,number"`
	// NumBatchThreads defaults to the number of CPUs if empty.
	NumBatchThreads string `validate:"omitempty,number"`
}

// BatchingEnabled reports whether the value of [constants.EnvEnableBatching] enables batching.
// Empty, "0" and "false" disable it.
func BatchingEnabled(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "0", "false":
		return false
	}
	return true
}

// BatchingFromEnv reads the batching parameters through getenv.
func BatchingFromEnv(getenv func(string) string) Batching {
	return Batching{
		Enabled:            BatchingEnabled(getenv(constants.EnvEnableBatching)),
		MaxBatchSize:       getenv(constants.EnvBatchingMaxBatchSize),
		TimeoutMicros:      getenv(constants.EnvBatchingTimeoutMicros),
		MaxEnqueuedBatches: getenv(constants.EnvBatchingMaxEnqueuedBatches),
		NumBatchThreads:    getenv(constants.EnvBatchingNumBatchThreads),
	}
}

// Validate checks that all batching parameters of an enabled config are non-negative integers.
// Failed checks are reported by environment variable.
func (b Batching) Validate() error {
	if !b.Enabled {
		return nil
	}
	return validateStruct("batching config", b, map[string]string{
		"MaxBatchSize":       constants.EnvBatchingMaxBatchSize,
		"TimeoutMicros":      constants.EnvBatchingTimeoutMicros,
		"MaxEnqueuedBatches": constants.EnvBatchingMaxEnqueuedBatches,
		"NumBatchThreads":    constants.EnvBatchingNumBatchThreads,
	})
}

// Render returns the batching parameters file of TensorFlow Serving.
// An empty NumBatchThreads is replaced by numCPU.
func (b Batching) Render(numCPU int) string {
	threads := b.NumBatchThreads
	if threads == "" {
		threads = strconv.Itoa(numCPU)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "max_batch_size { value: %s }\n", b.MaxBatchSize)
	fmt.Fprintf(&sb, "batch_timeout_micros { value: %s }\n", b.TimeoutMicros)
	fmt.Fprintf(&sb, "max_enqueued_batches { value: %s }\n", b.MaxEnqueuedBatches)
	fmt.Fprintf(&sb, "num_batch_threads { value: %s }\n", threads)
	return sb.String()
}

// BatchingArgs returns the TensorFlow Serving arguments that enable batching with the parameters file at path.
func BatchingArgs(path string) []string {
	return []string{"--enable_batching=true", "--batching_parameters_file=" + path}
}
