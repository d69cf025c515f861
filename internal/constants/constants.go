// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

// package constants defines constants such as header names, ports and paths used by the TFS proxy.
package constants

var version = "0.0.0-dev"

// Version is the version string embedded into binaries.
func Version() string { return version }

const (
	// CustomAttributesHeader carries the caller supplied attributes selecting model name, version and method.
	CustomAttributesHeader = "X-Amzn-SageMaker-Custom-Attributes"

	// TFSModelsBasePath is the prefix of every TensorFlow Serving model endpoint.
	TFSModelsBasePath = "/v1/models/"
	// TFSDefaultMethod is the method appended to prediction paths if the caller did not select one.
	TFSDefaultMethod = "predict"
	// TFSDefaultVersion is the backend version assumed if none is configured.
	TFSDefaultVersion = "1.12"
	// TFSLegacyPingVersion is the backend version whose model status endpoint cannot be used for health checks.
	TFSLegacyPingVersion = "1.11"
	// TFSDefaultRESTPort is the REST port of TensorFlow Serving if no safe port range is configured.
	TFSDefaultRESTPort = "8501"
	// TFSDefaultGRPCPort is the gRPC port of TensorFlow Serving if no safe port range is configured.
	TFSDefaultGRPCPort = "9000"

	// ProxyDefaultPort is the default port the proxy listens on for invocations and pings.
	ProxyDefaultPort = "8080"
	// DefaultModelDir is the directory SavedModel bundles are discovered in.
	DefaultModelDir = "/opt/ml/model"

	// EnvBindToPort overrides the port the proxy listens on.
	EnvBindToPort = "SAGEMAKER_BIND_TO_PORT"
	// EnvSafePortRange is a "<low>-<high>" range of ports the backend may bind to.
	// The gRPC port is <low>, the REST port is <low>+1.
	EnvSafePortRange = "SAGEMAKER_SAFE_PORT_RANGE"
	// EnvTFSVersion selects the backend version, which decides the ping mode.
	EnvTFSVersion = "SAGEMAKER_TFS_VERSION"
	// EnvDefaultModelName overrides the discovered default model.
	EnvDefaultModelName = "SAGEMAKER_TFS_DEFAULT_MODEL_NAME"
	// EnvLogLevel sets the log level of the proxy using nginx level names.
	EnvLogLevel = "SAGEMAKER_TFS_NGINX_LOGLEVEL"

	// EnvEnableBatching enables server-side batching of TensorFlow Serving unless it is "0" or "false".
	EnvEnableBatching = "SAGEMAKER_TFS_ENABLE_BATCHING"
	// EnvBatchingMaxBatchSize is the maximum number of instances in a batch.
	EnvBatchingMaxBatchSize = "SAGEMAKER_TFS_BATCHING_MAX_BATCH_SIZE"
	// EnvBatchingTimeoutMicros is how long TensorFlow Serving waits to fill a batch.
	EnvBatchingTimeoutMicros = "SAGEMAKER_TFS_BATCHING_TIMEOUT_MICROS"
	// EnvBatchingMaxEnqueuedBatches bounds the queue of batches waiting for a thread.
	EnvBatchingMaxEnqueuedBatches = "SAGEMAKER_TFS_BATCHING_MAX_ENQUEUED_BATCHES"
	// EnvBatchingNumBatchThreads is the number of threads processing batches. Defaults to the number of CPUs.
	EnvBatchingNumBatchThreads = "SAGEMAKER_TFS_BATCHING_NUM_BATCH_THREADS"
)
