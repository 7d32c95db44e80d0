package types

// PredictResponse is returned by POST /predict.
type PredictResponse struct {
	// Ranked predictions, descending confidence, at most five, never empty.
	Predictions []BreedPrediction `json:"predictions"`
	// True when the top two predictions are too close to call a pure breed.
	// example: false
	Crossbreed bool `json:"crossbreed" example:"false"`
	// Artifact the prediction came from.
	// example: breeds-convnext-tiny-int8.onnx
	Model string `json:"model,omitempty" example:"breeds-convnext-tiny-int8.onnx"`
}

// SpeciesResponse is returned by POST /species.
type SpeciesResponse = SpeciesResult

// HealthResponse is returned by GET /health. It is always served with 200:
// the model state never makes the process unhealthy.
type HealthResponse struct {
	// Always true while the process serves requests.
	// example: true
	ServiceUp bool `json:"service_up" example:"true"`
	// example: ok
	Status string `json:"status" example:"ok"`
	// Lifecycle state: uninitialized, acquiring, validating, loading, ready, failed.
	// example: loading
	ModelState string `json:"model_state" example:"loading"`
	// example: false
	ModelLoaded bool `json:"model_loaded" example:"false"`
	// True while an acquisition/load sequence is in flight.
	// example: true
	ModelLoading bool `json:"model_loading" example:"true"`
	// Last lifecycle error, if any.
	LastError string `json:"last_error,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model is loading
	Error string `json:"error" example:"model is loading"`
	// HTTP status code.
	// example: 503
	Code int `json:"code" example:"503"`
	// Error kind (model_not_ready, model_failed, invalid_input, ...).
	// example: model_not_ready
	Kind string `json:"kind,omitempty" example:"model_not_ready"`
	// Coarse status for clients deciding between polling and a hard error:
	// loading, error, not_loaded, invalid_input.
	// example: loading
	Status string `json:"status,omitempty" example:"loading"`
	// Suggested delay before retrying, in seconds.
	// example: 10
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty" example:"10"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Lifecycle state.
	// example: ready
	State string `json:"state" example:"ready"`
	// Last lifecycle error, if any.
	LastError string `json:"last_error,omitempty"`
	// Acquisition attempts in the current or last sequence.
	// example: 1
	Attempts int `json:"attempts" example:"1"`
	// Number of completed loads since start.
	// example: 1
	LoadsTotal uint64 `json:"loads_total" example:"1"`
	// Final artifact path.
	ArtifactPath string `json:"artifact_path,omitempty"`
	// Artifact size in bytes once validated.
	// example: 29360128
	ArtifactSize int64 `json:"artifact_size,omitempty" example:"29360128"`
	// Source the artifact was acquired from (URL or local path).
	ArtifactSource string `json:"artifact_source,omitempty"`
	// Unix seconds when the model became ready; 0 if never.
	// example: 1700000000
	ReadySinceUnix int64 `json:"ready_since_unix,omitempty" example:"1700000000"`
	// Number of label classes in the vocabulary.
	// example: 41
	Classes int `json:"classes,omitempty" example:"41"`
	// Inference queue length and capacity.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// example: 16
	MaxQueueDepth int `json:"max_queue_depth" example:"16"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
