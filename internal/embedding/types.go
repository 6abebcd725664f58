package embedding

// EmbedRequest is the request body accepted by the proxy. The same shape is
// sent to the inference service with the inputs of a whole batch
// concatenated.
type EmbedRequest struct {
	Inputs []string `json:"inputs"`
}

// BatchTrigger identifies what caused a pending batch to be dispatched.
type BatchTrigger string

const (
	TriggerMaxBatchSize BatchTrigger = "max_batch_size"
	TriggerMaxWaitTime  BatchTrigger = "max_wait_time_ms"
	TriggerShutdown     BatchTrigger = "shutdown"
)

// BatchInfo describes the flight a request rode on. It is only attached to
// responses when includeBatchInfo is enabled; helpful in development and
// used by tests to observe batching behavior.
type BatchInfo struct {
	BatchID   uint64       `json:"batch_id"`
	BatchType BatchTrigger `json:"batch_type"`
	BatchSize int          `json:"batch_size"`
	// BatchWaitTimeMs is only set for deadline-triggered batches; size
	// triggers leave it out to avoid suggesting the batch waited at all.
	BatchWaitTimeMs int64   `json:"batch_wait_time_ms,omitempty"`
	InferenceTimeMs float64 `json:"inference_time_ms,omitempty"`
}

// EmbedResponse is the response body used when batch info is enabled. With
// batch info disabled the proxy mirrors the inference service and returns
// the embeddings as a bare JSON array.
type EmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	BatchInfo  *BatchInfo  `json:"batch_info,omitempty"`
}

// ErrorResponse is the JSON error body for all non-success statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}
