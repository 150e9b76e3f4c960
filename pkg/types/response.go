package types

// DataEnvelope wraps every successful admin and rotation API payload.
type DataEnvelope struct {
	Data any `json:"data"`
}

// ErrorBody is the public part of a failure. Code is one of the
// pkg/errors codes; Retryable tells callers such as the order webhook
// relay whether resending the same request can succeed, for example after
// a GATEWAY_SYNC_FAILED.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
