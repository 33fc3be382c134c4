package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public error shape. Retryable tells the client whether
// offering a retry action makes sense.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
