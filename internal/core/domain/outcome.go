package domain

// ErrorKind classifies a failed remote invocation.
type ErrorKind string

const (
	ErrorKindAuthentication    ErrorKind = "authentication_error"
	ErrorKindValidation        ErrorKind = "validation_error"
	ErrorKindRateLimit         ErrorKind = "rate_limit_error"
	ErrorKindTimeout           ErrorKind = "timeout_error"
	ErrorKindTransport         ErrorKind = "transport_error"
	ErrorKindMalformedResponse ErrorKind = "malformed_response"
	ErrorKindAPI               ErrorKind = "api_error"
)

// InvocationError describes why a remote call failed.
type InvocationError struct {
	Message string
	Kind    ErrorKind
}

func (e *InvocationError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Outcome is the normalized result of one remote call.
type Outcome struct {
	Success bool
	RunID   string
	Outputs map[string]any
	Error   *InvocationError
}

// Failed builds a failed outcome.
func Failed(kind ErrorKind, message string) Outcome {
	return Outcome{Error: &InvocationError{Message: message, Kind: kind}}
}

// Kind returns the error kind of a failed outcome, or "" on success.
func (o Outcome) Kind() ErrorKind {
	if o.Error == nil {
		return ""
	}
	return o.Error.Kind
}
