package query

import "fmt"

// HandlerError is a request failure with its HTTP mapping. The server
// serializes it as {"response": ..., "cause": ...}.
type HandlerError struct {
	StatusCode int
	Response   string
	Cause      string
}

func (e *HandlerError) Error() string {
	if e.Cause == "" {
		return e.Response
	}
	return fmt.Sprintf("%s: %s", e.Response, e.Cause)
}

func badRequest(response, cause string) *HandlerError {
	return &HandlerError{StatusCode: 400, Response: response, Cause: cause}
}

func forbidden(response, cause string) *HandlerError {
	return &HandlerError{StatusCode: 403, Response: response, Cause: cause}
}

func notFound(cause string) *HandlerError {
	return &HandlerError{StatusCode: 404, Response: "Conversation not found", Cause: cause}
}

func unprocessable(response, cause string) *HandlerError {
	return &HandlerError{StatusCode: 422, Response: response, Cause: cause}
}

func tooManyRequests(response, cause string) *HandlerError {
	return &HandlerError{StatusCode: 429, Response: response, Cause: cause}
}

func internal(response, cause string) *HandlerError {
	return &HandlerError{StatusCode: 500, Response: response, Cause: cause}
}
