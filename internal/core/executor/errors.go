package executor

import "fmt"

// QueryError means the endpoint could not be reached or answered with a
// non-2xx status.
type QueryError struct {
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e *QueryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("sparql endpoint %s: status %d: %s", e.Endpoint, e.Status, e.Body)
	}
	return fmt.Sprintf("sparql endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// TransportParseError means the body did not match the requested transport.
type TransportParseError struct {
	Format string
	Err    error
}

func (e *TransportParseError) Error() string {
	return fmt.Sprintf("parse %s result: %v", e.Format, e.Err)
}

func (e *TransportParseError) Unwrap() error { return e.Err }
