package domain

import "fmt"

// NetworkError means an outbound call exhausted its retries or timed out.
// It is always caught at the call site and degrades a single feature.
type NetworkError struct {
	Target string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.Target, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StorageError means a durable-store operation failed. History operations are
// best-effort: callers log it and proceed without the persisted/read data.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
