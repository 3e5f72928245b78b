package types

// Status represents the state of a trackable operation (jobs, fetches, copies).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// IsActive returns true if the status indicates an ongoing operation.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

// IsComplete returns true if the status indicates a finished operation.
func (s Status) IsComplete() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// IsSuccess returns true if the status indicates successful completion.
func (s Status) IsSuccess() bool {
	return s == StatusSucceeded
}
