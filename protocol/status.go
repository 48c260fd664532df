package protocol

import (
	"errors"
	"fmt"
)

// JobStatus is the lifecycle state of a build job as reported by the farm.
// The farm owns the state machine; clients only observe snapshots.
type JobStatus string

const (
	JobStatusNew        JobStatus = "NEW"
	JobStatusInQueue    JobStatus = "IN_QUEUE"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusFinished   JobStatus = "FINISHED"
	JobStatusErrored    JobStatus = "ERRORED"
	JobStatusCanceled   JobStatus = "CANCELED"
)

var statusProgression = map[JobStatus][]JobStatus{
	JobStatusNew:        {JobStatusNew, JobStatusInQueue, JobStatusInProgress, JobStatusFinished, JobStatusErrored, JobStatusCanceled},
	JobStatusInQueue:    {JobStatusInQueue, JobStatusInProgress, JobStatusFinished, JobStatusErrored, JobStatusCanceled},
	JobStatusInProgress: {JobStatusInProgress, JobStatusFinished, JobStatusErrored, JobStatusCanceled},
	JobStatusFinished:   {JobStatusFinished},
	JobStatusErrored:    {JobStatusErrored},
	JobStatusCanceled:   {JobStatusCanceled},
}

// Known reports whether the status value is part of the documented state space.
func (s JobStatus) Known() bool {
	_, ok := statusProgression[s]
	return ok
}

// Terminal reports whether no further transition can occur from this status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusFinished, JobStatusErrored, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// CanProgressTo reports whether the farm may legally move a job from s to next.
func (s JobStatus) CanProgressTo(next JobStatus) bool {
	allowed, ok := statusProgression[s]
	if !ok {
		return false
	}
	for _, candidate := range allowed {
		if candidate == next {
			return true
		}
	}
	return false
}

// UnknownStatusError signals a status value outside the documented state space.
// The state space is closed; an unrecognized value is a contract violation.
type UnknownStatusError struct {
	JobID  string
	Status string
}

func (e UnknownStatusError) Error() string {
	return fmt.Sprintf("job %s: unknown status %q", e.JobID, e.Status)
}

func IsUnknownStatusError(err error) bool {
	var ue UnknownStatusError
	return errors.As(err, &ue)
}
