package resolver

import (
	"errors"
	"fmt"
	"time"

	"github.com/buildfarm-dev/farmctl/protocol"
)

// ValidationError signals a malformed explicit reference (URL, path, or id).
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// NotFoundError signals that no job matched the requested reference.
type NotFoundError struct {
	Ref string
}

func (e NotFoundError) Error() string {
	if e.Ref == "" {
		return "no jobs found for this project and platform"
	}
	return fmt.Sprintf("job %s not found; legacy or incompatible ids are not supported", e.Ref)
}

// PlatformMismatchError signals a resolved job built for a different platform.
type PlatformMismatchError struct {
	JobID string
	Want  protocol.Platform
	Got   protocol.Platform
}

func (e PlatformMismatchError) Error() string {
	return fmt.Sprintf("job %s is a %s build, requested platform is %s", e.JobID, e.Got, e.Want)
}

// ExpiredArtifactError signals that every candidate job is older than the
// artifact retention window.
type ExpiredArtifactError struct {
	Window time.Duration
}

func (e ExpiredArtifactError) Error() string {
	return fmt.Sprintf("all recent jobs are older than the %s retention window", e.Window)
}

// NonInteractiveModeError is raised instead of the interactive fallback when
// interactivity is disabled. Terminal for the resolution attempt.
type NonInteractiveModeError struct {
	Cause error
}

func (e *NonInteractiveModeError) Error() string {
	return fmt.Sprintf("cannot prompt in non-interactive mode: %v", e.Cause)
}

func (e *NonInteractiveModeError) Unwrap() error {
	return e.Cause
}

func IsNonInteractiveModeError(err error) bool {
	var ne *NonInteractiveModeError
	return errors.As(err, &ne)
}
