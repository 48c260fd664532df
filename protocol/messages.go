package protocol

import "time"

// Platform selects the build target.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// Known reports whether the platform is one the farm accepts.
func (p Platform) Known() bool {
	return p == PlatformAndroid || p == PlatformIOS
}

// JobError is the error payload the farm attaches to an errored job.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ArtifactManifest lists downloadable outputs of a finished job.
type ArtifactManifest struct {
	ApplicationURL string `json:"application_url,omitempty"`
	LogsURL        string `json:"logs_url,omitempty"`
}

// RemoteJob is a read-only snapshot of a build job owned by the farm.
type RemoteJob struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"project_id"`
	Platform    Platform          `json:"platform"`
	Status      JobStatus         `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Error       *JobError         `json:"error,omitempty"`
	Artifacts   *ArtifactManifest `json:"artifacts,omitempty"`
}

// ArchiveSourceType discriminates how a job payload references project content.
type ArchiveSourceType string

const (
	ArchiveSourceURL  ArchiveSourceType = "URL"
	ArchiveSourceS3   ArchiveSourceType = "S3_KEY"
	ArchiveSourceJob  ArchiveSourceType = "JOB"
	ArchiveSourcePath ArchiveSourceType = "PATH"
)

// ArchiveSource points at the project content a job should build from.
// Exactly one of URL, Key, JobID, Path is set, matching Type.
type ArchiveSource struct {
	Type  ArchiveSourceType `json:"type"`
	URL   string            `json:"url,omitempty"`
	Key   string            `json:"key,omitempty"`
	JobID string            `json:"job_id,omitempty"`
	Path  string            `json:"path,omitempty"`
}

// BuildMetadata carries client-side context attached to a submission.
type BuildMetadata struct {
	RequestID          string `json:"request_id"`
	CommitSHA          string `json:"commit_sha,omitempty"`
	Branch             string `json:"branch,omitempty"`
	UncommittedChanges bool   `json:"uncommitted_changes,omitempty"`
	Username           string `json:"username,omitempty"`
	ClientVersion      string `json:"client_version,omitempty"`
}

// JobPayload is the platform-agnostic shell of a build job. Platform-specific
// sections are produced by a payload builder and travel opaquely in Spec.
type JobPayload struct {
	Platform Platform          `json:"platform"`
	Archive  ArchiveSource     `json:"archive"`
	Env      map[string]string `json:"env,omitempty"`
	Steps    []string          `json:"steps,omitempty"`
	Spec     map[string]any    `json:"spec,omitempty"`
}

// SubmitJobRequest is sent to the farm to create a job.
type SubmitJobRequest struct {
	Type      string        `json:"type"` // always "SubmitJob"
	ProjectID string        `json:"project_id"`
	Platform  Platform      `json:"platform"`
	Payload   JobPayload    `json:"payload"`
	Metadata  BuildMetadata `json:"metadata"`
}

// SubmitJobResponse acknowledges a created job.
type SubmitJobResponse struct {
	Type               string   `json:"type"` // always "SubmitJobAck"
	JobID              string   `json:"job_id"`
	DeprecationNotices []string `json:"deprecation_notices,omitempty"`
}

// ServerError is the farm's error envelope on rejected requests.
type ServerError struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}
