package submit

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/buildfarm-dev/farmctl/farm"
	"github.com/buildfarm-dev/farmctl/internal/prompt"
	"github.com/buildfarm-dev/farmctl/internal/vcs"
	"github.com/buildfarm-dev/farmctl/protocol"
	"github.com/buildfarm-dev/farmctl/resolver"
	"github.com/buildfarm-dev/farmctl/runner"
)

type recordingSubmission struct {
	calls []protocol.SubmitJobRequest
	resp  protocol.SubmitJobResponse
	err   error
}

func (s *recordingSubmission) CreateJob(ctx context.Context, req protocol.SubmitJobRequest) (protocol.SubmitJobResponse, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return protocol.SubmitJobResponse{}, s.err
	}
	return s.resp, nil
}

type recordingUploader struct {
	paths []string
	key   string
	err   error
}

func (u *recordingUploader) Upload(ctx context.Context, localPath string) (string, error) {
	u.paths = append(u.paths, localPath)
	if u.err != nil {
		return "", u.err
	}
	if u.key != "" {
		return u.key, nil
	}
	return "archives/key.tar.gz", nil
}

type stubVCS struct {
	dirty      bool
	commits    []string
	commitHash string
}

func (v *stubVCS) CommitRequired() (bool, error) { return v.dirty, nil }

func (v *stubVCS) CommitAll(message string) (string, error) {
	v.commits = append(v.commits, message)
	v.dirty = false
	if v.commitHash == "" {
		return "deadbeef", nil
	}
	return v.commitHash, nil
}

func (v *stubVCS) Describe() (vcs.Info, error) {
	return vcs.Info{CommitSHA: "deadbeef", Branch: "main"}, nil
}

type confirmPrompter struct {
	answer bool
	asked  int
	fail   error
}

func (p *confirmPrompter) SelectOne(string, []prompt.Choice) (string, error) {
	return "", errors.New("unexpected select")
}

func (p *confirmPrompter) InputText(string, func(string) error) (string, error) {
	return "", errors.New("unexpected input")
}

func (p *confirmPrompter) Confirm(string) (bool, error) {
	p.asked++
	if p.fail != nil {
		return false, p.fail
	}
	return p.answer, nil
}

type stubLocalRunner struct {
	payloads []protocol.JobPayload
	result   runner.Result
}

func (r *stubLocalRunner) Execute(ctx context.Context, payload protocol.JobPayload) (runner.Result, error) {
	r.payloads = append(r.payloads, payload)
	return r.result, nil
}

func baseRequest(t *testing.T) Request {
	return Request{
		Platform:   protocol.PlatformIOS,
		ProjectID:  "p1",
		ProjectDir: writeProjectFixture(t),
	}
}

func TestSubmitRemoteUploadsThenDispatches(t *testing.T) {
	submission := &recordingSubmission{resp: protocol.SubmitJobResponse{
		JobID:              "job_1",
		DeprecationNotices: []string{"old image tag"},
	}}
	uploader := &recordingUploader{key: "archives/p1.tar.gz"}
	o := NewOrchestrator(Deps{Submission: submission, Uploader: uploader})

	result, err := o.Submit(context.Background(), baseRequest(t))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.JobID != "job_1" {
		t.Fatalf("unexpected job id %q", result.JobID)
	}
	if len(result.DeprecationNotices) != 1 {
		t.Fatalf("notices lost: %v", result.DeprecationNotices)
	}
	if len(uploader.paths) != 1 {
		t.Fatalf("expected one upload, got %d", len(uploader.paths))
	}
	if len(submission.calls) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(submission.calls))
	}

	req := submission.calls[0]
	if req.Payload.Archive.Type != protocol.ArchiveSourceS3 || req.Payload.Archive.Key != "archives/p1.tar.gz" {
		t.Fatalf("unexpected archive source %+v", req.Payload.Archive)
	}
	if req.Metadata.RequestID == "" {
		t.Fatal("metadata missing request id")
	}

	// The tarball is released once Submit returns.
	if _, err := os.Stat(uploader.paths[0]); !os.IsNotExist(err) {
		t.Fatalf("tarball not cleaned up: %v", err)
	}
}

func TestSubmitRemoteRejectionClassified(t *testing.T) {
	submission := &recordingSubmission{err: &farm.APIError{StatusCode: 409, Code: "EAS_BUILD_TOO_MANY_PENDING_BUILDS"}}
	uploader := &recordingUploader{}
	o := NewOrchestrator(Deps{Submission: submission, Uploader: uploader})

	result, err := o.Submit(context.Background(), baseRequest(t))
	if !IsServerRejection(err) {
		t.Fatalf("expected ServerRejection, got %v", err)
	}
	if result.JobID != "" {
		t.Fatal("no job id may be returned on rejection")
	}
}

func TestSubmitUploadFailureCleansTarballAndSkipsDispatch(t *testing.T) {
	submission := &recordingSubmission{}
	uploader := &recordingUploader{err: errors.New("s3 down")}
	o := NewOrchestrator(Deps{Submission: submission, Uploader: uploader})

	_, err := o.Submit(context.Background(), baseRequest(t))
	if err == nil {
		t.Fatal("expected upload error")
	}
	if len(submission.calls) != 0 {
		t.Fatal("dispatch must not run after a preparation failure")
	}
	if len(uploader.paths) != 1 {
		t.Fatalf("expected one upload attempt, got %d", len(uploader.paths))
	}
	if _, statErr := os.Stat(uploader.paths[0]); !os.IsNotExist(statErr) {
		t.Fatalf("tarball not cleaned up after failed upload: %v", statErr)
	}
}

func TestSubmitDirtyWorktreeNonInteractiveFails(t *testing.T) {
	submission := &recordingSubmission{}
	o := NewOrchestrator(Deps{
		Submission: submission,
		Uploader:   &recordingUploader{},
		VCS:        &stubVCS{dirty: true},
	})

	req := baseRequest(t)
	req.NonInteractive = true
	_, err := o.Submit(context.Background(), req)
	if !errors.Is(err, ErrCommitRequiredNonInteractive) {
		t.Fatalf("expected commit-required error, got %v", err)
	}
	if len(submission.calls) != 0 {
		t.Fatal("dispatch must not run with a dirty worktree")
	}
}

func TestSubmitDirtyWorktreeCommitConfirmed(t *testing.T) {
	submission := &recordingSubmission{resp: protocol.SubmitJobResponse{JobID: "job_2"}}
	vcsClient := &stubVCS{dirty: true}
	o := NewOrchestrator(Deps{
		Submission: submission,
		Uploader:   &recordingUploader{},
		VCS:        vcsClient,
		Prompter:   &confirmPrompter{answer: true},
	})

	req := baseRequest(t)
	req.CommitMessage = "ship it"
	result, err := o.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.JobID != "job_2" {
		t.Fatalf("unexpected job id %q", result.JobID)
	}
	if len(vcsClient.commits) != 1 || vcsClient.commits[0] != "ship it" {
		t.Fatalf("commit not performed: %v", vcsClient.commits)
	}
}

func TestSubmitDirtyWorktreeCommitDeclined(t *testing.T) {
	submission := &recordingSubmission{}
	o := NewOrchestrator(Deps{
		Submission: submission,
		Uploader:   &recordingUploader{},
		VCS:        &stubVCS{dirty: true},
		Prompter:   &confirmPrompter{answer: false},
	})

	_, err := o.Submit(context.Background(), baseRequest(t))
	if !errors.Is(err, ErrCommitDeclined) {
		t.Fatalf("expected ErrCommitDeclined, got %v", err)
	}
	if len(submission.calls) != 0 {
		t.Fatal("dispatch must not run after declined commit")
	}
}

func TestSubmitLocalModeSkipsFarm(t *testing.T) {
	submission := &recordingSubmission{}
	local := &stubLocalRunner{result: runner.Result{ExitCode: 0, LogPath: "x.log"}}
	o := NewOrchestrator(Deps{Submission: submission, Local: local})

	req := baseRequest(t)
	req.Local = true
	result, err := o.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.LocalRun == nil || result.LocalRun.LogPath != "x.log" {
		t.Fatalf("expected local run result, got %+v", result)
	}
	if result.JobID != "" {
		t.Fatal("local mode must not return a job id")
	}
	if len(submission.calls) != 0 {
		t.Fatal("local mode must not contact the farm")
	}
	if len(local.payloads) != 1 {
		t.Fatalf("expected one local execution, got %d", len(local.payloads))
	}
	if local.payloads[0].Archive.Type != protocol.ArchiveSourcePath {
		t.Fatalf("local payload should reference the tarball path, got %+v", local.payloads[0].Archive)
	}
}

func TestSubmitPreResolvedArchiveSkipsPackaging(t *testing.T) {
	submission := &recordingSubmission{resp: protocol.SubmitJobResponse{JobID: "job_3"}}
	uploader := &recordingUploader{}
	o := NewOrchestrator(Deps{Submission: submission, Uploader: uploader})

	req := baseRequest(t)
	req.Archive = &resolver.Archive{URL: "https://example.com/app.tar.gz"}
	_, err := o.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(uploader.paths) != 0 {
		t.Fatal("pre-resolved archive must not trigger an upload")
	}
	got := submission.calls[0].Payload.Archive
	if got.Type != protocol.ArchiveSourceURL || got.URL != "https://example.com/app.tar.gz" {
		t.Fatalf("unexpected archive source %+v", got)
	}
}
