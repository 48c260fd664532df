package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/buildfarm-dev/farmctl/internal/config"
	"github.com/buildfarm-dev/farmctl/internal/observability"
	"github.com/buildfarm-dev/farmctl/internal/prompt"
	"github.com/buildfarm-dev/farmctl/protocol"
	"github.com/buildfarm-dev/farmctl/resolver"
	"github.com/buildfarm-dev/farmctl/runner"
)

// ErrCommitDeclined is returned when uncommitted changes block submission and
// the user declines to commit them.
var ErrCommitDeclined = errors.New("submit: uncommitted changes not committed")

// ErrCommitRequiredNonInteractive is returned when uncommitted changes block
// submission and no prompt is possible.
var ErrCommitRequiredNonInteractive = errors.New("submit: uncommitted changes require a commit; rerun interactively or commit first")

// Submission is the farm's job creation endpoint.
type Submission interface {
	CreateJob(ctx context.Context, req protocol.SubmitJobRequest) (protocol.SubmitJobResponse, error)
}

// Uploader pushes the project tarball to remote storage, returning a key.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// ConfigSyncer validates the local project configuration and heals drift.
type ConfigSyncer interface {
	EnsureSynced() (bool, error)
}

// ConfigSyncFunc adapts a function to the ConfigSyncer interface.
type ConfigSyncFunc func() (bool, error)

func (f ConfigSyncFunc) EnsureSynced() (bool, error) { return f() }

// LocalRunner executes a payload on this machine (local-build mode).
type LocalRunner interface {
	Execute(ctx context.Context, payload protocol.JobPayload) (runner.Result, error)
}

// Request bundles one submission attempt.
type Request struct {
	Platform       protocol.Platform
	ProjectID      string
	ProjectDir     string
	Archive        *resolver.Archive // pre-resolved source; nil packages ProjectDir
	Local          bool
	SkipConfigSync bool
	CommitMessage  string
	NonInteractive bool
	Env            map[string]string
}

// Result is either a remote job handle or a local run summary.
type Result struct {
	JobID              string
	DeprecationNotices []string
	LocalRun           *runner.Result
}

// Deps are the orchestrator's collaborators. Nil entries get safe defaults
// where one exists; Submission and Uploader are required for remote mode.
type Deps struct {
	Submission  Submission
	Credentials CredentialsProvider
	Payloads    PayloadBuilder
	Uploader    Uploader
	VCS         VersionControl
	ConfigSync  ConfigSyncer
	Prompter    prompt.Prompter
	Local       LocalRunner
	Policy      config.CredentialsPolicy
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// Orchestrator runs the two-phase submit protocol: prepare (credentials,
// config sync, commit gate, archive materialization, payload construction),
// then dispatch. Preparation never creates remote job records; a failure
// before dispatch leaves nothing behind on the farm.
type Orchestrator struct {
	deps Deps
}

func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Credentials == nil {
		deps.Credentials = NoopCredentialsProvider{}
	}
	if deps.Payloads == nil {
		deps.Payloads = DefaultPayloadBuilder{}
	}
	if deps.Policy == "" {
		deps.Policy = config.CredentialsRemoteFirst
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger("submit")
	}
	return &Orchestrator{deps: deps}
}

// Submit runs both protocol phases and returns the job handle or local result.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (Result, error) {
	logger := observability.WithPlatform(observability.WithProject(o.deps.Logger, req.ProjectID), string(req.Platform))

	// Phase 1: prepare. All side effects here are local.
	creds, err := o.prepareCredentials(ctx, logger)
	if err != nil {
		return Result{}, err
	}

	if err := o.prepareConfig(req, logger); err != nil {
		return Result{}, err
	}

	if err := o.prepareWorktree(req, logger); err != nil {
		return Result{}, err
	}

	source, cleanup, err := o.materializeArchive(ctx, req, logger)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	meta := CollectMetadata(o.deps.VCS)
	payload, err := o.deps.Payloads.Build(ctx, PayloadRequest{
		Platform:    req.Platform,
		Archive:     source,
		Credentials: creds,
		Metadata:    meta,
		Env:         req.Env,
	})
	if err != nil {
		return Result{}, fmt.Errorf("build payload: %w", err)
	}

	// Phase 2: dispatch.
	if req.Local {
		return o.dispatchLocal(ctx, payload, logger)
	}
	return o.dispatchRemote(ctx, req, payload, meta, logger)
}

func (o *Orchestrator) prepareCredentials(ctx context.Context, logger *slog.Logger) (CredentialsResult, error) {
	if o.deps.Policy == config.CredentialsSkip {
		return CredentialsResult{Source: CredentialsLocal}, nil
	}
	creds, err := o.deps.Credentials.Resolve(ctx, o.deps.Policy)
	if err != nil {
		return CredentialsResult{}, fmt.Errorf("resolve credentials: %w", err)
	}
	logger.Info("credentials resolved", "event", "credentials_resolved", "source", string(creds.Source))
	return creds, nil
}

func (o *Orchestrator) prepareConfig(req Request, logger *slog.Logger) error {
	if req.SkipConfigSync || o.deps.ConfigSync == nil {
		return nil
	}
	rewritten, err := o.deps.ConfigSync.EnsureSynced()
	if err != nil {
		return fmt.Errorf("sync project config: %w", err)
	}
	if rewritten {
		logger.Info("project config normalized", "event", "config_synced")
	}
	return nil
}

func (o *Orchestrator) prepareWorktree(req Request, logger *slog.Logger) error {
	if o.deps.VCS == nil {
		return nil
	}
	required, err := o.deps.VCS.CommitRequired()
	if err != nil {
		return fmt.Errorf("check working tree: %w", err)
	}
	if !required {
		return nil
	}

	if req.NonInteractive || o.deps.Prompter == nil {
		return ErrCommitRequiredNonInteractive
	}
	confirmed, err := o.deps.Prompter.Confirm("The working tree has uncommitted changes that must ship with the build. Commit them now?")
	if err != nil {
		if errors.Is(err, prompt.ErrNonInteractive) {
			return ErrCommitRequiredNonInteractive
		}
		return err
	}
	if !confirmed {
		return ErrCommitDeclined
	}

	hash, err := o.deps.VCS.CommitAll(req.CommitMessage)
	if err != nil {
		return fmt.Errorf("commit changes: %w", err)
	}
	logger.Info("changes committed", "event", "worktree_committed", "commit", hash)
	return nil
}

// materializeArchive produces the payload's archive source. The returned
// cleanup releases the temporary tarball and is safe to call when no tarball
// was created.
func (o *Orchestrator) materializeArchive(ctx context.Context, req Request, logger *slog.Logger) (protocol.ArchiveSource, func(), error) {
	noop := func() {}

	if req.Archive != nil {
		if req.Archive.Job != nil {
			return protocol.ArchiveSource{Type: protocol.ArchiveSourceJob, JobID: req.Archive.Job.ID}, noop, nil
		}
		return protocol.ArchiveSource{Type: protocol.ArchiveSourceURL, URL: req.Archive.URL}, noop, nil
	}

	tarball, cleanup, err := PackageProject(req.ProjectDir)
	if err != nil {
		return protocol.ArchiveSource{}, noop, fmt.Errorf("package project: %w", err)
	}
	logger.Info("project packaged", "event", "project_packaged", "tarball", tarball)

	if req.Local {
		return protocol.ArchiveSource{Type: protocol.ArchiveSourcePath, Path: tarball}, cleanup, nil
	}

	if o.deps.Uploader == nil {
		cleanup()
		return protocol.ArchiveSource{}, noop, errors.New("remote mode requires an uploader")
	}
	key, err := o.deps.Uploader.Upload(ctx, tarball)
	if err != nil {
		cleanup()
		return protocol.ArchiveSource{}, noop, fmt.Errorf("upload project archive: %w", err)
	}
	logger.Info("project archive uploaded", "event", "archive_uploaded", "key", key)
	return protocol.ArchiveSource{Type: protocol.ArchiveSourceS3, Key: key}, cleanup, nil
}

func (o *Orchestrator) dispatchLocal(ctx context.Context, payload protocol.JobPayload, logger *slog.Logger) (Result, error) {
	if o.deps.Local == nil {
		return Result{}, errors.New("local mode requires a local runner")
	}
	run, err := o.deps.Local.Execute(ctx, payload)
	if err != nil {
		return Result{}, fmt.Errorf("local run: %w", err)
	}
	o.deps.Metrics.IncSubmission(string(payload.Platform), "local")
	logger.Info("local run completed", "event", "local_run_completed", "exit_code", run.ExitCode)
	return Result{LocalRun: &run}, nil
}

func (o *Orchestrator) dispatchRemote(ctx context.Context, req Request, payload protocol.JobPayload, meta protocol.BuildMetadata, logger *slog.Logger) (Result, error) {
	if o.deps.Submission == nil {
		return Result{}, errors.New("remote mode requires a submission endpoint")
	}

	resp, err := o.deps.Submission.CreateJob(ctx, protocol.SubmitJobRequest{
		Type:      "SubmitJob",
		ProjectID: req.ProjectID,
		Platform:  req.Platform,
		Payload:   payload,
		Metadata:  meta,
	})
	if err != nil {
		classified := ClassifyDispatchError(req.Platform, err)
		var rejection *ServerRejection
		if errors.As(classified, &rejection) {
			o.deps.Metrics.IncRejection(rejection.Code)
		}
		o.deps.Metrics.IncSubmission(string(req.Platform), "rejected")
		return Result{}, classified
	}

	for _, notice := range resp.DeprecationNotices {
		logger.Warn("deprecation notice", "event", "deprecation_notice", "notice", notice)
	}

	o.deps.Metrics.IncSubmission(string(req.Platform), "accepted")
	logger.Info("job submitted", "event", "job_submitted", "job_id", resp.JobID)
	return Result{JobID: resp.JobID, DeprecationNotices: resp.DeprecationNotices}, nil
}
