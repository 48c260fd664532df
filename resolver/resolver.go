package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/buildfarm-dev/farmctl/farm"
	"github.com/buildfarm-dev/farmctl/internal/observability"
	"github.com/buildfarm-dev/farmctl/internal/prompt"
	"github.com/buildfarm-dev/farmctl/protocol"
)

const (
	// recentPageSize bounds the ListRecent menu.
	recentPageSize = 4
	// artifactExpiry is the farm's artifact retention window.
	artifactExpiry = 30 * 24 * time.Hour
	// maxHops bounds the trampoline; interactive selection can chain at most
	// a handful of transitions before producing an archive.
	maxHops = 16

	escapeChoice = ""
)

// Catalog is the read side of the farm job API used during resolution.
type Catalog interface {
	RecentJobs(ctx context.Context, platform protocol.Platform, projectID string, limit int) ([]protocol.RemoteJob, error)
	JobByID(ctx context.Context, id string) (protocol.RemoteJob, error)
}

// Uploader pushes a local archive to remote storage and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// Resolver turns a submission intent into a concrete archive. Resolution
// failures fall back to interactive selection unless the intent is
// non-interactive, in which case they surface as NonInteractiveModeError.
type Resolver struct {
	catalog  Catalog
	uploader Uploader
	prompter prompt.Prompter
	logger   *slog.Logger
	metrics  *observability.Metrics

	// now is a seam for expiry tests.
	now func() time.Time
}

func NewResolver(catalog Catalog, uploader Uploader, prompter prompt.Prompter, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	if logger == nil {
		logger = observability.NewLogger("resolver")
	}
	return &Resolver{
		catalog:  catalog,
		uploader: uploader,
		prompter: prompter,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Resolve drives the intent state machine to a terminal archive. The loop is
// an explicit trampoline: each step either finishes or yields the next intent.
func (r *Resolver) Resolve(ctx context.Context, intent Intent) (Archive, error) {
	for hop := 0; hop < maxHops; hop++ {
		archive, next, err := r.step(ctx, intent)
		if err != nil {
			return Archive{}, err
		}
		if archive != nil {
			return *archive, nil
		}
		intent = *next
	}
	return Archive{}, fmt.Errorf("archive resolution did not settle after %d transitions", maxHops)
}

func (r *Resolver) step(ctx context.Context, intent Intent) (*Archive, *Intent, error) {
	switch intent.Kind {
	case KindExplicitURL:
		return r.stepExplicitURL(ctx, intent)
	case KindUseLatest:
		return r.stepUseLatest(ctx, intent)
	case KindExplicitPath:
		return r.stepExplicitPath(ctx, intent)
	case KindExplicitID:
		return r.stepExplicitID(ctx, intent)
	case KindListRecent:
		return r.stepListRecent(ctx, intent)
	case KindInteractive:
		return r.stepInteractive(ctx, intent)
	default:
		return nil, nil, fmt.Errorf("unknown intent kind %q", intent.Kind)
	}
}

func (r *Resolver) stepExplicitURL(ctx context.Context, intent Intent) (*Archive, *Intent, error) {
	if err := ValidateURL(intent.URL); err != nil {
		return r.fallback(intent, ValidationError{Field: "url", Value: intent.URL, Reason: err.Error()})
	}

	if jobID, ok := DetailsPageJobID(intent.URL); ok && !intent.NonInteractive {
		confirmed, err := r.prompter.Confirm(fmt.Sprintf("The URL looks like a build details page for job %s. Use that job instead?", jobID))
		if err != nil {
			return nil, nil, r.wrapPromptErr(err)
		}
		if confirmed {
			next := intent.WithID(jobID)
			return nil, &next, nil
		}
	}

	return &Archive{URL: intent.URL, Intent: intent}, nil, nil
}

func (r *Resolver) stepUseLatest(ctx context.Context, intent Intent) (*Archive, *Intent, error) {
	jobs, err := r.catalog.RecentJobs(ctx, intent.Platform, intent.ProjectID, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch latest job: %w", err)
	}
	if len(jobs) == 0 {
		return r.fallback(intent, NotFoundError{})
	}
	job := jobs[0]
	return &Archive{Job: &job, Intent: intent}, nil, nil
}

func (r *Resolver) stepExplicitPath(ctx context.Context, intent Intent) (*Archive, *Intent, error) {
	if err := ValidatePath(intent.Path); err != nil {
		return r.fallback(intent, ValidationError{Field: "path", Value: intent.Path, Reason: err.Error()})
	}

	url, err := r.uploader.Upload(ctx, intent.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("upload archive %s: %w", intent.Path, err)
	}
	r.logger.Info("local archive uploaded", "event", "archive_uploaded", "path", intent.Path)
	return &Archive{URL: url, Intent: intent}, nil, nil
}

func (r *Resolver) stepExplicitID(ctx context.Context, intent Intent) (*Archive, *Intent, error) {
	if err := ValidateJobID(intent.ID); err != nil {
		return r.fallback(intent, ValidationError{Field: "id", Value: intent.ID, Reason: err.Error()})
	}

	job, err := r.catalog.JobByID(ctx, intent.ID)
	if err != nil {
		if isNotFound(err) {
			return r.fallback(intent, NotFoundError{Ref: intent.ID})
		}
		return nil, nil, fmt.Errorf("fetch job %s: %w", intent.ID, err)
	}
	if job.Platform != intent.Platform {
		return r.fallback(intent, PlatformMismatchError{JobID: job.ID, Want: intent.Platform, Got: job.Platform})
	}
	return &Archive{Job: &job, Intent: intent}, nil, nil
}

func (r *Resolver) stepListRecent(ctx context.Context, intent Intent) (*Archive, *Intent, error) {
	jobs, err := r.catalog.RecentJobs(ctx, intent.Platform, intent.ProjectID, recentPageSize)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch recent jobs: %w", err)
	}
	if len(jobs) == 0 {
		return r.fallback(intent, NotFoundError{})
	}

	cutoff := r.now().Add(-artifactExpiry)
	allExpired := true
	for _, job := range jobs {
		if job.CreatedAt.After(cutoff) {
			allExpired = false
			break
		}
	}
	if allExpired {
		return r.fallback(intent, ExpiredArtifactError{Window: artifactExpiry})
	}

	choices := make([]prompt.Choice, 0, len(jobs)+1)
	byID := make(map[string]protocol.RemoteJob, len(jobs))
	for _, job := range jobs {
		label := fmt.Sprintf("%s  %s  %s", job.ID, job.Status, job.CreatedAt.Format(time.RFC3339))
		if !job.CreatedAt.After(cutoff) {
			label += "  (expired)"
		}
		choices = append(choices, prompt.Choice{Label: label, Value: job.ID})
		byID[job.ID] = job
	}
	choices = append(choices, prompt.Choice{Label: "None of the above", Value: escapeChoice})

	selected, err := r.prompter.SelectOne("Select a previous build", choices)
	if err != nil {
		return nil, nil, r.wrapPromptErr(err)
	}
	if selected == escapeChoice {
		next := intent.derive(KindInteractive)
		return nil, &next, nil
	}

	job := byID[selected]
	if !job.CreatedAt.After(cutoff) {
		r.logger.Warn("selected job is past the retention window", "event", "expired_job_selected", "job_id", job.ID)
	}
	return &Archive{Job: &job, Intent: intent}, nil, nil
}

func (r *Resolver) stepInteractive(ctx context.Context, intent Intent) (*Archive, *Intent, error) {
	if intent.NonInteractive {
		return nil, nil, &NonInteractiveModeError{Cause: errors.New("interactive selection requested")}
	}

	choice, err := r.prompter.SelectOne("How would you like to provide the archive?", []prompt.Choice{
		{Label: "Pick from recent builds", Value: string(KindListRecent)},
		{Label: "Provide a URL to the archive", Value: string(KindExplicitURL)},
		{Label: "Provide a path to a local archive", Value: string(KindExplicitPath)},
		{Label: "Provide an existing build id", Value: string(KindExplicitID)},
	})
	if err != nil {
		return nil, nil, r.wrapPromptErr(err)
	}

	var next Intent
	switch Kind(choice) {
	case KindListRecent:
		next = intent.derive(KindListRecent)
	case KindExplicitURL:
		url, err := r.prompter.InputText("Archive URL", ValidateURL)
		if err != nil {
			return nil, nil, r.wrapPromptErr(err)
		}
		next = intent.WithURL(url)
	case KindExplicitPath:
		path, err := r.prompter.InputText("Archive path", ValidatePath)
		if err != nil {
			return nil, nil, r.wrapPromptErr(err)
		}
		next = intent.WithPath(path)
	case KindExplicitID:
		id, err := r.prompter.InputText("Build id", ValidateJobID)
		if err != nil {
			return nil, nil, r.wrapPromptErr(err)
		}
		next = intent.WithID(id)
	default:
		return nil, nil, fmt.Errorf("unexpected interactive choice %q", choice)
	}
	return nil, &next, nil
}

// fallback degrades to interactive selection, or fails when interactivity is
// disabled. The cause is logged either way so the user sees why their explicit
// reference was rejected.
func (r *Resolver) fallback(intent Intent, cause error) (*Archive, *Intent, error) {
	if intent.NonInteractive {
		return nil, nil, &NonInteractiveModeError{Cause: cause}
	}
	r.logger.Warn("falling back to interactive selection", "event", "resolver_fallback", "from", string(intent.Kind), "reason", cause.Error())
	r.metrics.IncFallback(string(intent.Kind))
	next := intent.derive(KindInteractive)
	return nil, &next, nil
}

func (r *Resolver) wrapPromptErr(err error) error {
	if errors.Is(err, prompt.ErrNonInteractive) {
		return &NonInteractiveModeError{Cause: err}
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, farm.ErrNotFound)
}
