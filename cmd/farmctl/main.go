package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/buildfarm-dev/farmctl/artifacts"
	"github.com/buildfarm-dev/farmctl/farm"
	"github.com/buildfarm-dev/farmctl/internal/config"
	"github.com/buildfarm-dev/farmctl/internal/observability"
	"github.com/buildfarm-dev/farmctl/internal/prompt"
	"github.com/buildfarm-dev/farmctl/internal/vcs"
	"github.com/buildfarm-dev/farmctl/protocol"
	"github.com/buildfarm-dev/farmctl/resolver"
	"github.com/buildfarm-dev/farmctl/runner"
	"github.com/buildfarm-dev/farmctl/submit"
	"github.com/buildfarm-dev/farmctl/track"
)

var CLI struct {
	Config         string `short:"c" help:"Project configuration file" default:"farm.yaml"`
	Verbose        bool   `short:"v" help:"Enable verbose logging"`
	NonInteractive bool   `help:"Fail instead of prompting"`

	Submit struct {
		Platform string `short:"p" help:"Target platform (android or ios); defaults to the configured platform" enum:"android,ios," default:""`
		Dir      string `short:"d" help:"Project directory to package" default:"."`

		URL    string `help:"Submit an archive already hosted at this URL"`
		Latest bool   `help:"Reuse the most recent build's archive"`
		Path   string `help:"Upload and submit a local archive"`
		ID     string `help:"Reuse the archive of an existing build id"`
		List   bool   `help:"Pick the archive from recent builds"`

		Local          bool   `help:"Run the build on this machine instead of the farm"`
		SkipConfigSync bool   `help:"Skip project config normalization"`
		Message        string `short:"m" help:"Commit message when uncommitted changes must be committed"`
		Wait           bool   `short:"w" help:"Wait for the submitted build to complete"`
	} `cmd:"" help:"Submit a build job to the farm"`

	Wait struct {
		IDs []string `arg:"" help:"Build job ids to wait for"`
	} `cmd:"" help:"Wait for build jobs to complete"`

	List struct {
		Platform string `short:"p" help:"Filter by platform" enum:"android,ios," default:""`
		Limit    int    `short:"n" help:"Maximum jobs to show" default:"10"`
	} `cmd:"" help:"List recent build jobs"`
}

func main() {
	kctx := kong.Parse(&CLI)

	level := slog.LevelInfo
	if CLI.Verbose {
		level = slog.LevelDebug
	}
	logger := observability.NewLoggerAt("farmctl", level)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		logger.Error("configuration failed", "event", "config_error", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &app{
		cfg:     cfg,
		client:  farm.NewClient(cfg.FarmURL, cfg.Token),
		logger:  logger,
		metrics: observability.NewMetrics(nil),
	}

	var runErr error
	var exit int
	switch kctx.Command() {
	case "submit":
		exit, runErr = app.runSubmit(ctx)
	case "wait <ids>":
		exit, runErr = app.runWait(ctx, CLI.Wait.IDs)
	case "list":
		runErr = app.runList(ctx)
	default:
		runErr = fmt.Errorf("unknown command %q", kctx.Command())
	}

	if runErr != nil {
		logger.Error("command failed", "event", "command_error", "error", runErr)
		if exit == 0 {
			exit = 1
		}
	}
	os.Exit(exit)
}

type app struct {
	cfg     *config.Config
	client  *farm.Client
	logger  *slog.Logger
	metrics *observability.Metrics
}

func (a *app) runSubmit(ctx context.Context) (int, error) {
	platform, err := a.platform(CLI.Submit.Platform)
	if err != nil {
		return 1, err
	}

	uploader, err := a.uploader(ctx)
	if err != nil {
		return 1, err
	}
	prompter := prompt.NewTerminal()

	archive, err := a.resolveArchive(ctx, platform, uploader, prompter)
	if err != nil {
		return 1, err
	}

	vcsClient, err := vcs.Open(CLI.Submit.Dir)
	if err != nil && !errors.Is(err, vcs.ErrNoRepository) {
		return 1, err
	}
	var vc submit.VersionControl
	if vcsClient != nil {
		vc = vcsClient
	}

	orchestrator := submit.NewOrchestrator(submit.Deps{
		Submission: a.client,
		Uploader:   uploader,
		VCS:        vc,
		ConfigSync: submit.ConfigSyncFunc(func() (bool, error) { return config.EnsureSynced(CLI.Config) }),
		Prompter:   prompter,
		Local:      runner.NewLocal(CLI.Submit.Dir, "", a.logger),
		Policy:     a.cfg.Credentials,
		Logger:     a.logger,
		Metrics:    a.metrics,
	})

	result, err := orchestrator.Submit(ctx, submit.Request{
		Platform:       platform,
		ProjectID:      a.cfg.ProjectID,
		ProjectDir:     CLI.Submit.Dir,
		Archive:        archive,
		Local:          CLI.Submit.Local,
		SkipConfigSync: CLI.Submit.SkipConfigSync,
		CommitMessage:  CLI.Submit.Message,
		NonInteractive: CLI.NonInteractive,
	})
	if err != nil {
		return 1, err
	}

	if result.LocalRun != nil {
		fmt.Printf("local build finished with exit code %d, log at %s\n", result.LocalRun.ExitCode, result.LocalRun.LogPath)
		return result.LocalRun.ExitCode, nil
	}

	fmt.Printf("build submitted: %s\n", result.JobID)
	for _, notice := range result.DeprecationNotices {
		fmt.Fprintf(os.Stderr, "deprecation notice: %s\n", notice)
	}

	if !CLI.Submit.Wait {
		return 0, nil
	}
	return a.runWait(ctx, []string{result.JobID})
}

// resolveArchive maps the mutually exclusive source flags to an intent and
// resolves it. No flag means the project directory gets packaged instead, so
// a nil archive is returned.
func (a *app) resolveArchive(ctx context.Context, platform protocol.Platform, uploader submit.Uploader, prompter prompt.Prompter) (*resolver.Archive, error) {
	var kind resolver.Kind
	set := 0
	if CLI.Submit.URL != "" {
		kind, set = resolver.KindExplicitURL, set+1
	}
	if CLI.Submit.Latest {
		kind, set = resolver.KindUseLatest, set+1
	}
	if CLI.Submit.Path != "" {
		kind, set = resolver.KindExplicitPath, set+1
	}
	if CLI.Submit.ID != "" {
		kind, set = resolver.KindExplicitID, set+1
	}
	if CLI.Submit.List {
		kind, set = resolver.KindListRecent, set+1
	}
	if set == 0 {
		return nil, nil
	}
	if set > 1 {
		return nil, errors.New("--url, --latest, --path, --id and --list are mutually exclusive")
	}

	intent := resolver.NewIntent(kind, platform, a.cfg.ProjectID, CLI.NonInteractive)
	switch kind {
	case resolver.KindExplicitURL:
		intent = intent.WithURL(CLI.Submit.URL)
	case resolver.KindExplicitPath:
		intent = intent.WithPath(CLI.Submit.Path)
	case resolver.KindExplicitID:
		intent = intent.WithID(CLI.Submit.ID)
	}

	r := resolver.NewResolver(a.client, &resolverUploader{uploader: uploader}, prompter, a.logger, a.metrics)
	archive, err := r.Resolve(ctx, intent)
	if err != nil {
		return nil, err
	}
	return &archive, nil
}

func (a *app) runWait(ctx context.Context, ids []string) (int, error) {
	tracker := track.NewTracker(a.client, track.Options{
		Interval: a.cfg.PollInterval(),
		Timeout:  a.cfg.PollTimeout(),
		Sink:     consoleSink{},
		Logger:   a.logger,
		Metrics:  a.metrics,
	})

	snapshots, err := tracker.AwaitCompletion(ctx, ids)
	if err != nil {
		return 1, err
	}

	exit := 0
	for _, snapshot := range snapshots {
		switch snapshot.Status {
		case protocol.JobStatusErrored:
			exit = 1
		case protocol.JobStatusCanceled:
			if exit == 0 {
				exit = 2
			}
		}
	}
	return exit, nil
}

func (a *app) runList(ctx context.Context) error {
	platform := protocol.Platform(CLI.List.Platform)
	if platform == "" {
		platform = a.cfg.DefaultPlatform
	}

	jobs, err := a.client.RecentJobs(ctx, platform, a.cfg.ProjectID, CLI.List.Limit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("no builds found")
		return nil
	}
	for _, job := range jobs {
		fmt.Printf("%s  %-8s  %-11s  %s\n", job.ID, job.Platform, job.Status, job.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func (a *app) platform(flag string) (protocol.Platform, error) {
	platform := protocol.Platform(flag)
	if platform == "" {
		platform = a.cfg.DefaultPlatform
	}
	if !platform.Known() {
		return "", fmt.Errorf("a platform is required; pass --platform or set default_platform in %s", CLI.Config)
	}
	return platform, nil
}

func (a *app) uploader(ctx context.Context) (submit.Uploader, error) {
	if a.cfg.S3.Bucket == "" {
		return artifacts.NoopUploader{}, nil
	}
	return artifacts.NewS3Uploader(ctx, artifacts.S3Config{
		Bucket: a.cfg.S3.Bucket,
		Prefix: a.cfg.S3.Prefix,
		Region: a.cfg.S3.Region,
	})
}

// resolverUploader renders the storage key returned by the submit uploader as
// a URL, which is what archive resolution hands back.
type resolverUploader struct {
	uploader submit.Uploader
}

func (u *resolverUploader) Upload(ctx context.Context, localPath string) (string, error) {
	key, err := u.uploader.Upload(ctx, localPath)
	if err != nil {
		return "", err
	}
	if s3, ok := u.uploader.(*artifacts.S3Uploader); ok {
		return s3.URL(key), nil
	}
	return key, nil
}

// consoleSink writes progress to stderr, keeping stdout for results.
type consoleSink struct{}

func (consoleSink) Report(message string)  { fmt.Fprintln(os.Stderr, message) }
func (consoleSink) Succeed(message string) { fmt.Fprintln(os.Stderr, message) }
func (consoleSink) Fail(message string)    { fmt.Fprintln(os.Stderr, message) }
