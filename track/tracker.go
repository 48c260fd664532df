package track

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/buildfarm-dev/farmctl/internal/observability"
	"github.com/buildfarm-dev/farmctl/protocol"
)

// Fetcher reads current job snapshots from the farm.
type Fetcher interface {
	JobByID(ctx context.Context, id string) (protocol.RemoteJob, error)
}

// ProgressSink receives human-facing status updates. Passing it explicitly
// keeps the tracker deterministic under test; no console state is captured.
type ProgressSink interface {
	Report(message string)
	Succeed(message string)
	Fail(message string)
}

// NoopSink discards progress updates.
type NoopSink struct{}

func (NoopSink) Report(string)  {}
func (NoopSink) Succeed(string) {}
func (NoopSink) Fail(string)    {}

// TimeoutFault is raised when polling exceeds the configured window. It
// carries the last observed snapshots so callers can show partial results.
type TimeoutFault struct {
	Elapsed   time.Duration
	Snapshots []*protocol.RemoteJob
}

func (e *TimeoutFault) Error() string {
	return fmt.Sprintf("timed out after %s waiting for builds to complete", e.Elapsed.Round(time.Second))
}

// InternalFault signals a contract violation between tracker and farm: an
// errored job without an error payload, or a status outside the closed set.
type InternalFault struct {
	JobID  string
	Reason string
}

func (e *InternalFault) Error() string {
	return fmt.Sprintf("job %s: %s", e.JobID, e.Reason)
}

// Options tune the polling loop.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	Sink     ProgressSink
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// Tracker polls submitted jobs until every one reaches a terminal status or
// the timeout elapses.
type Tracker struct {
	fetcher  Fetcher
	sink     ProgressSink
	logger   *slog.Logger
	metrics  *observability.Metrics
	interval time.Duration
	timeout  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewTracker(fetcher Fetcher, opts Options) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	if opts.Sink == nil {
		opts.Sink = NoopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger("track")
	}
	return &Tracker{
		fetcher:  fetcher,
		sink:     opts.Sink,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// AwaitCompletion polls the given jobs until all are terminal. The returned
// slice preserves input order, one slot per id; a slot is nil only when that
// job was never successfully fetched before a timeout. Terminal slots are
// frozen: once a job reports a terminal status its snapshot never changes.
func (t *Tracker) AwaitCompletion(ctx context.Context, ids []string) ([]*protocol.RemoteJob, error) {
	snapshots := make([]*protocol.RemoteJob, len(ids))
	if len(ids) == 0 {
		return snapshots, nil
	}

	start := t.now()
	deadline := start.Add(t.timeout)

	for {
		if err := t.tick(ctx, ids, snapshots); err != nil {
			t.metrics.IncPollTick("fault")
			t.sink.Fail(err.Error())
			return snapshots, err
		}
		t.metrics.IncPollTick("ok")

		t.sink.Report(formatProgress(ids, snapshots))

		if allTerminal(snapshots) {
			t.sink.Succeed(formatProgress(ids, snapshots))
			return snapshots, nil
		}

		if t.now().After(deadline) {
			fault := &TimeoutFault{Elapsed: t.now().Sub(start), Snapshots: snapshots}
			t.metrics.IncPollTick("timeout")
			t.sink.Fail(fault.Error())
			return snapshots, fault
		}

		if err := t.sleep(ctx, t.interval); err != nil {
			return snapshots, err
		}
	}
}

// tick refreshes every non-terminal slot concurrently. A failed fetch for one
// job is logged and retried next tick; it neither fails the loop nor blocks
// the other fetches in the same tick.
func (t *Tracker) tick(ctx context.Context, ids []string, snapshots []*protocol.RemoteJob) error {
	fetched := make([]*protocol.RemoteJob, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i := range ids {
		if snapshots[i] != nil && snapshots[i].Status.Terminal() {
			continue
		}
		i, id := i, ids[i]
		g.Go(func() error {
			job, err := t.fetcher.JobByID(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				t.logger.Warn("status fetch failed, retrying next tick", "event", "status_fetch_failed", "job_id", id, "error", err)
				return nil
			}
			fetched[i] = &job
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, job := range fetched {
		if job == nil {
			continue
		}
		if !job.Status.Known() {
			return &InternalFault{JobID: job.ID, Reason: fmt.Sprintf("unknown status %q", job.Status)}
		}
		if job.Status == protocol.JobStatusErrored {
			if job.Error == nil {
				return &InternalFault{JobID: job.ID, Reason: "errored without an error payload"}
			}
			t.logger.Warn("build errored", "event", "build_errored", "job_id", job.ID, "code", job.Error.Code, "message", job.Error.Message)
		}
		snapshots[i] = job
	}
	return nil
}

func allTerminal(snapshots []*protocol.RemoteJob) bool {
	for _, snapshot := range snapshots {
		if snapshot == nil || !snapshot.Status.Terminal() {
			return false
		}
	}
	return true
}

// formatProgress renders single-job status verbatim and multi-job status as
// aggregate counts; termination logic is identical either way.
func formatProgress(ids []string, snapshots []*protocol.RemoteJob) string {
	if len(ids) == 1 {
		if snapshots[0] == nil {
			return "build status pending"
		}
		return fmt.Sprintf("build %s is %s", ids[0], statusText(snapshots[0].Status))
	}

	counts := map[protocol.JobStatus]int{}
	pending := 0
	for _, snapshot := range snapshots {
		if snapshot == nil {
			pending++
			continue
		}
		counts[snapshot.Status]++
	}

	order := []protocol.JobStatus{
		protocol.JobStatusNew,
		protocol.JobStatusInQueue,
		protocol.JobStatusInProgress,
		protocol.JobStatusFinished,
		protocol.JobStatusErrored,
		protocol.JobStatusCanceled,
	}
	parts := make([]string, 0, len(order)+1)
	for _, status := range order {
		if counts[status] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[status], statusText(status)))
		}
	}
	if pending > 0 {
		parts = append(parts, fmt.Sprintf("%d pending", pending))
	}
	return fmt.Sprintf("builds: %s", strings.Join(parts, ", "))
}

func statusText(status protocol.JobStatus) string {
	return strings.ToLower(strings.ReplaceAll(string(status), "_", " "))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
