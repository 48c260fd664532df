package resolver

import (
	"github.com/buildfarm-dev/farmctl/protocol"
)

// Kind tags a submission intent variant.
type Kind string

const (
	KindExplicitURL  Kind = "explicit-url"
	KindUseLatest    Kind = "use-latest"
	KindExplicitPath Kind = "explicit-path"
	KindExplicitID   Kind = "explicit-id"
	KindListRecent   Kind = "list-recent"
	KindInteractive  Kind = "interactive"
)

// Intent is the user's declared archive source before resolution. Intents are
// immutable values; every transition derives a fresh instance.
type Intent struct {
	Kind Kind

	// Variant payload; at most one is set, matching Kind.
	URL  string
	Path string
	ID   string

	Platform       protocol.Platform
	ProjectID      string
	NonInteractive bool
}

// NewIntent builds the initial intent for a resolution run.
func NewIntent(kind Kind, platform protocol.Platform, projectID string, nonInteractive bool) Intent {
	return Intent{
		Kind:           kind,
		Platform:       platform,
		ProjectID:      projectID,
		NonInteractive: nonInteractive,
	}
}

// WithURL returns a copy carrying an explicit URL payload.
func (i Intent) WithURL(url string) Intent {
	next := i.derive(KindExplicitURL)
	next.URL = url
	return next
}

// WithPath returns a copy carrying an explicit path payload.
func (i Intent) WithPath(path string) Intent {
	next := i.derive(KindExplicitPath)
	next.Path = path
	return next
}

// WithID returns a copy carrying an explicit job id payload.
func (i Intent) WithID(id string) Intent {
	next := i.derive(KindExplicitID)
	next.ID = id
	return next
}

// derive produces a fresh intent of the given kind with the common fields
// carried over and the variant payload cleared.
func (i Intent) derive(kind Kind) Intent {
	return Intent{
		Kind:           kind,
		Platform:       i.Platform,
		ProjectID:      i.ProjectID,
		NonInteractive: i.NonInteractive,
	}
}

// Archive is the resolved, submission-ready reference to project content.
// Exactly one of URL and Job is set. Intent records what produced it.
type Archive struct {
	URL    string
	Job    *protocol.RemoteJob
	Intent Intent
}
