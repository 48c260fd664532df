package submit

import (
	"context"

	"github.com/buildfarm-dev/farmctl/internal/config"
)

// CredentialsSource tags where resolved credentials came from.
type CredentialsSource string

const (
	CredentialsLocal  CredentialsSource = "local"
	CredentialsRemote CredentialsSource = "remote"
)

// CredentialsResult wraps platform-specific credentials. The orchestrator
// treats the credentials themselves as opaque; only the source tag matters.
type CredentialsResult struct {
	Source      CredentialsSource
	Credentials any
}

// CredentialsProvider resolves signing credentials for a submission. It may
// prompt interactively on its own.
type CredentialsProvider interface {
	Resolve(ctx context.Context, policy config.CredentialsPolicy) (CredentialsResult, error)
}

// NoopCredentialsProvider returns empty local credentials; used for platforms
// or profiles that manage signing outside the client.
type NoopCredentialsProvider struct{}

func (NoopCredentialsProvider) Resolve(ctx context.Context, policy config.CredentialsPolicy) (CredentialsResult, error) {
	return CredentialsResult{Source: CredentialsLocal}, nil
}
