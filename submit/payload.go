package submit

import (
	"context"
	"fmt"

	"github.com/buildfarm-dev/farmctl/protocol"
)

// PayloadRequest bundles everything a payload builder may need.
type PayloadRequest struct {
	Platform    protocol.Platform
	Archive     protocol.ArchiveSource
	Credentials CredentialsResult
	Metadata    protocol.BuildMetadata
	Env         map[string]string
}

// PayloadBuilder produces the platform-specific job payload. Android and iOS
// builders live outside this module; DefaultPayloadBuilder covers the generic
// shell.
type PayloadBuilder interface {
	Build(ctx context.Context, req PayloadRequest) (protocol.JobPayload, error)
}

// DefaultPayloadBuilder emits a platform-agnostic payload with a fixed step
// list. This keeps the payload contract exercisable without the platform
// builders.
type DefaultPayloadBuilder struct {
	Steps []string
	Env   map[string]string
}

func (b DefaultPayloadBuilder) Build(ctx context.Context, req PayloadRequest) (protocol.JobPayload, error) {
	if !req.Platform.Known() {
		return protocol.JobPayload{}, fmt.Errorf("unknown platform %q", req.Platform)
	}

	steps := b.Steps
	if len(steps) == 0 {
		steps = []string{"./scripts/build.sh"}
	}

	env := map[string]string{"CI": "true"}
	for k, v := range b.Env {
		env[k] = v
	}
	for k, v := range req.Env {
		env[k] = v
	}

	return protocol.JobPayload{
		Platform: req.Platform,
		Archive:  req.Archive,
		Env:      env,
		Steps:    steps,
		Spec: map[string]any{
			"credentials_source": string(req.Credentials.Source),
		},
	}, nil
}
