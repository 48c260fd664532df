package submit

import (
	"os/user"

	"github.com/google/uuid"

	"github.com/buildfarm-dev/farmctl/internal/vcs"
	"github.com/buildfarm-dev/farmctl/protocol"
)

// clientVersion is stamped at build time via -ldflags.
var clientVersion = "dev"

// VersionControl is the local working-tree collaborator of the submit flow.
type VersionControl interface {
	CommitRequired() (bool, error)
	CommitAll(message string) (string, error)
	Describe() (vcs.Info, error)
}

// CollectMetadata gathers best-effort client context for a submission. VCS
// lookups that fail leave their fields empty rather than blocking the submit.
func CollectMetadata(vc VersionControl) protocol.BuildMetadata {
	meta := protocol.BuildMetadata{
		RequestID:     uuid.NewString(),
		ClientVersion: clientVersion,
	}

	if u, err := user.Current(); err == nil {
		meta.Username = u.Username
	}

	if vc != nil {
		if info, err := vc.Describe(); err == nil {
			meta.CommitSHA = info.CommitSHA
			meta.Branch = info.Branch
		}
		if dirty, err := vc.CommitRequired(); err == nil {
			meta.UncommittedChanges = dirty
		}
	}
	return meta
}
