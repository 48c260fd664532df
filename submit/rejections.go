package submit

import (
	"errors"
	"fmt"

	"github.com/buildfarm-dev/farmctl/farm"
	"github.com/buildfarm-dev/farmctl/protocol"
)

// RejectionKind classifies a server-side dispatch rejection.
type RejectionKind string

const (
	RejectionDeprecatedFormat RejectionKind = "deprecated-job-format"
	RejectionMaintenance      RejectionKind = "service-maintenance"
	RejectionTierDisabled     RejectionKind = "tier-disabled"
	RejectionQuotaExceeded    RejectionKind = "pending-quota-exceeded"
	RejectionGeneric          RejectionKind = "generic"
)

// The farm's known rejection codes. Unknown codes degrade to RejectionGeneric
// rather than falling through unclassified.
var rejectionKinds = map[string]RejectionKind{
	"EAS_BUILD_DEPRECATED_JOB_FORMAT":   RejectionDeprecatedFormat,
	"EAS_SERVICE_UNDER_MAINTENANCE":     RejectionMaintenance,
	"EAS_BUILD_TIER_DISABLED":           RejectionTierDisabled,
	"EAS_BUILD_TOO_MANY_PENDING_BUILDS": RejectionQuotaExceeded,
}

// ServerRejection is a dispatch rejected by the farm. Never retried
// automatically; the user decides what to do next.
type ServerRejection struct {
	Kind     RejectionKind
	Code     string
	Platform protocol.Platform
	Message  string
}

func (e *ServerRejection) Error() string {
	return e.Message
}

func IsServerRejection(err error) bool {
	var sr *ServerRejection
	return errors.As(err, &sr)
}

// ClassifyDispatchError translates a farm API error into a ServerRejection.
// Transport errors pass through unchanged.
func ClassifyDispatchError(platform protocol.Platform, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *farm.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	kind, ok := rejectionKinds[apiErr.Code]
	if !ok {
		kind = RejectionGeneric
	}
	return &ServerRejection{
		Kind:     kind,
		Code:     apiErr.Code,
		Platform: platform,
		Message:  rejectionMessage(kind, platform, apiErr),
	}
}

func rejectionMessage(kind RejectionKind, platform protocol.Platform, apiErr *farm.APIError) string {
	switch kind {
	case RejectionDeprecatedFormat:
		return "this client produces a job format the farm no longer accepts; upgrade farmctl and retry"
	case RejectionMaintenance:
		return "the build farm is under maintenance; try again shortly"
	case RejectionTierDisabled:
		return "builds are disabled for this account tier; see your plan settings"
	case RejectionQuotaExceeded:
		return fmt.Sprintf("too many pending %s builds for this project; wait for one to finish and retry", platform)
	default:
		if apiErr.Message != "" {
			return fmt.Sprintf("the build farm rejected the submission: %s", apiErr.Message)
		}
		return fmt.Sprintf("the build farm rejected the submission (status %d)", apiErr.StatusCode)
	}
}
