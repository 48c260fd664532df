package submit

import (
	"errors"
	"strings"
	"testing"

	"github.com/buildfarm-dev/farmctl/farm"
	"github.com/buildfarm-dev/farmctl/protocol"
)

func TestClassifyDispatchErrorKnownCodes(t *testing.T) {
	cases := []struct {
		code string
		kind RejectionKind
	}{
		{"EAS_BUILD_DEPRECATED_JOB_FORMAT", RejectionDeprecatedFormat},
		{"EAS_SERVICE_UNDER_MAINTENANCE", RejectionMaintenance},
		{"EAS_BUILD_TIER_DISABLED", RejectionTierDisabled},
		{"EAS_BUILD_TOO_MANY_PENDING_BUILDS", RejectionQuotaExceeded},
	}
	for _, tc := range cases {
		err := ClassifyDispatchError(protocol.PlatformIOS, &farm.APIError{StatusCode: 409, Code: tc.code})
		var rejection *ServerRejection
		if !errors.As(err, &rejection) {
			t.Fatalf("%s: expected ServerRejection, got %v", tc.code, err)
		}
		if rejection.Kind != tc.kind {
			t.Fatalf("%s: expected kind %s, got %s", tc.code, tc.kind, rejection.Kind)
		}
		if rejection.Code != tc.code {
			t.Fatalf("%s: code not preserved: %s", tc.code, rejection.Code)
		}
	}
}

func TestClassifyQuotaMessageNamesPlatform(t *testing.T) {
	err := ClassifyDispatchError(protocol.PlatformIOS, &farm.APIError{StatusCode: 409, Code: "EAS_BUILD_TOO_MANY_PENDING_BUILDS"})
	if !strings.Contains(err.Error(), "ios") {
		t.Fatalf("expected platform in message, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "retry") {
		t.Fatalf("expected retry guidance, got %q", err.Error())
	}
}

func TestClassifyUnknownCodeDegradesToGeneric(t *testing.T) {
	err := ClassifyDispatchError(protocol.PlatformAndroid, &farm.APIError{StatusCode: 422, Code: "EAS_BUILD_SOMETHING_NEW", Message: "nope"})
	var rejection *ServerRejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected ServerRejection, got %v", err)
	}
	if rejection.Kind != RejectionGeneric {
		t.Fatalf("expected generic kind, got %s", rejection.Kind)
	}
	if !strings.Contains(rejection.Message, "nope") {
		t.Fatalf("server message dropped: %q", rejection.Message)
	}
}

func TestClassifyPassesThroughTransportErrors(t *testing.T) {
	cause := errors.New("connection refused")
	err := ClassifyDispatchError(protocol.PlatformAndroid, cause)
	if !errors.Is(err, cause) {
		t.Fatalf("transport error mangled: %v", err)
	}
	if IsServerRejection(err) {
		t.Fatal("transport error misclassified as rejection")
	}
}
