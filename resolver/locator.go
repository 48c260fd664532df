package resolver

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
)

// RefKind classifies a candidate archive reference.
type RefKind string

const (
	RefURL           RefKind = "url"
	RefPath          RefKind = "path"
	RefJobID         RefKind = "job-id"
	RefUnaddressable RefKind = "unaddressable"
)

// ValidateURL accepts absolute http(s) URLs only.
func ValidateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// ValidatePath accepts paths that exist on the local filesystem.
func ValidatePath(p string) error {
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, expected an archive file")
	}
	return nil
}

// ValidateJobID accepts version-4 UUIDs only.
func ValidateJobID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("not a UUID: %w", err)
	}
	if parsed.Version() != 4 {
		return fmt.Errorf("expected a version-4 UUID, got version %d", parsed.Version())
	}
	return nil
}

// Classify tags a candidate reference as addressable (URL, path, or job id)
// or unaddressable.
func Classify(ref string) RefKind {
	if ValidateJobID(ref) == nil {
		return RefJobID
	}
	if ValidateURL(ref) == nil {
		return RefURL
	}
	if ValidatePath(ref) == nil {
		return RefPath
	}
	return RefUnaddressable
}

// DetailsPageJobID extracts the job id from a build details page URL of the
// form .../builds/<uuid-v4>. Returns false for any other URL.
func DetailsPageJobID(raw string) (string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) < 2 {
		return "", false
	}
	last := segments[len(segments)-1]
	if segments[len(segments)-2] != "builds" {
		return "", false
	}
	if ValidateJobID(last) != nil {
		return "", false
	}
	return last, true
}
