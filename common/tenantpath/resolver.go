package tenantpath

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TenantPrefix is the required first segment of every storage key.
const TenantPrefix = "tenants"

// PathSafetyError signals a traversal attempt or a non-tenant path.
// Always terminal; callers log it as a security event and never retry.
type PathSafetyError struct {
	Path   string
	Reason string
}

func (e *PathSafetyError) Error() string {
	return fmt.Sprintf("unsafe storage path %q: %s", e.Path, e.Reason)
}

// Sanitize normalizes a raw storage key and enforces the tenant-first
// invariant. Shared by every write path and every read/serve path so the
// two can never drift. Idempotent on valid input.
func Sanitize(raw string) (string, error) {
	normalized := strings.ReplaceAll(raw, "\\", "/")

	segments := make([]string, 0, 8)
	for _, seg := range strings.Split(normalized, "/") {
		switch seg {
		case "", ".":
			// Dropped; empty segments come from doubled or trailing slashes
		case "..":
			return "", &PathSafetyError{Path: loggable(raw), Reason: "traversal segment"}
		default:
			segments = append(segments, seg)
		}
	}

	if len(segments) == 0 {
		return "", &PathSafetyError{Path: loggable(raw), Reason: "empty path"}
	}

	// Legacy pre-tenant paths are rejected outright, never guessed at
	if segments[0] != TenantPrefix || len(segments) < 2 || segments[1] == "" {
		return "", &PathSafetyError{Path: loggable(raw), Reason: "missing tenant prefix"}
	}

	return strings.Join(segments, "/"), nil
}

// SafeSegment rejects any name that is not exactly one path segment.
// Used for request-supplied names (conversion names) before they are
// joined into a storage key, where path.Join would collapse traversal
// sequences ahead of Sanitize ever seeing them.
func SafeSegment(name string) error {
	if name == "" || name == "." || name == ".." {
		return &PathSafetyError{Path: loggable(name), Reason: "empty or dot segment"}
	}
	if strings.ContainsAny(name, "/\\") {
		return &PathSafetyError{Path: loggable(name), Reason: "separator in segment"}
	}
	return nil
}

// MediaDir builds the canonical directory for one media artifact:
// tenants/{tenant}/{ownerKind}s/{ownerID}/{collection}s/{mediaID}
func MediaDir(tenantID, ownerKind string, ownerID uuid.UUID, collection string, mediaID uuid.UUID) string {
	return strings.Join([]string{
		TenantPrefix,
		tenantID,
		ownerKind + "s",
		ownerID.String(),
		collection + "s",
		mediaID.String(),
	}, "/")
}

// MediaDirInfo is the attribution parsed out of a canonical media directory.
type MediaDirInfo struct {
	TenantID  string
	OwnerKind string
	OwnerID   uuid.UUID
	MediaID   uuid.UUID
}

// ParseMediaDir strictly parses a sanitized directory back into its media
// attribution. A path that sanitizes fine but does not match the canonical
// layout (legacy records, hand-migrated trees) returns an error; callers
// treat that as "unparsable" and must not guess.
func ParseMediaDir(dir string) (*MediaDirInfo, error) {
	clean, err := Sanitize(dir)
	if err != nil {
		return nil, err
	}

	segments := strings.Split(clean, "/")

	// Trailing conversions/ subdirectory still attributes to the same media
	if len(segments) == 7 && segments[6] == "conversions" {
		segments = segments[:6]
	}

	if len(segments) != 6 {
		return nil, fmt.Errorf("not a canonical media directory: %s", clean)
	}

	ownerKind := strings.TrimSuffix(segments[2], "s")
	if ownerKind == segments[2] || ownerKind == "" {
		return nil, fmt.Errorf("not a canonical media directory: %s", clean)
	}

	ownerID, err := uuid.Parse(segments[3])
	if err != nil {
		return nil, fmt.Errorf("owner segment is not an id: %s", clean)
	}

	mediaID, err := uuid.Parse(segments[5])
	if err != nil {
		return nil, fmt.Errorf("media segment is not an id: %s", clean)
	}

	return &MediaDirInfo{
		TenantID:  segments[1],
		OwnerKind: ownerKind,
		OwnerID:   ownerID,
		MediaID:   mediaID,
	}, nil
}

// loggable trims attacker-controlled input before it lands in logs.
func loggable(raw string) string {
	const max = 128
	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return '?'
		}
		return r
	}, raw)
	if len(cleaned) > max {
		return cleaned[:max] + "..."
	}
	return cleaned
}
