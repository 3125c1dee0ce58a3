package tenantpath

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSanitize_ValidPath(t *testing.T) {
	clean, err := Sanitize("tenants/acme/users/123/avatars/456")
	if err != nil {
		t.Fatalf("Sanitize failed: %v", err)
	}
	if clean != "tenants/acme/users/123/avatars/456" {
		t.Errorf("unexpected result: %s", clean)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	first, err := Sanitize("tenants//acme/./users/123/")
	if err != nil {
		t.Fatalf("Sanitize failed: %v", err)
	}
	second, err := Sanitize(first)
	if err != nil {
		t.Fatalf("second Sanitize failed: %v", err)
	}
	if first != second {
		t.Errorf("not idempotent: %q vs %q", first, second)
	}
}

func TestSanitize_NormalizesBackslashes(t *testing.T) {
	clean, err := Sanitize(`tenants\acme\users\123`)
	if err != nil {
		t.Fatalf("Sanitize failed: %v", err)
	}
	if clean != "tenants/acme/users/123" {
		t.Errorf("unexpected result: %s", clean)
	}
}

func TestSanitize_RejectsTraversal(t *testing.T) {
	cases := []string{
		"tenants/acme/../../etc/passwd",
		"../tenants/acme/users/123",
		`tenants\..\secrets`,
	}
	for _, raw := range cases {
		if _, err := Sanitize(raw); err == nil {
			t.Errorf("expected rejection for %q", raw)
		} else if _, ok := err.(*PathSafetyError); !ok {
			t.Errorf("expected PathSafetyError for %q, got %T", raw, err)
		}
	}
}

func TestSanitize_RejectsLegacyPaths(t *testing.T) {
	cases := []string{
		"uploads/avatars/123",
		"avatars/456.jpg",
		"tenants",
		"",
		"///",
	}
	for _, raw := range cases {
		if _, err := Sanitize(raw); err == nil {
			t.Errorf("expected rejection for %q", raw)
		}
	}
}

func TestSafeSegment_AllowsPlainNames(t *testing.T) {
	for _, name := range []string{"thumb", "medium", "large", "thumb_v2", "a.b"} {
		if err := SafeSegment(name); err != nil {
			t.Errorf("SafeSegment(%q) failed: %v", name, err)
		}
	}
}

func TestSafeSegment_RejectsMultiSegmentNames(t *testing.T) {
	cases := []string{
		"",
		".",
		"..",
		"a/b",
		`a\b`,
		"../../../../victim/users/x/avatars/y/conversions/thumb",
	}
	for _, name := range cases {
		if err := SafeSegment(name); err == nil {
			t.Errorf("expected rejection for %q", name)
		} else if _, ok := err.(*PathSafetyError); !ok {
			t.Errorf("expected PathSafetyError for %q, got %T", name, err)
		}
	}
}

func TestMediaDir_Layout(t *testing.T) {
	ownerID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	mediaID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	dir := MediaDir("acme", "user", ownerID, "avatar", mediaID)

	want := "tenants/acme/users/" + ownerID.String() + "/avatars/" + mediaID.String()
	if dir != want {
		t.Errorf("got %s, want %s", dir, want)
	}
	if !strings.HasPrefix(dir, TenantPrefix+"/") {
		t.Errorf("directory must be tenant-first: %s", dir)
	}
}

func TestParseMediaDir_RoundTrip(t *testing.T) {
	ownerID := uuid.New()
	mediaID := uuid.New()
	dir := MediaDir("acme", "user", ownerID, "avatar", mediaID)

	info, err := ParseMediaDir(dir)
	if err != nil {
		t.Fatalf("ParseMediaDir failed: %v", err)
	}
	if info.TenantID != "acme" || info.OwnerKind != "user" {
		t.Errorf("bad attribution: %+v", info)
	}
	if info.OwnerID != ownerID || info.MediaID != mediaID {
		t.Errorf("ids do not round-trip: %+v", info)
	}
}

func TestParseMediaDir_ConversionsSubdir(t *testing.T) {
	mediaID := uuid.New()
	dir := MediaDir("acme", "user", uuid.New(), "avatar", mediaID) + "/conversions"

	info, err := ParseMediaDir(dir)
	if err != nil {
		t.Fatalf("ParseMediaDir failed: %v", err)
	}
	if info.MediaID != mediaID {
		t.Errorf("conversions dir must attribute to the same media: %+v", info)
	}
}

func TestParseMediaDir_RejectsNonCanonical(t *testing.T) {
	cases := []string{
		"tenants/acme/users/" + uuid.New().String(),
		"tenants/acme/users/not-a-uuid/avatars/" + uuid.New().String(),
		"tenants/acme/users/" + uuid.New().String() + "/avatars/not-a-uuid",
		"tenants/acme/profile/" + uuid.New().String() + "/avatars/" + uuid.New().String(),
		"tenants/acme/users/" + uuid.New().String() + "/avatars/" + uuid.New().String() + "/extra/deep",
	}
	for _, dir := range cases {
		if _, err := ParseMediaDir(dir); err == nil {
			t.Errorf("expected parse failure for %q", dir)
		}
	}
}
