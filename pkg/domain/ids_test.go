package domain

import (
	"testing"

	"github.com/google/uuid"

	dErrors "conforma/pkg/domain-errors"
)

func TestParseAuditID(t *testing.T) {
	raw := uuid.NewString()
	parsed, err := ParseAuditID(raw)
	if err != nil {
		t.Fatalf("unexpected error parsing %q: %v", raw, err)
	}
	if parsed.String() != raw {
		t.Fatalf("round trip mismatch: %q != %q", parsed.String(), raw)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty":    "",
		"garbage":  "not-a-uuid",
		"nil uuid": uuid.Nil.String(),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseFindingID(raw); !dErrors.HasCode(err, dErrors.CodeInvalidInput) {
				t.Fatalf("expected invalid_input for %q, got %v", raw, err)
			}
		})
	}
}

func TestIsNil(t *testing.T) {
	var zero UserID
	if !zero.IsNil() {
		t.Fatalf("expected the zero value to be nil")
	}
	if NewUserID().IsNil() {
		t.Fatalf("expected a fresh id to be non-nil")
	}
}
