// Package domain defines typed identifiers used across the engine. Each type is
// parsed once at a trust boundary and carried as its own type afterwards so a
// scope id can never be passed where a commitment id is expected.
package domain

import (
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "zerotrust/pkg/domain-errors"
)

// digestHexLen is the hex length of a 32-byte digest.
const digestHexLen = 64

const maxNameLen = 128

// CommitmentID identifies an attestation commitment. It is the lowercase hex of a
// 32-byte content hash.
type CommitmentID string

// IssuerID identifies the attesting authority.
type IssuerID string

// PolicyScopeID identifies one immutable published policy version.
type PolicyScopeID string

// NullifierValue is the lowercase hex of a 32-byte scope-bound nullifier.
type NullifierValue string

// RecordID identifies an audit record.
type RecordID uuid.UUID

func (id CommitmentID) String() string   { return string(id) }
func (id IssuerID) String() string       { return string(id) }
func (id PolicyScopeID) String() string  { return string(id) }
func (id NullifierValue) String() string { return string(id) }
func (id RecordID) String() string       { return uuid.UUID(id).String() }

// IsNil reports whether the record id is the zero UUID.
func (id RecordID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewRecordID returns a random record id.
func NewRecordID() RecordID { return RecordID(uuid.New()) }

// ParseCommitmentID validates a hex commitment id.
func ParseCommitmentID(s string) (CommitmentID, error) {
	v, err := parseDigestHex(s, "commitment_id")
	return CommitmentID(v), err
}

// ParseNullifierValue validates a hex nullifier.
func ParseNullifierValue(s string) (NullifierValue, error) {
	v, err := parseDigestHex(s, "nullifier_value")
	return NullifierValue(v), err
}

// ParseIssuerID validates an issuer identifier (e.g. "issuer:acme-kyc").
func ParseIssuerID(s string) (IssuerID, error) {
	v, err := parseName(s, "issuer_id", false)
	return IssuerID(v), err
}

// ParsePolicyScopeID validates a scope id. Scope ids may contain '/' to express
// versions, e.g. "eu/amld6/v2".
func ParsePolicyScopeID(s string) (PolicyScopeID, error) {
	v, err := parseName(s, "policy_scope_id", true)
	return PolicyScopeID(v), err
}

// ParseRecordID validates a non-nil UUID record id.
func ParseRecordID(s string) (RecordID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RecordID{}, dErrors.New(dErrors.CodeInvalidInput, "record_id must be a UUID")
	}
	if u == uuid.Nil {
		return RecordID{}, dErrors.New(dErrors.CodeInvalidInput, "record_id must not be nil")
	}
	return RecordID(u), nil
}

func parseDigestHex(s, field string) (string, error) {
	if len(s) != digestHexLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, field+" must be 64 hex characters")
	}
	if strings.ToLower(s) != s {
		return "", dErrors.New(dErrors.CodeInvalidInput, field+" must be lowercase hex")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, field+" must be hex encoded")
	}
	return s, nil
}

func parseName(s, field string, allowSlash bool) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	if len(s) > maxNameLen || !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, field+" is invalid")
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		case r == '/' && allowSlash:
		default:
			return "", dErrors.New(dErrors.CodeInvalidInput, field+" contains invalid characters")
		}
	}
	if allowSlash && (strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") || strings.Contains(s, "//")) {
		return "", dErrors.New(dErrors.CodeInvalidInput, field+" has empty path segments")
	}
	for _, seg := range strings.Split(s, "/") {
		if seg == "." || seg == ".." {
			return "", dErrors.New(dErrors.CodeInvalidInput, field+" has dot path segments")
		}
	}
	return s, nil
}
