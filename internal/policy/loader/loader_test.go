package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	attestation "zerotrust/internal/attestation/models"
	"zerotrust/internal/policy/models"
	dErrors "zerotrust/pkg/domain-errors"
)

func TestLoadDirectory(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	docs, err := l.Load("testdata")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "eu/mica/kyc/v1", docs[0].ScopeID)
	assert.Equal(t, "us/fincen/msb/v1", docs[2].ScopeID)

	schema := attestation.DefaultSchema()
	for _, doc := range docs {
		_, err := models.NewPolicy(doc, schema, testTime)
		assert.NoError(t, err, doc.ScopeID)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	cases := map[string]string{
		"bad.yaml":     "scope_id: [unterminated",
		"missing.yaml": "scope_id: a/v1\nrule:\n  attribute: kyc_tier\n  op: eq\n  value: 1\n",
		"extra.json":   `{"scope_id":"a/v1","jurisdiction":"EU","rule":{"attribute":"kyc_tier","op":"eq","value":1},"owner":"me"}`,
		"op.json":      `{"scope_id":"a/v1","jurisdiction":"EU","rule":{"attribute":"kyc_tier","op":"approx","value":1}}`,
		"mixed.json":   `{"scope_id":"a/v1","jurisdiction":"EU","rule":{"all":[{"attribute":"kyc_tier","op":"eq","value":1}],"attribute":"kyc_tier"}}`,
		"empty.json":   `{"scope_id":"a/v1","jurisdiction":"EU","rule":{"any":[]}}`,
		"list.yaml":    "policies: nope\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := l.Parse(name, []byte(body))
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformedPolicy), "got %v", err)
		})
	}
}

func TestLoadSingleFile(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "one.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
scope_id: sg/mas/v1
jurisdiction: SG
rule:
  attribute: sanctions_cleared
  op: eq
  value: true
`), 0o600))

	docs, err := l.Load(path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, true, docs[0].Rule.Value)

	_, err = l.Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

var testTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
