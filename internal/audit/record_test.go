package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerotrust/pkg/domain"
)

func buildChain(t *testing.T, h Hasher, n int) []*Record {
	t.Helper()
	prev := Genesis(h)
	out := make([]*Record, 0, n)
	for i := range n {
		r := &Record{
			Seq:       uint64(i),
			RecordID:  domain.NewRecordID(),
			ScopeID:   "baseline/standard/v1",
			Nullifier: "n",
			Outcome:   domain.OutcomePass,
			Timestamp: time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
			PrevHash:  prev,
		}
		hash, err := ComputeHash(h, r)
		require.NoError(t, err)
		r.RecordHash = hash
		prev = hash
		out = append(out, r)
	}
	return out
}

func TestVerifyRecords(t *testing.T) {
	h, err := NewHasher(AlgBLAKE2b256)
	require.NoError(t, err)

	t.Run("intact", func(t *testing.T) {
		assert.NoError(t, VerifyRecords(h, Genesis(h), buildChain(t, h, 4)))
	})

	t.Run("gap", func(t *testing.T) {
		recs := buildChain(t, h, 4)
		err := VerifyRecords(h, Genesis(h), append(recs[:2:2], recs[3]))
		var ce *ChainError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, uint64(3), ce.Seq)
	})

	t.Run("timestamp edit", func(t *testing.T) {
		recs := buildChain(t, h, 3)
		recs[1].Timestamp = recs[1].Timestamp.Add(time.Microsecond)
		var ce *ChainError
		require.True(t, errors.As(VerifyRecords(h, Genesis(h), recs), &ce))
		assert.Equal(t, uint64(1), ce.Seq)
	})

	t.Run("wrong anchor", func(t *testing.T) {
		recs := buildChain(t, h, 3)
		assert.NoError(t, VerifyRecords(h, recs[0].RecordHash, recs[1:]))
		assert.Error(t, VerifyRecords(h, Genesis(h), recs[1:]))
	})
}
