package audit_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zerotrust/internal/audit"
	"zerotrust/internal/audit/store"
	"zerotrust/pkg/domain"
	dErrors "zerotrust/pkg/domain-errors"
	"zerotrust/pkg/platform/sentinel"
	"zerotrust/pkg/requestcontext"
)

// tamperStore exposes its rows so tests can corrupt them the way a direct
// database edit would.
type tamperStore struct {
	mu      sync.Mutex
	records []*audit.Record
	// beforeInsert runs once, ahead of the next Insert.
	beforeInsert func(s *tamperStore)
	// rangeEntered and rangeRelease, when set, hold Range open.
	rangeEntered chan struct{}
	rangeRelease chan struct{}
	insertErr    error
}

func (s *tamperStore) Last(_ context.Context) (*audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return nil, sentinel.ErrNotFound
	}
	r := *s.records[len(s.records)-1]
	return &r, nil
}

func (s *tamperStore) Insert(_ context.Context, r *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hook := s.beforeInsert; hook != nil {
		s.beforeInsert = nil
		hook(s)
	}
	if s.insertErr != nil {
		return s.insertErr
	}
	if r.Seq != uint64(len(s.records)) {
		return sentinel.ErrConflict
	}
	c := *r
	s.records = append(s.records, &c)
	return nil
}

func (s *tamperStore) Range(_ context.Context, from, to uint64) ([]*audit.Record, error) {
	if s.rangeEntered != nil {
		s.rangeEntered <- struct{}{}
		<-s.rangeRelease
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*audit.Record
	for _, r := range s.records {
		if r.Seq >= from && r.Seq <= to {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

type TrailSuite struct {
	suite.Suite
	ctx    context.Context
	hasher audit.Hasher
	store  *tamperStore
	trail  *audit.Trail
}

func TestTrailSuite(t *testing.T) {
	suite.Run(t, new(TrailSuite))
}

func (s *TrailSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	var err error
	s.hasher, err = audit.NewHasher(audit.AlgSHA256)
	s.Require().NoError(err)
	s.store = &tamperStore{}
	s.trail, err = audit.New(s.store, s.hasher)
	s.Require().NoError(err)
}

func (s *TrailSuite) entry(i int) audit.Entry {
	return audit.Entry{
		ScopeID:   "baseline/basic/v1",
		Nullifier: domain.NullifierValue(fmt.Sprintf("%064x", i)),
		Outcome:   domain.OutcomePass,
	}
}

func (s *TrailSuite) appendN(n int) {
	for i := range n {
		_, err := s.trail.Append(s.ctx, s.entry(i))
		s.Require().NoError(err)
	}
}

func (s *TrailSuite) TestAppendLinksRecords() {
	s.appendN(3)

	recs := s.store.records
	s.Require().Len(recs, 3)
	s.Equal(audit.Genesis(s.hasher), recs[0].PrevHash)
	for i := 1; i < len(recs); i++ {
		s.Equal(uint64(i), recs[i].Seq)
		s.Equal(recs[i-1].RecordHash, recs[i].PrevHash)
	}
	s.Equal(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC), recs[0].Timestamp)

	ok, err := s.trail.VerifyChain(s.ctx, 0, 2)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *TrailSuite) TestAppendValidation() {
	e := s.entry(0)
	e.Outcome = "maybe"
	_, err := s.trail.Append(s.ctx, e)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	e = s.entry(0)
	e.Nullifier = ""
	_, err = s.trail.Append(s.ctx, e)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Empty(s.store.records)
}

func (s *TrailSuite) TestTamperDetection() {
	s.appendN(5)

	// flip a single byte of a stored field
	original := s.store.records[2].Nullifier
	b := []byte(original)
	b[0] ^= 0x01
	s.store.records[2].Nullifier = domain.NullifierValue(b)

	s.Run("range after the edit still verifies", func() {
		ok, err := s.trail.VerifyChain(s.ctx, 3, 4)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("range covering the edit fails and suspends", func() {
		ok, err := s.trail.VerifyChain(s.ctx, 0, 4)
		s.Require().NoError(err)
		s.False(ok)
		halted, reason := s.trail.Suspended()
		s.True(halted)
		s.Contains(reason, "record 2")
	})

	s.Run("appends are refused while suspended", func() {
		_, err := s.trail.Append(s.ctx, s.entry(9))
		s.True(dErrors.HasCode(err, dErrors.CodeAuditSuspended))
		s.Len(s.store.records, 5)
	})

	s.Run("reconcile fails until the row is restored", func() {
		err := s.trail.Reconcile(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeIntegrityViolation))

		s.store.records[2].Nullifier = original
		s.Require().NoError(s.trail.Reconcile(s.ctx))
		halted, _ := s.trail.Suspended()
		s.False(halted)

		_, err = s.trail.Append(s.ctx, s.entry(9))
		s.NoError(err)
	})
}

func (s *TrailSuite) TestOutcomeTamperDetectedByAudit() {
	s.appendN(2)
	s.store.records[0].Outcome = domain.OutcomeFail

	err := s.trail.Audit(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeIntegrityViolation))
}

func (s *TrailSuite) TestCorruptHeadBlocksAppend() {
	s.appendN(2)
	s.store.records[1].RecordHash[0] ^= 0xff

	// a fresh trail checks the head before chaining onto it
	trail, err := audit.New(s.store, s.hasher)
	s.Require().NoError(err)
	_, err = trail.Append(s.ctx, s.entry(5))
	s.True(dErrors.HasCode(err, dErrors.CodeIntegrityViolation))
	halted, _ := trail.Suspended()
	s.True(halted)
	s.Len(s.store.records, 2)
}

func (s *TrailSuite) TestConcurrentWriterRetried() {
	s.appendN(1)

	// another process appends between our head read and our insert
	s.store.beforeInsert = func(ts *tamperStore) {
		head := ts.records[len(ts.records)-1]
		r := &audit.Record{
			Seq:       head.Seq + 1,
			RecordID:  domain.NewRecordID(),
			ScopeID:   "baseline/basic/v1",
			Nullifier: "foreign",
			Outcome:   domain.OutcomeFail,
			Timestamp: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
			PrevHash:  head.RecordHash,
		}
		hash, err := audit.ComputeHash(s.hasher, r)
		s.Require().NoError(err)
		r.RecordHash = hash
		ts.records = append(ts.records, r)
	}

	rec, err := s.trail.Append(s.ctx, s.entry(1))
	s.Require().NoError(err)
	s.Equal(uint64(2), rec.Seq)

	ok, err := s.trail.VerifyChain(s.ctx, 0, 2)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *TrailSuite) TestConcurrentAppends() {
	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.trail.Append(s.ctx, s.entry(i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	size, tail, err := s.trail.Head(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(n), size)
	s.Equal(s.store.records[n-1].RecordHash, tail)
	s.NoError(s.trail.Audit(s.ctx))
}

func (s *TrailSuite) TestRange() {
	s.appendN(3)

	_, err := s.trail.Range(s.ctx, 2, 1)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.trail.Range(s.ctx, 1, 7)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.trail.Range(s.ctx, 0, math.MaxUint64)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	recs, err := s.trail.Range(s.ctx, 1, 2)
	s.Require().NoError(err)
	s.Len(recs, 2)
}

func (s *TrailSuite) TestEmptyChain() {
	size, tail, err := s.trail.Head(s.ctx)
	s.Require().NoError(err)
	s.Zero(size)
	s.Equal(audit.Genesis(s.hasher), tail)
	s.NoError(s.trail.Audit(s.ctx))
}

func (s *TrailSuite) TestExportWithCheckpoint() {
	signer, err := audit.GenerateSigner()
	s.Require().NoError(err)
	trail, err := audit.New(s.store, s.hasher, audit.WithSigner(signer))
	s.Require().NoError(err)
	for i := range 4 {
		_, err := trail.Append(s.ctx, s.entry(i))
		s.Require().NoError(err)
	}

	exp, err := trail.Export(s.ctx, 1, 2)
	s.Require().NoError(err)
	s.Equal(s.store.records[0].RecordHash, exp.Anchor)
	s.NoError(audit.VerifyRecords(s.hasher, exp.Anchor, exp.Records))

	cp, err := audit.VerifyCheckpoint(exp.Checkpoint, signer.PublicKey())
	s.Require().NoError(err)
	s.Equal(uint64(4), cp.Size)
	s.Equal(s.store.records[3].RecordHash, cp.TailHash)
	s.Equal(audit.AlgSHA256, cp.Algorithm)

	s.Run("wrong key is rejected", func() {
		otherSigner, err := audit.GenerateSigner()
		s.Require().NoError(err)
		_, err = audit.VerifyCheckpoint(exp.Checkpoint, otherSigner.PublicKey())
		s.Error(err)
	})
}

func (s *TrailSuite) TestNotifierFailureRetried() {
	n := &flakyNotifier{failures: 1}
	st := store.NewInMemory()
	trail, err := audit.New(st, s.hasher, audit.WithNotifier(n))
	s.Require().NoError(err)

	rec, err := trail.Append(s.ctx, s.entry(0))
	s.Require().NoError(err)
	s.Equal(2, n.calls)
	s.NotNil(rec)

	size, _, err := trail.Head(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(1), size, "a redelivered notification must not add records")
}

func (s *TrailSuite) TestNotifierDownKeepsSingleRecord() {
	n := &flakyNotifier{failures: 100}
	trail, err := audit.New(s.store, s.hasher, audit.WithNotifier(n), audit.WithAppendRetries(3))
	s.Require().NoError(err)

	rec, err := trail.Append(s.ctx, s.entry(0))
	s.Require().NoError(err, "the record is stored so the verdict stands")
	s.Require().Len(s.store.records, 1)
	s.Equal(s.store.records[0].RecordID, rec.RecordID)
	s.Equal(4, n.calls)

	_, err = trail.Append(s.ctx, s.entry(1))
	s.Require().NoError(err)
	s.Len(s.store.records, 2)
	ok, err := trail.VerifyChain(s.ctx, 0, 1)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *TrailSuite) TestStoreFailureNotRetried() {
	s.store.insertErr = errors.New("disk full")

	_, err := s.trail.Append(s.ctx, s.entry(0))
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Empty(s.store.records)
}

func (s *TrailSuite) TestReconcileKeepsAppendsSuspended() {
	s.appendN(3)
	s.store.records[0].Outcome = domain.OutcomeFail
	s.Require().Error(s.trail.Audit(s.ctx))

	s.store.rangeEntered = make(chan struct{})
	s.store.rangeRelease = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- s.trail.Reconcile(s.ctx) }()
	<-s.store.rangeEntered

	_, err := s.trail.Append(s.ctx, s.entry(7))
	s.True(dErrors.HasCode(err, dErrors.CodeAuditSuspended))

	close(s.store.rangeRelease)
	err = <-done
	s.True(dErrors.HasCode(err, dErrors.CodeIntegrityViolation))
	halted, _ := s.trail.Suspended()
	s.True(halted)
	s.Len(s.store.records, 3)
}

type flakyNotifier struct {
	failures int
	calls    int
}

func (n *flakyNotifier) VerdictRecorded(_ context.Context, _ *audit.Record) error {
	n.calls++
	if n.calls <= n.failures {
		return errors.New("broker down")
	}
	return nil
}
