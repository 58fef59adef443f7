//go:build integration

package store_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zerotrust/internal/nullifier"
	"zerotrust/internal/nullifier/store"
	"zerotrust/pkg/domain"
	"zerotrust/pkg/testutil/containers"
)

type DurableStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redis    *containers.RedisContainer
	stores   map[string]nullifier.Store
}

func TestDurableStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(DurableStoreSuite))
}

func (s *DurableStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redis = mgr.GetRedis(s.T())
	s.stores = map[string]nullifier.Store{
		"postgres": store.NewPostgres(s.postgres.DB),
		"redis":    store.NewRedis(s.redis.Client),
	}
}

func (s *DurableStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "nullifiers"))
	s.Require().NoError(s.redis.FlushAll(ctx))
}

// TestConcurrentInsertAdmitsOne races many writers on one nullifier; exactly
// one may observe a fresh registration.
func (s *DurableStoreSuite) TestConcurrentInsertAdmitsOne() {
	for name, st := range s.stores {
		s.Run(name, func() {
			ctx := context.Background()
			value := domain.NullifierValue(strings.Repeat("c", 64))
			const writers = 32

			var wg sync.WaitGroup
			var fresh, failed atomic.Int32
			for range writers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := st.Insert(ctx, value, time.Now())
					if err != nil {
						failed.Add(1)
						return
					}
					if ok {
						fresh.Add(1)
					}
				}()
			}
			wg.Wait()

			s.Equal(int32(0), failed.Load())
			s.Equal(int32(1), fresh.Load())
		})
	}
}

func (s *DurableStoreSuite) TestDistinctValuesIndependent() {
	for name, st := range s.stores {
		s.Run(name, func() {
			ctx := context.Background()
			ok, err := st.Insert(ctx, domain.NullifierValue(strings.Repeat("a", 64)), time.Now())
			s.Require().NoError(err)
			s.True(ok)
			ok, err = st.Insert(ctx, domain.NullifierValue(strings.Repeat("b", 64)), time.Now())
			s.Require().NoError(err)
			s.True(ok)
			ok, err = st.Insert(ctx, domain.NullifierValue(strings.Repeat("a", 64)), time.Now())
			s.Require().NoError(err)
			s.False(ok)
		})
	}
}
