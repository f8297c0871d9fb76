//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"zkns/internal/namekey"
	"zkns/internal/registry/cache"
	"zkns/internal/registry/models"
	"zkns/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *cache.Redis
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.cache = cache.New(s.redis.Client, time.Minute)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestMissThenHit() {
	ctx := context.Background()

	_, ok, err := s.cache.Get(ctx, "alice")
	s.Require().NoError(err)
	s.False(ok)

	rec := models.Record{
		Owner:   "B62qUser1",
		Payload: namekey.MustEncode("alice.org"),
	}
	s.Require().NoError(s.cache.Set(ctx, "alice", rec))

	got, ok, err := s.cache.Get(ctx, "alice")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(rec, got)
}

func (s *RedisCacheSuite) TestInvalidate() {
	ctx := context.Background()

	rec := models.Record{Owner: "B62qUser1"}
	s.Require().NoError(s.cache.Set(ctx, "alice", rec))
	s.Require().NoError(s.cache.Set(ctx, "bob", rec))

	s.Require().NoError(s.cache.Invalidate(ctx, []string{"alice"}))

	_, ok, err := s.cache.Get(ctx, "alice")
	s.Require().NoError(err)
	s.False(ok)

	_, ok, err = s.cache.Get(ctx, "bob")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RedisCacheSuite) TestInvalidateEmptyIsNoop() {
	s.NoError(s.cache.Invalidate(context.Background(), nil))
}
