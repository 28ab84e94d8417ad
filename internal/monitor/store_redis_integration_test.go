//go:build integration

package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"erasure/internal/monitor"
	"erasure/pkg/platform/sentinel"
	"erasure/pkg/testutil/containers"
)

const resolvedTTL = time.Hour

type RedisAlertStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *monitor.RedisAlertStore
}

func TestRedisAlertStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisAlertStoreSuite))
}

func (s *RedisAlertStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = monitor.NewRedisAlertStore(s.redis.Client, resolvedTTL)
}

func (s *RedisAlertStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisAlertStoreSuite) newAlert(triggeredAt time.Time) *monitor.Alert {
	return &monitor.Alert{
		ID:          uuid.NewString(),
		RuleID:      "multiple-deletion-requests",
		RuleName:    "Multiple deletion requests",
		Severity:    monitor.SeverityHigh,
		Title:       "Multiple deletion requests",
		Description: "11 deletion requests in the last hour",
		Metadata:    map[string]any{"count": 11},
		TriggeredAt: triggeredAt.UTC().Truncate(time.Millisecond),
	}
}

func (s *RedisAlertStoreSuite) TestSaveAndGetRoundtrip() {
	ctx := context.Background()

	alert := s.newAlert(time.Now())
	s.Require().NoError(s.store.Save(ctx, alert))

	got, err := s.store.Get(ctx, alert.ID)
	s.Require().NoError(err)
	s.Equal(alert.ID, got.ID)
	s.Equal(monitor.SeverityHigh, got.Severity)
	s.Equal(alert.Description, got.Description)
	s.True(alert.TriggeredAt.Equal(got.TriggeredAt))
	s.False(got.Resolved)

	_, err = s.store.Get(ctx, uuid.NewString())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisAlertStoreSuite) TestListActiveExcludesResolved() {
	ctx := context.Background()

	active := s.newAlert(time.Now())
	s.Require().NoError(s.store.Save(ctx, active))

	resolved := s.newAlert(time.Now())
	s.Require().NoError(s.store.Save(ctx, resolved))

	resolvedAt := time.Now().UTC().Truncate(time.Millisecond)
	resolved.Resolved = true
	resolved.ResolvedAt = &resolvedAt
	resolved.ResolvedBy = "admin-1"
	resolved.Notes = "false positive"
	s.Require().NoError(s.store.Save(ctx, resolved))

	alerts, err := s.store.ListActive(ctx)
	s.Require().NoError(err)
	s.Require().Len(alerts, 1)
	s.Equal(active.ID, alerts[0].ID)

	// The resolved alert is still readable by ID.
	got, err := s.store.Get(ctx, resolved.ID)
	s.Require().NoError(err)
	s.True(got.Resolved)
	s.Equal("admin-1", got.ResolvedBy)
	s.Equal("false positive", got.Notes)
}

func (s *RedisAlertStoreSuite) TestResolvedAlertExpires() {
	ctx := context.Background()

	alert := s.newAlert(time.Now())
	alert.Resolved = true
	s.Require().NoError(s.store.Save(ctx, alert))

	ttl, err := s.redis.Client.TTL(ctx, "erasure:alert:"+alert.ID).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, resolvedTTL)

	// Active alerts never expire.
	active := s.newAlert(time.Now())
	s.Require().NoError(s.store.Save(ctx, active))
	ttl, err = s.redis.Client.TTL(ctx, "erasure:alert:"+active.ID).Result()
	s.Require().NoError(err)
	s.Equal(time.Duration(-1), ttl)
}

func (s *RedisAlertStoreSuite) TestListSinceWindow() {
	ctx := context.Background()
	now := time.Now()

	old := s.newAlert(now.Add(-48 * time.Hour))
	recent := s.newAlert(now.Add(-time.Hour))
	s.Require().NoError(s.store.Save(ctx, old))
	s.Require().NoError(s.store.Save(ctx, recent))

	alerts, err := s.store.ListSince(ctx, now.Add(-24*time.Hour))
	s.Require().NoError(err)
	s.Require().Len(alerts, 1)
	s.Equal(recent.ID, alerts[0].ID)

	alerts, err = s.store.ListSince(ctx, now.Add(-72*time.Hour))
	s.Require().NoError(err)
	s.Len(alerts, 2)
}

// Index entries can outlive their alert once the resolved TTL fires; the
// lists must skip them rather than fail.
func (s *RedisAlertStoreSuite) TestListsSkipExpiredEntries() {
	ctx := context.Background()

	alert := s.newAlert(time.Now())
	s.Require().NoError(s.store.Save(ctx, alert))

	// Simulate TTL expiry by deleting the value but not the indexes.
	s.Require().NoError(s.redis.Client.Del(ctx, "erasure:alert:"+alert.ID).Err())

	alerts, err := s.store.ListActive(ctx)
	s.Require().NoError(err)
	s.Empty(alerts)

	alerts, err = s.store.ListSince(ctx, time.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Empty(alerts)
}
