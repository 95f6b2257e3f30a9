package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zainab674/voiceagents-sub004/internal/config"
	"github.com/zainab674/voiceagents-sub004/internal/model"
	"github.com/zainab674/voiceagents-sub004/internal/repository"
)

type downCampaigns struct {
	repository.CampaignRepositoryInterface
}

func (downCampaigns) ListByStatus(ctx context.Context, status model.ExecutionStatus) ([]*model.Campaign, error) {
	return nil, errors.New("connection refused")
}

func TestScheduler_BackoffDoublesUpToMax(t *testing.T) {
	now := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	s := &Scheduler{
		Config: config.SchedulerConfig{TickInterval: 5 * time.Second, MaxBackoff: 20 * time.Second},
		Now:    func() time.Time { return now },
	}

	var got []time.Duration
	for i := 0; i < 4; i++ {
		got = append(got, s.backoff())
	}
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 20 * time.Second}, got)
}

func TestScheduler_NotDueUntilRetryAt(t *testing.T) {
	now := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	s := &Scheduler{
		Campaigns: downCampaigns{},
		Config:    config.SchedulerConfig{TickInterval: 5 * time.Second, MaxBackoff: time.Minute},
		Now:       func() time.Time { return now },
	}
	assert.True(t, s.due())

	require.Error(t, s.Tick(context.Background()))
	assert.False(t, s.due())

	now = now.Add(4 * time.Second)
	assert.False(t, s.due(), "still inside the backoff window")

	now = now.Add(time.Second)
	assert.True(t, s.due(), "due exactly at retryAt")

	require.Error(t, s.Tick(context.Background()))
	now = now.Add(9 * time.Second)
	assert.False(t, s.due(), "second failure waits twice as long")

	s.resetBackoff()
	assert.True(t, s.due())
}
