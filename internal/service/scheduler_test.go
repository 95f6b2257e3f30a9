package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/zainab674/voiceagents-sub004/internal/errors"
	"github.com/zainab674/voiceagents-sub004/internal/model"
	"github.com/zainab674/voiceagents-sub004/internal/repository"
	"github.com/zainab674/voiceagents-sub004/internal/service"
)

func TestScheduler_CallingWindowAndDailyCap(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	phones := h.seedList(t, "leads", 5)
	c := h.createCampaign(t, "leads", 3)
	_, err := h.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	h.clock.Set(tuesday10)
	h.tickN(t, 3)
	assert.Empty(t, h.provider.Dialed(), "tuesday is not a calling day")

	h.clock.Set(monday10)
	h.tickN(t, 10)
	assert.Equal(t, phones[:3], h.provider.Dialed())

	got := h.campaign(t, c.ID)
	assert.Equal(t, 3, got.CurrentDailyCalls)
	assert.Equal(t, 3, got.TotalCallsMade)
	assert.Equal(t, model.StatusRunning, got.Status)

	t.Run("evening is outside the window", func(t *testing.T) {
		h.clock.Set(monday10.Add(7 * time.Hour))
		h.tickN(t, 2)
		assert.Len(t, h.provider.Dialed(), 3)
	})

	t.Run("next monday finishes the list", func(t *testing.T) {
		h.clock.Set(monday10.AddDate(0, 0, 7))
		h.tickN(t, 5)
		assert.Equal(t, phones, h.provider.Dialed())

		got := h.campaign(t, c.ID)
		assert.Equal(t, model.StatusCompleted, got.Status)
		assert.Equal(t, 2, got.CurrentDailyCalls)
		assert.Equal(t, 5, got.TotalCallsMade)
		assert.NotNil(t, got.CompletedAt)
	})
}

func TestScheduler_DailyResetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedList(t, "leads", 10)
	c := h.createCampaign(t, "leads", 2)
	_, err := h.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	h.tickN(t, 6)
	got := h.campaign(t, c.ID)
	assert.Equal(t, 2, got.CurrentDailyCalls)
	assert.Equal(t, "2024-01-08", got.LastDailyReset)
	assert.Len(t, h.provider.Dialed(), 2)

	h.clock.Set(monday10.Add(24 * time.Hour))
	h.tickN(t, 3)
	got = h.campaign(t, c.ID)
	assert.Equal(t, 0, got.CurrentDailyCalls)
	assert.Equal(t, "2024-01-09", got.LastDailyReset)
	assert.Len(t, h.provider.Dialed(), 2, "tuesday is not a calling day")
}

func TestScheduler_DayBoundaryUsesCampaignTimezone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedList(t, "leads", 3)

	c, err := h.svc.CreateCampaign(ctx, service.CreateCampaignInput{
		OwnerID:     "owner-1",
		AgentID:     "agent-1",
		SourceKind:  model.SourceList,
		SourceID:    "leads",
		DailyCap:    1,
		CallingDays: model.Weekdays{time.Monday},
		StartHour:   9,
		EndHour:     17,
		Timezone:    "America/New_York",
	})
	require.NoError(t, err)
	_, err = h.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	// 10:00 UTC Monday is 05:00 in New York.
	h.tickN(t, 2)
	assert.Empty(t, h.provider.Dialed())

	h.clock.Set(time.Date(2024, 1, 8, 15, 0, 0, 0, time.UTC))
	h.tickN(t, 2)
	assert.Len(t, h.provider.Dialed(), 1)
	assert.Equal(t, "2024-01-08", h.campaign(t, c.ID).LastDailyReset)
}

func TestScheduler_PauseResumeKeepsCursor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	phones := h.seedList(t, "leads", 5)
	c := h.createCampaign(t, "leads", 10)
	_, err := h.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	h.tickN(t, 2)
	require.Equal(t, phones[:2], h.provider.Dialed())

	paused, err := h.svc.Pause(ctx, c.ID, "lunch break")
	require.NoError(t, err)
	assert.Equal(t, "lunch break", paused.PauseReason)

	h.tickN(t, 3)
	assert.Len(t, h.provider.Dialed(), 2, "paused campaigns do not dial")

	_, err = h.svc.Resume(ctx, c.ID)
	require.NoError(t, err)
	h.tickN(t, 6)

	assert.Equal(t, phones, h.provider.Dialed(), "contacts 3-5 dialed exactly once, in order")
	assert.Equal(t, model.StatusCompleted, h.campaign(t, c.ID).Status)
}

func TestScheduler_StopIsTerminal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedList(t, "leads", 5)
	c := h.createCampaign(t, "leads", 10)
	_, err := h.svc.Start(ctx, c.ID)
	require.NoError(t, err)
	h.tickN(t, 1)

	stopped, err := h.svc.Stop(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stopped.Status)

	_, err = h.svc.Start(ctx, c.ID)
	require.Error(t, err)
	assert.True(t, appErrors.IsTransition(err))

	h.tickN(t, 3)
	assert.Len(t, h.provider.Dialed(), 1)
}

func TestScheduler_DoNotCallExcludedAcrossCampaigns(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	phones := h.seedList(t, "shared", 4)
	require.NoError(t, h.store.MarkDoNotCall(ctx, "shared", 3))

	first := h.createCampaign(t, "shared", 1)
	_, err := h.svc.Start(ctx, first.ID)
	require.NoError(t, err)
	h.tickN(t, 2)
	require.Equal(t, phones[:1], h.provider.Dialed())

	calls, err := h.store.ListByCampaign(ctx, first.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.NoError(t, h.recorder.Apply(ctx, model.CallEvent{
		CallRef: *calls[0].CallRef,
		Status:  model.CallCompleted,
		Outcome: model.OutcomeDoNotCall,
	}))

	second := h.createCampaign(t, "shared", 10)
	_, err = h.svc.Start(ctx, second.ID)
	require.NoError(t, err)
	_, err = h.svc.Stop(ctx, first.ID)
	require.NoError(t, err)
	h.tickN(t, 6)

	dialed := h.provider.Dialed()
	assert.Equal(t, []string{phones[0], phones[1], phones[3]}, dialed)
	assert.Equal(t, model.StatusCompleted, h.campaign(t, second.ID).Status)
}

func TestScheduler_ConfigErrorMovesCampaignToError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedList(t, "leads", 2)
	c := h.createCampaign(t, "leads", 5)
	_, err := h.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	h.provider.trunkErr = appErrors.NewConfigError("resolve outbound trunk", appErrors.ErrNoOutboundTrunk)
	h.tickN(t, 2)

	got := h.campaign(t, c.ID)
	assert.Equal(t, model.StatusError, got.Status)
	assert.Contains(t, got.LastError, "no outbound trunk")
	assert.Empty(t, h.provider.Dialed())

	_, err = h.svc.Start(ctx, c.ID)
	assert.True(t, appErrors.IsTransition(err))
}

func TestScheduler_MissingSourceMovesCampaignToError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.createCampaign(t, "does-not-exist", 5)
	_, err := h.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	h.tickN(t, 1)
	assert.Equal(t, model.StatusError, h.campaign(t, c.ID).Status)
}

func TestScheduler_ProviderFailureMarksCallAndMovesOn(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	phones := h.seedList(t, "leads", 3)
	h.provider.callErrs[phones[0]] = appErrors.NewTransientError("create_sip_participant", errors.New("timeout"))

	c := h.createCampaign(t, "leads", 5)
	_, err := h.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	h.tickN(t, 2)
	assert.Equal(t, []string{phones[1]}, h.provider.Dialed())

	calls, err := h.store.ListByCampaign(ctx, c.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, model.CallFailed, calls[0].Status)
	assert.Contains(t, calls[0].Notes, "timeout")
	assert.Equal(t, model.CallPending, calls[1].Status)

	got := h.campaign(t, c.ID)
	assert.Equal(t, model.StatusRunning, got.Status)
	assert.Equal(t, 1, got.CurrentDailyCalls, "failed attempts do not count against the cap")
	assert.Equal(t, int64(2), got.LastContactKey)
}

func TestScheduler_InvalidNumberIsRecordedAndSkipped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.store.Insert(ctx, &model.Contact{ListID: "leads", Name: "Bad", Phone: "12"}))
	h.seedList(t, "leads", 1)

	c := h.createCampaign(t, "leads", 5)
	_, err := h.svc.Start(ctx, c.ID)
	require.NoError(t, err)
	h.tickN(t, 3)

	calls, err := h.store.ListByCampaign(ctx, c.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, model.CallFailed, calls[0].Status)
	assert.Equal(t, "12", calls[0].ContactPhone)
	assert.Equal(t, []string{phone(1)}, h.provider.Dialed())
}

func TestScheduler_ConcurrentTicksNeverDoubleDial(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.provider.delay = 5 * time.Millisecond
	phones := h.seedList(t, "leads", 8)
	c := h.createCampaign(t, "leads", 8)
	_, err := h.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	other := h.newScheduler()
	for round := 0; round < 10; round++ {
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() { defer wg.Done(); _ = h.sched.Tick(ctx) }()
			go func() { defer wg.Done(); _ = other.Tick(ctx) }()
		}
		wg.Wait()
		h.clock.Advance(5 * time.Second)
	}

	dialed := h.provider.Dialed()
	assert.Equal(t, phones, dialed, "each contact dialed once, in order")

	got := h.campaign(t, c.ID)
	assert.Equal(t, 8, got.TotalCallsMade)
	assert.LessOrEqual(t, got.CurrentDailyCalls, got.DailyCap)
}

type flakyCampaigns struct {
	repository.CampaignRepositoryInterface
	fail bool
}

func (f *flakyCampaigns) ListByStatus(ctx context.Context, status model.ExecutionStatus) ([]*model.Campaign, error) {
	if f.fail {
		return nil, errors.New("connection refused")
	}
	return f.CampaignRepositoryInterface.ListByStatus(ctx, status)
}

func TestScheduler_StoreOutageReturnsError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedList(t, "leads", 1)
	c := h.createCampaign(t, "leads", 1)
	_, err := h.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	flaky := &flakyCampaigns{CampaignRepositoryInterface: h.store, fail: true}
	h.sched.Campaigns = flaky
	assert.Error(t, h.sched.Tick(ctx))
	assert.Empty(t, h.provider.Dialed())

	flaky.fail = false
	assert.NoError(t, h.sched.Tick(ctx))
	assert.Len(t, h.provider.Dialed(), 1)
}

func TestScheduler_StartStop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedList(t, "leads", 1)
	c := h.createCampaign(t, "leads", 1)
	_, err := h.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	h.sched.Config.TickInterval = 10 * time.Millisecond
	require.NoError(t, h.sched.Start(ctx))
	assert.Error(t, h.sched.Start(ctx), "double start rejected")

	assert.Eventually(t, func() bool {
		return len(h.provider.Dialed()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.sched.Stop()
	h.sched.Stop()
}

func TestScheduler_PanicInOneCampaignDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedList(t, "broken", 2)
	healthyPhones := h.seedList(t, "healthy", 2)

	broken := h.createCampaign(t, "broken", 5)
	healthy := h.createCampaign(t, "healthy", 5)
	orphan := h.createCampaign(t, "does-not-exist", 5)
	for _, c := range []*model.Campaign{broken, healthy, orphan} {
		_, err := h.svc.Start(ctx, c.ID)
		require.NoError(t, err)
	}
	h.provider.panicFor = broken.ID

	require.NoError(t, h.sched.Tick(ctx))
	assert.Equal(t, healthyPhones[:1], h.provider.Dialed())
	assert.Equal(t, model.StatusError, h.campaign(t, orphan.ID).Status)
	assert.Equal(t, model.StatusRunning, h.campaign(t, broken.ID).Status)

	ok, err := h.store.TryAcquire(ctx, broken.ID, "someone-else", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lease is released after a panic")
	require.NoError(t, h.store.Release(ctx, broken.ID, "someone-else"))

	h.clock.Advance(5 * time.Second)
	require.NoError(t, h.sched.Tick(ctx))
	assert.Equal(t, healthyPhones, h.provider.Dialed())
}

// failingRefs fails every ref write while fail is set.
type failingRefs struct {
	*repository.MemoryStore
	mu   sync.Mutex
	fail bool
}

func (f *failingRefs) MarkDispatched(ctx context.Context, callID int64, callRef, sessionRef string) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("lock timeout")
	}
	return f.MemoryStore.MarkDispatched(ctx, callID, callRef, sessionRef)
}

func (f *failingRefs) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = false
}

func TestScheduler_FailedRefWriteStillCountsCall(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedList(t, "leads", 5)
	c := h.createCampaign(t, "leads", 1)
	_, err := h.svc.Start(ctx, c.ID)
	require.NoError(t, err)

	calls := &failingRefs{MemoryStore: h.store, fail: true}
	sched, dispatcher := h.newSchedulerWith(calls)
	for i := 0; i < 5; i++ {
		require.NoError(t, sched.Tick(ctx))
		h.clock.Advance(5 * time.Second)
	}

	assert.Len(t, h.provider.Dialed(), 1, "cap holds while refs cannot be written")
	got := h.campaign(t, c.ID)
	assert.Equal(t, 1, got.CurrentDailyCalls)
	assert.Equal(t, 1, got.TotalCallsMade)
	assert.Equal(t, 1, dispatcher.Unrecorded())

	rows, err := h.store.ListByCampaign(ctx, c.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.CallPending, rows[0].Status)
	assert.Nil(t, rows[0].CallRef)

	calls.heal()
	require.NoError(t, sched.Tick(ctx))
	assert.Equal(t, 0, dispatcher.Unrecorded())

	rows, err = h.store.ListByCampaign(ctx, c.ID, 10, 0)
	require.NoError(t, err)
	require.NotNil(t, rows[0].CallRef)
	require.NoError(t, h.recorder.Apply(ctx, model.CallEvent{CallRef: *rows[0].CallRef, Status: model.CallAnswered}))
	assert.Equal(t, 1, h.campaign(t, c.ID).Pickups)
	assert.Len(t, h.provider.Dialed(), 1)
}
