package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/zainab674/voiceagents-sub004/internal/errors"
	"github.com/zainab674/voiceagents-sub004/internal/model"
	"github.com/zainab674/voiceagents-sub004/internal/service"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		region  string
		want    string
		wantErr bool
	}{
		{name: "already e164", raw: "+16502530000", region: "US", want: "+16502530000"},
		{name: "national format", raw: "(650) 253-0000", region: "US", want: "+16502530000"},
		{name: "foreign with plus", raw: "+44 20 7031 3000", region: "US", want: "+442070313000"},
		{name: "default region", raw: "650 253 0000", region: "", want: "+16502530000"},
		{name: "garbage", raw: "call me", region: "US", wantErr: true},
		{name: "too short", raw: "12", region: "US", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.NormalizePhone(tt.raw, tt.region)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDispatcher_SkipsContactAlreadyAttempted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedList(t, "leads", 1)
	c := h.createCampaign(t, "leads", 5)

	d := &service.Dispatcher{Calls: h.store, Provider: h.provider, Region: "US", Now: h.clock.Now}
	contact, err := h.store.Next(ctx, "leads", 0)
	require.NoError(t, err)

	first, err := d.Dispatch(ctx, c, contact)
	require.NoError(t, err)
	assert.True(t, first.Dispatched)
	assert.Equal(t, "Contact 1", first.Call.ContactName)
	assert.Equal(t, 1, first.Campaign.TotalCallsMade)

	second, err := d.Dispatch(ctx, c, contact)
	require.NoError(t, err)
	assert.False(t, second.Dispatched)
	assert.Equal(t, first.Call.ID, second.Call.ID)
	assert.Len(t, h.provider.Dialed(), 1)
}

func TestDispatcher_ConfigErrorFromProvider(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedList(t, "leads", 1)
	c := h.createCampaign(t, "leads", 5)
	h.provider.callErrs[phone(1)] = appErrors.NewConfigError("dispatch agent", appErrors.ErrNoOutboundTrunk)

	d := &service.Dispatcher{Calls: h.store, Provider: h.provider, Region: "US", Now: h.clock.Now}
	contact, err := h.store.Next(ctx, "leads", 0)
	require.NoError(t, err)

	res, err := d.Dispatch(ctx, c, contact)
	assert.True(t, appErrors.IsConfig(err))
	require.NotNil(t, res)
	assert.Equal(t, model.CallFailed, res.Call.Status)

	calls, err := h.store.ListByCampaign(ctx, c.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, calls, 1, "every attempt is recorded")
	assert.Equal(t, model.CallFailed, calls[0].Status)
}

func TestRenderPrompt(t *testing.T) {
	contact := &model.Contact{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "+16502530000"}

	assert.Equal(t, "Hi Ada, mail ada@example.com", service.RenderPrompt("Hi {first_name}, mail {email}", contact, "+16502530000"))
	assert.Equal(t, "Hello Ada Lovelace", service.RenderPrompt("Hello {name}", contact, "+16502530000"))
	assert.Equal(t, "Hi there", service.RenderPrompt("Hi {name}", &model.Contact{}, ""))
	assert.Equal(t, "no placeholders", service.RenderPrompt("no placeholders", contact, ""))

	national := &model.Contact{Name: "Bo", Phone: "(650) 253-0000"}
	assert.Equal(t, "Calling +16502530000", service.RenderPrompt("Calling {phone}", national, "+16502530000"),
		"phone is the dialed number")
	assert.Equal(t, "Hi Bo, mail ", service.RenderPrompt("Hi {name}, mail {email}", national, "+16502530000"),
		"only names fall back to there")
}

func TestDispatcher_CapSlotReservedBeforeDialing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedList(t, "leads", 2)
	c := h.createCampaign(t, "leads", 1)

	d := &service.Dispatcher{Calls: h.store, Provider: h.provider, Region: "US", Now: h.clock.Now}
	first, err := h.store.Next(ctx, "leads", 0)
	require.NoError(t, err)
	second, err := h.store.Next(ctx, "leads", first.Key)
	require.NoError(t, err)

	res, err := d.Dispatch(ctx, c, first)
	require.NoError(t, err)
	require.True(t, res.Dispatched)
	assert.Equal(t, 1, res.Campaign.CurrentDailyCalls)

	// A stale campaign snapshot still cannot exceed the cap.
	res, err = d.Dispatch(ctx, c, second)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Len(t, h.provider.Dialed(), 1)

	got := h.campaign(t, c.ID)
	assert.Equal(t, 1, got.CurrentDailyCalls)
	assert.Equal(t, first.Key, got.LastContactKey, "contact behind a full cap is not consumed")
}
