package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zainab674/voiceagents-sub004/internal/contactsource"
	"github.com/zainab674/voiceagents-sub004/internal/controller"
	"github.com/zainab674/voiceagents-sub004/internal/model"
	"github.com/zainab674/voiceagents-sub004/internal/repository"
	"github.com/zainab674/voiceagents-sub004/internal/service"
)

func newRouter(t *testing.T) (http.Handler, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	sources := contactsource.Registry{
		model.SourceList: &contactsource.ListSource{Repo: store},
	}
	ctrl := &controller.CampaignController{
		CampaignService: &service.CampaignService{
			CampaignRepo: store,
			CallRepo:     store,
			Sources:      sources,
			Now:          func() time.Time { return time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC) },
		},
	}
	r := chi.NewRouter()
	ctrl.Routes(r)
	return r, store
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func createCampaign(t *testing.T, h http.Handler) int64 {
	t.Helper()
	w, out := do(t, h, http.MethodPost, "/campaigns", map[string]interface{}{
		"name":         "spring outreach",
		"owner_id":     "owner-1",
		"agent_id":     "agent-1",
		"source_kind":  "list",
		"source_id":    "list-1",
		"daily_cap":    3,
		"calling_days": []int{1, 2, 3, 4, 5},
		"start_hour":   9,
		"end_hour":     17,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return int64(out["id"].(float64))
}

func TestCreateCampaignValidation(t *testing.T) {
	h, _ := newRouter(t)

	w, out := do(t, h, http.MethodPost, "/campaigns", map[string]interface{}{
		"owner_id": "owner-1",
		"agent_id": "agent-1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, out["error"], "source_id")

	req := httptest.NewRequest(http.MethodPost, "/campaigns", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLifecycleRoutes(t *testing.T) {
	h, _ := newRouter(t)
	id := createCampaign(t, h)
	base := "/campaigns/" + strconv.FormatInt(id, 10)

	w, out := do(t, h, http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", out["execution_status"])

	w, out = do(t, h, http.MethodPost, base+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already running", out["error"])

	w, out = do(t, h, http.MethodPost, base+"/pause", map[string]string{"reason": "holiday"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paused", out["execution_status"])
	assert.Equal(t, "holiday", out["pause_reason"])

	w, out = do(t, h, http.MethodPost, base+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", out["execution_status"])

	w, _ = do(t, h, http.MethodPost, base+"/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, out = do(t, h, http.MethodPost, base+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "campaign already finished", out["error"])
}

func TestPauseWithoutBody(t *testing.T) {
	h, _ := newRouter(t)
	id := createCampaign(t, h)
	base := "/campaigns/" + strconv.FormatInt(id, 10)

	w, out := do(t, h, http.MethodPost, base+"/pause", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "not running", out["error"])
}

func TestGetStatus(t *testing.T) {
	h, store := newRouter(t)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Insert(context.Background(), &model.Contact{
			ListID: "list-1",
			Name:   "Contact",
			Phone:  "+16502530001",
		}))
	}
	id := createCampaign(t, h)

	w, out := do(t, h, http.MethodGet, "/campaigns/"+strconv.FormatInt(id, 10)+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	queue := out["queue"].(map[string]interface{})
	assert.Equal(t, float64(4), queue["queued"])
	assert.Equal(t, float64(0), queue["completed"])

	campaign := out["campaign"].(map[string]interface{})
	assert.Equal(t, "idle", campaign["execution_status"])
}

func TestUnknownCampaign(t *testing.T) {
	h, _ := newRouter(t)

	for _, path := range []string{"/campaigns/99/status", "/campaigns/99/calls"} {
		w, _ := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w, _ := do(t, h, http.MethodPost, "/campaigns/99/start", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, h, http.MethodGet, "/campaigns/abc/status", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCallsPagination(t *testing.T) {
	h, _ := newRouter(t)
	id := createCampaign(t, h)

	w, out := do(t, h, http.MethodGet, "/campaigns/"+strconv.FormatInt(id, 10)+"/calls?page=2&page_size=500", nil)
	require.Equal(t, http.StatusOK, w.Code)

	pagination := out["pagination"].(map[string]interface{})
	assert.Equal(t, float64(2), pagination["page"])
	assert.Equal(t, float64(100), pagination["page_size"])
	assert.Equal(t, float64(0), pagination["total_count"])
	assert.Empty(t, out["data"])
}
