// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/zainab674/voiceagents-sub004/internal/errors"
	"github.com/zainab674/voiceagents-sub004/internal/logging"
	"github.com/zainab674/voiceagents-sub004/internal/model"
	"github.com/zainab674/voiceagents-sub004/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Logger          *zap.Logger
}

// Routes mounts the campaign control surface on r.
func (c *CampaignController) Routes(r chi.Router) {
	r.Post("/campaigns", c.CreateCampaign)
	r.Route("/campaigns/{id}", func(r chi.Router) {
		r.Get("/status", c.GetStatus)
		r.Get("/calls", c.ListCalls)
		r.Post("/start", c.Start)
		r.Post("/pause", c.Pause)
		r.Post("/resume", c.Resume)
		r.Post("/stop", c.Stop)
	})
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CreateCampaignInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), body)
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	status, err := c.CampaignService.GetStatus(r.Context(), id)
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (c *CampaignController) ListCalls(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	calls, pagination, err := c.CampaignService.ListCalls(r.Context(), id, page, pageSize)
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       calls,
		"pagination": pagination,
	})
}

func (c *CampaignController) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	campaign, err := c.CampaignService.Start(r.Context(), id)
	c.respondLifecycle(w, campaign, err)
}

func (c *CampaignController) Pause(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
	}
	campaign, err := c.CampaignService.Pause(r.Context(), id, body.Reason)
	c.respondLifecycle(w, campaign, err)
}

func (c *CampaignController) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	campaign, err := c.CampaignService.Resume(r.Context(), id)
	c.respondLifecycle(w, campaign, err)
}

func (c *CampaignController) Stop(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	campaign, err := c.CampaignService.Stop(r.Context(), id)
	c.respondLifecycle(w, campaign, err)
}

func (c *CampaignController) respondLifecycle(w http.ResponseWriter, campaign *model.Campaign, err error) {
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id":      campaign.ID,
		"execution_status": campaign.Status,
		"pause_reason":     campaign.PauseReason,
	})
}

// fail maps service errors onto HTTP statuses.
func (c *CampaignController) fail(w http.ResponseWriter, err error) {
	var te *appErrors.TransitionError
	var ve *service.ValidationError
	switch {
	case appErrors.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &te):
		writeError(w, http.StatusConflict, te.Reason)
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	default:
		logging.OrNop(c.Logger).Error("campaign request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func campaignID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid campaign id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
