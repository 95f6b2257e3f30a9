package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zainab674/voiceagents-sub004/internal/config"
	appErrors "github.com/zainab674/voiceagents-sub004/internal/errors"
	"github.com/zainab674/voiceagents-sub004/internal/logging"
	"github.com/zainab674/voiceagents-sub004/internal/metrics"
)

// HTTPClient talks to the voice-agent platform's REST API. Every request
// waits on a shared limiter so bursts across campaigns stay within the
// provider's rate limit.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	trunks sync.Map // agentID -> trunkID
}

func NewHTTPClient(cfg config.TelephonyConfig, logger *zap.Logger) *HTTPClient {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logging.OrNop(logger).Named("telephony"),
	}
}

type trunkResponse struct {
	TrunkID string `json:"trunk_id"`
}

type roomRequest struct {
	Name     string `json:"name"`
	Metadata string `json:"metadata,omitempty"`
}

type sipParticipantRequest struct {
	TrunkID             string `json:"trunk_id"`
	PhoneNumber         string `json:"phone_number"`
	ParticipantIdentity string `json:"participant_identity"`
	ParticipantName     string `json:"participant_name,omitempty"`
}

type sipParticipantResponse struct {
	ParticipantID string `json:"participant_id"`
	SIPCallID     string `json:"sip_call_id"`
}

type agentDispatchRequest struct {
	AgentID  string `json:"agent_id"`
	Metadata string `json:"metadata"`
}

type dispatchMetadata struct {
	CampaignID int64           `json:"campaign_id"`
	CallID     int64           `json:"call_id"`
	Prompt     string          `json:"prompt"`
	Contact    ContactMetadata `json:"contact"`
	Outbound   bool            `json:"outbound"`
}

func (c *HTTPClient) EnsureOutboundTrunk(ctx context.Context, agentID string) (string, error) {
	if v, ok := c.trunks.Load(agentID); ok {
		return v.(string), nil
	}

	var resp trunkResponse
	path := "/agents/" + url.PathEscape(agentID) + "/outbound-trunk"
	status, err := c.do(ctx, "get_trunk", http.MethodGet, path, nil, &resp)
	if status == http.StatusNotFound {
		c.logger.Info("creating outbound trunk", zap.String("agent_id", agentID))
		status, err = c.do(ctx, "create_trunk", http.MethodPost, path, nil, &resp)
	}
	if err != nil {
		switch status {
		case http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
			return "", appErrors.NewConfigError("resolve outbound trunk",
				fmt.Errorf("%w: agent %s: %v", appErrors.ErrNoOutboundTrunk, agentID, err))
		}
		return "", err
	}
	if resp.TrunkID == "" {
		return "", appErrors.NewConfigError("resolve outbound trunk",
			fmt.Errorf("%w: agent %s", appErrors.ErrNoOutboundTrunk, agentID))
	}

	c.trunks.Store(agentID, resp.TrunkID)
	return resp.TrunkID, nil
}

// CreateOutboundCall opens a room, dispatches the agent into it with the
// campaign prompt and then dials the contact over the trunk. The agent joins
// first so an answered call never lands in an empty room. When any step after
// the room exists fails, the room is deleted so nothing is left ringing.
func (c *HTTPClient) CreateOutboundCall(ctx context.Context, req OutboundCallRequest) (*OutboundCall, error) {
	meta, err := json.Marshal(dispatchMetadata{
		CampaignID: req.CampaignID,
		CallID:     req.CallID,
		Prompt:     req.Prompt,
		Contact:    req.Contact,
		Outbound:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode dispatch metadata: %w", err)
	}

	room := fmt.Sprintf("campaign-%d-%s", req.CampaignID, uuid.NewString())
	roomPath := "/rooms/" + url.PathEscape(room)
	if _, err := c.do(ctx, "create_room", http.MethodPost, "/rooms",
		roomRequest{Name: room, Metadata: string(meta)}, nil); err != nil {
		return nil, err
	}

	if _, err := c.do(ctx, "dispatch_agent", http.MethodPost, roomPath+"/agent-dispatches",
		agentDispatchRequest{AgentID: req.AgentID, Metadata: string(meta)}, nil); err != nil {
		c.deleteRoom(ctx, room)
		return nil, err
	}

	var participant sipParticipantResponse
	if _, err := c.do(ctx, "create_sip_participant", http.MethodPost, roomPath+"/sip-participants",
		sipParticipantRequest{
			TrunkID:             req.TrunkID,
			PhoneNumber:         req.PhoneE164,
			ParticipantIdentity: "contact-" + strconv.FormatInt(req.CallID, 10),
			ParticipantName:     req.Contact.Name,
		}, &participant); err != nil {
		c.deleteRoom(ctx, room)
		return nil, err
	}

	callRef := participant.SIPCallID
	if callRef == "" {
		callRef = participant.ParticipantID
	}
	if callRef == "" {
		// Untrackable: its events could never be matched, so hang it up.
		c.deleteRoom(ctx, room)
		return nil, appErrors.NewTransientError("create_sip_participant", errors.New("provider returned no call id"))
	}
	return &OutboundCall{CallRef: callRef, SessionRef: room}, nil
}

// deleteRoom tears down a half-built call. It runs even when ctx is cancelled
// and only logs failures.
func (c *HTTPClient) deleteRoom(ctx context.Context, room string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if _, err := c.do(ctx, "delete_room", http.MethodDelete, "/rooms/"+url.PathEscape(room), nil, nil); err != nil {
		c.logger.Error("failed to delete room after call setup failure",
			zap.String("room", room),
			zap.Error(err),
		)
	}
}

// do issues one request. It returns the HTTP status (0 when none was received)
// and classifies failures: throttling, server errors and transport failures are
// transient.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, appErrors.NewTransientError(op, err)
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordProviderRequest(op, "error", time.Since(start).Seconds())
		return 0, appErrors.NewTransientError(op, err)
	}
	defer resp.Body.Close()
	metrics.RecordProviderRequest(op, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		c.logger.Warn("provider request failed",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
		)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return resp.StatusCode, appErrors.NewTransientError(op, err)
		}
		return resp.StatusCode, fmt.Errorf("%s: %w", op, err)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, appErrors.NewTransientError(op, fmt.Errorf("decode response: %w", err))
		}
	}
	return resp.StatusCode, nil
}

var _ Provider = (*HTTPClient)(nil)
