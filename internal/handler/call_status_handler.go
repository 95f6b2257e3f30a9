// internal/handler/call_status_handler.go
package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/zainab674/voiceagents-sub004/internal/logging"
	"github.com/zainab674/voiceagents-sub004/internal/model"
	"github.com/zainab674/voiceagents-sub004/internal/queue"
	"github.com/zainab674/voiceagents-sub004/internal/service"
)

// CallStatusHandler accepts provider call callbacks and hands them to the
// call-event queue. Events are applied asynchronously.
type CallStatusHandler struct {
	Queue  queue.Queue
	Topic  string
	Logger *zap.Logger
}

func (h *CallStatusHandler) HandleCallStatus(w http.ResponseWriter, r *http.Request) {
	var ev model.CallEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if err := service.ValidateEvent(ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.Queue.Publish(r.Context(), h.Topic, ev); err != nil {
		logging.OrNop(h.Logger).Error("failed to enqueue call event",
			zap.String("call_ref", ev.CallRef),
			zap.Error(err),
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event queue unavailable"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
