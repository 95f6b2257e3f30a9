package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	appErrors "github.com/zainab674/voiceagents-sub004/internal/errors"
	"github.com/zainab674/voiceagents-sub004/internal/logging"
	"github.com/zainab674/voiceagents-sub004/internal/model"
	"github.com/zainab674/voiceagents-sub004/internal/service"
)

// StartCallEventSubscriber applies provider call events from topic through the
// recorder. Unknown call refs are retried since events can outrun dispatch
// bookkeeping; malformed events are dropped.
func StartCallEventSubscriber(q Queue, topic string, recorder *service.Recorder, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	return q.Subscribe(topic, func(ctx context.Context, body []byte) error {
		var ev model.CallEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return Permanent(fmt.Errorf("%w: %v", appErrors.ErrInvalidEvent, err))
		}

		err := recorder.Apply(ctx, ev)
		if errors.Is(err, appErrors.ErrInvalidEvent) {
			return Permanent(err)
		}
		if err != nil {
			logger.Debug("call event not applied",
				zap.String("call_ref", ev.CallRef),
				zap.Error(err),
			)
		}
		return err
	})
}
