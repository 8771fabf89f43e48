package usecase

import (
	"context"

	"refdata-seeder/internal/shared/eventbus"
	"refdata-seeder/internal/shared/logger"
)

// publisher emits engine events when a bus is configured
type publisher struct {
	bus    eventbus.EventBusInterface
	logger logger.Logger
}

func (p publisher) publish(ctx context.Context, eventType, source string, data interface{}) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, eventbus.NewBasicEventWithSource(eventType, data, source)); err != nil {
		p.logger.Warnf("Event %s not delivered: %v", eventType, err)
	}
}
