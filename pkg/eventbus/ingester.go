package eventbus

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/automation/pkg/models"
	"github.com/jonboulle/clockwork"
)

// Ingester accepts business events and puts them on the bus; dispatch happens
// in whichever process subscribes to BusinessEventReceived.
type Ingester struct {
	bus   EventBus
	clock clockwork.Clock
}

func NewIngester(bus EventBus, clock clockwork.Clock) *Ingester {
	return &Ingester{bus: bus, clock: clock}
}

func (i *Ingester) Ingest(ctx context.Context, eventType models.TriggerType, tenantID string, payload map[string]any) (*models.Event, error) {
	if !eventType.Valid() {
		return nil, fmt.Errorf("%w: unknown event type %q", models.ErrValidation, eventType)
	}

	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("%w: tenant id is required", models.ErrValidation)
	}

	event := models.Event{
		ID:         i.bus.GenerateID(),
		Type:       eventType,
		TenantID:   tenantID,
		Payload:    payload,
		OccurredAt: i.clock.Now().UTC(),
	}

	if err := PublishBusinessEvent(ctx, i.bus, event); err != nil {
		return nil, fmt.Errorf("failed to publish business event: %w", err)
	}

	return &event, nil
}
