package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	pkgkafka "github.com/utafrali/EcommerceGo/taxonomy/pkg/kafka"
)

// Applier applies category changes made elsewhere to the local cache.
type Applier interface {
	ApplyCreated(ctx context.Context, n domain.CategoryNode) error
	ApplyUpdated(ctx context.Context, n domain.CategoryNode) error
	ApplyDeleted(ctx context.Context, id string, known []string) ([]string, error)
}

// Consumer handles category events published by other instances.
type Consumer struct {
	applier Applier
	source  string
	logger  *slog.Logger
}

// NewConsumer creates a consumer that ignores events whose source is self.
func NewConsumer(applier Applier, self string, logger *slog.Logger) *Consumer {
	return &Consumer{
		applier: applier,
		source:  self,
		logger:  logger,
	}
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.Source == c.source {
		return nil
	}

	switch event.EventType {
	case TopicCategoryCreated:
		return c.handleUpsert(ctx, event, c.applier.ApplyCreated)
	case TopicCategoryUpdated:
		return c.handleUpsert(ctx, event, c.applier.ApplyUpdated)
	case TopicCategoryDeleted:
		return c.handleDeleted(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *Consumer) handleUpsert(
	ctx context.Context,
	event *pkgkafka.Event,
	apply func(context.Context, domain.CategoryNode) error,
) error {
	var data CategoryData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}
	if err := data.Category.CheckShape(); err != nil {
		return fmt.Errorf("apply %s: %w", event.EventType, err)
	}
	if err := apply(ctx, data.Category); err != nil {
		return fmt.Errorf("apply %s: %w", event.EventType, err)
	}

	c.logger.InfoContext(ctx, "applied remote category change",
		slog.String("event_type", event.EventType),
		slog.String("category_id", data.Category.ID),
		slog.String("source", event.Source),
	)
	return nil
}

func (c *Consumer) handleDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data CategoryDeletedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}
	if data.ID == "" {
		return fmt.Errorf("apply %s: missing category id", event.EventType)
	}

	removed, err := c.applier.ApplyDeleted(ctx, data.ID, data.Removed)
	if err != nil {
		return fmt.Errorf("apply %s: %w", event.EventType, err)
	}

	c.logger.InfoContext(ctx, "applied remote category delete",
		slog.String("category_id", data.ID),
		slog.Int("removed", len(removed)),
		slog.String("source", event.Source),
	)
	return nil
}
