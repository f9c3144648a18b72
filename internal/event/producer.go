package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	pkgkafka "github.com/utafrali/EcommerceGo/taxonomy/pkg/kafka"
	"github.com/utafrali/EcommerceGo/taxonomy/pkg/logger"
)

// Aggregate type of every category event.
const AggregateTypeCategory = "category"

// MetadataActor is the event metadata key holding the admin subject that
// made the change.
const MetadataActor = "actor"

// Kafka topics for category events.
var (
	TopicCategoryCreated = pkgkafka.Topic(AggregateTypeCategory, "created")
	TopicCategoryUpdated = pkgkafka.Topic(AggregateTypeCategory, "updated")
	TopicCategoryDeleted = pkgkafka.Topic(AggregateTypeCategory, "deleted")
)

// Topics lists every topic the consumer subscribes to.
func Topics() []string {
	return []string{TopicCategoryCreated, TopicCategoryUpdated, TopicCategoryDeleted}
}

// CategoryData is the payload of category.created and category.updated.
type CategoryData struct {
	Category domain.CategoryNode `json:"category"`
}

// CategoryDeletedData is the payload of category.deleted. Removed lists the
// deleted node and every descendant the publishing instance knew about.
type CategoryDeletedData struct {
	ID      string   `json:"id"`
	Removed []string `json:"removed"`
}

// Publisher is the subset of the kafka producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes category events. Source identifies this instance so the
// consumer can skip its own events.
type Producer struct {
	kafka  Publisher
	source string
	logger *slog.Logger
}

// NewProducer creates a category event producer.
func NewProducer(kafka Publisher, source string, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		source: source,
		logger: logger,
	}
}

// PublishCategoryCreated publishes a category.created event.
func (p *Producer) PublishCategoryCreated(ctx context.Context, n domain.CategoryNode) error {
	return p.publish(ctx, TopicCategoryCreated, n.ID, CategoryData{Category: n})
}

// PublishCategoryUpdated publishes a category.updated event.
func (p *Producer) PublishCategoryUpdated(ctx context.Context, n domain.CategoryNode) error {
	return p.publish(ctx, TopicCategoryUpdated, n.ID, CategoryData{Category: n})
}

// PublishCategoryDeleted publishes a category.deleted event.
func (p *Producer) PublishCategoryDeleted(ctx context.Context, id string, removed []string) error {
	if removed == nil {
		removed = []string{id}
	}
	return p.publish(ctx, TopicCategoryDeleted, id, CategoryDeletedData{ID: id, Removed: removed})
}

func (p *Producer) publish(ctx context.Context, topic, id string, data any) error {
	event, err := pkgkafka.NewEvent(ctx, topic, id, AggregateTypeCategory, p.source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if actor := logger.ActorFromContext(ctx); actor != "" {
		event.WithMetadata(MetadataActor, actor)
	}
	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published category event",
		slog.String("topic", topic),
		slog.String("category_id", id),
		slog.String("event_id", event.EventID),
	)
	return nil
}
