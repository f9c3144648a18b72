package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/EcommerceGo/taxonomy/pkg/logger"
)

func TestNewEvent_Fields(t *testing.T) {
	type categoryData struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	data := categoryData{ID: "cat-1", Name: "Home Services"}
	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	event, err := NewEvent(ctx, "category.created", "cat-1", "category", "taxonomy-a", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "category.created", event.EventType)
	assert.Equal(t, "cat-1", event.AggregateID)
	assert.Equal(t, "category", event.AggregateType)
	assert.Equal(t, "taxonomy-a", event.Source)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)
	assert.NotNil(t, event.Metadata)

	var decoded categoryData
	require.NoError(t, event.UnmarshalData(&decoded))
	assert.Equal(t, data, decoded)
}

func TestNewEvent_NoCorrelationID(t *testing.T) {
	event, err := NewEvent(context.Background(), "category.deleted", "cat-1", "category", "svc", nil)
	require.NoError(t, err)
	assert.Empty(t, event.CorrelationID)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent(context.Background(), "category.created", "cat-1", "category", "svc", make(chan int))
	require.Error(t, err)
}

func TestEvent_MarshalUnmarshal(t *testing.T) {
	original, err := NewEvent(context.Background(), "category.updated", "cat-2", "category", "svc", map[string]string{"name": "Plumbing"})
	require.NoError(t, err)
	original.WithMetadata("actor", "admin")

	data, err := original.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, original.EventType, restored.EventType)
	assert.Equal(t, original.Metadata, restored.Metadata)
	assert.JSONEq(t, string(original.Data), string(restored.Data))
	assert.WithinDuration(t, original.Timestamp, restored.Timestamp, time.Millisecond)
}

func TestEvent_WithMetadata(t *testing.T) {
	event := &Event{EventID: "e"}
	result := event.WithMetadata("k1", "v1").WithMetadata("k2", "v2")
	assert.Same(t, event, result)
	assert.Equal(t, map[string]string{"k1": "v1", "k2": "v2"}, event.Metadata)
}

func TestEvent_UnmarshalData_Invalid(t *testing.T) {
	event := &Event{Data: json.RawMessage(`not valid json`)}
	var target map[string]string
	require.Error(t, event.UnmarshalData(&target))
}

func TestUnmarshalEvent_Invalid(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{broken json`))
	require.Error(t, err)
	_, err = UnmarshalEvent(nil)
	require.Error(t, err)
}

func TestTopic(t *testing.T) {
	tests := []struct {
		domain, action, want string
	}{
		{"category", "created", "ecommerce.category.created"},
		{"category", "deleted", "ecommerce.category.deleted"},
		{"cart", "item-added", "ecommerce.cart.item-added"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Topic(tt.domain, tt.action))
		})
	}
}
