package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"pos-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessageRoutesSaleCompleted(t *testing.T) {
	var got *models.SaleCompletedEvent
	h := NewEventHandler()
	h.OnSaleCompleted(func(_ context.Context, ev *models.SaleCompletedEvent) error {
		got = ev
		return nil
	})

	value, err := json.Marshal(models.SaleCompletedEvent{
		BaseEvent:   models.BaseEvent{EventID: "ev-1", EventType: models.EventTypeSaleCompleted},
		OrderID:     "o-1",
		OrderNumber: "POS-DOW-20260101-0042",
		TotalCents:  2500,
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Key: []byte("o-1"), Value: value}))
	require.NotNil(t, got)
	assert.Equal(t, "o-1", got.OrderID)
	assert.Equal(t, int64(2500), got.TotalCents)
}

func TestHandleMessagePropagatesHandlerError(t *testing.T) {
	h := NewEventHandler()
	h.OnSaleCompleted(func(context.Context, *models.SaleCompletedEvent) error {
		return errors.New("crm down")
	})

	value := []byte(`{"event_id":"ev-2","event_type":"SALE_COMPLETED","order_id":"o-2"}`)
	assert.Error(t, h.HandleMessage(context.Background(), kafka.Message{Value: value}))
}

func TestHandleMessageSkipsGarbageAndUnknownTypes(t *testing.T) {
	called := false
	h := NewEventHandler()
	h.OnSaleCompleted(func(context.Context, *models.SaleCompletedEvent) error {
		called = true
		return nil
	})

	assert.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"SOMETHING_ELSE"}`)}))
	assert.False(t, called)
}
