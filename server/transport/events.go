package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gate4ai/giftmessage/shared/commerce"
	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"
)

const (
	// GiftMessageStream is the admin event stream name
	GiftMessageStream = "gift-messages"
	// EventOrderCommitted is sent once per order that carries gift messages
	EventOrderCommitted = "order.committed"
)

// CommittedEvent is the payload of EventOrderCommitted
type CommittedEvent struct {
	OrderID      int64     `json:"order_id"`
	CreatedAt    time.Time `json:"created_at"`
	Customer     string    `json:"customer,omitempty"`
	GiftMessages int       `json:"gift_messages"`
}

// Events fans committed-order notifications out to connected admins
type Events struct {
	server *sse.Server
	logger *zap.Logger
}

// NewEvents creates the event hub with the gift message stream registered
func NewEvents(logger *zap.Logger) *Events {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := sse.New()
	server.AutoReplay = false
	server.AutoStream = false
	server.CreateStream(GiftMessageStream)
	return &Events{server: server, logger: logger.Named("events")}
}

// PublishCommitted matches order.CommitListener
func (e *Events) PublishCommitted(o *commerce.Order, giftMessages int) {
	data, err := json.Marshal(CommittedEvent{
		OrderID:      o.ID,
		CreatedAt:    o.CreatedAt,
		Customer:     o.Customer.FullName(),
		GiftMessages: giftMessages,
	})
	if err != nil {
		e.logger.Error("Failed to encode committed event", zap.Error(err))
		return
	}
	e.server.Publish(GiftMessageStream, &sse.Event{
		Event: []byte(EventOrderCommitted),
		Data:  data,
	})
	e.logger.Debug("Published committed event", zap.Int64("orderID", o.ID))
}

// ServeHTTP streams events. Requests without a stream parameter get the gift message stream.
func (e *Events) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("stream") == "" {
		r = r.Clone(r.Context())
		q := r.URL.Query()
		q.Set("stream", GiftMessageStream)
		r.URL.RawQuery = q.Encode()
	}
	e.server.ServeHTTP(w, r)
}

// Close disconnects all subscribers
func (e *Events) Close() {
	e.server.Close()
}
