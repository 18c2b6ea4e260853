package manager

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

const (
	subjectSyncCompleted   = "dashboard.events.v1.sync_completed"
	subjectAssetDiscovered = "dashboard.events.v1.asset_discovered"

	eventSource = "dashboard"
)

// SyncCompletedEvent is emitted after every full refresh, successful or not.
type SyncCompletedEvent struct {
	EventID   string    `json:"event_id"`
	Domain    string    `json:"domain"`
	State     string    `json:"state"`
	Synced    int       `json:"synced"`
	Error     string    `json:"error,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// AssetDiscoveredEvent is emitted when a sync run indexes an asset not seen
// before.
type AssetDiscoveredEvent struct {
	EventID   string    `json:"event_id"`
	AssetID   string    `json:"asset_id"`
	Symbol    string    `json:"symbol"`
	Verified  bool      `json:"verified"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher publishes domain lifecycle events to NATS. Events are
// published asynchronously; publishing failures are logged but never fail
// the originating operation.
type EventPublisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// NewEventPublisher creates a new EventPublisher. conn may be nil, in which
// case every publish is skipped with a warning.
func NewEventPublisher(conn *nats.Conn, logger zerolog.Logger) *EventPublisher {
	return &EventPublisher{conn: conn, logger: logger}
}

// PublishSyncCompleted publishes a SyncCompletedEvent.
// Subject: dashboard.events.v1.sync_completed
func (p *EventPublisher) PublishSyncCompleted(status *types.SyncStatus, synced int) {
	if p.conn == nil {
		p.logger.Warn().Msg("Event bus not initialized, skipping SyncCompleted event")
		return
	}

	event := SyncCompletedEvent{
		EventID:   uuid.New().String(),
		Domain:    status.Domain,
		State:     string(status.State),
		Synced:    synced,
		Error:     status.ErrorMessage,
		Source:    eventSource,
		Timestamp: time.Now().UTC(),
	}

	// Publish asynchronously - don't block the sync run on event publishing
	go p.publish(subjectSyncCompleted, event, func(e *zerolog.Event) *zerolog.Event {
		return e.Str("domain", event.Domain).Str("state", event.State).Str("event_id", event.EventID)
	})
}

// PublishAssetDiscovered publishes an AssetDiscoveredEvent.
// Subject: dashboard.events.v1.asset_discovered
func (p *EventPublisher) PublishAssetDiscovered(asset types.Asset) {
	if p.conn == nil {
		p.logger.Warn().Msg("Event bus not initialized, skipping AssetDiscovered event")
		return
	}

	event := AssetDiscoveredEvent{
		EventID:   uuid.New().String(),
		AssetID:   asset.AssetID,
		Symbol:    asset.Symbol,
		Verified:  asset.Verified,
		Source:    eventSource,
		Timestamp: time.Now().UTC(),
	}

	go p.publish(subjectAssetDiscovered, event, func(e *zerolog.Event) *zerolog.Event {
		return e.Str("asset_id", event.AssetID).Str("symbol", event.Symbol).Str("event_id", event.EventID)
	})
}

func (p *EventPublisher) publish(subject string, event any, fields func(*zerolog.Event) *zerolog.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		fields(p.logger.Error().Err(err)).Str("subject", subject).Msg("Failed to encode event")
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		fields(p.logger.Error().Err(err)).Str("subject", subject).Msg("Failed to publish event")
		return
	}
	fields(p.logger.Info()).Str("subject", subject).Msg("Published event")
}
