package events

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/kagemask/kagemask/internal/pii"
)

// EventType represents the type of event sent to stream clients
type EventType string

const (
	// EventTypeMasking represents a completed masking run
	EventTypeMasking EventType = "masking"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event is the envelope sent to websocket clients.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// MaskingEvent is the telemetry payload for one uncached masking run. It is
// published to the risk queue and broadcast to stream clients. It never
// carries the raw input or entity surfaces, only the fingerprint, the
// masked output, and aggregate numbers.
type MaskingEvent struct {
	Fingerprint string          `json:"fingerprint"`
	MaskedText  string          `json:"masked_text"`
	RiskScore   float64         `json:"risk_score"`
	RegexTypes  []string        `json:"regex_types"`
	Metrics     pii.RiskMetrics `json:"metrics"`
	DurationMS  float64         `json:"duration_ms"`
	Timestamp   time.Time       `json:"timestamp"`
}

// SystemStatusEvent reports service-level counters to stream clients.
type SystemStatusEvent struct {
	Status           string  `json:"status"`
	Uptime           string  `json:"uptime"`
	TotalRequests    int64   `json:"total_requests"`
	TotalMasked      int64   `json:"total_masked"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
	ConnectedClients int     `json:"connected_clients"`
}

// ConnectionEvent reports websocket clients joining or leaving.
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected" or "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
}

// ClientMessage represents messages sent from clients to the server.
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest narrows which event types a client receives.
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// Client is one websocket connection registered with the hub.
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}
