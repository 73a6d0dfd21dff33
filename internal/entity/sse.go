// Structure of Server-Side-Events (SSE) Model in CareCast.

package entity

// SSE event types pushed to connected observers.
const (
	EventInit        = "init"
	EventGameData    = "game_data"
	EventDataCleared = "data_cleared"
	EventHeartbeat   = "heartbeat"
)

// Data to be broadcasted to every connected observer.
type SSEData struct {
	Type         string `json:"type"`
	Message      string `json:"message,omitempty"`
	Data         any    `json:"data,omitempty"`
	TotalRecords int    `json:"totalRecords,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
}

// Uniquely defines a connected observer.
type SSEClient struct {
	// Unique Client ID
	ID string
	// Client channel
	Channel chan SSEData
}

// Keeps track of every SSE event.
type SSE struct {
	// Data to fan out to all observers is pushed to this channel
	Broadcast chan SSEData
	// New observer connections
	NewClients chan SSEClient
	// Closed observer connections
	ClosedClients chan SSEClient
	// Total observer connections
	TotalClients map[string]chan SSEData
}
