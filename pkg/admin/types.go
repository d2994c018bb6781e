package admin

import (
	"encoding/json"
	"time"
)

// ServerOptions configures the admin panel server
type ServerOptions struct {
	Host string
	Port int

	// MaxUploadSize bounds multipart uploads in bytes. Defaults to 10 MB.
	MaxUploadSize int64

	// Observer, when set, is notified after every API request
	Observer RequestObserver
}

// ConfigProvider exposes the daemon configuration to the admin surface.
// Snapshot returns the current config as JSON; Update validates, persists
// and applies a full replacement document.
type ConfigProvider interface {
	Snapshot() (json.RawMessage, error)
	Update(raw json.RawMessage) error
}

// RequestObserver is notified after every admin API request
type RequestObserver func(endpoint string, status int)

// RecordView is the wire representation of a stored meme
type RecordView struct {
	ID     string `json:"id"`
	Tags   string `json:"tags"`
	Source string `json:"source"`
	Hash   string `json:"hash"`
}

// ListResponse is the response body for the list endpoint
type ListResponse struct {
	Count   int          `json:"count"`
	Records []RecordView `json:"records"`
}

// UploadResponse is the response body for a successful upload
type UploadResponse struct {
	ID   string `json:"id"`
	Tags string `json:"tags"`
}

// BatchDeleteRequest is the request body for batch deletion
type BatchDeleteRequest struct {
	IDs []string `json:"ids"`
}

// BatchDeleteResponse reports which IDs were deleted and which were unknown
type BatchDeleteResponse struct {
	Deleted []string `json:"deleted"`
	Missing []string `json:"missing"`
}

// UpdateTagRequest is the request body for tag updates
type UpdateTagRequest struct {
	ID   string `json:"id"`
	Tags string `json:"tags"`
}

// DeleteRequest is the request body for single deletion
type DeleteRequest struct {
	ID string `json:"id"`
}

// EventMessage is the envelope pushed to websocket clients
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func (m EventMessage) marshal() ([]byte, error) {
	return json.Marshal(m)
}

func newEvent(event string, data interface{}) EventMessage {
	return EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}
