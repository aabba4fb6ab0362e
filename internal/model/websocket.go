package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage represents a progress update for one job
type WSProgressMessage struct {
	Type          string    `json:"type"`
	JobID         string    `json:"jobId"`
	TrackID       string    `json:"trackId"`
	Progress      int       `json:"progress"`
	Status        JobStatus `json:"status"`
	StatusMessage string    `json:"statusMessage,omitempty"`
}

// WSCompleteMessage announces a finished job and its audio asset
type WSCompleteMessage struct {
	Type    string      `json:"type"`
	JobID   string      `json:"jobId"`
	TrackID string      `json:"trackId"`
	Asset   *AudioAsset `json:"asset,omitempty"`
}

// WSErrorMessage represents a job failure
type WSErrorMessage struct {
	Type    string  `json:"type"`
	JobID   string  `json:"jobId"`
	TrackID string  `json:"trackId"`
	Error   WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
