package model

import "time"

// BatchEvent is the payload of batch completed/failed events
type BatchEvent struct {
	RunID      string        `json:"runId"`
	Source     string        `json:"source"`
	Collection string        `json:"collection"`
	Batch      int           `json:"batch"`
	Size       int           `json:"size"`
	Attempts   int           `json:"attempts"`
	Result     UpsertResult  `json:"result"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// AssetEvent is the payload of asset uploaded/failed events
type AssetEvent struct {
	Category string `json:"category"`
	Key      string `json:"key"`
	Path     string `json:"path"`
	Size     int    `json:"size,omitempty"`
	Bytes    int    `json:"bytes,omitempty"`
	Error    string `json:"error,omitempty"`
}
