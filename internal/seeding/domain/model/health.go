package model

import "time"

// ComponentHealth is the probe result of one external dependency
type ComponentHealth struct {
	State   string        `json:"state"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency"`
}

// HealthReport aggregates the probes of every configured dependency
type HealthReport struct {
	Healthy    bool                       `json:"healthy"`
	CheckedAt  time.Time                  `json:"checkedAt"`
	Components map[string]ComponentHealth `json:"components"`
}
