// Package model holds the persisted data shapes.
package model

import "time"

// Evaluation is one recorded evaluation: what ran, in which context, and
// how it came out. Kind is "ok" for successes, otherwise the failure kind.
type Evaluation struct {
	ID         string    `json:"id"`
	ContextID  string    `json:"contextId"`
	Code       string    `json:"code"`
	Kind       string    `json:"kind"`
	Rendered   string    `json:"rendered"`
	Console    string    `json:"console,omitempty"`
	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}
