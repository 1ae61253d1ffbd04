package events

import "time"

// JobEvent is the body of every job lifecycle event.
type JobEvent struct {
	JobID         string    `json:"job_id"`
	Owner         string    `json:"owner"`
	Organization  string    `json:"organization,omitempty"`
	State         string    `json:"state"`
	PreviousState string    `json:"previous_state,omitempty"`
	Result        *string   `json:"result,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
