// Package v1alpha1 holds the wire types of the job gateway API.
package v1alpha1

import (
	"time"

	"github.com/google/uuid"
)

type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

type Job struct {
	Id        uuid.UUID `json:"id"`
	Owner     string    `json:"owner"`
	Payload   string    `json:"payload"`
	State     JobState  `json:"state"`
	Result    *string   `json:"result,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type JobList []Job

type JobCreate struct {
	Payload string `json:"payload" validate:"required,max=65536,payload"`
}

// JobCreated is returned by a successful submit.
type JobCreated struct {
	Id    uuid.UUID `json:"id"`
	State JobState  `json:"state"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=256,username"`
	Password string `json:"password" validate:"required,max=1024"`
}

type Credential struct {
	// Type is the authorization scheme the token must be presented with: Bearer or Session.
	Type      string    `json:"type"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Identity struct {
	Username     string `json:"username"`
	Organization string `json:"organization"`
	Admin        bool   `json:"admin"`
}

// DispatcherStatus describes the execution pool. Jobs is only reported to administrators.
type DispatcherStatus struct {
	PoolSize int         `json:"poolSize"`
	Running  int         `json:"running"`
	Free     int         `json:"free"`
	Jobs     []uuid.UUID `json:"jobs,omitempty"`
}

// ErrorCode is a stable, machine readable error category.
type ErrorCode string

const (
	ErrorCodeUnauthorized      ErrorCode = "unauthorized"
	ErrorCodeForbidden         ErrorCode = "forbidden"
	ErrorCodeNotFound          ErrorCode = "not_found"
	ErrorCodeConflict          ErrorCode = "conflict"
	ErrorCodeResourceExhausted ErrorCode = "resource_exhausted"
	ErrorCodeBadRequest        ErrorCode = "bad_request"
	ErrorCodeUnavailable       ErrorCode = "unavailable"
	ErrorCodeInternal          ErrorCode = "internal"
)

type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	RequestId *string   `json:"requestId,omitempty"`
}

type Status struct {
	Status string `json:"status"`
}
