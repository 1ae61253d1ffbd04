package model

import (
	"encoding/json"
	"fmt"
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

// allowed lists, for every non terminal state, the states a job may move to.
var allowed = map[JobState][]JobState{
	JobStatePending: {JobStateRunning, JobStateCancelled},
	JobStateRunning: {JobStateSucceeded, JobStateFailed, JobStateCancelled},
}

func JobStates() []JobState {
	return []JobState{JobStatePending, JobStateRunning, JobStateSucceeded, JobStateFailed, JobStateCancelled}
}

func ParseJobState(s string) (JobState, error) {
	for _, state := range JobStates() {
		if string(state) == s {
			return state, nil
		}
	}
	return "", fmt.Errorf("unknown job state %q", s)
}

func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

// CarriesResult reports whether entering s must record a result.
func (s JobState) CarriesResult() bool {
	return s == JobStateSucceeded || s == JobStateFailed
}

// CanTransition reports whether from -> to is an edge of the job state machine.
func CanTransition(from, to JobState) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Job struct {
	ID           uuid.UUID `gorm:"primaryKey;column:id;type:TEXT"`
	Owner        string    `gorm:"column:owner;type:VARCHAR;size:256;not null;index:jobs_owner_org"`
	Organization string    `gorm:"column:organization;type:VARCHAR;size:256;index:jobs_owner_org"`
	Payload      string    `gorm:"column:payload;type:TEXT;not null"`
	State        JobState  `gorm:"column:state;type:VARCHAR;size:32;not null;index"`
	Result       *string   `gorm:"column:result;type:TEXT"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

type JobList []Job

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}

func (j Job) IsOwnedBy(username, organization string) bool {
	return j.Owner == username && j.Organization == organization
}
