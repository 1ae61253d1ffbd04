package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrJobNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "job")
}

type ErrJobAccessForbidden struct {
	error
}

func NewErrJobAccessForbidden(id uuid.UUID) *ErrJobAccessForbidden {
	return &ErrJobAccessForbidden{fmt.Errorf("forbidden to access job %s", id)}
}

func NewErrListAllForbidden() *ErrJobAccessForbidden {
	return &ErrJobAccessForbidden{fmt.Errorf("listing the jobs of every owner requires an administrator")}
}

type ErrJobConflict struct {
	error
}

func NewErrJobConflict(id uuid.UUID, err error) *ErrJobConflict {
	return &ErrJobConflict{fmt.Errorf("job %s changed concurrently: %w", id, err)}
}

type ErrJobAlreadyCompleted struct {
	error
}

func NewErrJobAlreadyCompleted(id uuid.UUID, state string) *ErrJobAlreadyCompleted {
	return &ErrJobAlreadyCompleted{fmt.Errorf("job %s is already %s", id, state)}
}

type ErrResourceExhausted struct {
	error
}

func NewErrCapacityExhausted() *ErrResourceExhausted {
	return &ErrResourceExhausted{fmt.Errorf("too many active jobs, retry later")}
}

func NewErrRateLimited(owner string) *ErrResourceExhausted {
	return &ErrResourceExhausted{fmt.Errorf("submission rate exceeded for %s, retry later", owner)}
}

type ErrInvalidPayload struct {
	error
}

func NewErrInvalidPayload(err error) *ErrInvalidPayload {
	return &ErrInvalidPayload{fmt.Errorf("invalid payload: %w", err)}
}

type ErrInvalidCredentials struct {
	error
}

func NewErrInvalidCredentials() *ErrInvalidCredentials {
	return &ErrInvalidCredentials{fmt.Errorf("invalid username or password")}
}

type ErrLoginUnsupported struct {
	error
}

func NewErrLoginUnsupported() *ErrLoginUnsupported {
	return &ErrLoginUnsupported{fmt.Errorf("the configured authentication does not issue credentials")}
}

func NewErrLogoutUnsupported() *ErrLoginUnsupported {
	return &ErrLoginUnsupported{fmt.Errorf("the configured authentication cannot revoke credentials")}
}

type ErrDispatcherUnavailable struct {
	error
}

func NewErrDispatcherUnavailable() *ErrDispatcherUnavailable {
	return &ErrDispatcherUnavailable{fmt.Errorf("no dispatcher runs in this gateway")}
}

type ErrInvalidUser struct {
	error
}

func NewErrInvalidUser(reason string) *ErrInvalidUser {
	return &ErrInvalidUser{fmt.Errorf("invalid user: %s", reason)}
}
