package flow

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrNotPublishable = errors.New("flow not publishable")
	ErrIllegalState   = errors.New("illegal state")
	ErrSerialization  = errors.New("serialization failed")
	ErrCorruptState   = errors.New("corrupt state")
	ErrStateNotFound  = errors.New("state not found")
	ErrStorage        = errors.New("storage failure")
)

// ValidationError reports malformed or missing caller input.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a missing flow, version or history record.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type NotPublishableError struct {
	FlowID string
	Reason string
}

func (e *NotPublishableError) Error() string {
	return fmt.Sprintf("flow %s cannot be published: %s", e.FlowID, e.Reason)
}

func (e *NotPublishableError) Is(target error) bool { return target == ErrNotPublishable }

// IllegalStateError reports an operation forbidden in the current lifecycle state.
type IllegalStateError struct {
	FlowID    string
	Status    string
	Operation string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("cannot %s flow %s in status %s", e.Operation, e.FlowID, e.Status)
}

func (e *IllegalStateError) Is(target error) bool { return target == ErrIllegalState }

type SerializationError struct {
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("failed to serialize state %s: %v", e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }

type CorruptStateError struct {
	Key    string
	Reason string
	Err    error
}

func (e *CorruptStateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt state %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt state %s: %s", e.Key, e.Reason)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

func (e *CorruptStateError) Is(target error) bool { return target == ErrCorruptState }

type StateNotFoundError struct {
	FlowID      string
	ExecutionID string
}

func (e *StateNotFoundError) Error() string {
	return fmt.Sprintf("no cached state for flow %s execution %s", e.FlowID, e.ExecutionID)
}

func (e *StateNotFoundError) Is(target error) bool { return target == ErrStateNotFound }

// StorageError wraps a persistence or cache failure that may be transient.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }
