package domain

import "fmt"

// ValidationError reports missing or malformed input, an invalid enum value,
// or a disallowed state transition. Never retried automatically.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictError reports a duplicate record for a unique key, or an operation
// re-invoked after the record advanced past its draft state.
type ConflictError struct {
	Entity EntityType
	Key    string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s already exists for %s", e.Entity, e.Key)
}

// NotFoundError reports a referenced record that does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// PermissionError reports an actor whose role is insufficient for an operation.
type PermissionError struct {
	Actor     string
	Operation string
}

func (e PermissionError) Error() string {
	return fmt.Sprintf("actor %s not permitted to %s", e.Actor, e.Operation)
}

// ComputationError reports a statistical computation that cannot proceed,
// e.g. an empty score set.
type ComputationError struct {
	Operation string
	Message   string
}

func (e ComputationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

// ItemError pairs a failing item's identifier with its error inside a batch
// operation. Batches collect these instead of aborting.
type ItemError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}
