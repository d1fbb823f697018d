// Package tasks implements the entity store: the one component permitted
// to mutate durable Task/SubTask records.
//
// Every mutation runs inside a single backend transaction and commits
// durably before the call returns. Deleting a task removes all of its
// subtasks in the same transaction, so no orphan subtask is ever
// observable. After each commit the store hands a Change descriptor to the
// configured Notifier (the live query engine), which re-evaluates affected
// subscriptions.
//
// Validation is uniform: entity text must be non-empty after trimming, a
// referenced id must exist. Violations surface as store.ErrValidation and
// store.ErrNotFound with no state change.
package tasks
