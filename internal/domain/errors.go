package domain

import "errors"

var (
	// ErrValidation marks caller input errors that are never retried.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks lookups that resolved to no entity.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks state transitions rejected by the current entity state.
	ErrConflict = errors.New("conflict")

	// ErrDuplicateKey marks a letter type key collision (case-insensitive).
	ErrDuplicateKey = errors.New("duplicate letter type key")

	// ErrDuplicateFieldKey marks a field key collision within one letter type.
	ErrDuplicateFieldKey = errors.New("duplicate field key")

	// ErrMissingRequiredField marks a required field that resolved to empty
	// after merging extra fields, row data, and defaults.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrRenderFailed marks a renderer failure; not retriable without
	// operator intervention.
	ErrRenderFailed = errors.New("render failed")

	// ErrUnresolvedReference marks a webhook event whose provider message id
	// does not resolve to a known email job.
	ErrUnresolvedReference = errors.New("unresolved provider message id")

	// ErrProvisioningConflict marks a concurrent DDL race; retried internally
	// before being surfaced.
	ErrProvisioningConflict = errors.New("provisioning conflict")
)
