package model

import "errors"

// Error kinds surfaced by a signing run. Each failing step wraps one of these
// with %w so callers can classify with errors.Is while the original cause stays
// in the message. Runs are fail-fast: the first failing step's error propagates
// unrecovered and already-applied clears or persists are not rolled back.
var (
	// ErrAuthentication: the signing authority rejected the account credentials.
	ErrAuthentication = errors.New("signing authority authentication failed")

	// ErrBuildInProgress: a build for the same project/platform is queued or running.
	ErrBuildInProgress = errors.New("build already in progress")

	// ErrAppRegistration: the remote app record could not be ensured.
	ErrAppRegistration = errors.New("app registration failed")

	// ErrPromptAborted: the user (or plan) aborted the credential prompt.
	ErrPromptAborted = errors.New("credential prompt aborted")

	// ErrGeneration: the signing authority failed to produce requested credentials.
	ErrGeneration = errors.New("credential generation failed")

	// ErrPersist: the credential backend rejected the merged credential set.
	ErrPersist = errors.New("credential persist failed")

	// ErrMetadataFetch: project metadata could not be fetched from the publish service.
	ErrMetadataFetch = errors.New("project metadata fetch failed")
)
