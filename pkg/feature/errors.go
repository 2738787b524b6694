package feature

import "errors"

// Predefined errors for the feature package.
var (
	// ErrFlagNotFound indicates that the requested feature flag was not found.
	ErrFlagNotFound = errors.New("feature flag not found")

	// ErrFlagExists indicates that a flag with the same name is already stored.
	ErrFlagExists = errors.New("feature flag already exists")

	// ErrInvalidFlag indicates that the provided flag parameters are invalid.
	ErrInvalidFlag = errors.New("invalid feature flag parameters")

	// ErrProviderNotInitialized indicates the feature provider is not properly initialized.
	ErrProviderNotInitialized = errors.New("feature provider not initialized")

	// ErrInvalidStrategy indicates an issue with the rollout strategy configuration.
	ErrInvalidStrategy = errors.New("invalid feature rollout strategy")

	// ErrOperationFailed indicates a general failure during an operation.
	ErrOperationFailed = errors.New("feature operation failed")

	// ErrInvalidSeedFile indicates the seed file could not be parsed.
	ErrInvalidSeedFile = errors.New("invalid feature flag seed file")
)
