package errors

import "errors"

var (
	// ErrCredentialGeneration means the configured password constraints cannot
	// be satisfied. Nothing was written.
	ErrCredentialGeneration = errors.New("credential generation failed")

	// ErrDatabaseUnavailable is transient; the caller may retry the same step.
	ErrDatabaseUnavailable = errors.New("database unavailable")

	// ErrStagingConflict means the secret's stage labels are in a configuration
	// no step ordering can produce. Requires an operator.
	ErrStagingConflict = errors.New("staging conflict")

	ErrVersionNotFound      = errors.New("secret version not found")
	ErrVersionExists        = errors.New("secret version already exists with a different value")
	ErrInvalidRequest       = errors.New("invalid rotation request")
	ErrInvalidSecret        = errors.New("invalid secret value")
	ErrAuthenticationFailed = errors.New("database authentication failed")
	ErrUnknownStep          = errors.New("unknown rotation step")
	ErrInvalidConfig        = errors.New("invalid configuration")
)

// Retryable reports whether err is worth retrying without operator action.
func Retryable(err error) bool {
	return errors.Is(err, ErrDatabaseUnavailable)
}

// Kind returns a short label for err, suitable for logs and history records.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCredentialGeneration):
		return "CredentialGenerationError"
	case errors.Is(err, ErrDatabaseUnavailable):
		return "DatabaseUnavailableError"
	case errors.Is(err, ErrStagingConflict):
		return "StagingConflictError"
	case errors.Is(err, ErrAuthenticationFailed):
		return "AuthenticationError"
	case errors.Is(err, ErrInvalidSecret):
		return "InvalidSecretError"
	case errors.Is(err, ErrVersionNotFound):
		return "VersionNotFoundError"
	case errors.Is(err, ErrVersionExists):
		return "VersionExistsError"
	case errors.Is(err, ErrInvalidRequest):
		return "InvalidRequestError"
	case errors.Is(err, ErrUnknownStep):
		return "UnknownStepError"
	case errors.Is(err, ErrInvalidConfig):
		return "ConfigError"
	default:
		return "Error"
	}
}
