package domain

import "errors"

// Common domain errors
var (
	// Memory errors
	ErrMemoryNotFound        = errors.New("memory not found")
	ErrEpisodicImmutable     = errors.New("episodic entries cannot be modified")
	ErrNoEmbeddingService    = errors.New("no embedding service configured")
	ErrMemoryCaptureDisabled = errors.New("memory capture is disabled in the user profile")
	ErrConfidenceTooLow      = errors.New("confidence below write threshold")
	ErrVerifierRejected      = errors.New("write rejected by verifier")
	ErrResetNotConfirmed     = errors.New("full reset requires explicit confirmation")
	ErrDeleteNotConfirmed    = errors.New("deletion requires explicit confirmation")
	ErrStoreUnavailable      = errors.New("memory store unavailable")

	// Encryption errors
	ErrDecryptFailed = errors.New("decryption failed: data is corrupt or the key is wrong")

	// Tool errors
	ErrToolNotFound            = errors.New("tool not found")
	ErrToolNotExecutable       = errors.New("tool manifest is not approved for execution")
	ErrInvalidStatusTransition = errors.New("invalid manifest status transition")
	ErrInvalidManifest         = errors.New("invalid tool manifest")
	ErrExecutionNotFound       = errors.New("tool execution not found")
	ErrSandboxUnavailable      = errors.New("sandbox executor unavailable")
	ErrToolTimeout             = errors.New("tool execution timed out")

	// LLM errors
	ErrLLMUnavailable   = errors.New("LLM service unavailable")
	ErrLLMRequestFailed = errors.New("LLM request failed")

	// Validation errors
	ErrInvalidID    = errors.New("invalid ID format")
	ErrEmptyContent = errors.New("content cannot be empty")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")
)

// DomainError wraps a domain error with additional context
type DomainError struct {
	Err     error
	Message string
	Code    string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func NewDomainError(err error, message string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
	}
}

func NewDomainErrorWithCode(err error, message, code string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}
