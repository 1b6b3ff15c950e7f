package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidPIN       ErrCode = "INVALID_PIN"
	ErrPINNotConfigured ErrCode = "PIN_NOT_CONFIGURED"
	ErrTokenRequired    ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid     ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrNotQuizOwner    ErrCode = "NOT_QUIZ_OWNER"
	ErrNotSessionOwner ErrCode = "NOT_SESSION_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation         ErrCode = "VALIDATION_ERROR"
	ErrInvalidID          ErrCode = "INVALID_ID"
	ErrInvalidSessionCode ErrCode = "INVALID_SESSION_CODE"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrQuizNotFound    ErrCode = "QUIZ_NOT_FOUND"
	ErrSessionNotFound ErrCode = "SESSION_NOT_FOUND"

	// ─── Availability ──────────────────────────────────────────────────
	ErrPersistenceDisabled ErrCode = "PERSISTENCE_DISABLED"
	ErrRateLimitExceeded   ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidPIN:
		return "The teacher PIN is incorrect."
	case ErrPINNotConfigured:
		return "Teacher login is not configured on this server."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrNotQuizOwner:
		return "You do not own this quiz."
	case ErrNotSessionOwner:
		return "You do not own this session."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidSessionCode:
		return "Session codes are six letters or digits."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrQuizNotFound:
		return "Quiz not found."
	case ErrSessionNotFound:
		return "Session does not exist or has ended."

	// ─── Availability ──────────────────────────────────────────────────
	case ErrPersistenceDisabled:
		return "Quiz authoring requires persistence to be enabled."
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
