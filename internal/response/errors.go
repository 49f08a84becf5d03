package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTooManyLoginFails  ErrCode = "TOO_MANY_LOGIN_FAILURES"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrUserAccessOnly  ErrCode = "USER_ACCESS_ONLY"
	ErrAdminAccessOnly ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Registration ──────────────────────────────────────────────────
	ErrEmailTaken        ErrCode = "EMAIL_TAKEN"
	ErrNationalIDTaken   ErrCode = "NATIONAL_ID_TAKEN"
	ErrPhoneTaken        ErrCode = "PHONE_TAKEN"
	ErrRegistrationLimit ErrCode = "REGISTRATION_LIMIT"

	// ─── Exam gates ────────────────────────────────────────────────────
	ErrAlreadySubmitted     ErrCode = "ALREADY_SUBMITTED"
	ErrDeadlinePassed       ErrCode = "DEADLINE_PASSED"
	ErrStartsExhausted      ErrCode = "STARTS_EXHAUSTED"
	ErrAttemptsExhausted    ErrCode = "ATTEMPTS_EXHAUSTED"
	ErrSessionNotActive     ErrCode = "SESSION_NOT_ACTIVE"
	ErrInvalidChoice        ErrCode = "INVALID_CHOICE"
	ErrQuestionNotInSession ErrCode = "QUESTION_NOT_IN_SESSION"
	ErrEmptyContent         ErrCode = "EMPTY_CONTENT"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
// Every gate violation carries a specific reason the client can render
// verbatim.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email/national ID or password is incorrect."
	case ErrTooManyLoginFails:
		return "Too many failed login attempts. Please try again in a few minutes."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrUserAccessOnly:
		return "This resource is restricted to contestants."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "The request payload is invalid."

	// ─── Registration ──────────────────────────────────────────────────
	case ErrEmailTaken:
		return "This email is already registered."
	case ErrNationalIDTaken:
		return "This national ID is already registered."
	case ErrPhoneTaken:
		return "This phone number is already registered."
	case ErrRegistrationLimit:
		return "Too many registrations from this address. Please try again later."

	// ─── Exam gates ────────────────────────────────────────────────────
	case ErrAlreadySubmitted:
		return "You have already submitted the multiple-choice exam."
	case ErrDeadlinePassed:
		return "The submission deadline has passed."
	case ErrStartsExhausted:
		return "You have no multiple-choice attempts left."
	case ErrAttemptsExhausted:
		return "You have used all of your essay submissions."
	case ErrSessionNotActive:
		return "The exam has not started or has already ended."
	case ErrInvalidChoice:
		return "The selected answer index is invalid."
	case ErrQuestionNotInSession:
		return "That question is not part of your exam."
	case ErrEmptyContent:
		return "The essay content is empty."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
