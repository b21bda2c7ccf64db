package httputil

// Machine-readable error codes returned alongside error messages.
// Clients should branch on these, never on the human-readable text.
const (
	CodeInvalidRequestBody = "INVALID_REQUEST_BODY"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeCooldownActive     = "COOLDOWN_ACTIVE"

	CodeEmailAlreadyExists = "EMAIL_ALREADY_EXISTS"
	CodeEmailRequired      = "EMAIL_REQUIRED"
	CodeUsernameRequired   = "USERNAME_REQUIRED"
	CodePasswordRequired   = "PASSWORD_REQUIRED"
	CodePasswordTooShort   = "PASSWORD_TOO_SHORT"
	CodeInvalidEmailFormat = "INVALID_EMAIL_FORMAT"

	CodeInvalidCredentials        = "INVALID_CREDENTIALS"
	CodeMissingAuth               = "MISSING_AUTH"
	CodeInvalidAuthHeader         = "INVALID_AUTH_HEADER"
	CodeInvalidToken              = "INVALID_TOKEN"
	CodeTokenExpired              = "TOKEN_EXPIRED"
	CodeRefreshTokenRequired      = "REFRESH_TOKEN_REQUIRED"
	CodeInvalidRefreshToken       = "INVALID_REFRESH_TOKEN"
	CodeVerificationTokenRequired = "VERIFICATION_TOKEN_REQUIRED"
	CodeVerificationFailed        = "VERIFICATION_FAILED"
	CodeAlreadyConfirmed          = "ALREADY_CONFIRMED"
	CodeInvalidResetToken         = "INVALID_RESET_TOKEN"
	CodeUserNotFound              = "USER_NOT_FOUND"

	CodeAdminOnly       = "ADMIN_ONLY"
	CodeInvalidFileType = "INVALID_FILE_TYPE"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeUploadFailed    = "UPLOAD_FAILED"

	CodeContactNotFound = "CONTACT_NOT_FOUND"
)
