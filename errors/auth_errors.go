// Package errors defines the broker's closed error taxonomy. Every failure
// leaving a broker component is one of these structured values; collaborator
// error shapes (driver errors, HTTP statuses, verifier failures) never cross a
// component boundary unclassified.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Code is the machine-readable error kind.
type Code string

const (
	CodeTokenMissing             Code = "token_missing"
	CodeTokenMalformed           Code = "token_malformed"
	CodeTokenExpired             Code = "token_expired"
	CodeWrongAudience            Code = "wrong_audience"
	CodeInvalidIssuer            Code = "invalid_issuer"
	CodeInvalidTimestamp         Code = "invalid_timestamp"
	CodeInvalidClaims            Code = "invalid_claims"
	CodeEmailNotVerified         Code = "email_not_verified"
	CodeDomainNotAllowed         Code = "domain_not_allowed"
	CodeServiceAccountRejected   Code = "service_account_rejected"
	CodeNotConfigured            Code = "not_configured"
	CodeIdentityPoolUnauthorized Code = "identity_pool_unauthorized"
	CodeIdentityPoolNotFound     Code = "identity_pool_not_found"
	CodeInvalidParameter         Code = "invalid_parameter"
	CodeNetworkError             Code = "network_error"
	CodeServiceUnavailable       Code = "service_unavailable"
	CodeRateLimited              Code = "rate_limited"
	CodeTokenConsistencyFailure  Code = "token_consistency_failure"
	CodeIdentityConflict         Code = "identity_conflict"
	CodeInvalidRefreshToken      Code = "invalid_or_expired_refresh_token"
	CodeUserNotFound             Code = "user_not_found"
	CodeInternal                 Code = "internal_error"
)

// Context tags the failure origin so callers can offer origin-appropriate
// recovery.
type Context string

const (
	ContextVerification Context = "verification"
	ContextSecurityGate Context = "security_gate"
	ContextExchange     Context = "exchange"
	ContextConsistency  Context = "consistency"
	ContextResolution   Context = "resolution"
	ContextRefresh      Context = "refresh"
	ContextSession      Context = "session"
)

// FallbackOption is a concrete recovery action suggested to the caller/UI,
// ordered by preference.
type FallbackOption string

const (
	FallbackRetryWithIdP FallbackOption = "retry_with_idp"
	FallbackUsePassword  FallbackOption = "use_password"
	FallbackNone         FallbackOption = "none"
)

// AuthError is the broker's uniform error value. Constructed exclusively by
// the constructors below; structured data lives in fields, never encoded into
// the message string.
type AuthError struct {
	Code            Code
	Message         string
	UserMessage     string
	FallbackOptions []FallbackOption
	Retryable       bool
	RetryDelay      time.Duration
	Context         Context

	cause error
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error { return e.cause }

// Is makes errors.Is(err, &AuthError{Code: ...}) match on code alone.
func (e *AuthError) Is(target error) bool {
	var other *AuthError
	if !stderrors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// WithContext tags the error with its failure origin. An already-set context
// is preserved: orchestrators add context, they never re-classify.
func (e *AuthError) WithContext(c Context) *AuthError {
	if e.Context != "" {
		return e
	}
	clone := *e
	clone.Context = c
	return &clone
}

// WithCause attaches the underlying collaborator error for diagnostics. The
// cause is reachable via errors.Unwrap but never rendered into UserMessage.
func (e *AuthError) WithCause(cause error) *AuthError {
	clone := *e
	clone.cause = cause
	return &clone
}

// As extracts an *AuthError from an error chain.
func As(err error) (*AuthError, bool) {
	var ae *AuthError
	if stderrors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// From returns err classified: an existing AuthError is tagged with ctx, any
// other error is wrapped as an internal failure. This is the last-resort path;
// components classify their own failures at the origin.
func From(err error, ctx Context) *AuthError {
	if ae, ok := As(err); ok {
		return ae.WithContext(ctx)
	}
	return NewInternal(err).WithContext(ctx)
}

func NewTokenMissing() *AuthError {
	return &AuthError{
		Code:            CodeTokenMissing,
		Message:         "identity token is missing",
		UserMessage:     "No sign-in token was provided. Please sign in again.",
		FallbackOptions: []FallbackOption{FallbackRetryWithIdP, FallbackUsePassword},
		Retryable:       true,
	}
}

func NewTokenMalformed(detail string) *AuthError {
	return &AuthError{
		Code:            CodeTokenMalformed,
		Message:         detail,
		UserMessage:     "The sign-in token could not be read. Please sign in again.",
		FallbackOptions: []FallbackOption{FallbackRetryWithIdP, FallbackUsePassword},
		Retryable:       true,
	}
}

func NewTokenExpired() *AuthError {
	return &AuthError{
		Code:            CodeTokenExpired,
		Message:         "identity token is expired or about to expire",
		UserMessage:     "Your sign-in session expired. Please sign in again.",
		FallbackOptions: []FallbackOption{FallbackRetryWithIdP},
		Retryable:       true,
	}
}

func NewWrongAudience() *AuthError {
	return &AuthError{
		Code:            CodeWrongAudience,
		Message:         "token audience does not match the configured client id",
		UserMessage:     "This sign-in token was issued for a different application.",
		FallbackOptions: []FallbackOption{FallbackRetryWithIdP},
		Retryable:       true,
	}
}

func NewInvalidIssuer(issuer string) *AuthError {
	return &AuthError{
		Code:            CodeInvalidIssuer,
		Message:         fmt.Sprintf("token issuer %q is not a known issuer", issuer),
		UserMessage:     "The sign-in token came from an unexpected source.",
		FallbackOptions: []FallbackOption{FallbackRetryWithIdP},
		Retryable:       true,
	}
}

func NewInvalidTimestamp(detail string) *AuthError {
	return &AuthError{
		Code:            CodeInvalidTimestamp,
		Message:         detail,
		UserMessage:     "The sign-in token has an invalid timestamp. Please check your device clock and try again.",
		FallbackOptions: []FallbackOption{FallbackRetryWithIdP},
		Retryable:       true,
	}
}

func NewInvalidClaims(detail string) *AuthError {
	return &AuthError{
		Code:            CodeInvalidClaims,
		Message:         detail,
		UserMessage:     "Your sign-in profile is incomplete. Please try again.",
		FallbackOptions: []FallbackOption{FallbackRetryWithIdP},
		Retryable:       true,
	}
}

func NewEmailNotVerified() *AuthError {
	return &AuthError{
		Code:            CodeEmailNotVerified,
		Message:         "email address is not verified with the identity provider",
		UserMessage:     "Please verify your email address with Google, then try again.",
		FallbackOptions: []FallbackOption{FallbackUsePassword},
		Retryable:       false,
	}
}

func NewDomainNotAllowed(domain string) *AuthError {
	return &AuthError{
		Code:            CodeDomainNotAllowed,
		Message:         fmt.Sprintf("email domain %q is not on the allow-list", domain),
		UserMessage:     "Accounts from this email domain cannot sign in here.",
		FallbackOptions: []FallbackOption{FallbackUsePassword},
		Retryable:       false,
	}
}

func NewServiceAccountRejected() *AuthError {
	return &AuthError{
		Code:            CodeServiceAccountRejected,
		Message:         "non-human account detected",
		UserMessage:     "Service accounts cannot sign in. Please use a personal account.",
		FallbackOptions: []FallbackOption{FallbackNone},
		Retryable:       false,
	}
}

func NewNotConfigured(detail string) *AuthError {
	return &AuthError{
		Code:            CodeNotConfigured,
		Message:         detail,
		UserMessage:     "Sign-in with Google is not available right now.",
		FallbackOptions: []FallbackOption{FallbackUsePassword},
		Retryable:       false,
	}
}

func NewIdentityPoolUnauthorized() *AuthError {
	return &AuthError{
		Code:            CodeIdentityPoolUnauthorized,
		Message:         "identity pool rejected the request as unauthorized",
		UserMessage:     "Sign-in with Google is not available right now.",
		FallbackOptions: []FallbackOption{FallbackUsePassword},
		Retryable:       false,
	}
}

func NewIdentityPoolNotFound() *AuthError {
	return &AuthError{
		Code:            CodeIdentityPoolNotFound,
		Message:         "identity pool or requested resource does not exist",
		UserMessage:     "Sign-in with Google is not available right now.",
		FallbackOptions: []FallbackOption{FallbackUsePassword},
		Retryable:       false,
	}
}

func NewInvalidParameter(detail string) *AuthError {
	return &AuthError{
		Code:            CodeInvalidParameter,
		Message:         detail,
		UserMessage:     "Sign-in with Google is not available right now.",
		FallbackOptions: []FallbackOption{FallbackUsePassword},
		Retryable:       false,
	}
}

func NewNetworkError(cause error) *AuthError {
	return &AuthError{
		Code:            CodeNetworkError,
		Message:         "network failure while contacting an authentication service",
		UserMessage:     "We could not reach the sign-in service. Please try again in a moment.",
		FallbackOptions: []FallbackOption{FallbackRetryWithIdP, FallbackUsePassword},
		Retryable:       true,
		RetryDelay:      2 * time.Second,
		cause:           cause,
	}
}

func NewServiceUnavailable(cause error) *AuthError {
	return &AuthError{
		Code:            CodeServiceUnavailable,
		Message:         "authentication service is temporarily unavailable",
		UserMessage:     "The sign-in service is temporarily unavailable. Please try again shortly.",
		FallbackOptions: []FallbackOption{FallbackRetryWithIdP, FallbackUsePassword},
		Retryable:       true,
		RetryDelay:      5 * time.Second,
		cause:           cause,
	}
}

func NewRateLimited() *AuthError {
	return &AuthError{
		Code:            CodeRateLimited,
		Message:         "too many authentication attempts",
		UserMessage:     "Too many sign-in attempts. Please wait a minute and try again.",
		FallbackOptions: []FallbackOption{FallbackNone},
		Retryable:       true,
		RetryDelay:      time.Minute,
	}
}

func NewTokenConsistencyFailure() *AuthError {
	return &AuthError{
		Code:            CodeTokenConsistencyFailure,
		Message:         "exchanged tokens do not embed the verified subject",
		UserMessage:     "Something went wrong completing your sign-in. Please try again.",
		FallbackOptions: []FallbackOption{FallbackRetryWithIdP},
		Retryable:       true,
	}
}

func NewIdentityConflict() *AuthError {
	return &AuthError{
		Code:            CodeIdentityConflict,
		Message:         "two distinct local users match the incoming identity",
		UserMessage:     "Your account could not be matched unambiguously. Please contact support.",
		FallbackOptions: []FallbackOption{FallbackUsePassword, FallbackNone},
		Retryable:       false,
	}
}

func NewInvalidRefreshToken() *AuthError {
	return &AuthError{
		Code:            CodeInvalidRefreshToken,
		Message:         "refresh token was rejected or has expired",
		UserMessage:     "Your session expired. Please sign in again.",
		FallbackOptions: []FallbackOption{FallbackRetryWithIdP, FallbackUsePassword},
		Retryable:       false,
	}
}

func NewUserNotFound() *AuthError {
	return &AuthError{
		Code:            CodeUserNotFound,
		Message:         "no user record matches the presented credentials",
		UserMessage:     "We could not find your account. Please sign in again.",
		FallbackOptions: []FallbackOption{FallbackRetryWithIdP},
		Retryable:       false,
	}
}

func NewInternal(cause error) *AuthError {
	return &AuthError{
		Code:            CodeInternal,
		Message:         "unexpected internal failure",
		UserMessage:     "Something went wrong. Please try again.",
		FallbackOptions: []FallbackOption{FallbackRetryWithIdP},
		Retryable:       true,
		cause:           cause,
	}
}
