package auth

import "errors"

var (
	// ErrConfigNotFound signals an unknown subdomain. Responses must not
	// reveal whether the org exists.
	ErrConfigNotFound = errors.New("auth: org config not found")
	// ErrInvalidState indicates the state token failed signature or
	// freshness checks.
	ErrInvalidState = errors.New("auth: invalid state")
	// ErrStateExpiredOrReplayed indicates the cached auth state was already
	// consumed or expired from the cache.
	ErrStateExpiredOrReplayed = errors.New("auth: state expired or replayed")
	// ErrContextMismatch indicates the callback arrived from a different
	// client than the one that started the flow.
	ErrContextMismatch = errors.New("auth: request context mismatch")
	// ErrNonceMismatch indicates the ID token nonce does not match the one
	// issued for this login attempt.
	ErrNonceMismatch = errors.New("auth: nonce mismatch")
	// ErrIDTokenInvalid indicates the ID token failed parsing, signature
	// verification, or standard claim validation.
	ErrIDTokenInvalid = errors.New("auth: id token invalid")
	// ErrTokenExchangeFailed indicates the provider rejected the code
	// exchange. The code is single-use so the request is not retried.
	ErrTokenExchangeFailed = errors.New("auth: token exchange failed")
	// ErrPersistence wraps user/session store failures.
	ErrPersistence = errors.New("auth: persistence error")
	// ErrSessionExpired indicates an inactive or expired session.
	ErrSessionExpired = errors.New("auth: session expired")
	// ErrInvalidCookie indicates a malformed or tampered session cookie.
	// Never distinguished from ErrSessionExpired in client responses.
	ErrInvalidCookie = errors.New("auth: invalid session cookie")
)
