package auth

import "errors"

// Token errors. The middleware maps each of them onto a 401 response.
var (
	// ErrMissingToken means the request carried no bearer token.
	ErrMissingToken = errors.New("authentication token is missing")

	// ErrInvalidToken covers malformed tokens, bad signatures and unexpected
	// signing methods.
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken means the exp claim is in the past.
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid means the nbf claim is in the future.
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrRevokedToken means the token's access token record is gone, usually
	// because the user logged out.
	ErrRevokedToken = errors.New("authentication token has been revoked")
)
