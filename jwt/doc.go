// Package jwt signs and verifies the HS256 bearer tokens used for access and
// refresh, carrying sub, roles (access only), token_type, iat, exp and jti.
//
// Verification is fully stateless. Whether a refresh token is still
// acceptable is decided by the refresh store, not here.
package jwt
