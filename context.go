package tokenauth

import "context"

type clientIPContextKey struct{}
type identityContextKey struct{}

// Identity is the authentication context attached to a request. The zero
// value is the anonymous identity.
type Identity struct {
	Subject string
	Roles   []string
}

// Anonymous returns the identity used when no valid access token was presented.
func Anonymous() Identity {
	return Identity{}
}

// IsAnonymous reports whether no subject is attached.
func (i Identity) IsAnonymous() bool {
	return i.Subject == ""
}

// HasRole reports whether role is among the identity's roles.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the attached identity, or Anonymous when none
// is attached.
func IdentityFromContext(ctx context.Context) Identity {
	if ctx == nil {
		return Anonymous()
	}
	id, _ := ctx.Value(identityContextKey{}).(Identity)
	return id
}

// WithClientIP attaches the caller's IP address to ctx. The Engine records it
// in audit events and logs.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
