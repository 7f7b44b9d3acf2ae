// Package userctx carries the dashboard user through request contexts.
package userctx

import "context"

type contextKey struct{}

// User is whoever passed the dashboard access check
type User struct {
	ID    string
	Email string
}

// Name returns the email, falling back to the ID
func (u User) Name() string {
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

// WithUser adds u to ctx
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext returns the user stored by WithUser
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(contextKey{}).(User)
	return u, ok
}

// Name returns the name of the user in ctx, or "anonymous"
func Name(ctx context.Context) string {
	if u, ok := FromContext(ctx); ok && u.Name() != "" {
		return u.Name()
	}
	return "anonymous"
}
