package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"identity-link/internal/auth"
	"identity-link/internal/auth/resolver"
	"identity-link/internal/auth/token"
	"identity-link/internal/logger"
)

// unexported, collision-proof context keys
type (
	entityContextKeyType  struct{}
	subjectContextKeyType struct{}
)

var (
	entityKey  = entityContextKeyType{}
	subjectKey = subjectContextKeyType{}
)

// EntityFromContext extracts the authenticated local record from context.
func EntityFromContext(ctx context.Context) (auth.Entity, bool) {
	e, ok := ctx.Value(entityKey).(auth.Entity)
	return e, ok
}

// SubjectFromContext extracts the verified token subject from context.
func SubjectFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey).(string)
	return sub, ok && sub != ""
}

// TokenDecoder verifies bearer tokens.
type TokenDecoder interface {
	Decode(ctx context.Context, raw string) (*token.Claims, bool)
}

// Authenticator turns a request's bearer token into a local record.
type Authenticator struct {
	Decoder    TokenDecoder
	Resolver   resolver.Resolver
	QueryParam string // replaces the Authorization header when set
}

func NewAuthenticator(dec TokenDecoder, res resolver.Resolver, queryParam string) *Authenticator {
	return &Authenticator{Decoder: dec, Resolver: res, QueryParam: queryParam}
}

// Token returns the raw token. With a query parameter configured only that
// parameter is read; otherwise the last field of the Authorization header.
func (a *Authenticator) Token(r *http.Request) string {
	if a.QueryParam != "" {
		return r.URL.Query().Get(a.QueryParam)
	}
	fields := strings.Fields(r.Header.Get("Authorization"))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// CurrentEntity returns the local record the request authenticates as, or nil.
func (a *Authenticator) CurrentEntity(r *http.Request) auth.Entity {
	e, _ := a.authenticate(r)
	return e
}

func (a *Authenticator) authenticate(r *http.Request) (auth.Entity, string) {
	raw := a.Token(r)
	if raw == "" {
		return nil, ""
	}

	claims, ok := a.Decoder.Decode(r.Context(), raw)
	if !ok {
		return nil, ""
	}

	sub := claims.Subject()
	e, err := a.Resolver.Resolve(r.Context(), sub)
	if err != nil {
		if !errors.Is(err, auth.ErrNotFound) {
			logger.Error("resolve token subject failed", map[string]any{
				"subject": sub,
				"error":   err.Error(),
			})
		}
		return nil, ""
	}
	return e, sub
}

func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e, sub := a.authenticate(r)
		if e == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), entityKey, e)
		ctx = context.WithValue(ctx, subjectKey, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
