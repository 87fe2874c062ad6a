package middleware

import (
	"context"
	"net/http"

	"github.com/supersquad/eventsweb/internal/session"
)

type sessionKey struct{}

// WithSession stores the request's session in ctx.
func WithSession(ctx context.Context, store *session.Store) context.Context {
	return context.WithValue(ctx, sessionKey{}, store)
}

// SessionFrom returns the request's session, or nil outside the Session
// middleware.
func SessionFrom(ctx context.Context) *session.Store {
	store, _ := ctx.Value(sessionKey{}).(*session.Store)
	return store
}

// Session builds the Store for the browser behind each request and restores
// it before the page runs, so pages never observe the loading state.
func Session(sessions session.Factory, auth session.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			store := session.New(sessions.Storage(w, r), auth, *LoggerFromContext(ctx))
			store.Restore(ctx)

			next.ServeHTTP(w, r.WithContext(WithSession(ctx, store)))
		})
	}
}

// RequireSession sends visitors without a logged-in user to loginPath. A
// token whose user entry was discarded as corrupt does not count. Pages behind
// it can rely on SessionFrom returning a store with a user.
func RequireSession(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := SessionFrom(r.Context())
			if store == nil || store.IsLoading() || store.User() == nil {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
