package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supersquad/eventsweb/internal/apiclient"
	"github.com/supersquad/eventsweb/internal/session"
)

type noAuth struct{}

func (noAuth) Login(context.Context, string, string) (apiclient.LoginResult, error) {
	return apiclient.LoginResult{}, &apiclient.Error{Kind: apiclient.ErrAuthentication, Message: apiclient.MsgLoginFailed}
}

// sharedStorage hands every request the same storage.
type sharedStorage struct{ storage session.Storage }

func (s sharedStorage) Storage(http.ResponseWriter, *http.Request) session.Storage { return s.storage }

func TestSession_RestoresBeforeHandler(t *testing.T) {
	storage := session.NewMemoryStorage(map[string]string{
		session.TokenKey: "T",
		session.UserKey:  `{"id":2,"email":"a@b.c"}`,
	})

	var store *session.Store
	handler := Session(sharedStorage{storage}, noAuth{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store = SessionFrom(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/events", nil))

	require.NotNil(t, store)
	assert.False(t, store.IsLoading())
	assert.Equal(t, "T", store.Token())
	assert.Equal(t, int64(2), store.User().ID)
}

func TestSessionFrom_Missing(t *testing.T) {
	assert.Nil(t, SessionFrom(context.Background()))
}

func TestRequireSession(t *testing.T) {
	guarded := func(storage session.Storage) *httptest.ResponseRecorder {
		handler := Session(sharedStorage{storage}, noAuth{})(RequireSession("/login")(http.HandlerFunc(okHandler)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/new", nil))
		return rec
	}

	anonymous := guarded(session.NewMemoryStorage(nil))
	assert.Equal(t, http.StatusSeeOther, anonymous.Code)
	assert.Equal(t, "/login", anonymous.Header().Get("Location"))

	tokenOnly := guarded(session.NewMemoryStorage(map[string]string{session.TokenKey: "T", session.UserKey: "null"}))
	assert.Equal(t, http.StatusSeeOther, tokenOnly.Code)

	loggedIn := guarded(session.NewMemoryStorage(map[string]string{
		session.TokenKey: "T",
		session.UserKey:  `{"id":2,"email":"a@b.c"}`,
	}))
	assert.Equal(t, http.StatusOK, loggedIn.Code)
}

func TestRequireSession_WithoutSessionMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireSession("/login")(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/new", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}
