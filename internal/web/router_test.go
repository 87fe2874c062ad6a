package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supersquad/eventsweb/internal/apiclient"
	"github.com/supersquad/eventsweb/internal/audit"
	"github.com/supersquad/eventsweb/internal/domain/events"
	"github.com/supersquad/eventsweb/internal/session"
	"github.com/supersquad/eventsweb/internal/web/middleware"
)

// fakeAPI is an in-process stand-in for the remote events API.
type fakeAPI struct {
	mu       sync.Mutex
	events   map[int64]events.Event
	list     []events.Event
	queries  []string
	auth     []string
	bodies   []map[string]any
	statuses map[string]int // "METHOD /path" -> forced status
	messages map[string]string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		events:   map[int64]events.Event{},
		statuses: map[string]int{},
		messages: map[string]string{},
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.Method + " " + r.URL.Path
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			f.bodies = append(f.bodies, body)
		}
	}

	if status, ok := f.statuses[key]; ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if msg := f.messages[key]; msg != "" {
			_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
		}
		return
	}

	switch {
	case key == "GET /events":
		f.queries = append(f.queries, r.URL.RawQuery)
		writeJSON(w, http.StatusOK, f.list)
	case key == "POST /login":
		writeJSON(w, http.StatusOK, map[string]any{"token": "T2", "user": map[string]any{"id": 2, "email": "owner@example.com"}})
	case key == "POST /events":
		writeJSON(w, http.StatusCreated, events.Event{ID: 99, UserID: 2})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/events/"):
		for _, e := range f.events {
			if r.URL.Path == "/events/"+strconv.FormatInt(e.ID, 10) {
				writeJSON(w, http.StatusOK, e)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no such event"})
	case r.Method == http.MethodPut:
		writeJSON(w, http.StatusOK, events.Event{ID: 5, UserID: 2})
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeAPI) lastBody() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bodies) == 0 {
		return nil
	}
	return f.bodies[len(f.bodies)-1]
}

func (f *fakeAPI) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.auth) == 0 {
		return ""
	}
	return f.auth[len(f.auth)-1]
}

// sharedSessions gives every request the same browser storage.
type sharedSessions struct{ storage session.Storage }

func (s sharedSessions) Storage(http.ResponseWriter, *http.Request) session.Storage { return s.storage }

type testApp struct {
	api     *fakeAPI
	storage *session.MemoryStorage
	handler http.Handler
}

func newTestApp(t *testing.T, persisted map[string]string, deps ...func(*Deps)) *testApp {
	t.Helper()
	api := newFakeAPI()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	templates, err := LoadTemplates()
	require.NoError(t, err)

	storage := session.NewMemoryStorage(persisted)
	d := Deps{
		API:       apiclient.NewClient(server.URL),
		Sessions:  sharedSessions{storage},
		Templates: templates,
		Logger:    zerolog.Nop(),
		Version:   "test",
	}
	for _, fn := range deps {
		fn(&d)
	}
	return &testApp{api: api, storage: storage, handler: NewRouter(d)}
}

func loggedInAs(id int64, email string) map[string]string {
	user, _ := json.Marshal(events.User{ID: id, Email: email})
	return map[string]string{session.TokenKey: "T", session.UserKey: string(user)}
}

func (a *testApp) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (a *testApp) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func validForm() url.Values {
	return url.Values{
		"name":        {"Go Workshop"},
		"description": {"Hands-on concurrency"},
		"location":    {"Toronto"},
		"date":        {"2026-07-10"},
		"start_time":  {"19:00"},
		"image_url":   {"https://example.com/a.png"},
	}
}

var meetup = events.Event{
	ID:          5,
	Name:        "Meetup",
	Description: "Monthly meetup",
	Location:    "Hall",
	Date:        "2026-07-10",
	StartTime:   "18:30",
	ImageURL:    "https://example.com/m.png",
	UserID:      2,
}

func TestRoot_RedirectsToEvents(t *testing.T) {
	app := newTestApp(t, nil)
	rec := app.get("/")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/events", rec.Header().Get("Location"))
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t, nil)
	rec := app.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"test"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestListEvents_NoFilters(t *testing.T) {
	app := newTestApp(t, nil)
	app.api.list = []events.Event{meetup}

	rec := app.get("/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Meetup")
	assert.Contains(t, rec.Body.String(), "Jul 10, 2026")
	assert.Contains(t, rec.Body.String(), `href="/events/5"`)
	assert.Equal(t, []string{""}, app.api.queries)
	assert.Contains(t, rec.Body.String(), `href="/login"`, "anonymous navbar offers login")
}

func TestListEvents_SearchOnly(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.get("/events?search=workshop&date=")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"search=workshop"}, app.api.queries)
	assert.Contains(t, rec.Body.String(), `value="workshop"`)
}

func TestListEvents_EmptyAndDegraded(t *testing.T) {
	app := newTestApp(t, nil)
	app.api.statuses["GET /events"] = http.StatusInternalServerError

	rec := app.get("/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No events found. Try adjusting your filters.")
}

func TestShowEvent_OwnerControls(t *testing.T) {
	tests := []struct {
		name      string
		persisted map[string]string
		wantOwner bool
	}{
		{name: "owner", persisted: loggedInAs(2, "owner@example.com"), wantOwner: true},
		{name: "other user", persisted: loggedInAs(3, "other@example.com")},
		{name: "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, tt.persisted)
			app.api.events[5] = meetup

			rec := app.get("/events/5")
			require.Equal(t, http.StatusOK, rec.Code)
			body := rec.Body.String()
			assert.Contains(t, body, "Friday, July 10, 2026")
			if tt.wantOwner {
				assert.Contains(t, body, `href="/events/5/edit"`)
				assert.Contains(t, body, `href="/events/5/delete"`)
			} else {
				assert.NotContains(t, body, `href="/events/5/edit"`)
				assert.NotContains(t, body, `href="/events/5/delete"`)
			}
		})
	}
}

func TestShowEvent_NotFound(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.get("/events/404")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Event not found")
	assert.NotContains(t, rec.Body.String(), "no such event", "server message is not shown for a missing event")

	rec = app.get("/events/abc")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Event not found")
}

func TestShowEvent_APIUnreachable(t *testing.T) {
	templates, err := LoadTemplates()
	require.NoError(t, err)
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	handler := NewRouter(Deps{
		API:       apiclient.NewClient(server.URL),
		Sessions:  sharedSessions{session.NewMemoryStorage(nil)},
		Templates: templates,
		Logger:    zerolog.Nop(),
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/5", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to load event")
}

func TestGuardedPages_RedirectAnonymous(t *testing.T) {
	app := newTestApp(t, nil)

	for _, path := range []string{"/events/new", "/events/5/edit", "/events/5/delete"} {
		rec := app.get(path)
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, "/login", rec.Header().Get("Location"), path)
	}

	rec := app.post("/events", validForm())
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, app.api.bodies, "nothing reaches the API")
}

func TestNewEvent_RendersForm(t *testing.T) {
	app := newTestApp(t, loggedInAs(2, "owner@example.com"))

	rec := app.get("/events/new")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Create a New Event")
	assert.Contains(t, body, `action="/events"`)
	assert.Contains(t, body, "owner@example.com")
}

func TestCreateEvent_RequiredFields(t *testing.T) {
	app := newTestApp(t, loggedInAs(2, "owner@example.com"))
	form := validForm()
	form.Set("location", "")

	rec := app.post("/events", form)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please fill in all required fields")
	assert.Contains(t, rec.Body.String(), `value="Go Workshop"`, "entries are kept")
	assert.Empty(t, app.api.bodies)
}

func TestCreateEvent_Success(t *testing.T) {
	app := newTestApp(t, loggedInAs(2, "owner@example.com"))

	rec := app.post("/events", validForm())
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/events", rec.Header().Get("Location"))

	assert.Equal(t, "Bearer T", app.api.lastAuth())
	body := app.api.lastBody()
	require.NotNil(t, body)
	assert.Equal(t, "Go Workshop", body["name"])
	assert.NotContains(t, body, "end_time")
	assert.NotContains(t, body, "max_attendees")
	assert.NotContains(t, body, "organizer")
}

func TestCreateEvent_IncludesOptionalFields(t *testing.T) {
	app := newTestApp(t, loggedInAs(2, "owner@example.com"))
	form := validForm()
	form.Set("end_time", "21:00")
	form.Set("max_attendees", "100")
	form.Set("organizer", "SuperSquad")

	rec := app.post("/events", form)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	body := app.api.lastBody()
	assert.Equal(t, "21:00", body["end_time"])
	assert.Equal(t, float64(100), body["max_attendees"])
	assert.Equal(t, "SuperSquad", body["organizer"])
}

func TestCreateEvent_ServerRejects(t *testing.T) {
	app := newTestApp(t, loggedInAs(2, "owner@example.com"))
	app.api.statuses["POST /events"] = http.StatusUnprocessableEntity
	app.api.messages["POST /events"] = "Date must be in the future"

	rec := app.post("/events", validForm())
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Date must be in the future")
	assert.Contains(t, rec.Body.String(), `value="Toronto"`)
}

func TestEditEvent_Ownership(t *testing.T) {
	owner := newTestApp(t, loggedInAs(2, "owner@example.com"))
	owner.api.events[5] = meetup

	rec := owner.get("/events/5/edit")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="Meetup"`)
	assert.Contains(t, rec.Body.String(), `action="/events/5"`)
	assert.Contains(t, rec.Body.String(), "Update Event")

	other := newTestApp(t, loggedInAs(3, "other@example.com"))
	other.api.events[5] = meetup

	rec = other.get("/events/5/edit")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "You do not have permission to edit this event")
	assert.NotContains(t, rec.Body.String(), `value="Meetup"`)
}

func TestEditEvent_NotFound(t *testing.T) {
	app := newTestApp(t, loggedInAs(2, "owner@example.com"))

	rec := app.get("/events/77/edit")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Event not found")
}

func TestUpdateEvent(t *testing.T) {
	app := newTestApp(t, loggedInAs(2, "owner@example.com"))
	app.api.events[5] = meetup

	rec := app.post("/events/5", validForm())
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/events", rec.Header().Get("Location"))
	assert.Equal(t, "Go Workshop", app.api.lastBody()["name"])

	other := newTestApp(t, loggedInAs(3, "other@example.com"))
	other.api.events[5] = meetup
	rec = other.post("/events/5", validForm())
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, other.api.bodies)
}

func TestDeleteEvent(t *testing.T) {
	app := newTestApp(t, loggedInAs(2, "owner@example.com"))
	app.api.events[5] = meetup

	rec := app.get("/events/5/delete")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Are you sure you want to delete")

	rec = app.post("/events/5/delete", url.Values{})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/events", rec.Header().Get("Location"))
}

func TestDeleteEvent_Failure(t *testing.T) {
	app := newTestApp(t, loggedInAs(2, "owner@example.com"))
	app.api.statuses["DELETE /events/5"] = http.StatusForbidden
	app.api.messages["DELETE /events/5"] = "not yours"

	rec := app.post("/events/5/delete", url.Values{})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to delete event")
}

func TestLogin(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.get("/login")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.post("/login", url.Values{"email": {"owner@example.com"}, "password": {"pw"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/events", rec.Header().Get("Location"))

	token, ok, err := app.storage.Get(t.Context(), session.TokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "T2", token)

	rec = app.get("/login")
	assert.Equal(t, http.StatusFound, rec.Code, "logged-in users skip the form")

	rec = app.get("/events")
	assert.Contains(t, rec.Body.String(), "owner@example.com")
	assert.Contains(t, rec.Body.String(), "Logout")
}

func TestLogin_Failures(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.post("/login", url.Values{"email": {"owner@example.com"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please fill in all required fields")

	app.api.statuses["POST /login"] = http.StatusUnauthorized
	app.api.messages["POST /login"] = "Invalid credentials"
	rec = app.post("/login", url.Values{"email": {"owner@example.com"}, "password": {"bad"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid credentials")
	assert.Contains(t, rec.Body.String(), `value="owner@example.com"`)

	_, ok, err := app.storage.Get(t.Context(), session.TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogin_RateLimited(t *testing.T) {
	app := newTestApp(t, nil, func(d *Deps) {
		d.LoginLimiter = func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, middleware.TooManyLoginAttempts, http.StatusTooManyRequests)
			})
		}
	})

	rec := app.post("/login", url.Values{"email": {"a@b.c"}, "password": {"pw"}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLogin_APIUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	app := newTestApp(t, nil, func(d *Deps) {
		d.API = apiclient.NewClient(server.URL)
	})

	rec := app.post("/login", url.Values{"email": {"owner@example.com"}, "password": {"pw"}})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), apiclient.MsgNetwork)

	_, ok, err := app.storage.Get(t.Context(), session.TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogout(t *testing.T) {
	app := newTestApp(t, loggedInAs(2, "owner@example.com"))

	rec := app.post("/logout", url.Values{})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	_, ok, err := app.storage.Get(t.Context(), session.TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = app.storage.Get(t.Context(), session.UserKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCSRF_RejectsForgedPost(t *testing.T) {
	app := newTestApp(t, loggedInAs(2, "owner@example.com"), func(d *Deps) {
		d.CSRF = middleware.CSRFProtection([]byte(strings.Repeat("k", 32)), false)
	})

	rec := app.post("/events", validForm())
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, app.api.bodies)

	rec = app.get("/events/new")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="`+middleware.CSRFFieldName+`"`)
}

func TestCSRF_LoginWithRenderedToken(t *testing.T) {
	app := newTestApp(t, nil, func(d *Deps) {
		d.CSRF = middleware.CSRFProtection([]byte(strings.Repeat("k", 32)), false)
	})

	page := app.get("/login")
	require.Equal(t, http.StatusOK, page.Code)
	_, rest, ok := strings.Cut(page.Body.String(), `name="`+middleware.CSRFFieldName+`" value="`)
	require.True(t, ok, "login form carries the token field")
	token, _, _ := strings.Cut(rest, `"`)
	require.NotEmpty(t, token)

	form := url.Values{
		"email":                  {"owner@example.com"},
		"password":               {"pw"},
		middleware.CSRFFieldName: {token},
	}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range page.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/events", rec.Header().Get("Location"))
	token, ok, err := app.storage.Get(t.Context(), session.TokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "T2", token)
}

func TestCorruptSessionIsHealedOnPageLoad(t *testing.T) {
	app := newTestApp(t, map[string]string{session.TokenKey: "T", session.UserKey: "null"})

	rec := app.get("/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/login"`)

	_, ok, err := app.storage.Get(t.Context(), session.UserKey)
	require.NoError(t, err)
	assert.False(t, ok)
	token, ok, err := app.storage.Get(t.Context(), session.TokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "T", token)
}

func TestAuditTrail(t *testing.T) {
	var buf bytes.Buffer
	app := newTestApp(t, nil, func(d *Deps) {
		d.Audit = audit.NewLogger(zerolog.New(&buf))
	})
	app.api.events[5] = meetup

	app.post("/login", url.Values{"email": {"owner@example.com"}, "password": {"pw"}})
	app.post("/events/5/delete", url.Values{})
	app.post("/logout", url.Values{})

	var actions []string
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var logged struct {
			Audit audit.Entry `json:"audit"`
		}
		require.NoError(t, json.Unmarshal(line, &logged))
		assert.Equal(t, "owner@example.com", logged.Audit.User)
		assert.Equal(t, audit.StatusSuccess, logged.Audit.Status)
		assert.NotEmpty(t, logged.Audit.RequestID)
		actions = append(actions, logged.Audit.Action)
	}
	assert.Equal(t, []string{audit.ActionLogin, audit.ActionEventDelete, audit.ActionLogout}, actions)
}
