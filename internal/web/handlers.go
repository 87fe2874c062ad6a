package web

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/supersquad/eventsweb/internal/apiclient"
	"github.com/supersquad/eventsweb/internal/audit"
	"github.com/supersquad/eventsweb/internal/domain/events"
	"github.com/supersquad/eventsweb/internal/session"
	"github.com/supersquad/eventsweb/internal/web/middleware"
)

// Messages shown in a page's error state.
const (
	MsgEventNotFound   = "Event not found"
	MsgLoadFailed      = "Failed to load event"
	MsgDeleteFailed    = "Failed to delete event"
	MsgEditForbidden   = "You do not have permission to edit this event"
	MsgDeleteForbidden = "You do not have permission to delete this event"
	msgUnknownFailure  = "An error occurred"
)

const (
	loginPath  = "/login"
	eventsPath = "/events"
)

// EventsAPI is what the pages need from the remote API. *apiclient.Client
// satisfies it.
type EventsAPI interface {
	session.Authenticator
	ListEvents(ctx context.Context, filters events.Filters) []events.Event
	GetEvent(ctx context.Context, id int64) (events.Event, error)
	CreateEvent(ctx context.Context, token string, payload events.Payload) (events.Event, error)
	UpdateEvent(ctx context.Context, token string, id int64, payload events.Payload) (events.Event, error)
	DeleteEvent(ctx context.Context, token string, id int64) error
}

// view is the data every page template receives.
type view struct {
	Title     string
	Page      Page
	Session   session.Session
	CSRFField template.HTML

	Events  []events.Event
	Filters events.Filters

	Event   events.Event
	CanEdit bool

	Heading     string
	ShowForm    bool
	Form        events.Input
	FormAction  string
	SubmitLabel string
	CancelURL   string

	Email string
}

// Handler serves the event pages.
type Handler struct {
	api       EventsAPI
	templates *Templates
	audit     *audit.Logger
	now       func() time.Time
}

// NewHandler creates the page handler. Logins, logouts and event writes are
// recorded to auditLog.
func NewHandler(api EventsAPI, templates *Templates, auditLog *audit.Logger) *Handler {
	return &Handler{api: api, templates: templates, audit: auditLog, now: time.Now}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data view) {
	if store := middleware.SessionFrom(r.Context()); store != nil {
		data.Session = store.Snapshot()
	}
	data.CSRFField = middleware.CSRFField(r)

	var buf bytes.Buffer
	if err := h.templates.Render(&buf, page, data); err != nil {
		middleware.LoggerFromContext(r.Context()).Error().Err(err).Str("template", page).Msg("template error")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Home sends the site root to the event list.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, eventsPath, http.StatusFound)
}

// ListEvents renders the event list with its search form. A failed listing
// shows as an empty list.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	page := Loading()
	query := r.URL.Query()
	filters := events.Filters{
		Search: strings.TrimSpace(query.Get("search")),
		Date:   strings.TrimSpace(query.Get("date")),
	}
	if filters.Date != "" {
		if normalized, err := events.NormalizeDate(filters.Date, h.now()); err == nil {
			filters.Date = normalized
		}
	}

	list := h.api.ListEvents(r.Context(), filters)
	h.render(w, r, http.StatusOK, "events_list.html", view{
		Title:   "Events",
		Page:    page.Ready(),
		Events:  list,
		Filters: filters,
	})
}

// ShowEvent renders one event. Edit and delete controls appear only for the
// event's owner.
func (h *Handler) ShowEvent(w http.ResponseWriter, r *http.Request) {
	page := Loading()
	event, err := h.loadEvent(r)
	if err != nil {
		h.render(w, r, statusFor(err), "event_detail.html", view{
			Title: "Event",
			Page:  page.Fail(loadFailureMessage(err)),
		})
		return
	}

	h.render(w, r, http.StatusOK, "event_detail.html", view{
		Title:   event.Name,
		Page:    page.Ready(),
		Event:   event,
		CanEdit: event.IsOwnedBy(currentUser(r)),
	})
}

// NewEvent renders the empty create form.
func (h *Handler) NewEvent(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "event_form.html", createView(Loading().Ready(), events.Input{}))
}

// CreateEvent validates the submitted form and posts it to the API. The form
// is re-rendered with the user's entries on any failure.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	page := Loading()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	in := formInput(r)

	payload, err := in.Payload()
	if err != nil {
		h.render(w, r, http.StatusUnprocessableEntity, "event_form.html", createView(page.Fail(err.Error()), in))
		return
	}

	created, err := h.api.CreateEvent(r.Context(), sessionToken(r), payload)
	h.record(r, audit.Entry{Action: audit.ActionEventCreate, EventID: created.ID}, err)
	if err != nil {
		middleware.LoggerFromContext(r.Context()).Warn().Err(err).Msg("create event failed")
		h.render(w, r, statusFor(err), "event_form.html", createView(page.Fail(errorMessage(err)), in))
		return
	}
	http.Redirect(w, r, eventsPath, http.StatusSeeOther)
}

// EditEvent renders the edit form pre-filled from the API. Only the owner may
// edit.
func (h *Handler) EditEvent(w http.ResponseWriter, r *http.Request) {
	page := Loading()
	event, err := h.loadOwnedEvent(r, MsgEditForbidden)
	if err != nil {
		h.render(w, r, statusFor(err), "event_form.html", editView(page.Fail(loadFailureMessage(err)), 0, events.Input{}))
		return
	}
	h.render(w, r, http.StatusOK, "event_form.html", editView(page.Ready(), event.ID, events.InputFromEvent(event)))
}

// UpdateEvent validates the submitted form and replaces the event.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	page := Loading()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	in := formInput(r)

	event, err := h.loadOwnedEvent(r, MsgEditForbidden)
	if err != nil {
		h.render(w, r, statusFor(err), "event_form.html", editView(page.Fail(loadFailureMessage(err)), 0, events.Input{}))
		return
	}

	payload, err := in.Payload()
	if err != nil {
		h.render(w, r, http.StatusUnprocessableEntity, "event_form.html", editView(page.Fail(err.Error()), event.ID, in))
		return
	}

	_, err = h.api.UpdateEvent(r.Context(), sessionToken(r), event.ID, payload)
	h.record(r, audit.Entry{Action: audit.ActionEventUpdate, EventID: event.ID}, err)
	if err != nil {
		middleware.LoggerFromContext(r.Context()).Warn().Err(err).Int64("event_id", event.ID).Msg("update event failed")
		h.render(w, r, statusFor(err), "event_form.html", editView(page.Fail(errorMessage(err)), event.ID, in))
		return
	}
	http.Redirect(w, r, eventsPath, http.StatusSeeOther)
}

// ConfirmDelete asks the owner to confirm before deleting.
func (h *Handler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	page := Loading()
	event, err := h.loadOwnedEvent(r, MsgDeleteForbidden)
	if err != nil {
		h.render(w, r, statusFor(err), "event_delete.html", view{Title: "Delete Event", Page: page.Fail(loadFailureMessage(err))})
		return
	}
	h.render(w, r, http.StatusOK, "event_delete.html", view{Title: "Delete Event", Page: page.Ready(), Event: event})
}

// DeleteEvent deletes the event and returns to the list.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	page := Loading()
	id, err := eventID(r)
	if err != nil {
		h.render(w, r, http.StatusNotFound, "event_delete.html", view{Title: "Delete Event", Page: page.Fail(MsgEventNotFound)})
		return
	}

	err = h.api.DeleteEvent(r.Context(), sessionToken(r), id)
	h.record(r, audit.Entry{Action: audit.ActionEventDelete, EventID: id}, err)
	if err != nil {
		middleware.LoggerFromContext(r.Context()).Warn().Err(err).Int64("event_id", id).Msg("delete event failed")
		h.render(w, r, statusFor(err), "event_delete.html", view{Title: "Delete Event", Page: page.Fail(MsgDeleteFailed)})
		return
	}
	http.Redirect(w, r, eventsPath, http.StatusSeeOther)
}

// LoginForm renders the login form, or skips it for a logged-in user.
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if currentUser(r) != nil {
		http.Redirect(w, r, eventsPath, http.StatusFound)
		return
	}
	h.render(w, r, http.StatusOK, "login.html", view{Title: "Login", Page: Loading().Ready()})
}

// Login authenticates against the API and stores the session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	page := Loading()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")
	if email == "" || password == "" {
		h.render(w, r, http.StatusUnprocessableEntity, "login.html", view{Title: "Login", Page: page.Fail(events.MsgRequiredFields), Email: email})
		return
	}

	store := middleware.SessionFrom(r.Context())
	if store == nil {
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return
	}
	err := store.Login(r.Context(), email, password)
	h.record(r, audit.Entry{Action: audit.ActionLogin, User: email}, err)
	if err != nil {
		middleware.LoggerFromContext(r.Context()).Info().Err(err).Msg("login rejected")
		h.render(w, r, statusFor(err), "login.html", view{Title: "Login", Page: page.Fail(errorMessage(err)), Email: email})
		return
	}
	http.Redirect(w, r, eventsPath, http.StatusSeeOther)
}

// Logout clears the session and returns to the login page.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if store := middleware.SessionFrom(r.Context()); store != nil {
		h.record(r, audit.Entry{Action: audit.ActionLogout}, nil)
		store.Logout(r.Context())
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

// record writes an audit entry for the current user, marking it failed when
// err is set.
func (h *Handler) record(r *http.Request, entry audit.Entry, err error) {
	if h.audit == nil {
		return
	}
	if user := currentUser(r); user != nil {
		entry.User = user.Email
		entry.UserID = user.ID
	}
	entry.RequestID = middleware.GetRequestID(r.Context())
	entry.Status = audit.StatusSuccess
	if err != nil {
		entry.Status = audit.StatusFailure
		entry.Reason = err.Error()
	}
	h.audit.LogRequest(r, entry)
}

func createView(page Page, in events.Input) view {
	return view{
		Title:       "Create Event",
		Page:        page,
		Heading:     "Create a New Event",
		ShowForm:    true,
		Form:        in,
		FormAction:  eventsPath,
		SubmitLabel: "Create Event",
		CancelURL:   eventsPath,
	}
}

// editView shows the form unless the event itself could not be loaded.
func editView(page Page, id int64, in events.Input) view {
	v := view{
		Title:       "Edit Event",
		Page:        page,
		Heading:     "Edit Event",
		ShowForm:    id != 0,
		Form:        in,
		SubmitLabel: "Update Event",
		CancelURL:   eventsPath,
	}
	if id != 0 {
		path := eventsPath + "/" + strconv.FormatInt(id, 10)
		v.FormAction = path
		v.CancelURL = path
	}
	return v
}

func formInput(r *http.Request) events.Input {
	form := r.PostForm
	return events.Input{
		Name:         form.Get("name"),
		Description:  form.Get("description"),
		Location:     form.Get("location"),
		Date:         form.Get("date"),
		StartTime:    form.Get("start_time"),
		EndTime:      form.Get("end_time"),
		ImageURL:     form.Get("image_url"),
		MaxAttendees: form.Get("max_attendees"),
		Organizer:    form.Get("organizer"),
	}
}

// errNotOwner marks an event the current user may not change.
type errNotOwner struct{ message string }

func (e errNotOwner) Error() string { return e.message }

func (h *Handler) loadEvent(r *http.Request) (events.Event, error) {
	id, err := eventID(r)
	if err != nil {
		return events.Event{}, err
	}
	return h.api.GetEvent(r.Context(), id)
}

func (h *Handler) loadOwnedEvent(r *http.Request, forbidden string) (events.Event, error) {
	event, err := h.loadEvent(r)
	if err != nil {
		return events.Event{}, err
	}
	if !event.IsOwnedBy(currentUser(r)) {
		return events.Event{}, errNotOwner{message: forbidden}
	}
	return event, nil
}

func eventID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &apiclient.Error{Kind: apiclient.ErrNotFound, Status: http.StatusNotFound, Message: MsgEventNotFound}
	}
	return id, nil
}

// loadFailureMessage is the error state for a page whose event failed to
// load: not found for any API rejection, a load failure otherwise.
func loadFailureMessage(err error) string {
	var notOwner errNotOwner
	switch {
	case errors.As(err, &notOwner):
		return notOwner.message
	case errors.Is(err, apiclient.ErrNotFound):
		return MsgEventNotFound
	default:
		return MsgLoadFailed
	}
}

func errorMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return msgUnknownFailure
}

func statusFor(err error) int {
	var notOwner errNotOwner
	switch {
	case errors.As(err, &notOwner):
		return http.StatusForbidden
	// A failed login wraps the transport error, so check it first.
	case errors.Is(err, apiclient.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, apiclient.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apiclient.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, apiclient.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, apiclient.ErrValidation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func currentUser(r *http.Request) *events.User {
	if store := middleware.SessionFrom(r.Context()); store != nil {
		return store.User()
	}
	return nil
}

func sessionToken(r *http.Request) string {
	if store := middleware.SessionFrom(r.Context()); store != nil {
		return store.Token()
	}
	return ""
}
