package web

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/supersquad/eventsweb/internal/audit"
	"github.com/supersquad/eventsweb/internal/metrics"
	"github.com/supersquad/eventsweb/internal/session"
	"github.com/supersquad/eventsweb/internal/web/middleware"
)

// Deps are the collaborators the router wires together.
type Deps struct {
	API          EventsAPI
	Sessions     session.Factory
	Templates    *Templates
	Logger       zerolog.Logger
	Audit        *audit.Logger                   // defaults to an audit logger on Logger
	CSRF         func(http.Handler) http.Handler // nil disables CSRF checks
	LoginLimiter func(http.Handler) http.Handler // nil disables login rate limiting
	RequireHTTPS bool
	Version      string
}

func passthrough(next http.Handler) http.Handler { return next }

// NewRouter builds the full handler: pages behind CSRF and session
// middleware, plus health, metrics and robots.txt.
func NewRouter(d Deps) http.Handler {
	csrf := d.CSRF
	if csrf == nil {
		csrf = passthrough
	}
	limitLogin := d.LoginLimiter
	if limitLogin == nil {
		limitLogin = passthrough
	}

	auditLog := d.Audit
	if auditLog == nil {
		auditLog = audit.NewLogger(d.Logger)
	}

	h := NewHandler(d.API, d.Templates, auditLog)
	requireSession := middleware.RequireSession(loginPath)
	guarded := func(fn http.HandlerFunc) http.Handler { return requireSession(fn) }

	pages := http.NewServeMux()
	pages.HandleFunc("GET /{$}", h.Home)
	pages.HandleFunc("GET /events", h.ListEvents)
	pages.HandleFunc("GET /events/{id}", h.ShowEvent)
	pages.Handle("GET /events/new", guarded(h.NewEvent))
	pages.Handle("POST /events", guarded(h.CreateEvent))
	pages.Handle("GET /events/{id}/edit", guarded(h.EditEvent))
	pages.Handle("POST /events/{id}", guarded(h.UpdateEvent))
	pages.Handle("GET /events/{id}/delete", guarded(h.ConfirmDelete))
	pages.Handle("POST /events/{id}/delete", guarded(h.DeleteEvent))
	pages.HandleFunc("GET /login", h.LoginForm)
	pages.Handle("POST /login", limitLogin(http.HandlerFunc(h.Login)))
	pages.HandleFunc("POST /logout", h.Logout)

	root := http.NewServeMux()
	root.Handle("GET /healthz", HealthHandler(d.Version))
	root.Handle("GET /metrics", metrics.Handler())
	root.Handle("GET /robots.txt", RobotsTxtHandler())
	// Metrics wrap the pages mux directly so requests carry its route pattern.
	root.Handle("/", csrf(middleware.Session(d.Sessions, d.API)(metrics.HTTPMiddleware(pages))))

	var handler http.Handler = root
	handler = middleware.SecurityHeaders(d.RequireHTTPS)(handler)
	handler = middleware.RequestLogging(handler)
	handler = middleware.CorrelationID(d.Logger)(handler)
	handler = middleware.Tracing(handler)
	return handler
}
