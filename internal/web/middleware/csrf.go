package middleware

import (
	"html/template"
	"net/http"

	"github.com/gorilla/csrf"
)

// CSRFFailureMessage is shown when a form arrives without a valid token.
const CSRFFailureMessage = "Your form has expired. Please go back, reload the page and try again."

// CSRFProtection guards every form post with a double-submit token. Forms
// embed the token with CSRFField. Over plain HTTP (secure=false, local
// development) the TLS-only Referer check is skipped.
func CSRFProtection(authKey []byte, secure bool) func(http.Handler) http.Handler {
	protect := csrf.Protect(authKey,
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.FieldName(CSRFFieldName),
		csrf.ErrorHandler(http.HandlerFunc(csrfErrorHandler)),
	)

	return func(next http.Handler) http.Handler {
		protected := protect(next)
		if secure {
			return protected
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			protected.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
		})
	}
}

// CSRFFieldName is the hidden form field carrying the token.
const CSRFFieldName = "csrf_token"

func csrfErrorHandler(w http.ResponseWriter, r *http.Request) {
	LoggerFromContext(r.Context()).Warn().
		Err(csrf.FailureReason(r)).
		Str("path", r.URL.Path).
		Msg("csrf validation failed")
	http.Error(w, CSRFFailureMessage, http.StatusForbidden)
}

// CSRFField returns the hidden input for forms, or nothing when CSRF
// protection is not installed.
func CSRFField(r *http.Request) template.HTML {
	return csrf.TemplateField(r)
}
