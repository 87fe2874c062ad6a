// Package web serves the server-rendered event pages: list, detail, create,
// edit, delete and login.
package web

// State is where a page is in its load cycle.
type State string

const (
	StateLoading State = "loading"
	StateError   State = "error"
	StateReady   State = "ready"
)

// Page tracks one page render. Every request starts loading and ends in
// exactly one of error or ready. An error carries the message shown to the
// user verbatim.
type Page struct {
	State State
	Error string
}

// Loading starts a page.
func Loading() Page {
	return Page{State: StateLoading}
}

// Fail moves a loading page to the error state.
func (p Page) Fail(message string) Page {
	if p.State != StateLoading {
		return p
	}
	return Page{State: StateError, Error: message}
}

// Ready moves a loading page to the ready state.
func (p Page) Ready() Page {
	if p.State != StateLoading {
		return p
	}
	return Page{State: StateReady}
}

// Failed reports whether the page ended in the error state.
func (p Page) Failed() bool {
	return p.State == StateError
}
