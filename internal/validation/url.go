// Package validation holds checks shared by configuration and user input.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// URLError reports why a URL was rejected.
type URLError struct {
	Field   string
	Message string
	URL     string
}

func (e URLError) Error() string {
	return fmt.Sprintf("%s: %s (url: %s)", e.Field, e.Message, e.URL)
}

// HTTPURL checks that raw is an absolute http or https URL with a host. With
// requireHTTPS only https is accepted.
func HTTPURL(raw, field string, requireHTTPS bool) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return URLError{Field: field, Message: "invalid URL format", URL: raw}
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch {
	case scheme == "":
		return URLError{Field: field, Message: "URL must include a scheme (http:// or https://)", URL: raw}
	case scheme != "http" && scheme != "https":
		return URLError{Field: field, Message: "URL scheme must be http or https", URL: raw}
	case parsed.Host == "":
		return URLError{Field: field, Message: "URL must include a host", URL: raw}
	case requireHTTPS && scheme != "https":
		return URLError{Field: field, Message: "URL must use HTTPS in production", URL: raw}
	}
	return nil
}

// APIBaseURL checks an API root. A path prefix such as /api is allowed; a
// query or fragment is not, since request paths are appended to it.
func APIBaseURL(raw, field string, requireHTTPS bool) error {
	if err := HTTPURL(raw, field, requireHTTPS); err != nil {
		return err
	}
	parsed, _ := url.Parse(raw)
	if parsed.RawQuery != "" {
		return URLError{Field: field, Message: "base URL must not contain query parameters", URL: raw}
	}
	if parsed.Fragment != "" {
		return URLError{Field: field, Message: "base URL must not contain a fragment", URL: raw}
	}
	return nil
}
