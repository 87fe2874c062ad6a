// Package sanitize strips markup from user-entered text before it is sent to
// the events API.
package sanitize

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// StrictPolicy removes all HTML tags and attributes.
var StrictPolicy = bluemonday.StrictPolicy()

// Text strips all HTML tags and returns plain text. Entities the policy
// escapes on output are decoded again, so "Tom & Jerry" survives unchanged;
// pages escape on render.
func Text(input string) string {
	if input == "" {
		return ""
	}
	return html.UnescapeString(StrictPolicy.Sanitize(input))
}
