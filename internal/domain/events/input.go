package events

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/supersquad/eventsweb/internal/sanitize"
	"github.com/supersquad/eventsweb/internal/validation"
)

// MsgRequiredFields is shown when any mandatory field is left blank.
const MsgRequiredFields = "Please fill in all required fields"

// ValidationError describes a locally rejected form submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Input holds the editable event fields exactly as the user typed them.
type Input struct {
	Name         string `validate:"required"`
	Description  string `validate:"required"`
	Location     string `validate:"required"`
	Date         string `validate:"required,datetime=2006-01-02"`
	StartTime    string `validate:"required,clock"`
	EndTime      string `validate:"omitempty,clock"`
	ImageURL     string `validate:"required,url"`
	MaxAttendees string `validate:"omitempty,number"`
	Organizer    string
}

// Payload is the body sent to POST /events and PUT /events/{id}. Optional
// fields left blank are omitted rather than sent as zero or null.
type Payload struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Location     string `json:"location"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time,omitempty"`
	ImageURL     string `json:"image_url"`
	MaxAttendees *int   `json:"max_attendees,omitempty"`
	Organizer    string `json:"organizer,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// HTML time inputs post HH:MM; the API may hand back HH:MM:SS.
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if _, err := time.Parse("15:04", value); err == nil {
			return true
		}
		_, err := time.Parse("15:04:05", value)
		return err == nil
	})
	return v
}

// InputFromEvent pre-fills the edit form from an existing event.
func InputFromEvent(e Event) Input {
	in := Input{
		Name:        e.Name,
		Description: e.Description,
		Location:    e.Location,
		Date:        isoDate(e.Date),
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		ImageURL:    e.ImageURL,
		Organizer:   e.Organizer,
	}
	if e.MaxAttendees != nil {
		in.MaxAttendees = strconv.Itoa(*e.MaxAttendees)
	}
	return in
}

// Normalize trims surrounding whitespace from every field.
func (in Input) Normalize() Input {
	return Input{
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		Location:     strings.TrimSpace(in.Location),
		Date:         strings.TrimSpace(in.Date),
		StartTime:    strings.TrimSpace(in.StartTime),
		EndTime:      strings.TrimSpace(in.EndTime),
		ImageURL:     strings.TrimSpace(in.ImageURL),
		MaxAttendees: strings.TrimSpace(in.MaxAttendees),
		Organizer:    strings.TrimSpace(in.Organizer),
	}
}

// cleaned trims every field and strips markup from the free-text ones, so
// that a field holding only tags counts as blank.
func (in Input) cleaned() Input {
	n := in.Normalize()
	n.Name = strings.TrimSpace(sanitize.Text(n.Name))
	n.Description = strings.TrimSpace(sanitize.Text(n.Description))
	n.Location = strings.TrimSpace(sanitize.Text(n.Location))
	n.Organizer = strings.TrimSpace(sanitize.Text(n.Organizer))
	return n
}

// Validate runs the required-field check first, then the format checks.
// Images must be http or https links.
func (in Input) Validate() error {
	n := in.cleaned()
	err := validate.Struct(n)
	if err == nil {
		if err := validation.HTTPURL(n.ImageURL, "image_url", false); err != nil {
			return ValidationError{Field: fieldLabel("ImageURL"), Message: formatMessage("url")}
		}
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate event input: %w", err)
	}
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return ValidationError{Message: MsgRequiredFields}
		}
	}
	fe := fieldErrs[0]
	return ValidationError{Field: fieldLabel(fe.Field()), Message: formatMessage(fe.Tag())}
}

// Payload validates the input and builds the outgoing request body.
func (in Input) Payload() (Payload, error) {
	if err := in.Validate(); err != nil {
		return Payload{}, err
	}
	n := in.cleaned()

	p := Payload{
		Name:        n.Name,
		Description: n.Description,
		Location:    n.Location,
		Date:        n.Date,
		StartTime:   n.StartTime,
		EndTime:     n.EndTime,
		ImageURL:    n.ImageURL,
		Organizer:   n.Organizer,
	}
	if n.MaxAttendees != "" {
		attendees, err := strconv.Atoi(n.MaxAttendees)
		if err != nil {
			return Payload{}, ValidationError{Field: "max attendees", Message: "must be a whole number"}
		}
		p.MaxAttendees = &attendees
	}
	return p, nil
}

func fieldLabel(field string) string {
	switch field {
	case "StartTime":
		return "start time"
	case "EndTime":
		return "end time"
	case "ImageURL":
		return "image URL"
	case "MaxAttendees":
		return "max attendees"
	default:
		return strings.ToLower(field)
	}
}

func formatMessage(tag string) string {
	switch tag {
	case "datetime":
		return "must be a date in YYYY-MM-DD form"
	case "clock":
		return "must be a time in HH:MM form"
	case "url":
		return "must be a valid URL"
	case "number":
		return "must be a whole number"
	default:
		return "is invalid"
	}
}
