package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/supersquad/eventsweb/internal/domain/events"
	"github.com/supersquad/eventsweb/internal/web"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func newEventsCommand(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Browse and manage events",
		Long: `Browse and manage events through the events API.

Listing and showing events needs no login. Creating, updating and deleting
need a session from "eventsweb login", and only the owner of an event may
change or delete it.

Examples:
  # List events matching a search term on a given day
  eventsweb events list --search workshop --date 2026-07-10

  # Dates may also be written naturally
  eventsweb events list --date "next friday"

  # Show one event as JSON
  eventsweb events get 5 --format json`,
	}
	cmd.PersistentFlags().StringVar(&format, "format", formatTable, "output format (table, json)")

	cmd.AddCommand(
		newEventsListCommand(opts, &format),
		newEventsGetCommand(opts, &format),
		newEventsCreateCommand(opts, &format),
		newEventsUpdateCommand(opts, &format),
		newEventsDeleteCommand(opts),
	)
	return cmd
}

func newEventsListCommand(opts *globalOptions, format *string) *cobra.Command {
	var filters events.Filters

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			filters.Search = strings.TrimSpace(filters.Search)
			if filters.Date, err = events.NormalizeDate(filters.Date, time.Now()); err != nil {
				return err
			}

			list := s.api.ListEvents(cmd.Context(), filters)
			if *format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			return writeEventTable(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().StringVar(&filters.Search, "search", "", "free-text search")
	cmd.Flags().StringVar(&filters.Date, "date", "", "only events on this day (YYYY-MM-DD or e.g. \"tomorrow\")")
	return cmd
}

func newEventsGetCommand(opts *globalOptions, format *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEventID(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			event, err := s.api.GetEvent(cmd.Context(), id)
			if err != nil {
				return err
			}
			return writeEvent(cmd.OutOrStdout(), *format, event)
		},
	}
}

func newEventsCreateCommand(opts *globalOptions, format *string) *cobra.Command {
	var in events.Input

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event",
		Long: `Create an event owned by the logged-in user.

Example:
  eventsweb events create --name "Go Workshop" --description "Hands-on" \
    --location Toronto --date 2026-07-10 --start-time 19:00 \
    --image-url https://example.com/a.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			if err := s.requireUser(); err != nil {
				return err
			}

			in.Date = normalizeInputDate(in.Date)
			payload, err := in.Payload()
			if err != nil {
				return err
			}
			created, err := s.api.CreateEvent(cmd.Context(), s.store.Token(), payload)
			if err != nil {
				return err
			}
			return writeEvent(cmd.OutOrStdout(), *format, created)
		},
	}
	for _, f := range inputFlags(&in) {
		cmd.Flags().StringVar(f.target, f.name, "", f.usage)
	}
	return cmd
}

func newEventsUpdateCommand(opts *globalOptions, format *string) *cobra.Command {
	var changes events.Input

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update an event you own",
		Long: `Update an event you own. Only the fields given as flags change; the
rest keep their current values.

Example:
  eventsweb events update 5 --location "Main Hall" --max-attendees 80`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEventID(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			if err := s.requireUser(); err != nil {
				return err
			}

			current, err := s.api.GetEvent(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !current.IsOwnedBy(s.store.User()) {
				return errors.New(web.MsgEditForbidden)
			}

			in := events.InputFromEvent(current)
			from, to := inputFlags(&changes), inputFlags(&in)
			for i, f := range from {
				if cmd.Flags().Changed(f.name) {
					*to[i].target = *f.target
				}
			}
			in.Date = normalizeInputDate(in.Date)

			payload, err := in.Payload()
			if err != nil {
				return err
			}
			updated, err := s.api.UpdateEvent(cmd.Context(), s.store.Token(), id, payload)
			if err != nil {
				return err
			}
			return writeEvent(cmd.OutOrStdout(), *format, updated)
		},
	}
	for _, f := range inputFlags(&changes) {
		cmd.Flags().StringVar(f.target, f.name, "", f.usage)
	}
	return cmd
}

func newEventsDeleteCommand(opts *globalOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an event you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEventID(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			if err := s.requireUser(); err != nil {
				return err
			}

			current, err := s.api.GetEvent(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !current.IsOwnedBy(s.store.User()) {
				return errors.New(web.MsgDeleteForbidden)
			}

			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Are you sure you want to delete %q? [y/N] ", current.Name)
				answer, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
					return nil
				}
			}

			if err := s.api.DeleteEvent(cmd.Context(), s.store.Token(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted event %d\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

type inputFlag struct {
	name   string
	usage  string
	target *string
}

// inputFlags lists the event form fields in a fixed order so two inputs can
// be matched flag by flag.
func inputFlags(in *events.Input) []inputFlag {
	return []inputFlag{
		{name: "name", usage: "event name (required)", target: &in.Name},
		{name: "description", usage: "description (required)", target: &in.Description},
		{name: "location", usage: "location (required)", target: &in.Location},
		{name: "date", usage: "date, YYYY-MM-DD or e.g. \"next friday\" (required)", target: &in.Date},
		{name: "start-time", usage: "start time HH:MM (required)", target: &in.StartTime},
		{name: "end-time", usage: "end time HH:MM", target: &in.EndTime},
		{name: "image-url", usage: "image URL (required)", target: &in.ImageURL},
		{name: "max-attendees", usage: "maximum number of attendees", target: &in.MaxAttendees},
		{name: "organizer", usage: "organizer name", target: &in.Organizer},
	}
}

// normalizeInputDate accepts natural dates; anything unparseable is left for
// validation to reject.
func normalizeInputDate(value string) string {
	normalized, err := events.NormalizeDate(value, time.Now())
	if err != nil {
		return value
	}
	return normalized
}

func parseEventID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid event id %q", arg)
	}
	return id, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeEventTable(out io.Writer, list []events.Event) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(out, "No events found. Try adjusting your filters.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tNAME\tLOCATION")
	for _, e := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.ShortDate(), e.TimeRange(), e.Name, e.Location)
	}
	return tw.Flush()
}

func writeEvent(out io.Writer, format string, e events.Event) error {
	if format == formatJSON {
		return writeJSON(out, e)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%d\n", e.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", e.Name)
	fmt.Fprintf(tw, "Date:\t%s\n", e.LongDate())
	fmt.Fprintf(tw, "Time:\t%s\n", e.TimeRange())
	fmt.Fprintf(tw, "Location:\t%s\n", e.Location)
	if e.Organizer != "" {
		fmt.Fprintf(tw, "Organizer:\t%s\n", e.Organizer)
	}
	if e.MaxAttendees != nil {
		fmt.Fprintf(tw, "Max attendees:\t%d\n", *e.MaxAttendees)
	}
	fmt.Fprintf(tw, "Description:\t%s\n", e.Description)
	return tw.Flush()
}
