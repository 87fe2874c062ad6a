package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/supersquad/eventsweb/internal/apiclient"
	"github.com/supersquad/eventsweb/internal/session"
)

// errNotLoggedIn is returned by commands that need a session.
var errNotLoggedIn = errors.New("not logged in: run \"eventsweb login\" first")

// cliSession is the API client plus the restored command-line session.
type cliSession struct {
	api   *apiclient.Client
	store *session.Store
}

func openSession(ctx context.Context, cmd *cobra.Command, opts *globalOptions) (*cliSession, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := cliLogger(cmd.ErrOrStderr(), opts)

	api := apiclient.NewClient(cfg.API.BaseURL,
		apiclient.WithTimeout(cfg.API.Timeout),
		apiclient.WithLogger(logger),
		apiclient.WithUserAgent("eventsweb-cli/"+Version),
	)
	store := session.New(session.NewFileStorage(cfg.Session.FilePath), api, logger)
	store.Restore(ctx)

	return &cliSession{api: api, store: store}, nil
}

// requireUser mirrors the page guard: a command that changes events needs a
// logged-in user.
func (s *cliSession) requireUser() error {
	if s.store.User() == nil {
		return errNotLoggedIn
	}
	return nil
}

func newLoginCommand(opts *globalOptions) *cobra.Command {
	var email, password string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the events API",
		Long: `Log in with an email and password. The session is saved to the session
file and used by later commands until "eventsweb logout".

Examples:
  eventsweb login --email me@example.com --password secret

  # Read the password from stdin
  echo secret | eventsweb login --email me@example.com --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if passwordStdin {
				line, err := readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = line
			}
			email = strings.TrimSpace(email)
			if email == "" || password == "" {
				return errors.New("email and password are required")
			}

			s, err := openSession(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			if err := s.store.Login(cmd.Context(), email, password); err != nil {
				return err
			}
			if user := s.store.User(); user != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user.Email)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged in")
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newLogoutCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			s.store.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd, opts)
			if err != nil {
				return err
			}
			user := s.store.User()
			if user == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (id %d)\n", user.Email, user.ID)
			return nil
		},
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
