package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// HealthResponse matches the body served by /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func newHealthcheckCommand() *cobra.Command {
	var timeout time.Duration
	var url string

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the web front end is healthy",
		Long: `Performs a health check by calling the /healthz endpoint.

This command is used by container health checks. It exits with an error if
the server is unreachable, answers with a non-200 status or reports any
status other than "ok".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				port := os.Getenv("SERVER_PORT")
				if port == "" {
					port = "3000"
				}
				url = fmt.Sprintf("http://localhost:%s/healthz", port)
			}
			health, err := checkHealth(cmd.Context(), url, timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "healthy (version %s)\n", health.Version)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().StringVar(&url, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/healthz)")
	return cmd
}

func checkHealth(ctx context.Context, url string, timeout time.Duration) (HealthResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return HealthResponse{}, fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return HealthResponse{}, fmt.Errorf("parse health response: %w", err)
	}
	if health.Status != "ok" {
		return HealthResponse{}, fmt.Errorf("unhealthy: status=%s", health.Status)
	}
	return health, nil
}
