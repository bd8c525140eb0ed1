package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	chiTransport "github.com/kailas-cloud/cvcontext/internal/transport/chi"
)

var (
	resetServer string
	resetAPIKey string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the caches of a running server",
	Long: `Call the admin reset endpoint of a running cvcontext server. Loaded models,
store connections, cached query results and the prewarm flag are dropped.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().StringVar(&resetServer, "server", "http://localhost:8080", "Server base URL")
	resetCmd.Flags().StringVar(&resetAPIKey, "api-key", "", "Bearer API key")
}

func runReset(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	if err := ResetServer(ctx, http.DefaultClient, resetServer, resetAPIKey); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Reset %s\n", resetServer)
	return nil
}

// ResetServer posts to the admin reset endpoint of the server at baseURL.
func ResetServer(ctx context.Context, client *http.Client, baseURL, apiKey string) error {
	url := strings.TrimRight(baseURL, "/") + "/v1/admin/reset"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reset %s: %w", baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}

	var body chiTransport.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Message == "" {
		return fmt.Errorf("reset %s: unexpected status %d", baseURL, resp.StatusCode)
	}
	return fmt.Errorf("reset %s: %s: %s", baseURL, body.Code, body.Message)
}
