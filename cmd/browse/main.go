package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/user/codeflare/internal/client"
	"github.com/user/codeflare/internal/tui"
	"github.com/user/codeflare/internal/view"
	"github.com/user/codeflare/pkg/logger"
)

var (
	serverURL     string
	githubToken   string
	identityToken string
	cacheTTL      time.Duration
	timeout       time.Duration
	logFile       string
	logLevel      string
)

var rootCmd = &cobra.Command{
	Use:   "browse [path]",
	Short: "Browse GitHub repositories through a Codeflare server",
	Long: `Browse is a terminal client for a Codeflare server. It lists a user's
repositories, walks repository contents, and shows issues and pull requests.

The optional path opens a page directly, for example:
  browse /user/octocat
  browse /repo/octocat/hello-world/src
  browse /repo/octocat/hello-world/issues/1`,
	Args: cobra.MaximumNArgs(1),
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Codeflare server URL")
	rootCmd.Flags().StringVar(&githubToken, "github-token", os.Getenv("GITHUB_TOKEN"), "GitHub token forwarded to the API (default $GITHUB_TOKEN)")
	rootCmd.Flags().StringVar(&identityToken, "identity-token", os.Getenv("CODEFLARE_IDENTITY_TOKEN"), "Identity assertion for session routes (default $CODEFLARE_IDENTITY_TOKEN)")
	rootCmd.Flags().DurationVar(&cacheTTL, "cache-ttl", client.DefaultCacheTTL, "How long fetched GitHub data is reused (0 disables caching)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for each server request")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Write debug logs to this file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "debug", "Log level for --log-file")
}

func run(cmd *cobra.Command, args []string) error {
	if logFile != "" {
		if err := logger.InitFile(logLevel, logFile); err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
	}

	start := view.Route{Kind: view.RouteHome}
	if len(args) == 1 {
		start = view.Match(args[0])
		if start.Kind == view.RouteNotFound {
			return fmt.Errorf("unknown page %q", args[0])
		}
	}

	api, err := client.NewAPI(client.APIConfig{
		BaseURL:       serverURL,
		GitHubToken:   githubToken,
		IdentityToken: identityToken,
		Timeout:       timeout,
	})
	if err != nil {
		return err
	}
	store := client.NewStore(api, client.WithCacheTTL(cacheTTL))

	logger.Info().Str("server", serverURL).Str("start", start.Href()).Msg("Starting browser")

	p := tea.NewProgram(tui.New(store, start), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run browser: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
