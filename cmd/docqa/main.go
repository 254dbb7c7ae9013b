// Package main implements the docqa CLI for operations against the
// docqad HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the docqad HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "CLI for docqad HTTP server operations",
	Long: `docqa is a command-line interface for interacting with the docqad
HTTP server. It provides commands for querying the index and checking
server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8088", "docqad server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(alertsCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check docqad server health",
	RunE:  runHealth,
}

// queryCmd runs a retrieval query via the server
var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run a retrieval query via the server",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

// alertsCmd lists active quality alerts
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List active quality alerts",
	RunE:  runAlerts,
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

func runHealth(cmd *cobra.Command, args []string) error {
	resp, err := httpClient().Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, body)
	}
	fmt.Println(string(body))
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	payload, err := json.Marshal(map[string]string{
		"query": strings.Join(args, " "),
	})
	if err != nil {
		return err
	}

	resp, err := httpClient().Post(serverURL+"/api/v1/query", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query failed: status %d: %s", resp.StatusCode, body)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func runAlerts(cmd *cobra.Command, args []string) error {
	resp, err := httpClient().Get(serverURL + "/api/v1/monitoring/alerts")
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed: status %d: %s", resp.StatusCode, body)
	}
	fmt.Println(string(body))
	return nil
}
