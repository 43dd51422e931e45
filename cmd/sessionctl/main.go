// Package main はCLIツールのエントリポイント。
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	apiURL  string
	output  string
	timeout time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	rootCmd := &cobra.Command{
		Use:   "sessionctl",
		Short: "Session Key Agent CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("SESSIONCTL_API_URL")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Agent API endpoint URL (or set SESSIONCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(handshakesCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sessionctl version %s\n", version)
		},
	}
}

// statusCmd はライフサイクル状態の表示コマンド。
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session key lifecycle state",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := apiGet("/v1/status")
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}

			var result map[string]interface{}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Printf("Application state: %v\n", result["application_state"])
			fmt.Printf("Key state:         %v\n", result["key_state"])
			if sessionID, ok := result["session_id"].(string); ok && sessionID != "" {
				fmt.Printf("Session:           %v\n", sessionID)
			}
			if key, ok := result["key"].(map[string]interface{}); ok {
				fmt.Printf("Key fingerprint:   %v (%.0f bits, age %.0fs)\n",
					key["fingerprint"], key["bits"], key["age_seconds"])
			}
			return nil
		},
	}
}

// handshakesCmd は監査記録の一覧コマンド。
func handshakesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "handshakes",
		Short: "List recent key handshake audit records",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := apiGet(fmt.Sprintf("/v1/handshakes?limit=%d", limit))
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}

			var result struct {
				Handshakes []map[string]interface{} `json:"handshakes"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			for _, h := range result.Handshakes {
				fmt.Printf("%v  %-13v %-7v session=%v component=%v\n",
					h["created_at"], h["operation"], h["outcome"], h["session_id"], h["component_id"])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of records")
	return cmd
}

// apiGet はエージェントAPIへGETリクエストを送る。
func apiGet(path string) ([]byte, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("--api-url is required (or set SESSIONCTL_API_URL)")
	}

	resp, err := httpClient.Get(apiURL + path)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

// handleErrorResponse はAPIのエラーレスポンスを整形する。
func handleErrorResponse(status int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Code != "" {
		return fmt.Errorf("API error (%d): %s: %s", status, errResp.Code, errResp.Message)
	}
	return fmt.Errorf("API error (%d): %s", status, string(body))
}
