package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "Manage connected platforms",
	Long:  "Commands for listing platform connections, triggering syncs, and disconnecting",
}

var platformsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your platform connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listPlatforms()
	},
}

var platformsSyncCmd = &cobra.Command{
	Use:   "sync <platform>",
	Short: "Pull new interactions from a platform now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return syncPlatform(args[0])
	},
}

var platformsDisconnectCmd = &cobra.Command{
	Use:   "disconnect <platform>",
	Short: "Disconnect a platform",
	Long: `Disconnect a platform. Its interactions stay in the store but
disappear from your inbox until you reconnect.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return disconnectPlatform(args[0])
	},
	Args: cobra.ExactArgs(1),
}

func init() {
	platformsCmd.AddCommand(platformsListCmd)
	platformsCmd.AddCommand(platformsSyncCmd)
	platformsCmd.AddCommand(platformsDisconnectCmd)
}

func listPlatforms() error {
	body, err := apiRequest("GET", "/api/v1/platforms", nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	var result struct {
		Platforms []struct {
			Platform          string `json:"platform"`
			PlatformAccountID string `json:"platform_account_id"`
			IsActive          bool   `json:"is_active"`
			LastSyncedAt      string `json:"last_synced_at"`
		} `json:"platforms"`
		Supported []string `json:"supported"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("\n🔗 Platform Connections\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	if len(result.Platforms) == 0 {
		fmt.Println("No platforms connected yet.")
	}
	for _, p := range result.Platforms {
		status := "🟢 active"
		if !p.IsActive {
			status = "⚫ disconnected"
		}
		fmt.Printf("%-12s %s (account %s)\n", p.Platform, status, p.PlatformAccountID)
	}
	if len(result.Supported) > 0 {
		fmt.Printf("\nSupported: %v\n", result.Supported)
	}
	fmt.Printf("\n")

	return nil
}

func syncPlatform(platform string) error {
	body, err := apiRequest("POST", "/api/v1/platforms/"+platform+"/sync", nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	var result struct {
		New     int               `json:"new"`
		Skipped int               `json:"skipped"`
		Errors  []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("✓ Sync complete: %d new, %d skipped, %d errors\n", result.New, result.Skipped, len(result.Errors))
	return nil
}

func disconnectPlatform(platform string) error {
	body, err := apiRequest("DELETE", "/api/v1/platforms/"+platform, nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
	} else {
		fmt.Printf("✓ %s disconnected\n", platform)
	}
	return nil
}
