package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

var (
	listPlatform  string
	listStatus    string
	listSentiment string
	listSearch    string
	listOffset    int

	replyMessage string
	updateStatus string
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Work with your reputation inbox",
	Long:  "Commands for listing, replying to, and triaging inbox interactions",
}

var inboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List interactions in your inbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listInteractions()
	},
}

var inboxCountsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Show inbox badge counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showCounts()
	},
}

var inboxReplyCmd = &cobra.Command{
	Use:   "reply <interaction-id>",
	Short: "Reply to an interaction on its source platform",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return replyToInteraction(args[0])
	},
}

var inboxUpdateCmd = &cobra.Command{
	Use:   "update <interaction-id>",
	Short: "Change an interaction's workflow status",
	Long:  "Valid statuses: pending, responded, archived, escalated",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateInteraction(args[0])
	},
}

var inboxDeleteCmd = &cobra.Command{
	Use:   "delete <interaction-id>",
	Short: "Delete an interaction from your inbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deleteInteraction(args[0])
	},
}

func init() {
	inboxListCmd.Flags().StringVar(&listPlatform, "platform", "", "Filter by platform (google, facebook, instagram, trustpilot, yelp)")
	inboxListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by workflow status")
	inboxListCmd.Flags().StringVar(&listSentiment, "sentiment", "", "Filter by sentiment (positive, neutral, negative)")
	inboxListCmd.Flags().StringVar(&listSearch, "search", "", "Search interaction content")
	inboxListCmd.Flags().IntVar(&listOffset, "offset", 0, "Pagination offset")

	inboxReplyCmd.Flags().StringVar(&replyMessage, "message", "", "Reply text (required)")
	inboxReplyCmd.MarkFlagRequired("message")

	inboxUpdateCmd.Flags().StringVar(&updateStatus, "status", "", "New workflow status (required)")
	inboxUpdateCmd.MarkFlagRequired("status")

	inboxCmd.AddCommand(inboxListCmd)
	inboxCmd.AddCommand(inboxCountsCmd)
	inboxCmd.AddCommand(inboxReplyCmd)
	inboxCmd.AddCommand(inboxUpdateCmd)
	inboxCmd.AddCommand(inboxDeleteCmd)
}

type interactionView struct {
	ID           string `json:"id"`
	Platform     string `json:"platform"`
	Type         string `json:"interaction_type"`
	Content      string `json:"content"`
	AuthorName   string `json:"author_name"`
	Sentiment    string `json:"sentiment"`
	UrgencyScore int    `json:"urgency_score"`
	Status       string `json:"status"`
	Response     string `json:"response"`
	CreatedAt    string `json:"created_at"`
}

func listInteractions() error {
	query := url.Values{}
	if listPlatform != "" {
		query.Set("platform", listPlatform)
	}
	if listStatus != "" {
		query.Set("status", listStatus)
	}
	if listSentiment != "" {
		query.Set("sentiment", listSentiment)
	}
	if listSearch != "" {
		query.Set("search", listSearch)
	}
	if listOffset > 0 {
		query.Set("offset", fmt.Sprintf("%d", listOffset))
	}

	path := "/api/v1/interactions"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	body, err := apiRequest("GET", path, nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	var result struct {
		Interactions []interactionView `json:"interactions"`
		Offset       int               `json:"offset"`
		HasMore      bool              `json:"has_more"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if len(result.Interactions) == 0 {
		fmt.Println("Inbox is empty for this filter.")
		return nil
	}

	fmt.Printf("\n📬 Inbox (%d shown, offset %d)\n", len(result.Interactions), result.Offset)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	for _, in := range result.Interactions {
		marker := statusMarker(in.Status)
		fmt.Printf("%s [%s/%s] %s", marker, in.Platform, in.Type, in.ID)
		if in.UrgencyScore >= 7 {
			fmt.Printf(" 🔥 urgency %d", in.UrgencyScore)
		}
		fmt.Printf("\n")
		if in.AuthorName != "" {
			fmt.Printf("   From: %s\n", in.AuthorName)
		}
		fmt.Printf("   %s\n", truncate(in.Content, 100))
		if in.Response != "" {
			fmt.Printf("   ↩ %s\n", truncate(in.Response, 100))
		}
	}
	if result.HasMore {
		fmt.Printf("\nMore available: --offset %d\n", result.Offset+len(result.Interactions))
	}
	fmt.Printf("\n")

	return nil
}

func showCounts() error {
	body, err := apiRequest("GET", "/api/v1/interactions/counts", nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
		return nil
	}

	var counts struct {
		Total   int64 `json:"total"`
		Pending int64 `json:"pending"`
		Urgent  int64 `json:"urgent"`
	}
	if err := json.Unmarshal(body, &counts); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("Total: %d  Pending: %d  Urgent: %d\n", counts.Total, counts.Pending, counts.Urgent)
	return nil
}

func replyToInteraction(id string) error {
	body, err := apiRequest("POST", "/api/v1/interactions/"+id+"/reply", map[string]interface{}{
		"message": replyMessage,
	})
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
	} else {
		fmt.Printf("✓ Reply sent\n")
	}
	return nil
}

func updateInteraction(id string) error {
	body, err := apiRequest("PATCH", "/api/v1/interactions/"+id, map[string]interface{}{
		"status": updateStatus,
	})
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
	} else {
		fmt.Printf("✓ Interaction is now %s\n", updateStatus)
	}
	return nil
}

func deleteInteraction(id string) error {
	body, err := apiRequest("DELETE", "/api/v1/interactions/"+id, nil)
	if err != nil {
		return err
	}

	if output == "json" {
		fmt.Println(string(body))
	} else {
		fmt.Printf("✓ Interaction deleted\n")
	}
	return nil
}

func statusMarker(status string) string {
	switch status {
	case "pending":
		return "●"
	case "escalated":
		return "‼"
	case "responded":
		return "✓"
	default:
		return "○"
	}
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
