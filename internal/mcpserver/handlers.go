package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/sift/pkg/client"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *client.Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(c *client.Client) *Handlers {
	return &Handlers{client: c}
}

// HandleScanContent scores a piece of content.
func (h *Handlers) HandleScanContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content := req.GetString("content", "")
	if content == "" {
		return mcp.NewToolResultError("content is required"), nil
	}

	analysis, err := h.client.Analyze(ctx, client.AnalyzeRequest{
		Content:  content,
		Platform: req.GetString("platform", ""),
		UserID:   req.GetString("user_id", ""),
		Hashtags: splitTags(req.GetString("hashtags", "")),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Analysis failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatAnalysis(analysis)), nil
}

// HandleGetDashboard summarizes recent moderation activity.
func (h *Handlers) HandleGetDashboard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	timeframe := req.GetString("timeframe", "")
	platform := req.GetString("platform", "")

	d, err := h.client.Dashboard(ctx, timeframe, platform)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to build dashboard: %v", err)), nil
	}

	return mcp.NewToolResultText(formatDashboard(d)), nil
}

// HandleListSuspiciousActors lists accounts with coordination indicators.
func (h *Handlers) HandleListSuspiciousActors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actors, err := h.client.SuspiciousActors(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list suspicious actors: %v", err)), nil
	}

	return mcp.NewToolResultText(formatActors(actors)), nil
}

// HandleGetUserActivity fetches a user's post history and risk profile.
func (h *Handlers) HandleGetUserActivity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	limit := req.GetInt("limit", 0)

	activity, err := h.client.UserActivity(ctx, userID, limit)
	if err != nil {
		// An unknown user is an answer, not a failure.
		if client.IsNotFound(err) {
			return mcp.NewToolResultText(fmt.Sprintf("No activity recorded for user %q.", userID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load activity: %v", err)), nil
	}

	return mcp.NewToolResultText(formatActivity(activity)), nil
}

// --- Formatting helpers ---

func formatAnalysis(a *client.Analysis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Risk score: %d/100 (%s)\n", a.RiskScore, a.RiskLevel)
	if a.Platform != "" {
		fmt.Fprintf(&sb, "Platform: %s\n", a.Platform)
	}
	if a.UserID != "" {
		fmt.Fprintf(&sb, "Author: %s\n", a.UserID)
	}

	if len(a.Flags) == 0 && len(a.NetworkAnalysis.Indicators) == 0 {
		sb.WriteString("No detection rules fired.\n")
	}
	if len(a.Flags) > 0 {
		fmt.Fprintf(&sb, "Flags: %s\n", strings.Join(a.Flags, ", "))
	}
	if len(a.NetworkAnalysis.Indicators) > 0 {
		fmt.Fprintf(&sb, "Network indicators: %s\n", strings.Join(a.NetworkAnalysis.Indicators, ", "))
	}
	if a.Sentiment.Score != 0 {
		fmt.Fprintf(&sb, "Sentiment: %d (comparative %.2f)\n", a.Sentiment.Score, a.Sentiment.Comparative)
	}

	if len(a.Explanation) > 0 {
		sb.WriteString("\nFindings:\n")
		for _, e := range a.Explanation {
			fmt.Fprintf(&sb, "  - %s\n", e)
		}
	}

	fmt.Fprintf(&sb, "\nAnalysis ID: %s", a.ID)
	return sb.String()
}

// tierOrder fixes the dashboard breakdown ordering, most severe first.
var tierOrder = []string{"HIGH", "MEDIUM", "LOW", "MINIMAL"}

func formatDashboard(d *client.Dashboard) string {
	var sb strings.Builder
	if d.Platform != "" {
		fmt.Fprintf(&sb, "Moderation summary (%s, %s):\n", d.Timeframe, d.Platform)
	} else {
		fmt.Fprintf(&sb, "Moderation summary (%s):\n", d.Timeframe)
	}

	if d.TotalAnalyses == 0 {
		sb.WriteString("No analyses in this window.")
		return sb.String()
	}
	fmt.Fprintf(&sb, "Total analyses: %d\n", d.TotalAnalyses)

	sb.WriteString("\nRisk levels:\n")
	for _, tier := range tierOrder {
		b := d.RiskLevels[tier]
		fmt.Fprintf(&sb, "  %-8s %d (%.1f%%)\n", tier, b.Count, b.Percentage)
	}

	if len(d.Platforms) > 0 {
		sb.WriteString("\nPlatforms:\n")
		for _, p := range d.Platforms {
			fmt.Fprintf(&sb, "  %s: %d analyses, avg risk %.1f\n", p.Platform, p.Count, p.AverageRiskScore)
		}
	}

	if len(d.Recent) > 0 {
		sb.WriteString("\nRecent:\n")
		for i, r := range d.Recent {
			if r.Platform != "" {
				fmt.Fprintf(&sb, "  %d. [%s %d] %s: %q (%s)\n", i+1, r.RiskLevel, r.RiskScore, r.Platform, truncate(r.Content, 60), r.ID)
			} else {
				fmt.Fprintf(&sb, "  %d. [%s %d] %q (%s)\n", i+1, r.RiskLevel, r.RiskScore, truncate(r.Content, 60), r.ID)
			}
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

func formatActors(actors []client.Actor) string {
	if len(actors) == 0 {
		return "No suspicious actors detected in the last 24 hours."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d suspicious actor(s):\n", len(actors))
	for i, a := range actors {
		fmt.Fprintf(&sb, "\n%d. %s (total risk %d)\n", i+1, a.UserID, a.TotalRiskScore)
		if len(a.Indicators) > 0 {
			fmt.Fprintf(&sb, "   Indicators: %s\n", strings.Join(a.Indicators, ", "))
		}
		if len(a.Posts) > 0 {
			sb.WriteString("   Flagged posts:\n")
			for _, p := range a.Posts {
				fmt.Fprintf(&sb, "     - %q\n", truncate(p, 60))
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatActivity(a *client.Activity) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Activity for %s:\n", a.UserID)
	fmt.Fprintf(&sb, "Posts recorded: %d\n", a.PostCount)
	fmt.Fprintf(&sb, "Total risk score: %d\n", a.RiskProfile.TotalRiskScore)
	fmt.Fprintf(&sb, "Flagged posts: %d\n", a.RiskProfile.FlaggedPosts)

	if len(a.Posts) > 0 {
		fmt.Fprintf(&sb, "\nRecent posts (%d):\n", len(a.Posts))
		for i, p := range a.Posts {
			fmt.Fprintf(&sb, "  %d. [%s] %s: %q\n", i+1, p.Platform, p.Timestamp.UTC().Format("2006-01-02 15:04"), truncate(p.Content, 60))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// splitTags parses a comma-separated hashtag list, dropping empties.
func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// truncate caps s at n runes for display.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
