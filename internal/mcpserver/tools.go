package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the sift MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolScanContent = mcp.NewTool("scan_content",
	mcp.WithDescription(
		"Score a piece of social media content for misinformation risk. "+
			"Returns a 0-100 risk score, a risk tier (MINIMAL/LOW/MEDIUM/HIGH), the detection "+
			"flags that fired, and a plain-language explanation of each. "+
			"Provide platform and user_id when known; author history improves bot detection."),
	mcp.WithString("content",
		mcp.Required(),
		mcp.Description("The post text to analyze")),
	mcp.WithString("platform",
		mcp.Description("Platform the content was posted on (e.g. 'twitter', 'facebook', 'reddit')")),
	mcp.WithString("user_id",
		mcp.Description("ID of the posting account, if known")),
	mcp.WithString("hashtags",
		mcp.Description("Comma-separated hashtags attached to the post (e.g. 'breaking,exposed')")),
)

var ToolGetDashboard = mcp.NewTool("get_dashboard",
	mcp.WithDescription(
		"Summarize recent moderation activity: total analyses, breakdown by risk tier, "+
			"the most recent analyses, and per-platform volume with average risk."),
	mcp.WithString("timeframe",
		mcp.Description("Time window to summarize (default '24h')"),
		mcp.Enum("1h", "24h", "7d")),
	mcp.WithString("platform",
		mcp.Description("Limit the summary to one platform")),
)

var ToolListSuspiciousActors = mcp.NewTool("list_suspicious_actors",
	mcp.WithDescription(
		"List accounts whose posts in the last 24 hours triggered coordination indicators "+
			"(synchronized posting, coordinated messaging). Returns each actor's flagged posts, "+
			"combined risk score, and the indicators observed, highest risk first."),
)

var ToolGetUserActivity = mcp.NewTool("get_user_activity",
	mcp.WithDescription(
		"Fetch a user's recorded post history together with their aggregated risk profile "+
			"(total risk score and how many posts were flagged)."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("ID of the account to look up")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of posts to return (default 50)")),
)
