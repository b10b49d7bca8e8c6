package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mealwise/mealwise/internal/health"
)

// NewMCPServer creates an MCP server exposing the tracker and recommender to
// assistant clients over stdio.
func NewMCPServer(deps AppDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"mealwise",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("mealwise — personal health targets, daily tracking, and meal recommendations."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_targets",
			mcp.WithDescription("Compute daily health targets (BMR, TDEE, calorie goal, macros) from the current profile."),
		),
		mcpGetTargets(deps),
	)

	s.AddTool(
		mcp.NewTool("recommend_meals",
			mcp.WithDescription("List recommended meals from the catalog, filtered by the active preference filters and today's remaining calorie budget, best match first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRecommendMeals(deps),
	)

	s.AddTool(
		mcp.NewTool("log_food",
			mcp.WithDescription("Record a food item in today's log and add its calories to the daily total."),
			mcp.WithString("name", mcp.Description("Food name"), mcp.Required()),
			mcp.WithNumber("calories", mcp.Description("Calories consumed"), mcp.Required()),
		),
		mcpLogFood(deps),
	)

	s.AddTool(
		mcp.NewTool("set_profile_field",
			mcp.WithDescription("Update one profile field (gender, age, height, weight, activity_level) and revalidate the profile."),
			mcp.WithString("field", mcp.Description("Field name"), mcp.Required()),
			mcp.WithString("value", mcp.Description("New value"), mcp.Required()),
		),
		mcpSetProfileField(deps),
	)

	s.AddTool(
		mcp.NewTool("get_stats",
			mcp.WithDescription("Read today's tracking stats: calories, steps, and water against their targets."),
		),
		mcpGetStats(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"user://profile",
			"User Profile",
			mcp.WithResourceDescription("Current physiological profile as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	return s
}

func mcpGetTargets(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		targets, err := deps.Session.Targets()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to compute targets: %v", err)), nil
		}
		b, err := json.Marshal(targets)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal targets: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecommendMeals(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		meals, err := deps.Session.Recommendations()
		if err != nil {
			return mcpError(fmt.Sprintf("recommendation failed: %v", err)), nil
		}
		if len(meals) > limit {
			meals = meals[:limit]
		}
		if len(meals) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(meals)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpLogFood(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		calories, err := req.RequireInt("calories")
		if err != nil {
			return mcpError("calories is required and must be a number"), nil
		}
		if calories <= 0 {
			return mcpError("calories must be positive"), nil
		}

		entry, err := deps.Session.LogFood(name, calories, "mcp")
		if err != nil {
			return mcpError(fmt.Sprintf("failed to log food: %v", err)), nil
		}

		budget, err := deps.Session.RemainingBudget()
		if err != nil {
			return mcpError(fmt.Sprintf("logged %s but failed to compute budget: %v", entry.Name, err)), nil
		}
		return mcpText(fmt.Sprintf("Logged %s (%d kcal). Remaining budget: %d kcal.", entry.Name, calories, budget)), nil
	}
}

func mcpSetProfileField(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		field, err := req.RequireString("field")
		if err != nil {
			return mcpError("field is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		p, err := deps.Session.Profile()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load profile: %v", err)), nil
		}

		switch field {
		case "gender":
			p.Gender = health.Gender(value)
		case "age":
			n, err := strconv.Atoi(value)
			if err != nil {
				return mcpError("age must be an integer"), nil
			}
			p.Age = n
		case "height":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return mcpError("height must be a number"), nil
			}
			p.HeightCM = f
		case "weight":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return mcpError("weight must be a number"), nil
			}
			p.WeightKG = f
		case "activity_level":
			p.ActivityLevel = health.ActivityLevel(value)
		default:
			return mcpError(fmt.Sprintf("unknown field %q", field)), nil
		}

		if err := deps.Session.UpdateProfile(p); err != nil {
			return mcpError(fmt.Sprintf("profile update rejected: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Updated %s to %s.", field, value)), nil
	}
}

func mcpGetStats(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := deps.Session.Stats()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get stats: %v", err)), nil
		}
		b, err := json.Marshal(stats)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceProfile(deps AppDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, err := deps.Session.Profile()
		if err != nil {
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}

		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
