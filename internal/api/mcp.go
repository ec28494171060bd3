package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates an MCP server exposing the agent as tools.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"semagent",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("semagent: a semantic layer over a tabular dataset. Read the schema, then run semantic queries."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_schema",
			mcp.WithDescription("Return the semantic schema (tables, measures, dimensions, joins) of the loaded dataset as JSON."),
		),
		mcpGetSchema(deps),
	)

	s.AddTool(
		mcp.NewTool("train",
			mcp.WithDescription("Store example questions with their semantic query JSON, and/or free-text documentation."),
			mcp.WithArray("queries", mcp.Description("Natural-language questions")),
			mcp.WithArray("jsons", mcp.Description("Semantic query JSON answering each question, same order as queries")),
			mcp.WithArray("docs", mcp.Description("Documentation snippets")),
		),
		mcpTrain(deps),
	)

	s.AddTool(
		mcp.NewTool("run_query",
			mcp.WithDescription("Compile a semantic query (measures, dimensions, timeDimensions, filters, order, limit) to SQL and run it on the dataset."),
			mcp.WithString("query", mcp.Description("Semantic query as a JSON object string"), mcp.Required()),
			mcp.WithBoolean("sql_only", mcp.Description("Return the compiled SQL without executing it")),
			mcp.WithString("dialect", mcp.Description("SQL dialect for sql_only: postgres (default) or sqlite")),
		),
		mcpRunQuery(deps),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Find stored training questions and documents similar to a question."),
			mcp.WithString("query", mcp.Description("Search text"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results per kind")),
		),
		mcpRecall(deps),
	)

	return s
}

func mcpGetSchema(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpText(deps.Agent.Schema().String()), nil
	}
}

func mcpTrain(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queries := req.GetStringSlice("queries", nil)
		jsons := req.GetStringSlice("jsons", nil)
		docs := req.GetStringSlice("docs", nil)

		if err := deps.Agent.Train(ctx, queries, jsons, docs); err != nil {
			return mcpError(fmt.Sprintf("training failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Stored %d question/answer pairs and %d documents", len(queries), len(docs))), nil
	}
}

func mcpRunQuery(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		if req.GetBool("sql_only", false) {
			d, err := ParseDialect(req.GetString("dialect", ""))
			if err != nil {
				return mcpError(err.Error()), nil
			}
			sql, err := deps.Agent.BuildSQL(query, d)
			if err != nil {
				return mcpError(fmt.Sprintf("building query: %v", err)), nil
			}
			return mcpText(sql), nil
		}

		res, err := deps.Agent.RunQuery(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}
		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecall(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Recall == nil {
			return mcpError("recall not available: no vector store configured"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		res, err := recall(ctx, deps.Recall, query, deps.limit(req.GetInt("limit", 0)))
		if err != nil {
			return mcpError(fmt.Sprintf("recall failed: %v", err)), nil
		}
		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
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
