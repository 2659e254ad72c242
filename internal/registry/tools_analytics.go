package registry

import (
	"context"
	"encoding/json"
	"maps"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/lo"

	"github.com/vinodismyname/partnerlens/pkg/mcperr"
)

const datasetArg = "dataset_id"

// RegisterAnalyticsTools exposes every catalog tool over MCP. Each takes the
// catalog tool's arguments plus the dataset id to run against.
func RegisterAnalyticsTools(s *server.MCPServer, reg *Registry, d Deps) error {
	for _, t := range d.Catalog.Tools() {
		schema, err := json.Marshal(withDatasetArg(t.Schema()))
		if err != nil {
			return err
		}
		tool := mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema)
		s.AddTool(tool, analyticsHandler(d, t.Name()))
		reg.Register(tool)
	}
	return nil
}

// withDatasetArg returns a copy of schema with a required dataset_id property.
func withDatasetArg(schema map[string]any) map[string]any {
	out := maps.Clone(schema)
	delete(out, "$schema")
	delete(out, "$id")
	out["type"] = "object"

	props := map[string]any{}
	if p, ok := schema["properties"].(map[string]any); ok {
		props = maps.Clone(p)
	}
	props[datasetArg] = map[string]any{
		"type":        "string",
		"description": "Dataset id returned by ingest_workbook or list_datasets",
	}
	out["properties"] = props

	required := []string{datasetArg}
	switch r := schema["required"].(type) {
	case []string:
		required = append(required, r...)
	case []any:
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	out["required"] = lo.Uniq(required)
	return out
}

func analyticsHandler(d Deps, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		id, _ := args[datasetArg].(string)
		if strings.TrimSpace(id) == "" {
			return mcperr.New(mcperr.Validation, datasetArg+" is required"), nil
		}
		raw, err := json.Marshal(lo.OmitByKeys(args, []string{datasetArg}))
		if err != nil {
			return mcperr.New(mcperr.Validation, err.Error()), nil
		}

		ac, err := d.Service.Dataset(ctx, id)
		if err != nil {
			return serviceError(err), nil
		}
		out := d.Catalog.Run(ctx, name, raw, ac)
		if strings.HasPrefix(out, "Error") {
			return mcp.NewToolResultError(out), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}
