package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/lo"

	"github.com/vinodismyname/partnerlens/config"
	"github.com/vinodismyname/partnerlens/internal/agent"
	"github.com/vinodismyname/partnerlens/internal/analytics"
	"github.com/vinodismyname/partnerlens/internal/extract"
	"github.com/vinodismyname/partnerlens/internal/facts"
	"github.com/vinodismyname/partnerlens/internal/runtime"
	"github.com/vinodismyname/partnerlens/internal/security"
	"github.com/vinodismyname/partnerlens/internal/service"
	"github.com/vinodismyname/partnerlens/internal/snapshots"
	"github.com/vinodismyname/partnerlens/pkg/mcperr"
	"github.com/vinodismyname/partnerlens/pkg/pagination"
	"github.com/vinodismyname/partnerlens/pkg/validation"
)

// Tool names served over MCP.
const (
	IngestWorkbookTool    = "ingest_workbook"
	ListDatasetsTool      = "list_datasets"
	LoadDatasetTool       = "load_dataset"
	KPIReportTool         = "kpi_report"
	PerformanceReportTool = "performance_report"
	AskAnalystTool        = "ask_analyst"
)

const maxListPageSize = 200

// Deps carries what the tool handlers call into.
type Deps struct {
	Service  *service.Service
	Catalog  *analytics.Catalog
	Security *security.Manager
	Limits   runtime.Limits
}

// --- Input / Output Schemas (typed for discovery) ---

// IngestWorkbookInput defines parameters for ingesting a report from disk.
type IngestWorkbookInput struct {
	Path   string `json:"path" validate:"required,xlsx_or_html" jsonschema_description:"Path to an .xlsx report or HTML export under an allowed directory"`
	Source string `json:"source,omitempty" jsonschema_description:"Report origin, e.g. MyAffiliate or DynamicWorks"`
}

// ListDatasetsInput defines parameters for listing stored datasets.
type ListDatasetsInput struct {
	Source string `json:"source,omitempty" jsonschema_description:"Only list datasets from this source"`
	Limit  int    `json:"limit,omitempty" validate:"omitempty,min=1,max=200" jsonschema_description:"Page size"`
	Cursor string `json:"cursor,omitempty" validate:"omitempty,cursor" jsonschema_description:"Opaque cursor from a previous page"`
}

// PageMeta captures paging metadata.
type PageMeta struct {
	Total      int    `json:"total"`
	Returned   int    `json:"returned"`
	Truncated  bool   `json:"truncated"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// ListDatasetsOutput documents one page of stored datasets.
type ListDatasetsOutput struct {
	Datasets []snapshots.Meta `json:"datasets"`
	Meta     PageMeta         `json:"meta"`
}

// DatasetInput names a stored dataset.
type DatasetInput struct {
	DatasetID string `json:"dataset_id" validate:"required" jsonschema_description:"Dataset id returned by ingest_workbook or list_datasets"`
}

// LoadDatasetInput selects a dataset and an optional inclusive date range.
type LoadDatasetInput struct {
	DatasetID string `json:"dataset_id" validate:"required" jsonschema_description:"Dataset id"`
	StartDate string `json:"start_date,omitempty" validate:"omitempty,yyyymmdd" jsonschema_description:"First day to keep, YYYY-MM-DD"`
	EndDate   string `json:"end_date,omitempty" validate:"omitempty,yyyymmdd" jsonschema_description:"Last day to keep, YYYY-MM-DD"`
}

// AskAnalystInput defines one analyst turn.
type AskAnalystInput struct {
	DatasetID string          `json:"dataset_id" validate:"required" jsonschema_description:"Dataset id to analyze"`
	Query     string          `json:"query" validate:"required" jsonschema_description:"Question about partner performance"`
	History   []agent.Message `json:"history,omitempty" jsonschema_description:"Earlier turns, oldest first"`
}

// AskAnalystOutput carries the analyst's answer.
type AskAnalystOutput struct {
	Answer string `json:"answer"`
}

// RegisterDatasetTools defines the ingest, listing, report and analyst tools.
func RegisterDatasetTools(s *server.MCPServer, reg *Registry, d Deps) {
	h := &datasetTools{d: d}

	// ingest_workbook
	ingest := mcp.NewTool(
		IngestWorkbookTool,
		mcp.WithDescription("Ingest a partner report from disk, store it as a dataset and return KPI and performance reports"),
		mcp.WithInputSchema[IngestWorkbookInput](),
	)
	s.AddTool(ingest, mcp.NewTypedToolHandler(h.ingest))
	reg.Register(ingest)

	// list_datasets
	list := mcp.NewTool(
		ListDatasetsTool,
		mcp.WithDescription("List stored datasets, newest first, with cursor pagination"),
		mcp.WithInputSchema[ListDatasetsInput](),
		mcp.WithOutputSchema[ListDatasetsOutput](),
	)
	s.AddTool(list, mcp.NewTypedToolHandler(h.list))
	reg.Register(list)

	// load_dataset
	load := mcp.NewTool(
		LoadDatasetTool,
		mcp.WithDescription("Activate a dataset, optionally narrowed to a date range, and return its KPI and performance reports. Later tool calls on the dataset see the same range."),
		mcp.WithInputSchema[LoadDatasetInput](),
	)
	s.AddTool(load, mcp.NewTypedToolHandler(h.load))
	reg.Register(load)

	// kpi_report
	kpis := mcp.NewTool(
		KPIReportTool,
		mcp.WithDescription("Overall and per-month KPI totals of the active dataset"),
		mcp.WithInputSchema[DatasetInput](),
	)
	s.AddTool(kpis, mcp.NewTypedToolHandler(h.kpis))
	reg.Register(kpis)

	// performance_report
	perf := mcp.NewTool(
		PerformanceReportTool,
		mcp.WithDescription("Top, underperforming and growth partners with country and region breakdowns of the active dataset"),
		mcp.WithInputSchema[DatasetInput](),
	)
	s.AddTool(perf, mcp.NewTypedToolHandler(h.performance))
	reg.Register(perf)

	// ask_analyst
	ask := mcp.NewTool(
		AskAnalystTool,
		mcp.WithDescription("Ask the partner performance analyst a question about a dataset"),
		mcp.WithInputSchema[AskAnalystInput](),
		mcp.WithOutputSchema[AskAnalystOutput](),
	)
	s.AddTool(ask, mcp.NewTypedToolHandler(h.ask))
	reg.Register(ask)
}

type datasetTools struct {
	d Deps
}

func (h *datasetTools) ingest(ctx context.Context, req mcp.CallToolRequest, in IngestWorkbookInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	path, err := h.d.Security.ValidateOpenPath(in.Path)
	if err != nil {
		return securityError(err), nil
	}
	if fi, err := os.Stat(path); err == nil && h.d.Limits.MaxUploadBytes > 0 && fi.Size() > h.d.Limits.MaxUploadBytes {
		return mcperr.Wrapf(mcperr.FileTooLarge, "%d bytes exceeds the %d byte limit", fi.Size(), h.d.Limits.MaxUploadBytes), nil
	}
	res, err := h.d.Service.Ingest(ctx, service.Upload{
		Path:     path,
		Filename: filepath.Base(path),
		Source:   in.Source,
	})
	if err != nil {
		return serviceError(err), nil
	}
	summary := fmt.Sprintf("ingested %s as dataset %s (source %s)", res.Filename, res.FileID, res.Source)
	if res.KPIError != "" {
		summary += "; " + res.KPIError
	}
	return mcp.NewToolResultStructured(res, summary), nil
}

func (h *datasetTools) list(ctx context.Context, req mcp.CallToolRequest, in ListDatasetsInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	out, res := listDatasets(ctx, h.d.Service, in)
	if res != nil {
		return res, nil
	}
	summary := fmt.Sprintf("%d of %d datasets", out.Meta.Returned, out.Meta.Total)
	return mcp.NewToolResultStructured(out, summary), nil
}

func (h *datasetTools) load(ctx context.Context, req mcp.CallToolRequest, in LoadDatasetInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	res, err := h.d.Service.Analysis(ctx, in.DatasetID, in.StartDate, in.EndDate)
	if err != nil {
		return serviceError(err), nil
	}
	summary := fmt.Sprintf("dataset %s loaded: %s", in.DatasetID, res.KPIError)
	if res.KPIs != nil {
		summary = fmt.Sprintf("dataset %s loaded: %d months, deriv revenue %.2f", in.DatasetID, len(res.KPIs.Monthly), res.KPIs.Totals.DerivRevenue)
	}
	return mcp.NewToolResultStructured(res, summary), nil
}

func (h *datasetTools) kpis(ctx context.Context, req mcp.CallToolRequest, in DatasetInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	rep, err := h.d.Service.KPIs(ctx, in.DatasetID)
	if err != nil {
		return serviceError(err), nil
	}
	return mcp.NewToolResultStructured(rep, fmt.Sprintf("KPI report for %d months", len(rep.Monthly))), nil
}

func (h *datasetTools) performance(ctx context.Context, req mcp.CallToolRequest, in DatasetInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	rep, err := h.d.Service.Performance(ctx, in.DatasetID)
	if err != nil {
		return serviceError(err), nil
	}
	return mcp.NewToolResultStructured(rep, fmt.Sprintf("performance report for dataset %s", in.DatasetID)), nil
}

func (h *datasetTools) ask(ctx context.Context, req mcp.CallToolRequest, in AskAnalystInput) (*mcp.CallToolResult, error) {
	if msg := validation.ValidateStruct(in); msg != "" {
		return mcperr.FromText(msg), nil
	}
	answer, err := h.d.Service.Chat(ctx, in.DatasetID, in.Query, in.History)
	switch {
	case err != nil:
		return mcperr.New(mcperr.ModelCallFailed, err.Error()), nil
	case answer == agent.UnavailableText:
		return mcperr.New(mcperr.ModelUnavailable, ""), nil
	case answer == agent.NoDataText:
		return mcperr.New(mcperr.DatasetNotFound, answer), nil
	}
	return mcp.NewToolResultStructured(AskAnalystOutput{Answer: answer}, answer), nil
}

// listDatasets pages through stored snapshots. A non-nil result is an error
// to hand back to the client.
func listDatasets(ctx context.Context, svc *service.Service, in ListDatasetsInput) (ListDatasetsOutput, *mcp.CallToolResult) {
	cur := pagination.Cursor{Sc: pagination.ScopeDatasets, Src: strings.TrimSpace(in.Source), Ps: in.Limit}
	if in.Cursor != "" {
		c, err := pagination.DecodeCursor(in.Cursor)
		if err != nil || c.Sc != pagination.ScopeDatasets {
			return ListDatasetsOutput{}, mcperr.New(mcperr.CursorInvalid, "")
		}
		if cur.Src != "" && !strings.EqualFold(cur.Src, c.Src) {
			return ListDatasetsOutput{}, mcperr.New(mcperr.CursorInvalid, "cursor was issued for a different source")
		}
		cur = *c
		if in.Limit > 0 {
			cur.Ps = in.Limit
		}
	}
	if cur.Ps <= 0 {
		cur.Ps = config.DefaultListPageSize
	}
	cur.Ps = min(cur.Ps, maxListPageSize)

	all, err := svc.StoredFiles(ctx)
	if err != nil {
		return ListDatasetsOutput{}, mcperr.New(mcperr.StorageFailed, err.Error())
	}
	all = lo.Reverse(all)
	if cur.Src != "" {
		all = lo.Filter(all, func(m snapshots.Meta, _ int) bool { return strings.EqualFold(m.Source, cur.Src) })
	}

	start, end, next := pagination.Page(cur, len(all))
	out := ListDatasetsOutput{
		Datasets: all[start:end],
		Meta:     PageMeta{Total: len(all), Returned: end - start, Truncated: next != nil},
	}
	if next != nil {
		token, err := pagination.EncodeCursor(*next)
		if err != nil {
			return ListDatasetsOutput{}, mcperr.New(mcperr.CursorBuildFailed, err.Error())
		}
		out.Meta.NextCursor = token
	}
	return out, nil
}

func securityError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, security.ErrNotAllowed):
		return mcperr.New(mcperr.PermissionDenied, "")
	case errors.Is(err, security.ErrUnsupportedExtension):
		return mcperr.New(mcperr.UnsupportedFormat, "")
	case errors.Is(err, security.ErrNotFound):
		return mcperr.New(mcperr.OpenFailed, "file not found")
	}
	return mcperr.New(mcperr.OpenFailed, err.Error())
}

// serviceError maps service failures onto canonical MCP error codes.
func serviceError(err error) *mcp.CallToolResult {
	var (
		se  *service.StageError
		xe  *extract.Error
		col *facts.ColumnError
	)
	switch {
	case errors.Is(err, service.ErrFileNotFound), errors.Is(err, service.ErrProcessedMissing):
		return mcperr.New(mcperr.DatasetNotFound, err.Error())
	case errors.Is(err, analytics.ErrDataNotLoaded):
		return mcperr.New(mcperr.DataNotLoaded, "")
	case errors.Is(err, context.DeadlineExceeded):
		return mcperr.New(mcperr.Timeout, "")
	case errors.As(err, &col):
		return mcperr.New(mcperr.MissingColumns, col.Error())
	case errors.As(err, &se):
		switch se.Stage {
		case service.StageExtract:
			if errors.As(err, &xe) || errors.Is(err, service.ErrEmptyUpload) {
				return mcperr.New(mcperr.ExtractFailed, se.Error())
			}
			if mcperr.IsInvalidSheet(err) {
				return mcperr.New(mcperr.InvalidSheet, se.Error())
			}
			return mcperr.New(mcperr.OpenFailed, se.Error())
		case service.StageTransform:
			return mcperr.New(mcperr.TransformFailed, se.Error())
		case service.StageStore:
			return mcperr.New(mcperr.StorageFailed, se.Error())
		}
		return mcperr.New(mcperr.AnalysisFailed, se.Error())
	}
	return mcperr.New(mcperr.AnalysisFailed, err.Error())
}
