// Package service orchestrates report ingestion, stored-snapshot analysis,
// source comparison and analyst chat on top of the analysis packages.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/partnerlens/internal/agent"
	"github.com/vinodismyname/partnerlens/internal/analytics"
	"github.com/vinodismyname/partnerlens/internal/datasets"
	"github.com/vinodismyname/partnerlens/internal/extract"
	"github.com/vinodismyname/partnerlens/internal/facts"
	"github.com/vinodismyname/partnerlens/internal/kpi"
	"github.com/vinodismyname/partnerlens/internal/normalize"
	"github.com/vinodismyname/partnerlens/internal/performance"
	"github.com/vinodismyname/partnerlens/internal/snapshots"
)

// UnknownSource labels uploads that did not name their data source.
const UnknownSource = "unknown"

const (
	uploadDateLayout = "2006-01-02 15:04:05"
	filterDateLayout = "2006-01-02"
	processedMessage = "File processed successfully"
)

var (
	// ErrFileNotFound is returned for ids missing from the snapshot index.
	ErrFileNotFound = errors.New("File ID not found in stored files. Please upload the file again.")
	// ErrProcessedMissing is returned when the index knows an id but its data is gone.
	ErrProcessedMissing = errors.New("Processed data not found. Please upload the file again.")
	// ErrEmptyUpload is returned when extraction found a header but no rows.
	ErrEmptyUpload = errors.New("Parsed DataFrame is empty.")
	// ErrCompareIDs is returned when a comparison lacks one of its dataset ids.
	ErrCompareIDs = errors.New("Both myAffiliateId and dynamicWorksId are required")
)

// Stage names the ingest or analysis step that failed.
type Stage string

const (
	StageExtract     Stage = "extract"
	StageTransform   Stage = "transform"
	StageStore       Stage = "store"
	StageKPI         Stage = "kpi"
	StagePerformance Stage = "performance"
)

// StageError wraps a failure with the step that produced it. Reload is set for
// failures while re-analyzing a stored snapshot.
type StageError struct {
	Stage  Stage
	Reload bool
	Err    error
}

func (e *StageError) Error() string {
	suffix := ""
	if e.Reload {
		suffix = " on loaded data"
	}
	switch e.Stage {
	case StageTransform:
		return fmt.Sprintf("Failed to transform data structure: %v", e.Err)
	case StageStore:
		return fmt.Sprintf("Could not save processed data: %v", e.Err)
	case StageKPI:
		return fmt.Sprintf("KPI Calculation Error%s: %v", suffix, e.Err)
	case StagePerformance:
		return fmt.Sprintf("Performance Analysis Error%s: %v", suffix, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *StageError) Unwrap() error { return e.Err }

// SourceNotFoundError reports a comparison dataset id with no stored data.
type SourceNotFoundError struct {
	Source string
	ID     string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("%s data file not found for ID: %s", e.Source, e.ID)
}

// Upload describes one report to ingest. Temporary files are removed once
// processing finishes, whatever the outcome.
type Upload struct {
	Path      string
	Filename  string
	Source    string
	Temporary bool
}

// Reports carries both analyses of one dataset. Each is computed on its own;
// a report that failed is nil and its error message is set instead.
type Reports struct {
	KPIs             *kpi.Report         `json:"kpis,omitempty"`
	KPIError         string              `json:"kpis_error,omitempty"`
	Performance      *performance.Report `json:"performance_analysis,omitempty"`
	PerformanceError string              `json:"performance_analysis_error,omitempty"`
}

// IngestResult is the payload returned once a report has been stored.
type IngestResult struct {
	Message  string `json:"message"`
	FileID   string `json:"fileId"`
	Filename string `json:"filename"`
	Source   string `json:"source"`
	Reports
}

// AnalysisResult is the payload of a stored-snapshot reload.
type AnalysisResult struct {
	Reports
}

// analyze computes both reports over t. The error is non-nil only when
// neither report could be computed, and is then the KPI failure.
func analyze(t *facts.Table, reload bool) (Reports, error) {
	var (
		r     Reports
		first error
	)
	if rep, err := kpi.Compute(t); err != nil {
		first = &StageError{Stage: StageKPI, Reload: reload, Err: err}
		r.KPIError = first.Error()
	} else {
		r.KPIs = &rep
	}
	if rep, err := performance.Analyze(t); err != nil {
		se := &StageError{Stage: StagePerformance, Reload: reload, Err: err}
		r.PerformanceError = se.Error()
		if first == nil {
			first = se
		}
	} else {
		r.Performance = &rep
	}
	if r.KPIs == nil && r.Performance == nil {
		return r, first
	}
	return r, nil
}

func (r Reports) logFailures(log zerolog.Logger) {
	if r.KPIError != "" {
		log.Warn().Str("report", string(StageKPI)).Msg(r.KPIError)
	}
	if r.PerformanceError != "" {
		log.Warn().Str("report", string(StagePerformance)).Msg(r.PerformanceError)
	}
}

// CompareRequest selects two stored datasets and the metrics to line up.
type CompareRequest struct {
	MyAffiliateID  string   `json:"myAffiliateId"`
	DynamicWorksID string   `json:"dynamicWorksId"`
	Metrics        []string `json:"metricsToCompare"`
	Timeframe      string   `json:"timeframe"`
}

// Service wires snapshot storage, the loaded-dataset cache and the analyst agent.
type Service struct {
	store *snapshots.Store
	cache *datasets.Manager
	agent *agent.Dispatcher
	clock func() time.Time
}

// New constructs a Service. A nil dispatcher leaves chat unavailable.
func New(store *snapshots.Store, cache *datasets.Manager, dispatcher *agent.Dispatcher) *Service {
	return &Service{store: store, cache: cache, agent: dispatcher, clock: time.Now}
}

func logger(ctx context.Context) zerolog.Logger {
	return zerolog.Ctx(ctx).With().Str("component", "service").Logger()
}

// Ingest extracts and normalizes the uploaded report, stores it as a new
// snapshot, makes it the active dataset for its id, and computes both reports.
// Once the snapshot is saved the result always carries its id; report
// failures are recorded in the result rather than returned.
func (s *Service) Ingest(ctx context.Context, up Upload) (IngestResult, error) {
	log := logger(ctx)
	started := s.clock()
	if up.Temporary {
		defer func() {
			if err := os.Remove(up.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn().Err(err).Str("path", up.Path).Msg("could not remove uploaded file")
			}
		}()
	}
	source := strings.TrimSpace(up.Source)
	if source == "" {
		source = UnknownSource
	}

	raw, err := extract.Load(ctx, up.Path)
	if err != nil {
		return IngestResult{}, &StageError{Stage: StageExtract, Err: err}
	}
	if len(raw.Rows) == 0 {
		return IngestResult{}, &StageError{Stage: StageExtract, Err: ErrEmptyUpload}
	}

	table, err := normalize.Normalize(raw, source)
	if err != nil {
		return IngestResult{}, &StageError{Stage: StageTransform, Err: err}
	}

	id := uuid.NewString()
	meta := snapshots.Meta{
		Filename:   up.Filename,
		Source:     source,
		UploadDate: s.clock().Format(uploadDateLayout),
		Rows:       table.Len(),
	}
	if err := s.store.Save(ctx, id, meta, table); err != nil {
		return IngestResult{}, &StageError{Stage: StageStore, Err: err}
	}
	s.activate(ctx, analytics.NewContext(id, table))

	out := IngestResult{Message: processedMessage, FileID: id, Filename: up.Filename, Source: source}
	out.Reports, _ = analyze(table, false)
	out.Reports.logFailures(log.With().Str("file_id", id).Logger())

	log.Info().
		Str("file_id", id).
		Str("filename", up.Filename).
		Str("source", source).
		Int("rows", table.Len()).
		Strs("columns", table.Columns).
		Dur("elapsed", s.clock().Sub(started)).
		Msg("report ingested")
	return out, nil
}

// activate replaces the cached context for ac.ID. A full cache is not fatal:
// chat reloads the snapshot on demand.
func (s *Service) activate(ctx context.Context, ac *analytics.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, ac); err != nil {
		l := logger(ctx)
		l.Warn().Err(err).Str("file_id", ac.ID).Msg("dataset not cached")
	}
}

// StoredFiles lists every stored snapshot, dropping entries whose data is gone.
func (s *Service) StoredFiles(ctx context.Context) ([]snapshots.Meta, error) {
	metas, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if metas == nil {
		metas = []snapshots.Meta{}
	}
	return metas, nil
}

// load reads a stored snapshot, mapping storage misses to the caller-facing errors.
func (s *Service) load(ctx context.Context, id string) (*facts.Table, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		if errors.Is(err, snapshots.ErrNotFound) || errors.Is(err, snapshots.ErrInvalidID) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	t, err := s.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, snapshots.ErrNotFound) {
			return nil, ErrProcessedMissing
		}
		return nil, err
	}
	return t, nil
}

// Analysis reloads a snapshot, keeps the records dated from start through end
// when both are given, resets the dataset's analytics context to that slice,
// and recomputes both reports. Unparseable dates leave the data unfiltered.
func (s *Service) Analysis(ctx context.Context, id, start, end string) (AnalysisResult, error) {
	log := logger(ctx).With().Str("file_id", id).Logger()
	t, err := s.load(ctx, id)
	if err != nil {
		return AnalysisResult{}, err
	}

	if start != "" && end != "" {
		from, errFrom := time.Parse(filterDateLayout, strings.TrimSpace(start))
		to, errTo := time.Parse(filterDateLayout, strings.TrimSpace(end))
		if err := errors.Join(errFrom, errTo); err != nil {
			log.Warn().Err(err).Str("start", start).Str("end", end).Msg("date filter ignored")
		} else {
			before := t.Len()
			t = t.Between(from, to)
			lvl := zerolog.InfoLevel
			if t.Empty() {
				lvl = zerolog.WarnLevel
			}
			log.WithLevel(lvl).Int("rows_before", before).Int("rows_after", t.Len()).Msg("date filter applied")
		}
	}

	s.activate(ctx, analytics.NewContext(id, t))

	reports, err := analyze(t, true)
	if err != nil {
		return AnalysisResult{}, err
	}
	reports.logFailures(log)
	return AnalysisResult{Reports: reports}, nil
}

// KPIs computes the KPI report over the active context of id. An active
// context left empty by a date filter gives analytics.ErrDataNotLoaded.
func (s *Service) KPIs(ctx context.Context, id string) (kpi.Report, error) {
	ac, err := s.Dataset(ctx, id)
	if err != nil {
		return kpi.Report{}, err
	}
	if err := ac.Check(); err != nil {
		return kpi.Report{}, err
	}
	return kpi.Compute(ac.Table)
}

// Performance computes the performance report over the active context of id.
func (s *Service) Performance(ctx context.Context, id string) (performance.Report, error) {
	ac, err := s.Dataset(ctx, id)
	if err != nil {
		return performance.Report{}, err
	}
	if err := ac.Check(); err != nil {
		return performance.Report{}, err
	}
	return performance.Analyze(ac.Table)
}

// Dataset returns the cached analytics context for id, loading the full snapshot on a miss.
func (s *Service) Dataset(ctx context.Context, id string) (*analytics.Context, error) {
	if s.cache == nil {
		t, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		return analytics.NewContext(id, t), nil
	}
	if ac, ok := s.cache.Get(id); ok {
		return ac, nil
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		if errors.Is(err, snapshots.ErrNotFound) || errors.Is(err, snapshots.ErrInvalidID) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	ac, err := s.cache.GetOrLoad(ctx, id)
	if errors.Is(err, snapshots.ErrNotFound) {
		return nil, ErrProcessedMissing
	}
	return ac, err
}

// TopPartner answers the best partner for metric in one month over the full
// stored snapshot. Metric aliases are accepted; the result echoes the name
// the caller used.
func (s *Service) TopPartner(ctx context.Context, id, metric string, year, month int) (performance.TopPartnerResult, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return performance.TopPartnerResult{}, err
	}
	column := metric
	if c, ok := facts.ResolveMetric(metric); ok {
		column = c
	}
	res, err := performance.TopPartner(t, column, facts.Month{Year: year, Month: time.Month(month)})
	res.Metric = metric
	return res, err
}

// TeamRegions lists the distinct regions of a stored snapshot.
func (s *Service) TeamRegions(ctx context.Context, id string) ([]string, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return performance.TeamRegions(t)
}

// CompareSources lines up the requested metrics of a MyAffiliate and a
// DynamicWorks snapshot month by month.
func (s *Service) CompareSources(ctx context.Context, req CompareRequest) (performance.SourceComparison, error) {
	if strings.TrimSpace(req.MyAffiliateID) == "" || strings.TrimSpace(req.DynamicWorksID) == "" {
		return performance.SourceComparison{}, ErrCompareIDs
	}
	ma, err := s.store.Load(ctx, req.MyAffiliateID)
	if err != nil {
		if errors.Is(err, snapshots.ErrNotFound) || errors.Is(err, snapshots.ErrInvalidID) {
			return performance.SourceComparison{}, &SourceNotFoundError{Source: "MyAffiliate", ID: req.MyAffiliateID}
		}
		return performance.SourceComparison{}, err
	}
	dw, err := s.store.Load(ctx, req.DynamicWorksID)
	if err != nil {
		if errors.Is(err, snapshots.ErrNotFound) || errors.Is(err, snapshots.ErrInvalidID) {
			return performance.SourceComparison{}, &SourceNotFoundError{Source: "DynamicWorks", ID: req.DynamicWorksID}
		}
		return performance.SourceComparison{}, err
	}
	out := performance.CompareSources(ma, dw, req.Metrics)
	l := logger(ctx)
	l.Info().
		Str("my_affiliate_id", req.MyAffiliateID).
		Str("dynamic_works_id", req.DynamicWorksID).
		Int("months", len(out.Months)).
		Int("series", len(out.Series)).
		Msg("sources compared")
	return out, nil
}

// Chat runs one analyst turn against the active context of id. The text is
// always suitable for the user; a non-nil error accompanies a model failure.
func (s *Service) Chat(ctx context.Context, id, query string, history []agent.Message) (string, error) {
	var ac *analytics.Context
	if s.agent != nil && s.agent.Model != nil {
		var err error
		if ac, err = s.Dataset(ctx, id); err != nil {
			l := logger(ctx)
			l.Warn().Err(err).Str("file_id", id).Msg("chat without a loaded dataset")
			ac = nil
		}
	}
	return s.agent.Turn(ctx, ac, query, history)
}

// Maintain drops index entries whose data is gone and evicts idle datasets.
func (s *Service) Maintain(ctx context.Context) (pruned, evicted int, err error) {
	pruned, err = s.store.Prune(ctx)
	if s.cache != nil {
		evicted = s.cache.EvictExpired()
	}
	return pruned, evicted, err
}
