package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	goruntime "runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/vinodismyname/partnerlens/internal/agent"
	"github.com/vinodismyname/partnerlens/internal/performance"
	"github.com/vinodismyname/partnerlens/internal/security"
	"github.com/vinodismyname/partnerlens/internal/service"
	"github.com/vinodismyname/partnerlens/pkg/validation"
)

// multipartMemory is the in-memory share of a parsed upload; the rest spills to disk.
const multipartMemory = 8 << 20

// handleUpload ingests a multipart report upload.
// POST /upload (form fields: file, source)
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.limits.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d byte upload limit", tooBig.Limit))
			return
		}
		s.writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()
	if strings.TrimSpace(header.Filename) == "" {
		s.writeError(w, http.StatusBadRequest, "No selected file")
		return
	}

	filename := security.SecureFilename(header.Filename)
	if filename == "" || !s.sec.AllowsExtension(filename) {
		s.writeError(w, http.StatusBadRequest, "File type not allowed")
		return
	}

	path, err := s.saveUpload(file, filename)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save file: %v", err))
		return
	}

	res, err := s.svc.Ingest(r.Context(), service.Upload{
		Path:      path,
		Filename:  filename,
		Source:    r.FormValue("source"),
		Temporary: true,
	})
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("filename", filename).Msg("upload failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// saveUpload copies the upload into the upload directory under a unique name
// that keeps the sanitized file name as its suffix.
func (s *Server) saveUpload(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", err
	}
	dst, err := os.CreateTemp(s.uploadDir, "*-"+filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// handleStoredFiles lists every stored snapshot.
// GET /load-stored-files
func (s *Server) handleStoredFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.svc.StoredFiles(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load stored files: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"storedFiles": files})
}

// handleAnalysis re-runs both reports over a stored snapshot.
// GET /get-analysis-data/{fileId}?startDate=YYYY-MM-DD&endDate=YYYY-MM-DD
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileId")
	q := r.URL.Query()
	res, err := s.svc.Analysis(r.Context(), id, q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		var se *service.StageError
		switch {
		case errors.Is(err, service.ErrFileNotFound), errors.Is(err, service.ErrProcessedMissing):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &se):
			s.writeError(w, http.StatusInternalServerError, se.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve analysis data: %v", err))
		}
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

type topPartnerRequest struct {
	FileID string `json:"fileId"`
	Metric string `json:"metric"`
	Year   any    `json:"year"`
	Month  any    `json:"month"`
}

type topPartnerPeriod struct {
	Year  int `validate:"gte=1900,lte=9999"`
	Month int `validate:"month"`
}

// handleTopPartner answers the best partner for a metric in one month.
// POST /get-top-partner {fileId, metric, year, month}
func (s *Server) handleTopPartner(w http.ResponseWriter, r *http.Request) {
	var req topPartnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	if req.FileID == "" || req.Metric == "" || falsy(req.Year) || falsy(req.Month) {
		s.writeError(w, http.StatusBadRequest, "Missing required parameters: fileId, metric, year, month")
		return
	}
	year, okY := asInt(req.Year)
	month, okM := asInt(req.Month)
	if !okY || !okM {
		s.writeError(w, http.StatusBadRequest, "Year and month must be integers")
		return
	}
	if msg := validation.ValidateStruct(topPartnerPeriod{Year: year, Month: month}); msg != "" {
		s.writeError(w, http.StatusBadRequest, strings.TrimPrefix(msg, "VALIDATION: "))
		return
	}

	res, err := s.svc.TopPartner(r.Context(), req.FileID, req.Metric, year, month)
	var me *performance.MetricError
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, res)
	case errors.Is(err, service.ErrFileNotFound), errors.Is(err, service.ErrProcessedMissing):
		s.writeError(w, http.StatusNotFound, "Processed data not found.")
	case errors.Is(err, performance.ErrNoData):
		s.writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("No data found for %d/%d", month, year)})
	case errors.As(err, &me):
		s.writeError(w, http.StatusBadRequest, me.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get top partner: %v", err))
	}
}

// falsy mirrors the dashboard's notion of a missing value: absent, empty or zero.
func falsy(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case float64:
		return x == 0
	case bool:
		return !x
	}
	return false
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	}
	return 0, false
}

type chatRequest struct {
	Query       *string         `json:"query"`
	FileID      *string         `json:"fileId"`
	ChatHistory []agent.Message `json:"chat_history"`
	Format      string          `json:"format"`
}

// handleChat runs one analyst turn.
// POST /chat {query, fileId, chat_history, format}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == nil || req.FileID == nil {
		s.writeError(w, http.StatusBadRequest, "Missing query or fileId")
		return
	}

	answer, err := s.svc.Chat(r.Context(), *req.FileID, *req.Query, req.ChatHistory)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("file_id", *req.FileID).Msg("chat turn degraded")
	}
	out := map[string]string{"answer": answer}
	if strings.EqualFold(req.Format, "html") {
		html, err := s.renderMarkdown(answer)
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("answer rendering failed")
		} else {
			out["html"] = html
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleComparison lines up MyAffiliate and DynamicWorks data month by month.
// POST /get-comparison-data {myAffiliateId, dynamicWorksId, metricsToCompare, timeframe}
func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	var req service.CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	res, err := s.svc.CompareSources(r.Context(), req)
	var nf *service.SourceNotFoundError
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, res)
	case errors.Is(err, service.ErrCompareIDs):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &nf):
		s.writeError(w, http.StatusNotFound, nf.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to generate comparison data: %v", err))
	}
}

// handleTeamRegions lists the distinct regions of a stored snapshot.
// GET /get-team-regions/{fileId}
func (s *Server) handleTeamRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := s.svc.TeamRegions(r.Context(), chi.URLParam(r, "fileId"))
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]any{"regions": regions})
	case errors.Is(err, service.ErrFileNotFound), errors.Is(err, service.ErrProcessedMissing):
		s.writeError(w, http.StatusNotFound, service.ErrProcessedMissing.Error())
	case errors.Is(err, performance.ErrNoRegion):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to fetch team regions: %v", err))
	}
}

// handleHealth reports liveness with a host resource snapshot.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}
	var memUsed float64
	if vm, err := mem.VirtualMemory(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		memUsed = vm.UsedPercent
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"version":             s.version,
		"uptime_seconds":      int64(time.Since(s.started).Seconds()),
		"goroutines":          goruntime.NumGoroutine(),
		"cpu_percent":         cpuPercent[0],
		"memory_used_percent": memUsed,
	})
}
