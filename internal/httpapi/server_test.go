package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/xuri/excelize/v2"

	"github.com/vinodismyname/partnerlens/internal/agent"
	"github.com/vinodismyname/partnerlens/internal/analytics"
	"github.com/vinodismyname/partnerlens/internal/datasets"
	"github.com/vinodismyname/partnerlens/internal/runtime"
	"github.com/vinodismyname/partnerlens/internal/security"
	"github.com/vinodismyname/partnerlens/internal/service"
	"github.com/vinodismyname/partnerlens/internal/snapshots"
)

type fixedModel struct{ answer string }

func (m fixedModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.answer}}}, nil
}

func (m fixedModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return m.answer, nil
}

type harness struct {
	handler   http.Handler
	uploadDir string
}

func newHarness(t *testing.T) harness {
	t.Helper()
	store, err := snapshots.Open(filepath.Join(t.TempDir(), "processed"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctrl := runtime.NewController(runtime.NewLimits(4, 2))
	cache := datasets.NewManager(time.Hour, time.Hour, ctrl, store, time.Now)
	dispatcher := agent.New(fixedModel{answer: "**P1** leads Deriv Revenue."}, analytics.Default())
	sec, err := security.NewManager(nil, nil)
	require.NoError(t, err)

	uploadDir := filepath.Join(t.TempDir(), "uploads")
	srv := New(Config{
		Log:       zerolog.Nop(),
		Service:   service.New(store, cache, dispatcher),
		Security:  sec,
		Runtime:   ctrl,
		UploadDir: uploadDir,
		Version:   "test",
	})
	return harness{handler: srv.Handler(), uploadDir: uploadDir}
}

func reportBytes(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	sh := "Sheet1"
	require.NoError(t, f.SetSheetRow(sh, "A1", &[]string{"", "", "",
		"Expected Revenue", "", "Deriv Revenue", "", "Partners' Commissions", "",
		"Total Deposits", "", "Active Clients", "", "First Time Traders", ""}))
	header := []string{"affiliate_id", "partner's country", "GP Team Region"}
	for i := 0; i < 6; i++ {
		header = append(header, "2025-01-01", "2025-02-01")
	}
	require.NoError(t, f.SetSheetRow(sh, "A2", &header))
	require.NoError(t, f.SetSheetRow(sh, "A3", &[]string{"P1", "Kenya", "Africa",
		"10", "20", "100", "150", "5", "0", "1000", "2000", "3", "4", "1", "2"}))
	require.NoError(t, f.SetSheetRow(sh, "A4", &[]string{"P2", "Vietnam", "Asia",
		"5", "5", "-10", "40", "0", "2", "500", "0", "1", "1", "0", "1"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return buf.Bytes()
}

func multipartUpload(t *testing.T, filename, source string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if source != "" {
		require.NoError(t, mw.WriteField("source", source))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(t *testing.T, h http.Handler, req *http.Request) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func upload(t *testing.T, h harness, source string) string {
	t.Helper()
	code, out := serve(t, h.handler, multipartUpload(t, "Partner Report.xlsx", source, reportBytes(t)))
	require.Equal(t, http.StatusOK, code, out)
	return out["fileId"].(string)
}

func TestUpload(t *testing.T) {
	h := newHarness(t)
	code, out := serve(t, h.handler, multipartUpload(t, "Partner Report.xlsx", "myAffiliate", reportBytes(t)))
	require.Equal(t, http.StatusOK, code, out)
	require.Equal(t, "File processed successfully", out["message"])
	require.Equal(t, "Partner_Report.xlsx", out["filename"])
	require.Equal(t, "myAffiliate", out["source"])
	totals := out["kpis"].(map[string]any)["total_kpis"].(map[string]any)
	require.Equal(t, 280.0, totals["total_deriv_revenue"])
	require.Contains(t, out["performance_analysis"], "top_partners_by_revenue")

	left, err := os.ReadDir(h.uploadDir)
	require.NoError(t, err)
	require.Empty(t, left, "uploaded file should be cleaned up")
}

func TestUploadRejections(t *testing.T) {
	h := newHarness(t)

	code, out := serve(t, h.handler, postJSON("/upload", `{}`))
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "No file part", out["error"])

	code, out = serve(t, h.handler, multipartUpload(t, "report.csv", "", []byte("a,b")))
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "File type not allowed", out["error"])

	code, out = serve(t, h.handler, multipartUpload(t, "report.xlsx", "", []byte("not a workbook")))
	require.Equal(t, http.StatusInternalServerError, code)
	require.NotEmpty(t, out["error"])
}

func TestStoredFilesAndAnalysis(t *testing.T) {
	h := newHarness(t)
	id := upload(t, h, "")

	code, out := serve(t, h.handler, httptest.NewRequest(http.MethodGet, "/load-stored-files", nil))
	require.Equal(t, http.StatusOK, code)
	files := out["storedFiles"].([]any)
	require.Len(t, files, 1)
	entry := files[0].(map[string]any)
	require.Equal(t, id, entry["fileId"])
	require.Equal(t, "unknown", entry["source"])
	require.NotEmpty(t, entry["uploadDate"])

	code, out = serve(t, h.handler, httptest.NewRequest(http.MethodGet, "/get-analysis-data/"+id+"?startDate=2025-01-01&endDate=2025-01-31", nil))
	require.Equal(t, http.StatusOK, code, out)
	totals := out["kpis"].(map[string]any)["total_kpis"].(map[string]any)
	require.Equal(t, 90.0, totals["total_deriv_revenue"])

	code, out = serve(t, h.handler, httptest.NewRequest(http.MethodGet, "/get-analysis-data/unknown-id", nil))
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "File ID not found in stored files. Please upload the file again.", out["error"])
}

func TestTopPartner(t *testing.T) {
	h := newHarness(t)
	id := upload(t, h, "myAffiliate")

	cases := []struct {
		name   string
		body   string
		status int
		key    string
		want   any
	}{
		{"no body", ``, http.StatusBadRequest, "error", "No data provided"},
		{"missing", `{"fileId":"` + id + `","metric":"FTT"}`, http.StatusBadRequest, "error", "Missing required parameters: fileId, metric, year, month"},
		{"not integers", `{"fileId":"` + id + `","metric":"FTT","year":"twenty","month":1}`, http.StatusBadRequest, "error", "Year and month must be integers"},
		{"bad month", `{"fileId":"` + id + `","metric":"FTT","year":2025,"month":13}`, http.StatusBadRequest, "error", "month must be a month number between 1 and 12"},
		{"found", `{"fileId":"` + id + `","metric":"Deriv Revenue","year":"2025","month":"2"}`, http.StatusOK, "PartnerId", "P1"},
		{"no data", `{"fileId":"` + id + `","metric":"FTT","year":2025,"month":3}`, http.StatusOK, "message", "No data found for 3/2025"},
		{"unknown metric", `{"fileId":"` + id + `","metric":"Band","year":2025,"month":1}`, http.StatusBadRequest, "error", "Metric 'Band' not found in data"},
		{"unknown file", `{"fileId":"nope","metric":"FTT","year":2025,"month":1}`, http.StatusNotFound, "error", "Processed data not found."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, out := serve(t, h.handler, postJSON("/get-top-partner", tc.body))
			require.Equal(t, tc.status, code, out)
			require.Equal(t, tc.want, out[tc.key])
		})
	}
}

func TestChat(t *testing.T) {
	h := newHarness(t)
	id := upload(t, h, "myAffiliate")

	code, out := serve(t, h.handler, postJSON("/chat", `{"query":"who leads?"}`))
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Missing query or fileId", out["error"])

	body := `{"query":"who leads?","fileId":"` + id + `","chat_history":[{"sender":"user","text":"hi"},{"sender":"bot","text":"hello"}],"format":"html"}`
	code, out = serve(t, h.handler, postJSON("/chat", body))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "**P1** leads Deriv Revenue.", out["answer"])
	require.Contains(t, out["html"], "<strong>P1</strong>")

	code, out = serve(t, h.handler, postJSON("/chat", `{"query":"who leads?","fileId":"missing"}`))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, agent.NoDataText, out["answer"])
	require.NotContains(t, out, "html")
}

func TestComparisonAndRegions(t *testing.T) {
	h := newHarness(t)
	ma := upload(t, h, "myAffiliate")
	dw := upload(t, h, "dynamicWorks")

	code, out := serve(t, h.handler, postJSON("/get-comparison-data", `{"myAffiliateId":"`+ma+`"}`))
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Both myAffiliateId and dynamicWorksId are required", out["error"])

	code, out = serve(t, h.handler, postJSON("/get-comparison-data", `{"myAffiliateId":"`+ma+`","dynamicWorksId":"gone"}`))
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "DynamicWorks data file not found for ID: gone", out["error"])

	code, out = serve(t, h.handler, postJSON("/get-comparison-data",
		`{"myAffiliateId":"`+ma+`","dynamicWorksId":"`+dw+`","metricsToCompare":["Deriv Revenue"],"timeframe":"monthly"}`))
	require.Equal(t, http.StatusOK, code, out)
	require.Equal(t, []any{"2025-01", "2025-02"}, out["months"])
	series := out["derivrevenue"].(map[string]any)
	require.Equal(t, []any{90.0, 190.0}, series["myAffiliate"])

	code, out = serve(t, h.handler, httptest.NewRequest(http.MethodGet, "/get-team-regions/"+ma, nil))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, []any{"Africa", "Asia"}, out["regions"])

	code, out = serve(t, h.handler, httptest.NewRequest(http.MethodGet, "/get-team-regions/nope", nil))
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "Processed data not found. Please upload the file again.", out["error"])
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	code, out := serve(t, h.handler, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", out["status"])
	require.Equal(t, "test", out["version"])
}

func TestCleanMarkdown(t *testing.T) {
	require.Equal(t, "# Title", cleanMarkdown("```markdown\n# Title\n```"))
	require.Equal(t, "plain", cleanMarkdown("  plain "))
	require.Equal(t, "```", cleanMarkdown("```"))
}
