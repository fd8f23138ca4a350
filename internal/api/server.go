package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prince-dkc/universal-qr-print/internal/config"
	"github.com/prince-dkc/universal-qr-print/internal/generate"
	"github.com/prince-dkc/universal-qr-print/internal/images"
	"github.com/prince-dkc/universal-qr-print/internal/label"
	"github.com/prince-dkc/universal-qr-print/internal/printer"
	"github.com/prince-dkc/universal-qr-print/internal/render"
	"github.com/prince-dkc/universal-qr-print/internal/sheet"
	"github.com/prince-dkc/universal-qr-print/internal/table"
	"github.com/prince-dkc/universal-qr-print/internal/workspace"
)

// Deps are the components the server exposes
type Deps struct {
	Workspace *workspace.Workspace
	Images    *images.Store
	Printers  *printer.Manager
	Logs      *LogBuffer
	Jobs      *JobBuffer
	Events    *Hub
	// Registry collects HTTP metrics and is served at /metrics
	Registry *prometheus.Registry
}

// Server represents the HTTP server
type Server struct {
	config   *config.Config
	deps     Deps
	mux      *http.ServeMux
	requests *prometheus.CounterVec
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Logs == nil {
		deps.Logs = NewLogBuffer(500)
	}
	if deps.Jobs == nil {
		deps.Jobs = NewJobBuffer(100)
	}
	if deps.Events == nil {
		deps.Events = NewHub(0)
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		mux:    http.NewServeMux(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labelserver_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"handler", "code", "method"}),
	}
	if err := deps.Registry.Register(s.requests); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			s.requests = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}

	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.handle("GET /health", s.handleHealth)
	s.handle("GET /{$}", s.handleUI)

	// Workspace
	s.handle("GET /api/state", s.handleState)
	s.handle("POST /api/single", s.handleSingle)
	s.handle("POST /api/bulk", s.handleBulk)
	s.handle("POST /api/file-selected", s.handleFileSelected)
	s.handle("POST /api/reset", s.handleReset)
	s.handle("PUT /api/layout", s.handleLayout)
	s.handle("PUT /api/page-size", s.handlePageSize)
	s.handle("PUT /api/quantity", s.handleQuantity)
	s.handle("GET /api/images/{ref}", s.handleImage)

	// Detail table
	s.handle("PUT /api/table/columns", s.handleColumns)
	s.handle("POST /api/table/sort/{column}", s.handleSort)
	s.handle("PUT /api/table/selection", s.handleSelection)
	s.handle("GET /api/table/export.csv", s.handleExport)

	// Print documents
	s.handle("GET /print/labels", s.handlePrintLabels)
	s.handle("GET /print/table", s.handlePrintTable)
	s.handle("GET /print/test", s.handlePrintTest)
	s.handle("GET /print/test.png", s.handleTestImage)

	// Printers
	s.handle("GET /api/printers", s.handleListPrinters)
	s.handle("POST /api/printers/discover", s.handleDiscoverPrinters)
	s.handle("POST /api/printers/{id}/test", s.handleTestPrint)
	s.handle("POST /api/printers/{id}/print", s.handleDirectPrint)
	s.handle("GET /api/jobs", s.handleJobs)
	s.handle("GET /api/logs", s.handleLogs)

	s.mux.Handle("GET /api/events", s.deps.Events)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	counter := s.requests.MustCurryWith(prometheus.Labels{"handler": pattern})
	s.mux.Handle(pattern, promhttp.InstrumentHandlerCounter(counter, h))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		slog.Error("Request failed", "status", status, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, generate.ErrInvalidInput),
		errors.Is(err, sheet.ErrUnsupportedFormat),
		errors.Is(err, table.ErrUnknownColumn),
		errors.Is(err, table.ErrRowOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, generate.ErrMissingColumns):
		return http.StatusUnprocessableEntity
	case errors.Is(err, generate.ErrTooManyRows),
		errors.Is(err, sheet.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, generate.ErrAlreadyGenerated),
		errors.Is(err, workspace.ErrBusy),
		errors.Is(err, workspace.ErrSuperseded),
		errors.Is(err, workspace.ErrDisabled),
		errors.Is(err, workspace.ErrNoSession),
		errors.Is(err, workspace.ErrNoLabels),
		errors.Is(err, table.ErrNothingSelected):
		return http.StatusConflict
	case errors.Is(err, generate.ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, printer.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", generate.ErrInvalidInput, err)
	}
	return nil
}

func imageURL(ref label.ImageRef) string {
	return "/api/images/" + string(ref)
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// handleUI serves the web UI
func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(webUI))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Workspace.View())
}

// SingleRequest is the single label form
type SingleRequest struct {
	Code    string `json:"qr_code"`
	Caption string `json:"custom_text"`
}

func (s *Server) handleSingle(w http.ResponseWriter, r *http.Request) {
	var req SingleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	view, err := s.deps.Workspace.GenerateSingle(r.Context(), req.Code, req.Caption)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, sheet.MaxUploadSize+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("%w: please upload an Excel file", generate.ErrInvalidInput))
		return
	}
	defer file.Close()

	sh, err := sheet.Read(header.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("Sheet uploaded", "file", header.Filename, "rows", len(sh.Rows), "columns", len(sh.Headers))

	view, err := s.deps.Workspace.GenerateBulk(r.Context(), sh)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleFileSelected(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Workspace.SelectFile(r.Context()))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Workspace.Reset(r.Context()))
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	var req label.Layout
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.PageSize != "" {
		p, err := label.ParsePageSize(string(req.PageSize))
		if err != nil {
			writeError(w, fmt.Errorf("%w: %v", generate.ErrInvalidInput, err))
			return
		}
		req.PageSize = p
	}
	view, err := s.deps.Workspace.SetLayout(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePageSize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PageSize string `json:"page_size"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := label.ParsePageSize(req.PageSize)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", generate.ErrInvalidInput, err))
		return
	}
	view, err := s.deps.Workspace.SetPageSize(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleQuantity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	view, err := s.deps.Workspace.SetQuantity(r.Context(), req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	img, ok := s.deps.Images.Get(label.ImageRef(r.PathValue("ref")))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	w.Write(img.Data)
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Columns []string `json:"columns"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	view, err := s.deps.Workspace.SelectColumns(r.Context(), req.Columns)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Workspace.SortBy(r.Context(), r.PathValue("column"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SelectionRequest toggles one row, or every row when All is set
type SelectionRequest struct {
	Index    *int  `json:"index,omitempty"`
	All      *bool `json:"all,omitempty"`
	Selected bool  `json:"selected"`
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var view workspace.View
	var err error
	switch {
	case req.All != nil:
		view, err = s.deps.Workspace.SelectAll(r.Context(), *req.All)
	case req.Index != nil:
		view, err = s.deps.Workspace.SetSelected(r.Context(), *req.Index, req.Selected)
	default:
		err = fmt.Errorf("%w: index or all is required", generate.ErrInvalidInput)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.deps.Workspace.ExportCSV(&buf); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, table.CSVFilename))
	w.Write(buf.Bytes())
}

func autoPrint(r *http.Request) bool {
	return r.URL.Query().Get("autoprint") != "0"
}

func writeHTML(w http.ResponseWriter, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handlePrintLabels(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.deps.Workspace.LabelDocument(&buf, imageURL, autoPrint(r)); err != nil {
		writeError(w, err)
		return
	}
	writeHTML(w, &buf)
}

func (s *Server) handlePrintTable(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.deps.Workspace.TableDocument(&buf, imageURL, autoPrint(r)); err != nil {
		writeError(w, err)
		return
	}
	writeHTML(w, &buf)
}

func (s *Server) handlePrintTest(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.deps.Workspace.TestDocument(&buf, "/print/test.png"); err != nil {
		writeError(w, err)
		return
	}
	writeHTML(w, &buf)
}

func (s *Server) handleTestImage(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, render.TestPattern(420)); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

// handleListPrinters returns configured printers and their status
func (s *Server) handleListPrinters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"printers": s.deps.Printers.List(r.Context()),
	})
}

// handleDiscoverPrinters scans for available printers
func (s *Server) handleDiscoverPrinters(w http.ResponseWriter, r *http.Request) {
	discovered, err := s.deps.Printers.Discover(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"discovered": discovered,
	})
}

// handleTestPrint sends a test print to a printer
func (s *Server) handleTestPrint(w http.ResponseWriter, r *http.Request) {
	printerID := r.PathValue("id")
	if _, err := s.deps.Printers.GetPrinter(printerID); err != nil {
		writeError(w, err)
		return
	}

	jobID := s.deps.Jobs.Start(printerID, "test", 1)
	err := s.deps.Printers.TestPrint(r.Context(), printerID)
	s.deps.Jobs.Finish(jobID, 0, err)
	if err != nil {
		slog.Error("Test print failed", "printer", printerID, "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"success": false,
			"job_id":  jobID,
			"error":   err.Error(),
		})
		return
	}

	slog.Info("Test print sent", "printer", printerID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"job_id":  jobID,
		"message": "Test print sent successfully",
	})
}

// handleDirectPrint rasterizes the current layout and sends it to a printer
func (s *Server) handleDirectPrint(w http.ResponseWriter, r *http.Request) {
	printerID := r.PathValue("id")
	if _, err := s.deps.Printers.GetPrinter(printerID); err != nil {
		writeError(w, err)
		return
	}
	rows, _, err := s.deps.Workspace.Rows()
	if err != nil {
		writeError(w, err)
		return
	}

	load := func(ref label.ImageRef) ([]byte, error) {
		img, ok := s.deps.Images.Get(ref)
		if !ok {
			return nil, fmt.Errorf("image %s released", ref)
		}
		return img.Data, nil
	}

	tiles := label.Count(rows)
	jobID := s.deps.Jobs.Start(printerID, "labels", tiles)
	n, err := s.deps.Printers.PrintRows(r.Context(), printerID, rows, load)
	s.deps.Jobs.Finish(jobID, n, err)
	if err != nil {
		slog.Error("Direct print failed", "printer", printerID, "job", jobID, "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"success": false,
			"job_id":  jobID,
			"error":   err.Error(),
		})
		return
	}

	slog.Info("Labels printed", "printer", printerID, "job", jobID, "tiles", tiles, "bytes", n)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"job_id":  jobID,
		"tiles":   tiles,
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs": s.deps.Jobs.Entries(),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	var levels []string
	if l := r.URL.Query().Get("level"); l != "" {
		levels = strings.Split(l, ",")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs": s.deps.Logs.Entries(levels),
	})
}
