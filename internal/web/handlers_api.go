package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/JonMunkholm/insights/internal/core"
	"github.com/JonMunkholm/insights/internal/pipeline"
	"github.com/JonMunkholm/insights/internal/storage"
	"github.com/JonMunkholm/insights/internal/table"
)

// maxQuestionBody limits the JSON body of an API question.
const maxQuestionBody = 64 << 10

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	QAEnabled    bool               `json:"qa_enabled"`
	AdminEnabled bool               `json:"admin_enabled"`
	Admin        bool               `json:"admin"`
	Limiter      core.LimiterStatus `json:"limiter"`
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, StatusResponse{
		QAEnabled:    s.service.QAEnabled(),
		AdminEnabled: s.gate.Enabled(),
		Admin:        core.IsAdmin(r.Context()),
		Limiter:      s.service.LimiterStatus(),
	})
}

func (s *Server) handleAPIFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.service.Files(r.Context())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if files == nil {
		files = []storage.Entry{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"files": files})
}

// ColumnInfo names a column and its inferred kind.
type ColumnInfo struct {
	Name string     `json:"name"`
	Kind table.Kind `json:"kind"`
}

// ViewResponse is the JSON form of a view.
type ViewResponse struct {
	File    string                   `json:"file"`
	Sheet   string                   `json:"sheet,omitempty"`
	Sheets  []string                 `json:"sheets,omitempty"`
	Rows    int                      `json:"rows"`
	Total   int                      `json:"total"`
	Columns []ColumnInfo             `json:"columns"`
	Preview [][]string               `json:"preview"`
	Options []pipeline.ColumnOptions `json:"options"`
	Series  *pipeline.Series         `json:"series,omitempty"`

	FilterError *ErrorResponse `json:"filter_error,omitempty"`
	ChartError  *ErrorResponse `json:"chart_error,omitempty"`
}

// handleAPIView returns the view described by the query string. The limit
// parameter caps the preview rows below the configured preview size.
func (s *Server) handleAPIView(w http.ResponseWriter, r *http.Request) {
	req, err := parseViewRequest(fileParam(r), r.URL.Query())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	v, err := s.service.View(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	preview := v.Preview.Head(parseIntParam(r, "limit", v.Preview.NumRows()))
	resp := ViewResponse{
		File:    req.File,
		Sheet:   req.Sheet,
		Sheets:  v.Sheets,
		Rows:    v.Table.NumRows(),
		Total:   v.Loaded.NumRows(),
		Columns: columnInfo(v.Loaded),
		Preview: make([][]string, 0, preview.NumRows()),
		Options: v.Options,
		Series:  v.Series,
	}
	for i := 0; i < preview.NumRows(); i++ {
		resp.Preview = append(resp.Preview, preview.Strings(i))
	}
	if v.FilterErr != nil {
		resp.FilterError = errorResponse(core.MapError(v.FilterErr))
	}
	if v.ChartErr != nil {
		resp.ChartError = errorResponse(core.MapError(v.ChartErr))
	}

	writeJSON(w, r, http.StatusOK, resp)
}

func columnInfo(t *table.Table) []ColumnInfo {
	cols := t.Columns()
	out := make([]ColumnInfo, len(cols))
	for i, c := range cols {
		out[i] = ColumnInfo{Name: c.Name, Kind: c.Kind}
	}
	return out
}

func (s *Server) handleAPISheets(w http.ResponseWriter, r *http.Request) {
	sheets, err := s.service.Sheets(r.Context(), fileParam(r))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if sheets == nil {
		sheets = []string{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"sheets": sheets})
}

// handleAPIInsights profiles the view described by the query string.
func (s *Server) handleAPIInsights(w http.ResponseWriter, r *http.Request) {
	req, err := parseViewRequest(fileParam(r), r.URL.Query())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	in, err := s.service.Insights(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, in)
}

// AskRequest is the body of POST /api/files/{name}/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// AnswerResponse is the JSON form of an answer.
type AnswerResponse struct {
	ID         string `json:"id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	HTML       string `json:"html"`
	Rows       int    `json:"rows"`
	DurationMS int64  `json:"duration_ms"`
}

// handleAPIAsk answers the question in the body about the view in the
// query string.
func (s *Server) handleAPIAsk(w http.ResponseWriter, r *http.Request) {
	var body AskRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxQuestionBody)).Decode(&body); err != nil {
		err = badRequest(err)
		s.respondError(w, r, err, statusFor(err))
		return
	}
	question := strings.TrimSpace(body.Question)
	if question == "" {
		err := badRequest(errEmptyQuestion)
		s.respondError(w, r, err, statusFor(err))
		return
	}

	req, err := parseViewRequest(fileParam(r), r.URL.Query())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ans, err := s.service.Ask(r.Context(), req, question)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, r, http.StatusOK, AnswerResponse{
		ID:         ans.ID,
		Question:   ans.Question,
		Answer:     ans.Text,
		HTML:       ans.HTML,
		Rows:       ans.Rows,
		DurationMS: ans.Duration.Milliseconds(),
	})
}

func (s *Server) handleAPIUpload(w http.ResponseWriter, r *http.Request) {
	entry, err := s.receiveUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusCreated, entry)
}

func (s *Server) handleAPIDelete(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.Delete(r.Context(), fileParam(r))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handleAPIClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.Clear(r.Context())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"deleted": n})
}
