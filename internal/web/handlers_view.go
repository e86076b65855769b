package web

import (
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/JonMunkholm/insights/internal/core"
	"github.com/JonMunkholm/insights/internal/pipeline"
	"github.com/JonMunkholm/insights/internal/storage"
	"github.com/JonMunkholm/insights/internal/web/templates"
)

var (
	errNoChart       = errors.New("no chart requested")
	errEmptyQuestion = errors.New("question is empty")
)

// handleView renders the data view of one file. Search, filter and chart
// failures are shown in place; only a file that cannot be loaded fails the
// page.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := fileParam(r)

	req, err := parseViewRequest(name, r.URL.Query())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	v, err := s.service.View(ctx, req)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	query := encodeViewRequest(req).Encode()
	d := templates.ViewData{
		File:        name,
		Sheet:       req.Sheet,
		Sheets:      v.Sheets,
		Admin:       core.IsAdmin(ctx),
		QAEnabled:   s.service.QAEnabled(),
		Search:      req.Request.Search,
		Columns:     v.Loaded.Columns(),
		Options:     v.Options,
		Selected:    selected(req.Request.Filters),
		Preview:     v.Preview,
		MatchedRows: v.Table.NumRows(),
		TotalRows:   v.Loaded.NumRows(),
		Query:       query,
		ExportURL:   withQuery(templates.FileURL(name)+"/export", query),
		AskURL:      templates.FileURL(name) + "/ask",
	}
	if len(d.Sheets) > 0 && d.Sheet == "" {
		d.Sheet = d.Sheets[0]
	}

	if v.FilterErr != nil {
		s.logWarn(r, "filter failed", v.FilterErr)
		msg := core.MapError(v.FilterErr)
		d.FilterError = &msg
	}

	if c := req.Request.Chart; c != nil {
		d.Chart = templates.ChartForm{Kind: string(c.Kind), GroupBy: c.GroupBy, Value: c.Value, Order: string(c.Order)}
		if c.Aggregation == pipeline.AggCount {
			d.Chart.Value = ""
		}
		if v.ChartErr != nil {
			s.logWarn(r, "chart failed", v.ChartErr)
			msg := core.MapError(v.ChartErr)
			d.ChartError = &msg
		} else {
			d.ChartURL = withQuery(templates.FileURL(name)+"/chart", query)
		}
	}

	if in, err := pipeline.Describe(v.Table); err != nil {
		s.logWarn(r, "insights failed", err)
	} else {
		d.Insights = in
	}

	templates.View(d).Render(ctx, w)
}

func selected(spec pipeline.FilterSpec) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(spec))
	for col, values := range spec {
		set := make(map[string]bool, len(values))
		for _, v := range values {
			set[v] = true
		}
		out[col] = set
	}
	return out
}

func withQuery(u, query string) string {
	if query == "" {
		return u
	}
	return u + "?" + query
}

// handleChart renders the requested chart as a standalone page for the
// view's iframe.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	name := fileParam(r)
	req, err := parseViewRequest(name, r.URL.Query())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if req.Request.Chart == nil {
		err := badRequest(errNoChart)
		s.respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.service.Chart(r.Context(), w, req, displayName(name)); err != nil {
		s.respondError(w, r, err, statusFor(err))
	}
}

// handleExport streams the searched and filtered view as CSV.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	name := fileParam(r)
	req, err := parseViewRequest(name, r.URL.Query())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	req.Request.Chart = nil

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportName(displayName(name))+`"`)
	if err := s.service.Export(r.Context(), w, req); err != nil {
		w.Header().Del("Content-Disposition")
		s.respondError(w, r, err, statusFor(err))
	}
}

// exportName derives the download name, e.g. "sales_filtered.csv".
func exportName(name string) string {
	base := strings.TrimSuffix(name, path.Ext(name))
	base = strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, base)
	return base + "_filtered.csv"
}

// displayName strips the upload timestamp from a stored name.
func displayName(name string) string {
	if _, original, ok := storage.ParseName(name); ok {
		return original
	}
	return name
}

// handleAsk answers a question about the view carried in the "view" form
// field. HTMX requests get the answer fragment.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := fileParam(r)

	if err := r.ParseForm(); err != nil {
		s.respondError(w, r, badRequest(err), http.StatusBadRequest)
		return
	}
	question := strings.TrimSpace(r.PostFormValue("question"))
	if question == "" {
		err := badRequest(errEmptyQuestion)
		s.respondError(w, r, err, statusFor(err))
		return
	}
	viewQuery, err := url.ParseQuery(r.PostFormValue("view"))
	if err != nil {
		err = badRequest(err)
		s.respondError(w, r, err, statusFor(err))
		return
	}
	req, err := parseViewRequest(name, viewQuery)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ans, err := s.service.Ask(ctx, req, question)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	data := templates.AnswerData{
		Question: ans.Question,
		HTML:     ans.HTML,
		Rows:     ans.Rows,
		Duration: ans.Duration,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if isHTMX(r) {
		templates.Answer(data).Render(ctx, w)
		return
	}
	templates.AnswerPage(data, core.IsAdmin(ctx)).Render(ctx, w)
}
