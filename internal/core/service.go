package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/insights/internal/chart"
	"github.com/JonMunkholm/insights/internal/logging"
	"github.com/JonMunkholm/insights/internal/pipeline"
	"github.com/JonMunkholm/insights/internal/qa"
	"github.com/JonMunkholm/insights/internal/storage"
	"github.com/JonMunkholm/insights/internal/table"
)

// LoadTimeout is the maximum duration for reading a stored file.
var LoadTimeout = 30 * time.Second

// Options tune a Service. Zero values select defaults.
type Options struct {
	// LenientNumbers parses "$1,200" and "(5)" as numbers.
	LenientNumbers bool

	// FilterMaxDistinct is the distinct-value count from which a column is
	// not offered a filter picker.
	FilterMaxDistinct int

	// PieSort orders pie slices by descending value unless a request asks
	// otherwise.
	PieSort bool

	// PreviewRows is the number of rows shown in the data preview.
	PreviewRows int

	// SampleRows is the number of rows sent with a question.
	SampleRows int

	// CacheSize is the number of loaded tables kept in memory.
	CacheSize int
}

// Service is the entry point for every dashboard operation. It is safe for
// concurrent use.
type Service struct {
	store    storage.Store
	renderer *chart.Renderer
	asker    qa.Asker
	limiter  *Limiter
	opts     Options
	cache    *tableCache
}

// NewService wires the collaborators together. asker may be nil, in which
// case questions fail with qa.ErrDisabled.
func NewService(store storage.Store, renderer *chart.Renderer, asker qa.Asker, limiter *Limiter, opts Options) *Service {
	if renderer == nil {
		renderer = chart.NewRenderer("")
	}
	if limiter == nil {
		limiter = NewLimiter(0, 0)
	}
	if opts.FilterMaxDistinct <= 0 {
		opts.FilterMaxDistinct = pipeline.DefaultMaxDistinct
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = 100
	}
	if opts.SampleRows <= 0 {
		opts.SampleRows = qa.DefaultSampleRows
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 8
	}
	return &Service{
		store:    store,
		renderer: renderer,
		asker:    asker,
		limiter:  limiter,
		opts:     opts,
		cache:    newTableCache(opts.CacheSize),
	}
}

// QAEnabled reports whether questions can be asked.
func (s *Service) QAEnabled() bool {
	return s.asker != nil
}

// Options returns the effective options.
func (s *Service) Options() Options {
	return s.opts
}

// ChartAssetsHost returns the host chart pages load scripts from.
func (s *Service) ChartAssetsHost() string {
	return s.renderer.AssetsHost()
}

// LimiterStatus reports the question limiter state.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForQuestions blocks until in-flight questions finish or ctx is done.
func (s *Service) WaitForQuestions(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// ============================================================================
// File management (admin)
// ============================================================================

// Files lists stored files, newest first.
func (s *Service) Files(ctx context.Context) ([]storage.Entry, error) {
	return s.store.List(ctx)
}

// Upload stores a file after checking that it parses as a table. A file
// that cannot be read is removed again and the parse error returned.
func (s *Service) Upload(ctx context.Context, name string, r io.Reader) (storage.Entry, error) {
	if err := requireAdmin(ctx); err != nil {
		return storage.Entry{}, err
	}
	logger := logging.WithFields(ctx, "file", name, "ip", GetIPAddressFromContext(ctx))

	entry, err := s.store.Save(ctx, name, r)
	if err != nil {
		return storage.Entry{}, err
	}
	s.cache.forget(entry.Name)

	if _, err := s.load(ctx, entry.Name, ""); err != nil {
		if delErr := s.store.Delete(context.WithoutCancel(ctx), entry.Name); delErr != nil {
			logger.Warn("failed to remove unreadable upload", "stored", entry.Name, "error", delErr)
		}
		return storage.Entry{}, err
	}

	logger.Info("file uploaded", "stored", entry.Name, "bytes", entry.Size)
	return entry, nil
}

// Delete removes the named files and reports how many were removed.
// It stops at the first failure.
func (s *Service) Delete(ctx context.Context, names ...string) (int, error) {
	if err := requireAdmin(ctx); err != nil {
		return 0, err
	}
	deleted := 0
	for _, name := range names {
		if err := s.store.Delete(ctx, name); err != nil {
			return deleted, err
		}
		s.cache.forget(name)
		deleted++
	}
	logging.WithFields(ctx, "ip", GetIPAddressFromContext(ctx)).Info("files deleted", "count", deleted, "files", names)
	return deleted, nil
}

// Clear removes every stored file.
func (s *Service) Clear(ctx context.Context) (int, error) {
	if err := requireAdmin(ctx); err != nil {
		return 0, err
	}
	n, err := s.store.Clear(ctx)
	s.cache.reset()
	if err != nil {
		return n, err
	}
	logging.WithFields(ctx, "ip", GetIPAddressFromContext(ctx)).Info("files cleared", "count", n)
	return n, nil
}

// ============================================================================
// Reading
// ============================================================================

// Sheets lists the sheets of a stored Excel file. CSV files have none.
func (s *Service) Sheets(ctx context.Context, name string) ([]string, error) {
	rc, entry, err := s.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	format, err := table.FormatOf(entry.Name)
	if err != nil {
		return nil, err
	}
	if format != table.FormatExcel {
		return nil, nil
	}
	return table.SheetNames(rc)
}

// Load reads a stored file into a table. Tables are cached by file and sheet.
func (s *Service) Load(ctx context.Context, name, sheet string) (*table.Table, error) {
	return s.load(ctx, name, sheet)
}

func (s *Service) load(ctx context.Context, name, sheet string) (*table.Table, error) {
	if t, ok := s.cache.get(name, sheet); ok {
		return t, nil
	}

	ctx, cancel := context.WithTimeout(ctx, LoadTimeout)
	defer cancel()

	rc, entry, err := s.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t, err := table.Read(rc, entry.Name, table.LoadOptions{Sheet: sheet, LenientNumbers: s.opts.LenientNumbers})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	s.cache.put(name, sheet, t)
	return t, nil
}

// ViewRequest identifies a file and the pipeline request applied to it.
type ViewRequest struct {
	File    string
	Sheet   string
	Request pipeline.Request
}

// View is what the dashboard shows for a ViewRequest.
type View struct {
	File   string
	Sheet  string
	Sheets []string

	// Loaded is the full table; Table is the searched and filtered view.
	Loaded *table.Table
	Table  *table.Table

	// Preview is the head of Table.
	Preview *table.Table

	Options []pipeline.ColumnOptions

	// Series is set when a chart was requested and could be prepared.
	Series *pipeline.Series

	// FilterErr is set when search or filtering failed; Table then holds
	// the unfiltered table.
	FilterErr error

	// ChartErr is set when the chart could not be prepared.
	ChartErr error
}

// View loads the file and evaluates the request. Failures of the search,
// filter or chart step are reported on the View and never fail the call;
// only loading errors do.
func (s *Service) View(ctx context.Context, req ViewRequest) (*View, error) {
	t, err := s.load(ctx, req.File, req.Sheet)
	if err != nil {
		return nil, err
	}

	v := &View{File: req.File, Sheet: req.Sheet, Loaded: t, Table: t}
	if sheets, err := s.Sheets(ctx, req.File); err == nil {
		v.Sheets = sheets
	}

	res, err := pipeline.Run(t, pipeline.Request{Search: req.Request.Search, Filters: req.Request.Filters})
	if err != nil {
		v.FilterErr = err
	} else {
		v.Table = res.Table
	}
	v.Preview = v.Table.Head(s.opts.PreviewRows)
	v.Options = pipeline.FilterOptions(t, s.opts.FilterMaxDistinct)

	if req.Request.Chart != nil {
		v.Series, v.ChartErr = s.prepare(v.Table, *req.Request.Chart)
	}
	return v, nil
}

// prepare reduces t for a chart request and checks the result can be drawn.
func (s *Service) prepare(t *table.Table, c pipeline.ChartRequest) (*pipeline.Series, error) {
	if c.Kind == pipeline.ChartPie && c.Order == pipeline.OrderAuto && !s.opts.PieSort {
		c.Order = pipeline.OrderFirstSeen
	}
	series, err := pipeline.Prepare(t, c)
	if err != nil {
		return nil, err
	}
	if err := chart.Validate(series, c.Kind); err != nil {
		return nil, err
	}
	return series, nil
}

// Chart renders the chart of req as an HTML page into w. Nothing is written
// when the request fails.
func (s *Service) Chart(ctx context.Context, w io.Writer, req ViewRequest, title string) error {
	if req.Request.Chart == nil {
		return errors.New("no chart requested")
	}
	v, err := s.View(ctx, req)
	if err != nil {
		return err
	}
	if v.FilterErr != nil {
		return v.FilterErr
	}
	if v.ChartErr != nil {
		return v.ChartErr
	}

	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, v.Series, req.Request.Chart.Kind, chart.Options{Title: title}); err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return err
}

// Insights profiles the searched and filtered view of req.
func (s *Service) Insights(ctx context.Context, req ViewRequest) (*pipeline.Insights, error) {
	v, err := s.View(ctx, req)
	if err != nil {
		return nil, err
	}
	if v.FilterErr != nil {
		return nil, v.FilterErr
	}
	return pipeline.Describe(v.Table)
}

// Export writes the searched and filtered view of req as CSV.
func (s *Service) Export(ctx context.Context, w io.Writer, req ViewRequest) error {
	v, err := s.View(ctx, req)
	if err != nil {
		return err
	}
	if v.FilterErr != nil {
		return v.FilterErr
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(v.Table.Names()); err != nil {
		return err
	}
	for i := 0; i < v.Table.NumRows(); i++ {
		if err := cw.Write(v.Table.Strings(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ============================================================================
// Questions
// ============================================================================

// Answer is the reply to a question.
type Answer struct {
	ID       string
	Question string

	// Text is the raw answer; HTML is its sanitized rendering.
	Text string
	HTML string

	Rows     int
	Duration time.Duration
}

// Ask answers question about the view described by req. The first
// SampleRows rows of the filtered view are sent along.
func (s *Service) Ask(ctx context.Context, req ViewRequest, question string) (*Answer, error) {
	if s.asker == nil {
		return nil, qa.ErrDisabled
	}

	v, err := s.View(ctx, req)
	if err != nil {
		return nil, err
	}
	sample := qa.Sample(v.Table, s.opts.SampleRows)

	ans := &Answer{ID: uuid.NewString(), Question: question, Rows: min(v.Table.NumRows(), s.opts.SampleRows)}
	logger := logging.WithFields(ctx, "answer_id", ans.ID, "file", req.File)

	start := time.Now()
	err = s.limiter.Do(ctx, func(ctx context.Context) error {
		text, err := s.asker.Ask(ctx, sample, question)
		if err != nil {
			return err
		}
		ans.Text = text
		return nil
	})
	ans.Duration = time.Since(start)
	if err != nil {
		logger.Warn("question failed", "error", err, "duration_ms", ans.Duration.Milliseconds())
		return nil, err
	}

	ans.HTML = qa.RenderAnswer(ans.Text)
	logger.Info("question answered", "duration_ms", ans.Duration.Milliseconds(), "rows", ans.Rows)
	return ans, nil
}
