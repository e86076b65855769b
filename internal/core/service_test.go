package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonMunkholm/insights/internal/apperr"
	"github.com/JonMunkholm/insights/internal/chart"
	"github.com/JonMunkholm/insights/internal/pipeline"
	"github.com/JonMunkholm/insights/internal/qa"
	"github.com/JonMunkholm/insights/internal/storage"
	"github.com/JonMunkholm/insights/internal/table"
)

const salesCSV = "region,rep,sales\nEast,Ann,10\nWest,Bob,5\nEast,Cy,3\n"

type fakeAsker struct {
	calls  atomic.Int32
	sample string
	answer string
	err    error
	delay  time.Duration
}

func (f *fakeAsker) Ask(ctx context.Context, sample, question string) (string, error) {
	f.calls.Add(1)
	f.sample = sample
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.answer, f.err
}

func newTestService(t *testing.T, asker qa.Asker, opts Options) (*Service, context.Context) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir(), storage.Options{})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	svc := NewService(store, chart.NewRenderer(""), asker, NewLimiter(1, 50*time.Millisecond), opts)
	return svc, ContextWithAdmin(context.Background())
}

func upload(t *testing.T, svc *Service, ctx context.Context, name, content string) storage.Entry {
	t.Helper()
	e, err := svc.Upload(ctx, name, strings.NewReader(content))
	if err != nil {
		t.Fatalf("Upload(%s): %v", name, err)
	}
	return e
}

func TestService_UploadRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})

	_, err := svc.Upload(context.Background(), "a.csv", strings.NewReader(salesCSV))
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Upload without admin = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Delete(context.Background(), "x.csv"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Delete without admin = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Clear(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Clear without admin = %v, want ErrUnauthorized", err)
	}
}

func TestService_UploadRejectsUnreadable(t *testing.T) {
	svc, ctx := newTestService(t, nil, Options{})

	_, err := svc.Upload(ctx, "empty.csv", strings.NewReader(""))
	if !errors.Is(err, table.ErrEmptyFile) {
		t.Fatalf("Upload(empty) = %v, want ErrEmptyFile", err)
	}

	files, err := svc.Files(ctx)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("unreadable upload kept: %v", files)
	}
}

func TestService_ViewScenarios(t *testing.T) {
	svc, ctx := newTestService(t, nil, Options{})
	e := upload(t, svc, ctx, "sales.csv", salesCSV)

	tests := []struct {
		name      string
		req       pipeline.Request
		wantRows  int
		wantPts   []pipeline.Point
		filterErr error
		chartErr  error
	}{
		{
			name:     "no request",
			wantRows: 3,
		},
		{
			name:     "search east",
			req:      pipeline.Request{Search: pipeline.SearchQuery{Text: "east"}},
			wantRows: 2,
		},
		{
			name:     "filter west",
			req:      pipeline.Request{Filters: pipeline.FilterSpec{"region": {"West"}}},
			wantRows: 1,
		},
		{
			name: "sum by region",
			req: pipeline.Request{Chart: &pipeline.ChartRequest{
				GroupBy: "region", Value: "sales", Aggregation: pipeline.AggSum, Kind: pipeline.ChartBar,
			}},
			wantRows: 3,
			wantPts:  []pipeline.Point{{Key: "East", Value: 13}, {Key: "West", Value: 5}},
		},
		{
			name: "text value column",
			req: pipeline.Request{Chart: &pipeline.ChartRequest{
				GroupBy: "region", Value: "region", Kind: pipeline.ChartBar,
			}},
			wantRows: 3,
			chartErr: apperr.ErrInvalidColumnKind,
		},
		{
			name:      "unknown filter column keeps full table",
			req:       pipeline.Request{Filters: pipeline.FilterSpec{"country": {"US"}}},
			wantRows:  3,
			filterErr: apperr.ErrColumnNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := svc.View(ctx, ViewRequest{File: e.Name, Request: tt.req})
			if err != nil {
				t.Fatalf("View: %v", err)
			}
			if got := v.Table.NumRows(); got != tt.wantRows {
				t.Errorf("rows = %d, want %d", got, tt.wantRows)
			}
			if !errors.Is(v.FilterErr, tt.filterErr) || (tt.filterErr == nil && v.FilterErr != nil) {
				t.Errorf("FilterErr = %v, want %v", v.FilterErr, tt.filterErr)
			}
			if !errors.Is(v.ChartErr, tt.chartErr) || (tt.chartErr == nil && v.ChartErr != nil) {
				t.Errorf("ChartErr = %v, want %v", v.ChartErr, tt.chartErr)
			}
			if tt.wantPts != nil {
				if v.Series == nil {
					t.Fatal("Series is nil")
				}
				if len(v.Series.Points) != len(tt.wantPts) {
					t.Fatalf("points = %v, want %v", v.Series.Points, tt.wantPts)
				}
				for i, p := range tt.wantPts {
					if v.Series.Points[i] != p {
						t.Errorf("point %d = %v, want %v", i, v.Series.Points[i], p)
					}
				}
			}
		})
	}
}

func TestService_PieSortOption(t *testing.T) {
	csv := "k,v\nsmall,1\nbig,9\n"
	pie := &pipeline.ChartRequest{GroupBy: "k", Value: "v", Kind: pipeline.ChartPie}

	for _, sorted := range []bool{true, false} {
		svc, ctx := newTestService(t, nil, Options{PieSort: sorted})
		e := upload(t, svc, ctx, "p.csv", csv)

		v, err := svc.View(ctx, ViewRequest{File: e.Name, Request: pipeline.Request{Chart: pie}})
		if err != nil {
			t.Fatalf("View: %v", err)
		}
		first := v.Series.Points[0].Key
		if sorted && first != "big" {
			t.Errorf("PieSort=true first slice = %q, want big", first)
		}
		if !sorted && first != "small" {
			t.Errorf("PieSort=false first slice = %q, want small", first)
		}
	}
}

func TestService_ChartRendersHTML(t *testing.T) {
	svc, ctx := newTestService(t, nil, Options{})
	e := upload(t, svc, ctx, "sales.csv", salesCSV)

	var buf bytes.Buffer
	req := ViewRequest{File: e.Name, Request: pipeline.Request{Chart: &pipeline.ChartRequest{
		GroupBy: "region", Value: "sales", Kind: pipeline.ChartLine,
	}}}
	if err := svc.Chart(ctx, &buf, req, ""); err != nil {
		t.Fatalf("Chart: %v", err)
	}
	if !strings.Contains(buf.String(), "East") {
		t.Error("chart page does not mention East")
	}

	buf.Reset()
	negative := "k,v\na,5\nb,-1\n"
	e2 := upload(t, svc, ctx, "neg.csv", negative)
	err := svc.Chart(ctx, &buf, ViewRequest{File: e2.Name, Request: pipeline.Request{Chart: &pipeline.ChartRequest{
		GroupBy: "k", Value: "v", Kind: pipeline.ChartPie,
	}}}, "")
	if !errors.Is(err, apperr.ErrInvalidChartInput) {
		t.Errorf("negative pie = %v, want ErrInvalidChartInput", err)
	}
	if buf.Len() != 0 {
		t.Error("failed chart wrote output")
	}
}

func TestService_Export(t *testing.T) {
	svc, ctx := newTestService(t, nil, Options{})
	e := upload(t, svc, ctx, "sales.csv", salesCSV)

	var buf bytes.Buffer
	err := svc.Export(ctx, &buf, ViewRequest{File: e.Name, Request: pipeline.Request{
		Filters: pipeline.FilterSpec{"region": {"East"}},
	}})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	want := "region,rep,sales\nEast,Ann,10\nEast,Cy,3\n"
	if buf.String() != want {
		t.Errorf("Export = %q, want %q", buf.String(), want)
	}
}

func TestService_Insights(t *testing.T) {
	svc, ctx := newTestService(t, nil, Options{})
	e := upload(t, svc, ctx, "sales.csv", salesCSV)

	in, err := svc.Insights(ctx, ViewRequest{File: e.Name})
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if in.Rows != 3 || in.Columns != 3 {
		t.Errorf("shape = %dx%d, want 3x3", in.Rows, in.Columns)
	}
	if len(in.Numeric) != 1 || in.Numeric[0].Column != "sales" {
		t.Errorf("numeric = %+v, want sales only", in.Numeric)
	}
}

func TestService_InsightsFollowFilteredView(t *testing.T) {
	svc, ctx := newTestService(t, nil, Options{})
	e := upload(t, svc, ctx, "sales.csv", salesCSV)

	in, err := svc.Insights(ctx, ViewRequest{File: e.Name, Request: pipeline.Request{
		Filters: pipeline.FilterSpec{"region": {"East"}},
	}})
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if in.Rows != 2 {
		t.Errorf("Rows = %d, want 2", in.Rows)
	}
	if in.Numeric[0].Mean != 6.5 {
		t.Errorf("sales mean = %v, want 6.5", in.Numeric[0].Mean)
	}

	_, err = svc.Insights(ctx, ViewRequest{File: e.Name, Request: pipeline.Request{
		Filters: pipeline.FilterSpec{"country": {"NZ"}},
	}})
	if !errors.Is(err, apperr.ErrColumnNotFound) {
		t.Errorf("err = %v, want ErrColumnNotFound", err)
	}
}

func TestService_DeleteAndClear(t *testing.T) {
	svc, ctx := newTestService(t, nil, Options{})
	a := upload(t, svc, ctx, "a.csv", salesCSV)
	b := upload(t, svc, ctx, "b.csv", salesCSV)

	files, _ := svc.Files(ctx)
	if len(files) != 2 || files[0].Name != b.Name {
		t.Fatalf("Files = %v, want b first", files)
	}

	if n, err := svc.Delete(ctx, a.Name); err != nil || n != 1 {
		t.Fatalf("Delete = %d, %v", n, err)
	}
	if _, err := svc.View(ctx, ViewRequest{File: a.Name}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("View deleted file = %v, want ErrNotFound", err)
	}

	if n, err := svc.Clear(ctx); err != nil || n != 1 {
		t.Fatalf("Clear = %d, %v", n, err)
	}
}

func TestService_Ask(t *testing.T) {
	asker := &fakeAsker{answer: "**East** leads"}
	svc, ctx := newTestService(t, asker, Options{SampleRows: 2})
	e := upload(t, svc, ctx, "sales.csv", salesCSV)

	ans, err := svc.Ask(ctx, ViewRequest{File: e.Name}, "who leads?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != "**East** leads" {
		t.Errorf("Text = %q", ans.Text)
	}
	if !strings.Contains(ans.HTML, "<strong>East</strong>") {
		t.Errorf("HTML = %q", ans.HTML)
	}
	if ans.Rows != 2 || ans.ID == "" {
		t.Errorf("Rows = %d, ID = %q", ans.Rows, ans.ID)
	}
	if !strings.Contains(asker.sample, "(first 2 of 3 rows)") {
		t.Errorf("sample = %q", asker.sample)
	}
}

func TestService_AskDisabled(t *testing.T) {
	svc, ctx := newTestService(t, nil, Options{})
	if svc.QAEnabled() {
		t.Error("QAEnabled with nil asker")
	}
	if _, err := svc.Ask(ctx, ViewRequest{File: "x.csv"}, "q"); !errors.Is(err, qa.ErrDisabled) {
		t.Errorf("Ask = %v, want ErrDisabled", err)
	}
}

func TestService_AskFailureIsRecoverable(t *testing.T) {
	asker := &fakeAsker{err: apperr.External("qa", "ask", errors.New("http 429: quota"))}
	svc, ctx := newTestService(t, asker, Options{})
	e := upload(t, svc, ctx, "sales.csv", salesCSV)

	_, err := svc.Ask(ctx, ViewRequest{File: e.Name}, "q")
	if !errors.Is(err, apperr.ErrExternalService) {
		t.Fatalf("Ask = %v, want ErrExternalService", err)
	}

	// The dashboard keeps working.
	if _, err := svc.View(ctx, ViewRequest{File: e.Name}); err != nil {
		t.Errorf("View after failed question: %v", err)
	}
}

func TestService_AskBusy(t *testing.T) {
	asker := &fakeAsker{answer: "ok", delay: 300 * time.Millisecond}
	svc, ctx := newTestService(t, asker, Options{})
	e := upload(t, svc, ctx, "sales.csv", salesCSV)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Ask(ctx, ViewRequest{File: e.Name}, "slow")
		done <- err
	}()

	// Wait for the first question to hold the only slot.
	deadline := time.Now().Add(time.Second)
	for svc.LimiterStatus().Active == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := svc.Ask(ctx, ViewRequest{File: e.Name}, "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("second Ask = %v, want ErrBusy", err)
	}
	if err := <-done; err != nil {
		t.Errorf("first Ask: %v", err)
	}
}
