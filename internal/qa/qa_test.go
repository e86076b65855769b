package qa

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/JonMunkholm/insights/internal/apperr"
	"github.com/JonMunkholm/insights/internal/table"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "test-key", Timeout: timeout}, srv.Client())
	require.NoError(t, err)
	return c
}

func TestNewClient_Disabled(t *testing.T) {
	_, err := NewClient(Config{APIKey: "  "}, nil)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Config{APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, DefaultTimeout, c.timeout)
}

func TestAsk_Success(t *testing.T) {
	var gotBody []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		gotBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  East sold the most.  "}},
			},
		})
	}, time.Second)

	answer, err := c.Ask(context.Background(), "SAMPLE", "Who sold the most?")
	require.NoError(t, err)
	assert.Equal(t, "East sold the most.", answer)

	assert.Equal(t, DefaultModel, gjson.GetBytes(gotBody, "model").String())
	assert.Equal(t, "system", gjson.GetBytes(gotBody, "messages.0.role").String())
	assert.Equal(t, systemPrompt, gjson.GetBytes(gotBody, "messages.0.content").String())
	user := gjson.GetBytes(gotBody, "messages.1.content").String()
	assert.Contains(t, user, "SAMPLE")
	assert.Contains(t, user, "Question: Who sold the most?")
}

func TestAsk_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"quota", http.StatusTooManyRequests, `{"error":{"message":"Rate limit exceeded","code":429}}`, "Rate limit exceeded"},
		{"server error", http.StatusBadGateway, `upstream down`, "http 502"},
		{"malformed json", http.StatusOK, `{"choices": [`, "invalid JSON"},
		{"no choices", http.StatusOK, `{"choices": []}`, "no choices"},
		{"no content", http.StatusOK, `{"choices": [{"message": {}}]}`, "no message content"},
		{"empty content", http.StatusOK, `{"choices": [{"message": {"content": "  "}}]}`, "empty answer"},
		{"error in 200", http.StatusOK, `{"error":{"message":"model overloaded"}}`, "model overloaded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}, time.Second)

			answer, err := c.Ask(context.Background(), "s", "q")
			require.Error(t, err)
			assert.Empty(t, answer)
			assert.ErrorIs(t, err, apperr.ErrExternalService)
			assert.Contains(t, err.Error(), tt.wantMsg)

			var svcErr *apperr.ServiceError
			require.True(t, errors.As(err, &svcErr))
			assert.Equal(t, "qa", svcErr.Service)
		})
	}
}

func TestAsk_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	_, err := c.Ask(context.Background(), "s", "q")
	assert.ErrorIs(t, err, apperr.ErrExternalService)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, time.Second)

	_, err := c.Ask(context.Background(), "s", "   ")
	assert.ErrorIs(t, err, apperr.ErrExternalService)
	assert.False(t, called)
}

func TestSample(t *testing.T) {
	tbl := table.MustNew(
		&table.Column{Name: "region", Kind: table.KindText, Values: []table.Value{
			table.Text("East"), table.Text("West"), table.Missing(),
		}},
		&table.Column{Name: "sales", Kind: table.KindNumber, Values: []table.Value{
			table.Number(10), table.Number(5.5), table.Number(3),
		}},
	)

	out := Sample(tbl, 2)
	assert.Contains(t, out, "region")
	assert.Contains(t, out, "East")
	assert.Contains(t, out, "5.5")
	assert.Contains(t, out, "(first 2 of 3 rows)")

	full := Sample(tbl, 0)
	assert.NotContains(t, full, "(first")
	assert.Contains(t, full, "West")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(full), "+"), "table ends with its bottom border")
}

func TestRenderAnswer(t *testing.T) {
	out := RenderAnswer("**East** leads.\n\n<script>alert(1)</script>\n\n- a\n- b")
	assert.Contains(t, out, "<strong>East</strong>")
	assert.Contains(t, out, "<li>a</li>")
	assert.NotContains(t, out, "<script")
}
