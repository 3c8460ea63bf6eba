package workload

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/variant-bench/internal/probe"
	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/types"
)

// recorder 记录服务端收到的请求路径
type recorder struct {
	mu    sync.Mutex
	paths []string
	posts []string
}

func (r *recorder) add(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func newServer(t *testing.T, rec *recorder, routes map[string]func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.EscapedPath())
		if r.Method == http.MethodPost {
			b, _ := io.ReadAll(r.Body)
			rec.mu.Lock()
			rec.posts = append(rec.posts, string(b))
			rec.mu.Unlock()
		}
		key := r.Method + " " + r.URL.EscapedPath()
		if h, ok := routes[key]; ok {
			h(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[{"message":"not found"}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func jsonHandler(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newRunner(t *testing.T, w *Workload, opts Options) (*Runner, *metrics.Registry) {
	t.Helper()
	reg := metrics.NewRegistry()
	cfg := probe.DefaultConfig()
	cfg.Timeout.Connect = time.Second
	cfg.Timeout.Request = 2 * time.Second
	p, err := probe.New(cfg, reg)
	require.NoError(t, err)
	r, err := NewRunner(w, p, reg, opts)
	require.NoError(t, err)
	return r, reg
}

func TestReadHeavy_FanOutAndTotalReads(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, map[string]func(http.ResponseWriter, *http.Request){
		"GET /posts":   jsonHandler(200, `[{"id":"1"},{"id":"2"}]`),
		"GET /posts/1": jsonHandler(200, `{"id":"1"}`),
		"GET /posts/2": jsonHandler(200, `{"id":"2"}`),
	})

	r, reg := newRunner(t, NewReadHeavy(), Options{})
	v := types.Variant{Name: "a", BaseURL: srv.URL}

	summary, err := r.Run(context.Background(), v)
	require.NoError(t, err)

	assert.Equal(t, []string{"/posts", "/posts/1", "/posts/2"}, rec.Paths())
	assert.Equal(t, 3, summary.Requests)
	assert.Equal(t, 0, summary.Failures)
	assert.Equal(t, []string{"1", "2"}, summary.Projected["list"])

	filter := metrics.TagFilter{Variant: "a"}
	assert.Equal(t, int64(3), reg.Count(types.MetricTotalReads, filter))
	assert.Equal(t, int64(0), reg.Count(types.MetricErrors, filter))
	assert.Equal(t, int64(1), reg.Count(types.MetricIterations, metrics.TagFilter{Operation: ReadHeavy}))
	assert.Equal(t, int64(1), reg.Count(types.MetricHTTPReqDuration, metrics.TagFilter{Operation: "list"}))
	assert.Equal(t, int64(2), reg.Count(types.MetricHTTPReqDuration, metrics.TagFilter{Operation: "getById"}))
}

func TestReadHeavy_NumericIDs(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, map[string]func(http.ResponseWriter, *http.Request){
		"GET /posts":    jsonHandler(200, `[{"id":10},{"id":11}]`),
		"GET /posts/10": jsonHandler(200, `{"id":10}`),
		"GET /posts/11": jsonHandler(200, `{"id":11}`),
	})

	r, reg := newRunner(t, NewReadHeavy(), Options{})
	_, err := r.Run(context.Background(), types.Variant{Name: "a", BaseURL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, []string{"/posts", "/posts/10", "/posts/11"}, rec.Paths())
	assert.Equal(t, int64(0), reg.Count(types.MetricErrors, metrics.TagFilter{}))
}

func TestReadHeavy_EmptyListCountsReadAndError(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, map[string]func(http.ResponseWriter, *http.Request){
		"GET /posts": jsonHandler(200, `[]`),
	})

	r, reg := newRunner(t, NewReadHeavy(), Options{})
	summary, err := r.Run(context.Background(), types.Variant{Name: "a", BaseURL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, []string{"/posts"}, rec.Paths())
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, int64(1), reg.Count(types.MetricTotalReads, metrics.TagFilter{}))
	assert.Equal(t, int64(1), reg.Count(types.MetricErrors, metrics.TagFilter{}))
}

func TestReadHeavy_ErrorCountedOncePerRequest(t *testing.T) {
	rec := &recorder{}
	// errors 非空且不是数组：NoErrors 与 NonEmptyArray 都失败
	srv := newServer(t, rec, map[string]func(http.ResponseWriter, *http.Request){
		"GET /posts": jsonHandler(200, `{"errors":[{"message":"db down"}]}`),
	})

	r, reg := newRunner(t, NewReadHeavy(), Options{})
	_, err := r.Run(context.Background(), types.Variant{Name: "a", BaseURL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, int64(1), reg.Count(types.MetricErrors, metrics.TagFilter{}))
}

func TestWriteAndRead_UsesCreatedID(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, map[string]func(http.ResponseWriter, *http.Request){
		"POST /posts":       jsonHandler(201, `{"id":"abc123","title":"t"}`),
		"GET /posts/abc123": jsonHandler(200, `{"id":"abc123"}`),
	})

	r, reg := newRunner(t, NewWriteAndRead(), Options{})
	summary, err := r.Run(context.Background(), types.Variant{Name: "prisma7", BaseURL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, []string{"/posts", "/posts/abc123"}, rec.Paths())
	assert.Equal(t, 0, summary.Failures)
	assert.Equal(t, int64(0), reg.Count(types.MetricErrors, metrics.TagFilter{}))
	assert.Equal(t, int64(0), reg.Count(types.MetricTotalReads, metrics.TagFilter{}))

	require.Len(t, rec.posts, 1)
	var payload postPayload
	require.NoError(t, sonic.UnmarshalString(rec.posts[0], &payload))
	assert.Contains(t, payload.Title, "Load Test Post ")
	assert.Contains(t, payload.Body, "prisma7")
}

func TestWriteAndRead_MismatchedIDIsError(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, map[string]func(http.ResponseWriter, *http.Request){
		"POST /posts":       jsonHandler(200, `{"id":"abc123"}`),
		"GET /posts/abc123": jsonHandler(200, `{"id":"zzz"}`),
	})

	r, reg := newRunner(t, NewWriteAndRead(), Options{})
	_, err := r.Run(context.Background(), types.Variant{Name: "a", BaseURL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, int64(1), reg.Count(types.MetricErrors, metrics.TagFilter{Operation: "get"}))
}

func TestWriteAndRead_ComparesTypedIDs(t *testing.T) {
	tests := []struct {
		name    string
		fetched string
		errors  int64
	}{
		{"same number", `{"id":7}`, 0},
		{"number as string", `{"id":"7"}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			srv := newServer(t, rec, map[string]func(http.ResponseWriter, *http.Request){
				"POST /posts":  jsonHandler(201, `{"id":7}`),
				"GET /posts/7": jsonHandler(200, tt.fetched),
			})

			r, reg := newRunner(t, NewWriteAndRead(), Options{})
			_, err := r.Run(context.Background(), types.Variant{Name: "a", BaseURL: srv.URL})
			require.NoError(t, err)

			assert.Equal(t, []string{"/posts", "/posts/7"}, rec.Paths())
			assert.Equal(t, tt.errors, reg.Count(types.MetricErrors, metrics.TagFilter{Operation: "get"}))
		})
	}
}

func TestWriteAndRead_FalsyIDSkipsGet(t *testing.T) {
	for _, created := range []string{`{"id":0}`, `{"id":""}`, `{"id":null}`} {
		t.Run(created, func(t *testing.T) {
			rec := &recorder{}
			srv := newServer(t, rec, map[string]func(http.ResponseWriter, *http.Request){
				"POST /posts": jsonHandler(201, created),
			})

			r, reg := newRunner(t, NewWriteAndRead(), Options{})
			summary, err := r.Run(context.Background(), types.Variant{Name: "a", BaseURL: srv.URL})
			require.NoError(t, err)

			assert.Equal(t, []string{"/posts"}, rec.Paths())
			assert.Equal(t, 1, summary.Outcomes[types.OutcomeApplicationFailure])
			assert.Equal(t, int64(1), reg.Count(types.MetricErrors, metrics.TagFilter{Operation: "create"}))
		})
	}
}

func TestWriteAndRead_FailedCreateSkipsGet(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, map[string]func(http.ResponseWriter, *http.Request){
		"POST /posts": jsonHandler(500, `{"errors":[{"message":"boom"}]}`),
	})

	r, reg := newRunner(t, NewWriteAndRead(), Options{})
	summary, err := r.Run(context.Background(), types.Variant{Name: "a", BaseURL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, []string{"/posts"}, rec.Paths())
	assert.Equal(t, 1, summary.Outcomes[types.OutcomeApplicationFailure])
	assert.Equal(t, int64(1), reg.Count(types.MetricErrors, metrics.TagFilter{}))
}

func TestJoinHeavy_ChecksFirstPostOnly(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec, map[string]func(http.ResponseWriter, *http.Request){
		"GET /posts-with-comments":   jsonHandler(200, `[{"id":1,"comments":[{"id":9}]},{"id":2,"comments":[]}]`),
		"GET /posts-with-comments/1": jsonHandler(200, `{"id":1,"comments":[{"id":9}]}`),
		"GET /posts-with-comments/2": jsonHandler(200, `{"id":2,"comments":[]}`),
	})

	r, reg := newRunner(t, NewJoinHeavy(), Options{})
	_, err := r.Run(context.Background(), types.Variant{Name: "a", BaseURL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, int64(0), reg.Count(types.MetricErrors, metrics.TagFilter{Operation: "listWithJoin"}))
	assert.Equal(t, int64(1), reg.Count(types.MetricErrors, metrics.TagFilter{Operation: "getByIdWithJoin"}))
	assert.Equal(t, int64(3), reg.Count(types.MetricTotalReads, metrics.TagFilter{}))
}

func TestParseFailure(t *testing.T) {
	newSrv := func(t *testing.T) *httptest.Server {
		return newServer(t, &recorder{}, map[string]func(http.ResponseWriter, *http.Request){
			"GET /posts": jsonHandler(200, `<html>gateway</html>`),
		})
	}

	t.Run("not counted as error by default", func(t *testing.T) {
		srv := newSrv(t)
		r, reg := newRunner(t, NewReadHeavy(), Options{})
		summary, err := r.Run(context.Background(), types.Variant{Name: "a", BaseURL: srv.URL})
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Outcomes[types.OutcomeParseFailure])
		assert.Equal(t, int64(1), reg.Count(types.MetricParseFailures, metrics.TagFilter{}))
		assert.Equal(t, int64(0), reg.Count(types.MetricErrors, metrics.TagFilter{}))
	})

	t.Run("counted as error when configured", func(t *testing.T) {
		srv := newSrv(t)
		r, reg := newRunner(t, NewReadHeavy(), Options{CountParseFailuresAsErrors: true})
		_, err := r.Run(context.Background(), types.Variant{Name: "a", BaseURL: srv.URL})
		require.NoError(t, err)

		assert.Equal(t, int64(1), reg.Count(types.MetricParseFailures, metrics.TagFilter{}))
		assert.Equal(t, int64(1), reg.Count(types.MetricErrors, metrics.TagFilter{}))
	})
}

func TestTransportFailureContinues(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	r, reg := newRunner(t, NewReadHeavy(), Options{})
	summary, err := r.Run(context.Background(), types.Variant{Name: "down", BaseURL: "http://" + addr})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Outcomes[types.OutcomeTransportFailure])
	assert.Equal(t, int64(1), reg.Count(types.MetricErrors, metrics.TagFilter{}))
	assert.Equal(t, int64(1), reg.Count(types.MetricTransportFailures, metrics.TagFilter{}))
	assert.Equal(t, int64(1), reg.Count(types.MetricIterations, metrics.TagFilter{}))
}

func TestRun_CanceledContext(t *testing.T) {
	r, reg := newRunner(t, NewReadHeavy(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, types.Variant{Name: "a", BaseURL: "http://127.0.0.1:1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), reg.Count(types.MetricHTTPReqs, metrics.TagFilter{}))
	assert.Equal(t, int64(0), reg.Count(types.MetricIterations, metrics.TagFilter{}))
}

func TestNewRunner_Validation(t *testing.T) {
	reg := metrics.NewRegistry()
	_, err := NewRunner(NewReadHeavy(), nil, reg, Options{})
	assert.ErrorIs(t, err, ErrNilProbe)

	p, err := probe.New(nil, reg)
	require.NoError(t, err)
	_, err = NewRunner(&Workload{Name: "empty"}, p, reg, Options{})
	assert.ErrorIs(t, err, ErrEmptyWorkload)
}
