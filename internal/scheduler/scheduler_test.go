package scheduler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/variant-bench/internal/execution"
	"yqhp/variant-bench/internal/probe"
	"yqhp/variant-bench/internal/workload"
	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/types"
)

// timeline 记录每个变体的迭代开始时间
type timeline struct {
	mu     sync.Mutex
	starts map[string][]time.Time
}

func newTimeline() *timeline {
	return &timeline{starts: make(map[string][]time.Time)}
}

func (tl *timeline) factory(iterTime time.Duration) IterationFactory {
	return func(sc types.Scenario, v types.Variant) (execution.IterationFunc, error) {
		return func(ctx context.Context, vuID, iteration int) error {
			tl.mu.Lock()
			tl.starts[v.Name] = append(tl.starts[v.Name], time.Now())
			tl.mu.Unlock()
			select {
			case <-ctx.Done():
			case <-time.After(iterTime):
			}
			return nil
		}, nil
	}
}

func (tl *timeline) first(name string) time.Time {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if len(tl.starts[name]) == 0 {
		return time.Time{}
	}
	return tl.starts[name][0]
}

func (tl *timeline) count(name string) int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return len(tl.starts[name])
}

func TestScheduler_PhasesDoNotOverlap(t *testing.T) {
	plan := BuildPlan(variantsAB, "read-heavy", 2, 100*time.Millisecond, 0)
	tl := newTimeline()

	var completed []types.ScenarioStatus
	s, err := New(plan, variantsAB, tl.factory(10*time.Millisecond), Options{
		OnPhaseComplete: func(st types.ScenarioStatus) { completed = append(completed, st) },
	})
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))

	start := s.RunStart()
	require.Len(t, completed, 2)
	assert.Equal(t, "prisma6", completed[0].Name)
	assert.Equal(t, types.ScenarioCompleted, completed[0].State)

	// B 不早于偏移，也不早于 A 完成
	firstB := tl.first("prisma7")
	require.False(t, firstB.IsZero())
	assert.False(t, firstB.Before(start.Add(100*time.Millisecond)))
	assert.False(t, firstB.Before(completed[0].CompletedAt))

	for _, st := range s.States() {
		assert.Equal(t, types.ScenarioCompleted, st.State)
		assert.Positive(t, st.Iterations)
		assert.Equal(t, 0, st.ActiveVUs)
	}
}

func TestScheduler_LongIterationDelaysNextPhase(t *testing.T) {
	plan := BuildPlan(variantsAB, "read-heavy", 1, 50*time.Millisecond, 0)
	tl := newTimeline()

	s, err := New(plan, variantsAB, tl.factory(150*time.Millisecond), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	states := s.States()
	// A 的迭代超出计划时长，B 在 A 完成后才开始
	assert.False(t, tl.first("prisma7").Before(states[0].CompletedAt))
	assert.GreaterOrEqual(t, states[0].CompletedAt.Sub(s.RunStart()), 150*time.Millisecond)
}

func TestScheduler_CancelAbortsCurrentPhase(t *testing.T) {
	plan := BuildPlan(variantsAB, "read-heavy", 2, time.Second, 0)
	tl := newTimeline()

	s, err := New(plan, variantsAB, tl.factory(10*time.Millisecond), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	begin := time.Now()
	err = s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(begin), 900*time.Millisecond)

	states := s.States()
	assert.Equal(t, types.ScenarioAborted, states[0].State)
	assert.Equal(t, types.ScenarioPending, states[1].State)
	assert.Zero(t, tl.count("prisma7"))
}

func TestScheduler_FactoryError(t *testing.T) {
	plan := BuildPlan(variantsAB[:1], "read-heavy", 1, 50*time.Millisecond, 0)
	boom := errors.New("boom")

	s, err := New(plan, variantsAB, func(types.Scenario, types.Variant) (execution.IterationFunc, error) {
		return nil, boom
	}, Options{})
	require.NoError(t, err)

	err = s.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, types.ScenarioAborted, s.States()[0].State)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(&Plan{}, variantsAB, nil, Options{})
	assert.ErrorIs(t, err, ErrNilIterationFactory)

	_, err = New(&Plan{}, variantsAB, newTimeline().factory(0), Options{})
	assert.ErrorIs(t, err, ErrEmptyPlan)
}

func TestScheduler_CurrentDuringRun(t *testing.T) {
	plan := BuildPlan(variantsAB[:1], "read-heavy", 3, 150*time.Millisecond, 0)
	s, err := New(plan, variantsAB, newTimeline().factory(20*time.Millisecond), Options{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		st, ok := s.Current()
		return ok && st.ActiveVUs == 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, <-done)
	_, ok := s.Current()
	assert.False(t, ok)
}

// 端到端：两个变体依次运行 read-heavy，每次迭代读取列表与所有详情
func TestScheduler_ReadHeavyAgainstTwoVariants(t *testing.T) {
	var hitsA, hitsB atomic.Int64
	newVariant := func(hits *atomic.Int64) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			if r.URL.Path == "/posts" {
				_, _ = w.Write([]byte(`[{"id":1},{"id":2}]`))
				return
			}
			_, _ = w.Write([]byte(`{"id":1}`))
		}))
	}
	srvA, srvB := newVariant(&hitsA), newVariant(&hitsB)
	defer srvA.Close()
	defer srvB.Close()

	variants := []types.Variant{{Name: "a", BaseURL: srvA.URL}, {Name: "b", BaseURL: srvB.URL}}
	reg := metrics.NewRegistry()
	p, err := probe.New(probe.DefaultConfig(), reg)
	require.NoError(t, err)

	catalog := workload.NewCatalog()
	plan := BuildPlan(variants, workload.ReadHeavy, 2, 100*time.Millisecond, 0)
	require.NoError(t, plan.Validate(variants, catalog))

	factory := func(sc types.Scenario, v types.Variant) (execution.IterationFunc, error) {
		w, err := catalog.Get(sc.Workload)
		if err != nil {
			return nil, err
		}
		runner, err := workload.NewRunner(w, p, reg, workload.Options{})
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, _, _ int) error {
			_, err := runner.Run(ctx, v)
			return err
		}, nil
	}

	var hitsBWhenACompleted int64 = -1
	s, err := New(plan, variants, factory, Options{
		OnPhaseComplete: func(st types.ScenarioStatus) {
			if st.Variant == "a" {
				hitsBWhenACompleted = hitsB.Load()
			}
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, int64(0), hitsBWhenACompleted)
	for _, name := range []string{"a", "b"} {
		f := metrics.TagFilter{Variant: name}
		reads := reg.Count(types.MetricTotalReads, f)
		lists := reg.Count(types.MetricHTTPReqs, metrics.TagFilter{Variant: name, Operation: "list"})
		assert.Positive(t, lists)
		assert.Equal(t, lists*3, reads)
		assert.Equal(t, int64(0), reg.Count(types.MetricErrors, f))
	}
}
