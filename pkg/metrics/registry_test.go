package metrics

import (
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var (
	tagsA = Tags{Variant: "prisma6", Operation: "list"}
	tagsB = Tags{Variant: "prisma6", Operation: "getById"}
	tagsC = Tags{Variant: "prisma7", Operation: "list"}
)

func TestRegistry_RecordSampleAndPercentile(t *testing.T) {
	r := NewRegistry()
	for _, v := range []float64{10, 20, 30, 40, 50} {
		require.NoError(t, r.RecordSample("http_req_duration", tagsA, v))
	}

	p50, err := r.Percentile("http_req_duration", TagFilter{Variant: "prisma6"}, 50)
	require.NoError(t, err)
	assert.Equal(t, 30.0, p50)

	p95, err := r.Percentile("http_req_duration", TagFilter{}, 95)
	require.NoError(t, err)
	assert.InDelta(t, 48.0, p95, 1e-9)
}

func TestRegistry_PercentileUnionOfSeries(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RecordSample("lat", tagsA, 1))
	require.NoError(t, r.RecordSample("lat", tagsB, 3))
	require.NoError(t, r.RecordSample("lat", tagsC, 1000))

	med, err := r.Percentile("lat", TagFilter{Variant: "prisma6"}, 50)
	require.NoError(t, err)
	assert.Equal(t, 2.0, med)

	maxV, err := r.Aggregate("lat", TagFilter{}, Aggregation{Kind: AggMax})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, maxV)
}

func TestRegistry_PercentileNoSamples(t *testing.T) {
	r := NewRegistry()

	_, err := r.Percentile("missing", TagFilter{}, 95)
	assert.ErrorIs(t, err, ErrNoSamples)

	require.NoError(t, r.RecordSample("lat", tagsA, 5))
	_, err = r.Percentile("lat", TagFilter{Variant: "other"}, 95)
	assert.ErrorIs(t, err, ErrNoSamples)

	_, err = r.Percentile("lat", TagFilter{}, 101)
	assert.ErrorIs(t, err, ErrInvalidPercentile)

	_, err = r.Percentile("lat", TagFilter{}, math.NaN())
	assert.ErrorIs(t, err, ErrInvalidPercentile)

	_, err = r.Aggregate("lat", TagFilter{}, Aggregation{Kind: AggPercentile, P: math.NaN()})
	assert.ErrorIs(t, err, ErrInvalidPercentile)
}

func TestRegistry_IncrementAndCount(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Increment("errors", tagsA, 2))
	require.NoError(t, r.Increment("errors", tagsB, 3))
	require.NoError(t, r.Increment("errors", tagsC, 7))
	require.NoError(t, r.Increment("errors", tagsC, 0))

	assert.Equal(t, int64(5), r.Count("errors", TagFilter{Variant: "prisma6"}))
	assert.Equal(t, int64(7), r.Count("errors", TagFilter{Variant: "prisma7"}))
	assert.Equal(t, int64(12), r.Count("errors", TagFilter{}))
	assert.Equal(t, int64(0), r.Count("unknown", TagFilter{}))

	err := r.Increment("errors", tagsA, -1)
	assert.ErrorIs(t, err, ErrNegativeDelta)
	assert.Equal(t, int64(12), r.Count("errors", TagFilter{}))
}

func TestRegistry_TypeMismatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Increment("errors", tagsA, 1))

	err := r.RecordSample("errors", tagsA, 10)
	assert.ErrorIs(t, err, ErrMetricTypeMismatch)

	_, err = r.NewMetric("errors", Trend, Time)
	assert.ErrorIs(t, err, ErrMetricTypeMismatch)

	_, err = r.Aggregate("errors", TagFilter{}, Percentile(95))
	assert.ErrorIs(t, err, ErrUnsupportedAggregation)
}

func TestRegistry_Rate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddRate("checks", tagsA, true))
	require.NoError(t, r.AddRate("checks", tagsA, true))
	require.NoError(t, r.AddRate("checks", tagsA, false))
	require.NoError(t, r.AddRate("checks", tagsC, true))

	rate, err := r.Aggregate("checks", TagFilter{Variant: "prisma6"}, Aggregation{Kind: AggRate})
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, rate, 1e-9)

	_, err = r.Aggregate("checks", TagFilter{Variant: "none"}, Aggregation{Kind: AggRate})
	assert.ErrorIs(t, err, ErrNoSamples)

	assert.Equal(t, int64(4), r.Count("checks", TagFilter{}))
}

func TestRegistry_Subscribe(t *testing.T) {
	r := NewRegistry()
	var got []Sample
	r.Subscribe(func(s Sample) { got = append(got, s) })

	require.NoError(t, r.RecordSample("lat", tagsA, 12.5))
	require.NoError(t, r.Increment("reqs", tagsA, 1))

	require.Len(t, got, 2)
	assert.Equal(t, "lat", got[0].Metric.Name)
	assert.Equal(t, 12.5, got[0].Value)
	assert.Equal(t, tagsA, got[0].Tags)
	assert.Equal(t, Counter, got[1].Metric.Type)
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RecordSample("lat", tagsC, 4))
	require.NoError(t, r.RecordSample("lat", tagsA, 2))
	require.NoError(t, r.Increment("errors", tagsA, 1))

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "errors", snap[0].Metric)
	assert.Equal(t, tagsA, snap[1].Tags)
	assert.Equal(t, tagsC, snap[2].Tags)
	assert.Equal(t, 1.0, snap[1].Values["count"])
}

func TestRegistry_ConcurrentRecording(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.RecordSample("lat", tagsA, float64(j))
				_ = r.Increment("reqs", tagsA, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(2000), r.Count("lat", TagFilter{}))
	assert.Equal(t, int64(2000), r.Count("reqs", TagFilter{}))
}

func TestNewRegistryWithStorage(t *testing.T) {
	r, err := NewRegistryWithStorage(StorageHDR, 0)
	require.NoError(t, err)
	assert.Equal(t, StorageHDR, r.Storage())

	_, err = NewRegistryWithStorage(StorageHDR, 9)
	assert.Error(t, err)

	_, err = NewRegistryWithStorage("tdigest", 0)
	assert.ErrorIs(t, err, ErrUnknownStorage)
}

// exactPercentile 参照实现：排序后按 rank 线性插值
func exactPercentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

func TestProperty_ExactPercentileMatchesInterpolation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfN(rapid.Float64Range(0, 10000), 1, 200).Draw(t, "values")
		p := rapid.Float64Range(0, 100).Draw(t, "p")

		r := NewRegistry()
		for _, v := range values {
			_ = r.RecordSample("lat", tagsA, v)
		}

		got, err := r.Percentile("lat", TagFilter{}, p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := exactPercentile(values, p)
		if diff := got - want; diff > 1e-6 || diff < -1e-6 {
			t.Fatalf("p(%v) = %v, want %v", p, got, want)
		}
	})
}

func TestProperty_PercentileMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfN(rapid.Float64Range(0, 5000), 1, 100).Draw(t, "values")
		p1 := rapid.Float64Range(0, 100).Draw(t, "p1")
		p2 := rapid.Float64Range(p1, 100).Draw(t, "p2")

		r := NewRegistry()
		for _, v := range values {
			_ = r.RecordSample("lat", tagsA, v)
		}

		v1, _ := r.Percentile("lat", TagFilter{}, p1)
		v2, _ := r.Percentile("lat", TagFilter{}, p2)
		if v1 > v2+1e-9 {
			t.Fatalf("p(%v)=%v > p(%v)=%v", p1, v1, p2, v2)
		}
	})
}
