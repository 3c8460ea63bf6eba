package metrics

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestHDRSink_Format(t *testing.T) {
	h := NewHDRSink(3)
	assert.True(t, h.Empty())

	for _, v := range []float64{1.5, 2.5, 100} {
		h.Add(Sample{Value: v})
	}

	stats := h.Stats()
	assert.Equal(t, 3.0, stats["count"])
	assert.Equal(t, 1.5, stats["min"])
	assert.Equal(t, 100.0, stats["max"])
	assert.InDelta(t, 104.0/3.0, stats["avg"], 1e-9)
	assert.InDelta(t, 2.5, stats["med"], 0.01)
}

func TestHDRSink_Merge(t *testing.T) {
	a := NewHDRSink(3)
	b := NewHDRSink(3)
	a.Add(Sample{Value: 10})
	b.Add(Sample{Value: 20})
	b.Add(Sample{Value: 30})

	merged := a.Merge(b)
	assert.Equal(t, int64(3), merged.Len())
	assert.Equal(t, int64(1), a.Len(), "merge must not modify receiver")
	assert.InDelta(t, 30.0, merged.Percentile(100), 1e-9)
	assert.InDelta(t, 10.0, merged.Percentile(0), 1e-9)
}

func TestHDRRegistry_Percentile(t *testing.T) {
	r, err := NewRegistryWithStorage(StorageHDR, 3)
	require.NoError(t, err)

	for i := 1; i <= 100; i++ {
		require.NoError(t, r.RecordSample("lat", tagsA, float64(i)))
	}
	p95, err := r.Percentile("lat", TagFilter{}, 95)
	require.NoError(t, err)
	assert.InDelta(t, 95.0, p95, 0.2)
}

// nearestRank 与 HdrHistogram 相同的取值方式
func nearestRank(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	count := int(p/100*float64(len(sorted)) + 0.5)
	if count < 1 {
		count = 1
	}
	if count > len(sorted) {
		count = len(sorted)
	}
	return sorted[count-1]
}

func TestProperty_HDRWithinErrorBound(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfN(rapid.Float64Range(0.001, 60000), 1, 300).Draw(t, "values")
		p := rapid.Float64Range(1, 99).Draw(t, "p")

		h := NewHDRSink(3)
		rounded := make([]float64, len(values))
		for i, v := range values {
			h.Add(Sample{Value: v})
			rounded[i] = math.Round(v*hdrScale) / hdrScale
		}

		got := h.Percentile(p)
		want := nearestRank(rounded, p)
		tolerance := want*0.002 + 0.002
		if math.Abs(got-want) > tolerance {
			t.Fatalf("hdr p(%v) = %v, exact nearest-rank %v", p, got, want)
		}
	})
}
