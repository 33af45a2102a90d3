package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestComputeCost(t *testing.T) {
	t.Run("no pricing configured", func(t *testing.T) {
		assert.Nil(t, ComputeCost(intPtr(1000), intPtr(500), nil, nil))
	})

	t.Run("no tokens reported", func(t *testing.T) {
		assert.Nil(t, ComputeCost(nil, nil, floatPtr(3), floatPtr(15)))
	})

	t.Run("zero prices", func(t *testing.T) {
		assert.Nil(t, ComputeCost(intPtr(1000), intPtr(500), floatPtr(0), floatPtr(0)))
	})

	t.Run("input and output", func(t *testing.T) {
		cost := ComputeCost(intPtr(1000), intPtr(500), floatPtr(3), floatPtr(15))
		require.NotNil(t, cost)
		// 1000*3/1e6 + 500*15/1e6 = 0.003 + 0.0075
		assert.InDelta(t, 0.0105, *cost, 1e-9)
	})

	t.Run("input price only", func(t *testing.T) {
		cost := ComputeCost(intPtr(2_000_000), intPtr(10), floatPtr(0.15), nil)
		require.NotNil(t, cost)
		assert.InDelta(t, 0.3, *cost, 1e-9)
	})

	t.Run("rounded to four places", func(t *testing.T) {
		cost := ComputeCost(intPtr(1), intPtr(1), floatPtr(123.456), floatPtr(0))
		require.NotNil(t, cost)
		assert.InDelta(t, 0.0001, *cost, 1e-12)
	})

	t.Run("rounds below precision to nil", func(t *testing.T) {
		assert.Nil(t, ComputeCost(intPtr(1), intPtr(1), floatPtr(0.01), floatPtr(0.01)))
	})
}

func TestComputeCost_Monotonic(t *testing.T) {
	in, out := floatPtr(2.5), floatPtr(10)

	prev := 0.0
	for tokens := 1000; tokens <= 20000; tokens += 1000 {
		cost := ComputeCost(intPtr(tokens), intPtr(1000), in, out)
		require.NotNil(t, cost)
		assert.Greater(t, *cost, prev)
		prev = *cost
	}

	prev = 0.0
	for tokens := 1000; tokens <= 20000; tokens += 1000 {
		cost := ComputeCost(intPtr(1000), intPtr(tokens), in, out)
		require.NotNil(t, cost)
		assert.Greater(t, *cost, prev)
		prev = *cost
	}

	a := ComputeCost(intPtr(1234), intPtr(567), in, out)
	b := ComputeCost(intPtr(1234), intPtr(567), in, out)
	assert.Equal(t, *a, *b)
}

func TestComputeSpeedScore(t *testing.T) {
	tests := []struct {
		name      string
		latencyMs int64
		timeoutMs int64
		want      float64
	}{
		{"instant", 0, 45000, 1},
		{"fast", 120, 45000, 0.99},
		{"half", 22500, 45000, 0.5},
		{"truncated not rounded", 4, 1000, 0.99},
		{"third of budget", 1000, 3000, 0.66},
		{"float noise", 710, 1000, 0.29},
		{"at budget", 45000, 45000, 0},
		{"over budget", 90000, 45000, 0},
		{"zero timeout", 100, 0, 0},
		{"negative latency", -5, 1000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeSpeedScore(tt.latencyMs, tt.timeoutMs))
		})
	}
}
