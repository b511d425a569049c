package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-finder/internal/model"
	"github.com/sells-group/company-finder/internal/ports"
)

func TestHDBSCAN_TwoBlobsAndOutlier(t *testing.T) {
	vectors := [][]float32{
		{0, 0}, {0, 0.1}, {0.1, 0},
		{5, 5}, {5, 5.1}, {5.1, 5},
		{20, 20},
	}

	labels, err := New().Cluster(context.Background(), vectors, 2, ports.Euclidean)
	require.NoError(t, err)
	require.Len(t, labels, len(vectors))

	assert.NotEqual(t, model.NoiseLabel, labels[0])
	assert.Equal(t, labels[0], labels[1])
	assert.Equal(t, labels[0], labels[2])

	assert.NotEqual(t, model.NoiseLabel, labels[3])
	assert.Equal(t, labels[3], labels[4])
	assert.Equal(t, labels[3], labels[5])

	assert.NotEqual(t, labels[0], labels[3])
	assert.Equal(t, model.NoiseLabel, labels[6])
}

func TestHDBSCAN_Deterministic(t *testing.T) {
	vectors := [][]float32{
		{1, 1}, {1, 1.05}, {8, 8}, {8, 8.05}, {3, -4}, {-6, 2},
	}

	first, err := New().Cluster(context.Background(), vectors, 2, ports.Euclidean)
	require.NoError(t, err)
	for range 5 {
		again, err := New().Cluster(context.Background(), vectors, 2, ports.Euclidean)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestHDBSCAN_SingleGroupIsNoise(t *testing.T) {
	// The root cluster is never selected.
	vectors := [][]float32{{0, 0}, {0, 0.1}, {0.1, 0}}

	labels, err := New().Cluster(context.Background(), vectors, 2, ports.Euclidean)
	require.NoError(t, err)
	assert.Equal(t, []int{-1, -1, -1}, labels)
}

func TestHDBSCAN_CoincidentPoints(t *testing.T) {
	vectors := [][]float32{
		{1, 0}, {1, 0},
		{0, 1}, {0, 1},
	}

	labels, err := New().Cluster(context.Background(), vectors, 2, ports.Euclidean)
	require.NoError(t, err)
	assert.Equal(t, labels[0], labels[1])
	assert.Equal(t, labels[2], labels[3])
	assert.NotEqual(t, labels[0], labels[2])
	assert.NotEqual(t, model.NoiseLabel, labels[0])
}

func TestHDBSCAN_SmallInputs(t *testing.T) {
	labels, err := New().Cluster(context.Background(), nil, 2, ports.Euclidean)
	require.NoError(t, err)
	assert.Empty(t, labels)

	labels, err = New().Cluster(context.Background(), [][]float32{{1, 2}}, 2, ports.Euclidean)
	require.NoError(t, err)
	assert.Equal(t, []int{model.NoiseLabel}, labels)
}

func TestHDBSCAN_InvalidInput(t *testing.T) {
	_, err := New().Cluster(context.Background(), [][]float32{{1}, {2}}, 2, ports.Metric("cosine"))
	assert.ErrorContains(t, err, "unsupported metric")

	_, err = New().Cluster(context.Background(), [][]float32{{1}, {2}}, 1, ports.Euclidean)
	assert.ErrorContains(t, err, "min cluster size")

	_, err = New().Cluster(context.Background(), [][]float32{{1, 2}, {2}}, 2, ports.Euclidean)
	assert.ErrorContains(t, err, "dimension")
}
