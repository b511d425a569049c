package dedup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-finder/internal/cluster"
	"github.com/sells-group/company-finder/internal/model"
	"github.com/sells-group/company-finder/internal/ports"
)

type fakeEmbedder struct {
	calls int
	keys  []string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.keys = append(f.keys, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

type fakeClusterer struct {
	labels []int
	err    error
	got    [][]float32
}

func (f *fakeClusterer) Cluster(_ context.Context, vectors [][]float32, minSize int, metric ports.Metric) ([]int, error) {
	f.got = vectors
	if minSize != MinClusterSize || metric != ports.Euclidean {
		return nil, fmt.Errorf("unexpected params %d %s", minSize, metric)
	}
	return f.labels, f.err
}

func acmeScenario() []model.CandidateRecord {
	return []model.CandidateRecord{
		{Name: "Acme", IndustryScore: 0.9, Phone: model.StringPtr("123"), SourceURL: "https://a.example", Website: "https://a.example"},
		{Name: "Acme", IndustryScore: 0.7, Address: model.StringPtr("MG Road"), SourceURL: "https://b.example", Website: "https://b.example"},
		{Name: "Zenith", IndustryScore: 0.5, SourceURL: "https://c.example", Website: "https://c.example"},
	}
}

func TestDedupe_AcmeZenithScenario(t *testing.T) {
	emb := &fakeEmbedder{}
	cl := &fakeClusterer{labels: []int{0, 0, model.NoiseLabel}}

	out, err := New(emb, cl).Dedupe(context.Background(), acmeScenario())
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "Acme", out[0].Name)
	assert.InDelta(t, 0.9, out[0].IndustryScore, 1e-9)
	assert.Equal(t, "123", model.Deref(out[0].Phone))
	assert.Equal(t, "MG Road", model.Deref(out[0].Address))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, out[0].Sources)

	assert.Equal(t, "Zenith", out[1].Name)
	assert.InDelta(t, 0.5, out[1].IndustryScore, 1e-9)
	assert.Nil(t, out[1].Phone)
	assert.Nil(t, out[1].Address)

	assert.Equal(t, []string{"Acme ", "Acme MG Road", "Zenith "}, emb.keys)
}

func TestDedupe_VectorsAreNormalized(t *testing.T) {
	cl := &fakeClusterer{labels: []int{-1, -1, -1}}

	_, err := New(&fakeEmbedder{}, cl).Dedupe(context.Background(), acmeScenario())
	require.NoError(t, err)
	for _, v := range cl.got {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
	}
}

func TestDedupe_EmptyInput(t *testing.T) {
	emb := &fakeEmbedder{}
	out, err := New(emb, &fakeClusterer{}).Dedupe(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, emb.calls)
}

func TestDedupe_NoiseIsBitIdentical(t *testing.T) {
	in := acmeScenario()
	cl := &fakeClusterer{labels: []int{-1, -1, -1}}

	out, err := New(&fakeEmbedder{}, cl).Dedupe(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDedupe_DoesNotMutateInput(t *testing.T) {
	in := acmeScenario()
	before := make([]model.CandidateRecord, len(in))
	for i, r := range in {
		before[i] = r.Clone()
	}

	_, err := New(&fakeEmbedder{}, &fakeClusterer{labels: []int{0, 0, -1}}).Dedupe(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, before, in)
}

func TestDedupe_EmbedderFailure(t *testing.T) {
	_, err := New(&fakeEmbedder{err: errors.New("connection refused")}, &fakeClusterer{}).
		Dedupe(context.Background(), acmeScenario())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedup: embed keys")
}

func TestDedupe_ClustererFailure(t *testing.T) {
	_, err := New(&fakeEmbedder{}, &fakeClusterer{err: errors.New("oom")}).
		Dedupe(context.Background(), acmeScenario())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedup: cluster")
}

func TestDedupe_LabelCountMismatch(t *testing.T) {
	_, err := New(&fakeEmbedder{}, &fakeClusterer{labels: []int{0}}).
		Dedupe(context.Background(), acmeScenario())

	assert.ErrorContains(t, err, "labels for 3 records")
}

func TestMerge_RepresentativeTieKeepsEarliest(t *testing.T) {
	in := []model.CandidateRecord{
		{Name: "First", IndustryScore: 0.8, SourceURL: "1"},
		{Name: "Second", IndustryScore: 0.8, SourceURL: "2", Email: model.StringPtr("x@y.io")},
	}

	out := Merge(in, []int{3, 3})
	require.Len(t, out, 1)
	assert.Equal(t, "First", out[0].Name)
	assert.Equal(t, "x@y.io", model.Deref(out[0].Email))
}

func TestMerge_FirstNonEmptyWins(t *testing.T) {
	in := []model.CandidateRecord{
		{Name: "Rep", IndustryScore: 0.9, SourceURL: "1", Phone: model.StringPtr("")},
		{Name: "B", IndustryScore: 0.1, SourceURL: "2", Phone: model.StringPtr("222")},
		{Name: "C", IndustryScore: 0.2, SourceURL: "3", Phone: model.StringPtr("333")},
	}

	out := Merge(in, []int{1, 1, 1})
	require.Len(t, out, 1)
	assert.Equal(t, "222", model.Deref(out[0].Phone))
	assert.Equal(t, "Rep", out[0].Name)
}

func TestMerge_OrderByFirstAppearance(t *testing.T) {
	in := []model.CandidateRecord{
		{Name: "a", SourceURL: "0"},
		{Name: "b", SourceURL: "1"},
		{Name: "c", SourceURL: "2"},
		{Name: "d", SourceURL: "3"},
	}

	out := Merge(in, []int{1, -1, 0, 1})
	require.Len(t, out, 3)
	assert.Equal(t, []string{"0", "3"}, out[0].Sources)
	assert.Equal(t, "1", out[1].SourceURL)
	assert.Equal(t, []string{"2"}, out[2].Sources)
}

// Properties over random labelings: output never grows, every input is
// accounted for exactly once, and merging never clears a representative field.
func TestMerge_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	maybe := func(s string) *string {
		if rng.IntN(2) == 0 {
			return nil
		}
		return model.StringPtr(s)
	}

	for iter := range 200 {
		n := rng.IntN(12)
		in := make([]model.CandidateRecord, n)
		labels := make([]int, n)
		for i := range in {
			in[i] = model.CandidateRecord{
				Name:          fmt.Sprintf("n%d", i),
				Phone:         maybe(fmt.Sprintf("p%d", i)),
				Email:         maybe(fmt.Sprintf("e%d", i)),
				Address:       maybe(fmt.Sprintf("a%d", i)),
				SourceURL:     fmt.Sprintf("u%d-%d", iter, i),
				IndustryScore: rng.Float64(),
			}
			labels[i] = rng.IntN(4) - 1
		}

		out := Merge(in, labels)
		assert.LessOrEqual(t, len(out), n)
		assert.Equal(t, n == 0, len(out) == 0)

		seen := make(map[string]int)
		for _, r := range out {
			if len(r.Sources) == 0 {
				seen[r.SourceURL]++
				continue
			}
			for _, s := range r.Sources {
				seen[s]++
			}
		}
		require.Len(t, seen, n)
		for _, c := range seen {
			assert.Equal(t, 1, c)
		}

		bySource := make(map[string]model.CandidateRecord, n)
		for _, r := range in {
			bySource[r.SourceURL] = r
		}
		for _, r := range out {
			orig := bySource[r.SourceURL]
			assert.Equal(t, orig.Name, r.Name)
			assert.InDelta(t, orig.IndustryScore, r.IndustryScore, 0)
			if orig.HasPhone() {
				assert.Equal(t, *orig.Phone, model.Deref(r.Phone))
			}
			if orig.HasEmail() {
				assert.Equal(t, *orig.Email, model.Deref(r.Email))
			}
			if orig.HasAddress() {
				assert.Equal(t, *orig.Address, model.Deref(r.Address))
			}
		}
	}
}

func TestDedupe_WithHDBSCAN(t *testing.T) {
	// Embeds by name: identical names land on the same point.
	emb := embedByName{"Acme": {1, 0, 0}, "Zenith": {0, 1, 0}, "Orbit": {0, 0, 1}}
	in := []model.CandidateRecord{
		{Name: "Acme", IndustryScore: 0.4, SourceURL: "1", Phone: model.StringPtr("1")},
		{Name: "Zenith", IndustryScore: 0.6, SourceURL: "2"},
		{Name: "Acme", IndustryScore: 0.9, SourceURL: "3"},
		{Name: "Zenith", IndustryScore: 0.3, SourceURL: "4", Email: model.StringPtr("z@z.io")},
		{Name: "Orbit", IndustryScore: 0.5, SourceURL: "5"},
	}

	out, err := New(emb, cluster.New()).Dedupe(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "3", out[0].SourceURL)
	assert.Equal(t, "1", model.Deref(out[0].Phone))
	assert.Equal(t, "2", out[1].SourceURL)
	assert.Equal(t, "z@z.io", model.Deref(out[1].Email))
	assert.Equal(t, "5", out[2].SourceURL)
	assert.Empty(t, out[2].Sources)
}

type embedByName map[string][]float32

func (e embedByName) Embed(_ context.Context, text string) ([]float32, error) {
	return e.lookup(text), nil
}

func (e embedByName) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.lookup(t)
	}
	return out, nil
}

func (e embedByName) lookup(key string) []float32 {
	for name, v := range e {
		if len(key) >= len(name) && key[:len(name)] == name {
			return append([]float32(nil), v...)
		}
	}
	return []float32{1, 1, 1}
}
