// Package dedup clusters candidate records that likely denote the same
// business and merges each cluster into one canonical record.
package dedup

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-finder/internal/model"
	"github.com/sells-group/company-finder/internal/ports"
)

// MinClusterSize is the smallest group the clusterer may report.
const MinClusterSize = 2

// Engine deduplicates candidate records.
type Engine struct {
	embedder  ports.Embedder
	clusterer ports.Clusterer
}

// New creates a dedup Engine.
func New(embedder ports.Embedder, clusterer ports.Clusterer) *Engine {
	return &Engine{embedder: embedder, clusterer: clusterer}
}

// Key is the text a record is clustered on: name and address only.
func Key(r model.CandidateRecord) string {
	return r.Name + " " + model.Deref(r.Address)
}

// Dedupe returns one record per cluster plus one per noise record, ordered by
// first appearance in records. Input records are not modified. Embedding or
// clustering failures are returned as errors.
func (e *Engine) Dedupe(ctx context.Context, records []model.CandidateRecord) ([]model.MergedRecord, error) {
	if len(records) == 0 {
		return []model.MergedRecord{}, nil
	}

	keys := make([]string, len(records))
	for i, r := range records {
		keys[i] = Key(r)
	}

	vectors, err := e.embedder.EmbedBatch(ctx, keys)
	if err != nil {
		return nil, eris.Wrap(err, "dedup: embed keys")
	}
	if len(vectors) != len(records) {
		return nil, eris.Errorf("dedup: embedder returned %d vectors for %d keys", len(vectors), len(records))
	}
	for i := range vectors {
		vectors[i] = Normalize(vectors[i])
	}

	labels, err := e.clusterer.Cluster(ctx, vectors, MinClusterSize, ports.Euclidean)
	if err != nil {
		return nil, eris.Wrap(err, "dedup: cluster")
	}
	if len(labels) != len(records) {
		return nil, eris.Errorf("dedup: clusterer returned %d labels for %d records", len(labels), len(records))
	}

	out := Merge(records, labels)

	zap.L().Info("dedup: merged records",
		zap.Int("input", len(records)),
		zap.Int("output", len(out)),
	)
	return out, nil
}

// Merge groups records by label and merges each non-noise group. Output is
// ordered by first appearance of each group (noise records are their own
// group). len(labels) must equal len(records).
func Merge(records []model.CandidateRecord, labels []int) []model.MergedRecord {
	// order holds, per output slot, the member indexes in input order.
	var order [][]int
	slot := make(map[int]int)

	for i, label := range labels {
		if label == model.NoiseLabel {
			order = append(order, []int{i})
			continue
		}
		s, ok := slot[label]
		if !ok {
			s = len(order)
			slot[label] = s
			order = append(order, nil)
		}
		order[s] = append(order[s], i)
	}

	out := make([]model.MergedRecord, 0, len(order))
	for _, members := range order {
		if len(members) == 1 && labels[members[0]] == model.NoiseLabel {
			out = append(out, records[members[0]].Clone())
			continue
		}
		out = append(out, mergeCluster(records, members))
	}
	return out
}

// mergeCluster picks the highest-scoring member (earliest on ties) and fills
// its empty phone, email and address from the other members in input order.
func mergeCluster(records []model.CandidateRecord, members []int) model.MergedRecord {
	best := members[0]
	for _, i := range members[1:] {
		if records[i].IndustryScore > records[best].IndustryScore {
			best = i
		}
	}

	rep := records[best].Clone()
	sources := make([]string, 0, len(members))
	for _, i := range members {
		sources = append(sources, records[i].SourceURL)
		if i == best {
			continue
		}
		other := records[i]
		if !rep.HasPhone() && other.HasPhone() {
			rep.Phone = model.StringPtr(*other.Phone)
		}
		if !rep.HasEmail() && other.HasEmail() {
			rep.Email = model.StringPtr(*other.Email)
		}
		if !rep.HasAddress() && other.HasAddress() {
			rep.Address = model.StringPtr(*other.Address)
		}
	}
	rep.Sources = sources
	return rep
}

// Normalize scales v to unit length. Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
