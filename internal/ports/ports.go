// Package ports declares the external capabilities the discovery pipeline
// depends on: embedding, classification, entity extraction, clustering, web
// search, page retrieval and the two places providers.
//
// Implementations live in internal/adapters (remote services) and
// internal/cluster (in-process clustering).
package ports

import (
	"context"

	"github.com/sells-group/company-finder/internal/model"
)

// Embedder turns text into vectors. Output must be deterministic for
// identical input within a run.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Classifier scores text against a single candidate label (zero-shot).
// The score is in [0,1].
type Classifier interface {
	Classify(ctx context.Context, text, label string) (float64, error)
}

// EntityType is the kind of a named entity.
type EntityType string

const (
	EntityOrg EntityType = "ORG"
	EntityLoc EntityType = "LOC"
)

// Entity is a named entity found in text.
type Entity struct {
	Type EntityType `json:"type"`
	Text string     `json:"text"`
}

// EntityExtractor returns the named entities in text, in order of appearance.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) ([]Entity, error)
}

// Metric is a distance metric understood by a Clusterer.
type Metric string

// Euclidean is the only metric the dedup stage uses.
const Euclidean Metric = "euclidean"

// Clusterer groups vectors and returns one label per vector.
// model.NoiseLabel marks vectors with no confident cluster.
type Clusterer interface {
	Cluster(ctx context.Context, vectors [][]float32, minClusterSize int, metric Metric) ([]int, error)
}

// SearchProvider returns result URLs for a query.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string) ([]string, error)
}

// PageFetcher retrieves one URL as cleaned text. A non-200 status or a
// non-HTML response is an error.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (model.Page, error)
}

// PlaceDetails is a primary places provider match. Empty fields were not
// supplied by the provider.
type PlaceDetails struct {
	Address string
	Phone   string
	Website string
}

// PrimaryPlaces is the keyed, structured places provider. A nil result with
// a nil error means no candidate matched.
type PrimaryPlaces interface {
	FindPlace(ctx context.Context, name string) (*PlaceDetails, error)
}

// GeoMatch is a secondary (geocoding) provider match.
type GeoMatch struct {
	FormattedAddress string
	ObjectID         string
	ObjectType       string
}

// SecondaryPlaces is the unauthenticated geocoding provider. A nil result
// with a nil error means no match.
type SecondaryPlaces interface {
	Lookup(ctx context.Context, name, address string) (*GeoMatch, error)
}
