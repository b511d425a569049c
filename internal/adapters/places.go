package adapters

import (
	"context"
	"strconv"
	"strings"

	"github.com/sells-group/company-finder/internal/ports"
	"github.com/sells-group/company-finder/pkg/google"
	"github.com/sells-group/company-finder/pkg/nominatim"
)

var (
	_ ports.PrimaryPlaces   = (*GooglePlaces)(nil)
	_ ports.SecondaryPlaces = (*NominatimPlaces)(nil)
)

// GooglePlaces is the primary places provider.
type GooglePlaces struct {
	client google.Client
}

// NewGooglePlaces wraps a Google Places client.
func NewGooglePlaces(client google.Client) *GooglePlaces {
	return &GooglePlaces{client: client}
}

// FindPlace returns the first candidate for name, or nil when none matched.
func (g *GooglePlaces) FindPlace(ctx context.Context, name string) (*ports.PlaceDetails, error) {
	resp, err := g.client.TextSearch(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(resp.Places) == 0 {
		return nil, nil
	}
	p := resp.Places[0]
	return &ports.PlaceDetails{
		Address: p.FormattedAddress,
		Phone:   p.Phone(),
		Website: p.WebsiteURI,
	}, nil
}

// NominatimPlaces is the keyless fallback provider.
type NominatimPlaces struct {
	client nominatim.Client
}

// NewNominatimPlaces wraps a Nominatim client.
func NewNominatimPlaces(client nominatim.Client) *NominatimPlaces {
	return &NominatimPlaces{client: client}
}

// Lookup geocodes "name address" and returns the top match, or nil.
func (n *NominatimPlaces) Lookup(ctx context.Context, name, address string) (*ports.GeoMatch, error) {
	q := strings.TrimSpace(name + " " + address)
	places, err := n.client.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, nil
	}
	top := places[0]
	m := &ports.GeoMatch{
		FormattedAddress: top.DisplayName,
		ObjectType:       top.OSMType,
	}
	if top.OSMID != 0 {
		m.ObjectID = strconv.FormatInt(top.OSMID, 10)
	}
	return m, nil
}
