package spatial

import (
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/gjson"
)

// ReadFeatures reads a GeoJSON file holding a FeatureCollection, a single Feature
// or a bare geometry, and returns its features. A bare geometry becomes one
// feature without properties.
func ReadFeatures(path string) ([]*geojson.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseFeatures(data)
}

// ParseFeatures decodes GeoJSON bytes into features
func ParseFeatures(data []byte) ([]*geojson.Feature, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid GeoJSON document")
	}

	switch typ := gjson.GetBytes(data, "type").String(); typ {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode feature collection: %w", err)
		}
		return fc.Features, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode feature: %w", err)
		}
		return []*geojson.Feature{f}, nil
	case "":
		return nil, fmt.Errorf("GeoJSON document has no type")
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s geometry: %w", typ, err)
		}
		return []*geojson.Feature{geojson.NewFeature(g.Geometry())}, nil
	}
}
