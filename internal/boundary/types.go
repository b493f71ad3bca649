package boundary

// FeatureCollection is the GeoJSON wrapper attached to a geo record.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a single district polygon.
type Feature struct {
	Type       string            `json:"type"`
	Geometry   Geometry          `json:"geometry"`
	Properties map[string]string `json:"properties"`
}

// Geometry holds polygon rings as [lon, lat] pairs.
type Geometry struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// PointCount returns the total number of ring points across all features.
func (fc *FeatureCollection) PointCount() int {
	if fc == nil {
		return 0
	}
	n := 0
	for _, f := range fc.Features {
		for _, ring := range f.Geometry.Coordinates {
			n += len(ring)
		}
	}
	return n
}

// interpreterResponse is the subset of the Overpass JSON we read.
type interpreterResponse struct {
	Elements []element `json:"elements"`
}

type element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Geometry []point           `json:"geometry"`
	Tags     map[string]string `json:"tags"`
}

type point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// toFeatureCollection builds one polygon per element that carries geometry.
// Returns nil when no element has any points.
func (r interpreterResponse) toFeatureCollection(districtName string) *FeatureCollection {
	var features []Feature
	for _, el := range r.Elements {
		if len(el.Geometry) == 0 {
			continue
		}
		ring := make([][2]float64, len(el.Geometry))
		for i, p := range el.Geometry {
			ring[i] = [2]float64{p.Lon, p.Lat}
		}
		props := el.Tags
		if props == nil {
			props = map[string]string{"name": districtName}
		}
		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Polygon",
				Coordinates: [][][2]float64{ring},
			},
			Properties: props,
		})
	}
	if len(features) == 0 {
		return nil
	}
	return &FeatureCollection{Type: "FeatureCollection", Features: features}
}
