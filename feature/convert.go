package feature

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb/geojson"
	ownOsm "osm4cities/osm"
)

// ToFeatureCollection converts the given elements into a feature collection. Elements without resolvable geometry are
// dropped, the features keep the relative order of their elements.
func ToFeatureCollection(elements []ownOsm.Element) *geojson.FeatureCollection {
	converter := NewConverter()
	err := ownOsm.NewOsmReader().Read(elements, converter)
	if err != nil {
		sigolo.Errorf("Error converting OSM elements to GeoJSON: %+v", err)
		return geojson.NewFeatureCollection()
	}
	return converter.FeatureCollection()
}

// ToFeatureCollectionFromRaw converts a raw Overpass JSON response. Malformed responses result in an empty collection.
func ToFeatureCollectionFromRaw(raw []byte) *geojson.FeatureCollection {
	elements, err := ownOsm.DecodeResponse(raw)
	if err != nil {
		sigolo.Debugf("Unable to decode raw response, use empty feature collection: %s", err.Error())
	}
	return ToFeatureCollection(elements)
}
