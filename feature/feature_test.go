package feature

import (
	"encoding/json"
	"github.com/paulmach/orb"
	"osm4cities/util"
	"testing"
)

func TestToFeatureCollectionFromRaw_node(t *testing.T) {
	// Arrange
	raw := []byte(`{"elements":[{"type":"node","id":1,"lat":53.5,"lon":10.1,"tags":{"amenity":"bicycle_parking","capacity":"10"}}]}`)

	// Act
	fc := ToFeatureCollectionFromRaw(raw)

	// Assert
	util.AssertEqual(t, 1, len(fc.Features))
	f := fc.Features[0]
	util.AssertEqual(t, orb.Point{10.1, 53.5}, f.Geometry)
	util.AssertEqual(t, "node/1", f.ID)
	util.AssertEqual(t, int64(1), f.Properties["@osm_id"])
	util.AssertEqual(t, "node", f.Properties["@osm_type"])
	util.AssertEqual(t, "bicycle_parking", f.Properties["amenity"])
	util.AssertEqual(t, "10", f.Properties["capacity"])
}

func TestToFeatureCollectionFromRaw_nodeAtZeroLocation(t *testing.T) {
	// Arrange
	raw := []byte(`{"elements":[
		{"type":"node","id":1,"lat":0,"lon":0,"tags":{"name":"Null Island"}},
		{"type":"node","id":2,"tags":{"name":"Without location"}}
	]}`)

	// Act
	fc := ToFeatureCollectionFromRaw(raw)

	// Assert
	util.AssertEqual(t, 1, len(fc.Features))
	util.AssertEqual(t, orb.Point{0, 0}, fc.Features[0].Geometry)
	util.AssertEqual(t, "node/1", fc.Features[0].ID)
}

func TestToFeatureCollectionFromRaw_waysWithSkeletonNodes(t *testing.T) {
	// Arrange
	raw := []byte(`{"elements":[
		{"type":"way","id":10,"nodes":[1,2,3,4,1],"tags":{"building":"school"}},
		{"type":"way","id":11,"nodes":[1,2],"tags":{"highway":"residential"}},
		{"type":"node","id":1,"lat":0.5,"lon":0.5},
		{"type":"node","id":2,"lat":0.5,"lon":1.5},
		{"type":"node","id":3,"lat":1.5,"lon":1.5},
		{"type":"node","id":4,"lat":1.5,"lon":0.5,"tags":{"entrance":"main"}}
	]}`)

	// Act
	fc := ToFeatureCollectionFromRaw(raw)

	// Assert
	util.AssertEqual(t, 3, len(fc.Features))

	polygon, ok := fc.Features[0].Geometry.(orb.Polygon)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, 1, len(polygon))
	util.AssertEqual(t, 5, len(polygon[0]))
	util.AssertEqual(t, "school", fc.Features[0].Properties["building"])

	lineString, ok := fc.Features[1].Geometry.(orb.LineString)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, orb.LineString{{0.5, 0.5}, {1.5, 0.5}}, lineString)

	// Only the tagged node becomes a feature of its own
	util.AssertEqual(t, "node/4", fc.Features[2].ID)
}

func TestToFeatureCollectionFromRaw_inlineGeometry(t *testing.T) {
	raw := []byte(`{"elements":[
		{"type":"way","id":10,"nodes":[1,2],"geometry":[{"lat":1,"lon":2},{"lat":3,"lon":4}],"tags":{"highway":"cycleway"}}
	]}`)

	fc := ToFeatureCollectionFromRaw(raw)

	util.AssertEqual(t, 1, len(fc.Features))
	util.AssertEqual(t, orb.LineString{{2, 1}, {4, 3}}, fc.Features[0].Geometry)
}

func TestToFeatureCollectionFromRaw_dropsUnresolvableWay(t *testing.T) {
	// Arrange
	raw := []byte(`{"elements":[
		{"type":"node","id":1,"lat":1,"lon":1,"tags":{"amenity":"bench"}},
		{"type":"way","id":10,"nodes":[1,999],"tags":{"highway":"footway"}},
		{"type":"way","id":11,"nodes":[1,2],"geometry":[{"lat":1,"lon":1},null],"tags":{"highway":"footway"}},
		{"type":"node","id":3,"lat":2,"lon":2,"tags":{"amenity":"bench"}}
	]}`)

	// Act
	fc := ToFeatureCollectionFromRaw(raw)

	// Assert
	util.AssertEqual(t, 2, len(fc.Features))
	util.AssertEqual(t, "node/1", fc.Features[0].ID)
	util.AssertEqual(t, "node/3", fc.Features[1].ID)
}

func TestToFeatureCollectionFromRaw_multipolygonRelation(t *testing.T) {
	// Arrange
	// The outer ring is split into two ways, the inner ring is one closed way.
	raw := []byte(`{"elements":[
		{"type":"relation","id":100,"tags":{"type":"multipolygon","leisure":"park"},"members":[
			{"type":"way","ref":1,"role":"outer"},
			{"type":"way","ref":2,"role":"outer"},
			{"type":"way","ref":3,"role":"inner"}
		]},
		{"type":"way","id":1,"nodes":[1,2,3],"geometry":[{"lat":0,"lon":0.001},{"lat":0,"lon":10},{"lat":10,"lon":10}]},
		{"type":"way","id":2,"nodes":[1,4,3],"geometry":[{"lat":0,"lon":0.001},{"lat":10,"lon":0.001},{"lat":10,"lon":10}]},
		{"type":"way","id":3,"nodes":[5,6,7,5],"geometry":[{"lat":2,"lon":2},{"lat":2,"lon":3},{"lat":3,"lon":3},{"lat":2,"lon":2}]}
	]}`)

	// Act
	fc := ToFeatureCollectionFromRaw(raw)

	// Assert
	util.AssertEqual(t, 1, len(fc.Features))
	multiPolygon, ok := fc.Features[0].Geometry.(orb.MultiPolygon)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, 1, len(multiPolygon))
	util.AssertEqual(t, 2, len(multiPolygon[0]))
	util.AssertEqual(t, 5, len(multiPolygon[0][0]))
	util.AssertEqual(t, "park", fc.Features[0].Properties["leisure"])
}

func TestToFeatureCollectionFromRaw_unclosedMultipolygonIsDropped(t *testing.T) {
	raw := []byte(`{"elements":[
		{"type":"relation","id":100,"tags":{"type":"multipolygon"},"members":[
			{"type":"way","ref":1,"role":"outer","geometry":[{"lat":1,"lon":1},{"lat":1,"lon":2},{"lat":2,"lon":2}]}
		]}
	]}`)

	fc := ToFeatureCollectionFromRaw(raw)

	util.AssertEqual(t, 0, len(fc.Features))
}

func TestToFeatureCollectionFromRaw_routeRelation(t *testing.T) {
	raw := []byte(`{"elements":[
		{"type":"relation","id":200,"tags":{"type":"route","route":"bicycle"},"members":[
			{"type":"way","ref":1,"role":"","geometry":[{"lat":1,"lon":1},{"lat":1,"lon":2}]},
			{"type":"node","ref":5,"role":"stop","lat":1,"lon":1},
			{"type":"way","ref":2,"role":"","geometry":[{"lat":1,"lon":2},{"lat":2,"lon":2}]}
		]}
	]}`)

	fc := ToFeatureCollectionFromRaw(raw)

	util.AssertEqual(t, 1, len(fc.Features))
	util.AssertEqual(t, orb.MultiLineString{{{1, 1}, {2, 1}}, {{2, 1}, {2, 2}}}, fc.Features[0].Geometry)
}

func TestToFeatureCollectionFromRaw_nodeOnlyRelation(t *testing.T) {
	raw := []byte(`{"elements":[
		{"type":"relation","id":300,"tags":{"type":"site"},"members":[
			{"type":"node","ref":5,"role":"","lat":1,"lon":2},
			{"type":"node","ref":6,"role":""}
		]},
		{"type":"node","id":6,"lat":3,"lon":4}
	]}`)

	fc := ToFeatureCollectionFromRaw(raw)

	util.AssertEqual(t, 1, len(fc.Features))
	util.AssertEqual(t, orb.MultiPoint{{2, 1}, {4, 3}}, fc.Features[0].Geometry)
}

func TestToFeatureCollectionFromRaw_emptyAndMalformed(t *testing.T) {
	for _, raw := range []string{`{"elements":[]}`, `{}`, `not json`, ``} {
		fc := ToFeatureCollectionFromRaw([]byte(raw))

		util.AssertNotNil(t, fc)
		util.AssertEqual(t, "FeatureCollection", fc.Type)
		util.AssertNotNil(t, fc.Features)
		util.AssertEqual(t, 0, len(fc.Features))
	}
}

func TestToFeatureCollectionFromRaw_isIdempotent(t *testing.T) {
	// Arrange
	raw := []byte(`{"elements":[
		{"type":"node","id":1,"lat":1,"lon":1,"tags":{"a":"1","b":"2","c":"3"}},
		{"type":"way","id":2,"geometry":[{"lat":1,"lon":1},{"lat":2,"lon":2}],"nodes":[1,3],"tags":{"highway":"path"}}
	]}`)

	// Act
	first, err := json.Marshal(ToFeatureCollectionFromRaw(raw))
	util.AssertNil(t, err)
	second, err := json.Marshal(ToFeatureCollectionFromRaw(raw))
	util.AssertNil(t, err)

	// Assert
	util.AssertEqual(t, string(first), string(second))
}
