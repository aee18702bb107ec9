package common

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"math"
	"osm4cities/util"
	"testing"
)

func TestBBox_expand(t *testing.T) {
	bbox := BBox{10, 10, 20, 20}

	util.AssertEqual(t, bbox, bbox.Expand(orb.Point{15, 15}))
	util.AssertEqual(t, BBox{5, 10, 20, 20}, bbox.Expand(orb.Point{5, 15}))
	util.AssertEqual(t, BBox{10, 10, 20, 25}, bbox.Expand(orb.Point{15, 25}))
	util.AssertEqual(t, BBox{10, 0, 30, 20}, bbox.Expand(orb.Point{30, 0}))
}

func TestBBox_contains(t *testing.T) {
	bbox := BBox{10, 10, 20, 20}

	util.AssertTrue(t, bbox.Contains(orb.Point{10, 10}))
	util.AssertTrue(t, bbox.Contains(orb.Point{20, 20}))
	util.AssertTrue(t, bbox.Contains(orb.Point{15, 12}))
	util.AssertFalse(t, bbox.Contains(orb.Point{9.99, 15}))
	util.AssertFalse(t, bbox.Contains(orb.Point{15, 20.01}))
}

func TestCalculateBBox_empty(t *testing.T) {
	util.AssertNil(t, CalculateBBox(nil))
	util.AssertNil(t, CalculateBBox(geojson.NewFeatureCollection()))
}

func TestCalculateBBox_allGeometryTypes(t *testing.T) {
	// Arrange
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{10, 50}))
	fc.Append(geojson.NewFeature(orb.LineString{{9, 51}, {10.5, 51.5}}))
	fc.Append(geojson.NewFeature(orb.MultiPolygon{{{{11, 49}, {12, 49}, {12, 50}, {11, 49}}}}))
	fc.Append(geojson.NewFeature(orb.Collection{orb.MultiPoint{{8.5, 50}}, orb.MultiLineString{{{10, 52}, {10, 52.5}}}}))

	// Act
	bbox := CalculateBBox(fc)

	// Assert
	util.AssertNotNil(t, bbox)
	util.AssertEqual(t, BBox{8.5, 49, 12, 52.5}, *bbox)
}

func TestCalculateBBox_containsEveryCoordinate(t *testing.T) {
	// Arrange
	fc := geojson.NewFeatureCollection()
	polygon := orb.Polygon{
		{{-3.2, 40.1}, {-3.1, 40.1}, {-3.1, 40.3}, {-3.2, 40.1}},
		{{-3.18, 40.12}, {-3.15, 40.12}, {-3.15, 40.2}, {-3.18, 40.12}},
	}
	fc.Append(geojson.NewFeature(polygon))
	fc.Append(geojson.NewFeature(orb.Point{-3.7, 40.4}))

	// Act
	bbox := CalculateBBox(fc)

	// Assert
	util.AssertNotNil(t, bbox)
	for _, ring := range polygon {
		for _, p := range ring {
			util.AssertTrue(t, bbox.Contains(p))
		}
	}
	util.AssertTrue(t, bbox.Contains(orb.Point{-3.7, 40.4}))
	util.AssertEqual(t, BBox{-3.7, 40.1, -3.1, 40.4}, *bbox)
}

func TestCalculateBBox_skipsInvalidCoordinates(t *testing.T) {
	// Arrange
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{math.NaN(), 10}))
	fc.Append(geojson.NewFeature(orb.LineString{{1, 2}, {math.Inf(1), 3}, {200, 3}, {2, 3}}))
	fc.Append(geojson.NewFeature(nil))
	fc.Features = append(fc.Features, nil)

	// Act
	bbox := CalculateBBox(fc)

	// Assert
	util.AssertNotNil(t, bbox)
	util.AssertEqual(t, BBox{1, 2, 2, 3}, *bbox)
}

func TestCalculateBBox_onlyInvalidGeometries(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{math.NaN(), math.NaN()}))
	fc.Append(geojson.NewFeature(orb.Polygon{}))
	fc.Append(geojson.NewFeature(nil))

	util.AssertNil(t, CalculateBBox(fc))
}

func TestBBox_toPolygon(t *testing.T) {
	polygon := BBox{1, 2, 3, 4}.ToPolygon()

	util.AssertEqual(t, 1, len(polygon))
	util.AssertEqual(t, orb.Point{1, 2}, polygon[0][0])
	util.AssertTrue(t, polygon[0].Closed())
}
