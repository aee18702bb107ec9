package common

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"math"
)

// BBox is an axis aligned box in the order [minLon, minLat, maxLon, maxLat].
type BBox [4]float64

func NewBBox(point orb.Point) BBox {
	return BBox{point.Lon(), point.Lat(), point.Lon(), point.Lat()}
}

func (b BBox) MinLon() float64 { return b[0] }

func (b BBox) MinLat() float64 { return b[1] }

func (b BBox) MaxLon() float64 { return b[2] }

func (b BBox) MaxLat() float64 { return b[3] }

func (b BBox) Expand(point orb.Point) BBox {
	if b.Contains(point) {
		return b
	}

	return BBox{
		math.Min(b.MinLon(), point.Lon()),
		math.Min(b.MinLat(), point.Lat()),
		math.Max(b.MaxLon(), point.Lon()),
		math.Max(b.MaxLat(), point.Lat()),
	}
}

func (b BBox) Contains(point orb.Point) bool {
	return point.Lon() >= b.MinLon() && point.Lon() <= b.MaxLon() && point.Lat() >= b.MinLat() && point.Lat() <= b.MaxLat()
}

func (b BBox) ToBound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLon(), b.MinLat()}, Max: orb.Point{b.MaxLon(), b.MaxLat()}}
}

func (b BBox) ToPolygon() orb.Polygon {
	return b.ToBound().ToPolygon()
}

// CalculateBBox returns the smallest box containing every valid coordinate of the collection. The result is nil for
// nil or empty collections and when no feature has a valid coordinate. Invalid coordinates are skipped.
func CalculateBBox(fc *geojson.FeatureCollection) *BBox {
	if fc == nil || len(fc.Features) == 0 {
		return nil
	}

	var bbox *BBox
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		bbox = expandByGeometry(bbox, f.Geometry)
	}

	return bbox
}

func expandByGeometry(bbox *BBox, geometry orb.Geometry) *BBox {
	switch g := geometry.(type) {
	case orb.Point:
		return expandByPoint(bbox, g)
	case orb.MultiPoint:
		for _, p := range g {
			bbox = expandByPoint(bbox, p)
		}
	case orb.LineString:
		for _, p := range g {
			bbox = expandByPoint(bbox, p)
		}
	case orb.MultiLineString:
		for _, ls := range g {
			bbox = expandByGeometry(bbox, ls)
		}
	case orb.Ring:
		for _, p := range g {
			bbox = expandByPoint(bbox, p)
		}
	case orb.Polygon:
		for _, r := range g {
			bbox = expandByGeometry(bbox, r)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			bbox = expandByGeometry(bbox, p)
		}
	case orb.Collection:
		for _, c := range g {
			bbox = expandByGeometry(bbox, c)
		}
	case orb.Bound:
		bbox = expandByPoint(bbox, g.Min)
		bbox = expandByPoint(bbox, g.Max)
	}

	return bbox
}

func expandByPoint(bbox *BBox, point orb.Point) *BBox {
	if !IsValidCoordinate(point) {
		return bbox
	}

	if bbox == nil {
		newBBox := NewBBox(point)
		return &newBBox
	}

	expanded := bbox.Expand(point)
	return &expanded
}

// IsValidCoordinate is false for non-finite values and for coordinates outside of the WGS84 value range.
func IsValidCoordinate(point orb.Point) bool {
	lon, lat := point.Lon(), point.Lat()
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}
