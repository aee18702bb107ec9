package feature

import (
	"fmt"
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"
	"math"
	ownOsm "osm4cities/osm"
)

// Tags which alone don't make a node a feature of its own. Nodes only having such tags and being part of a way are
// considered to be geometry-only nodes.
var uninterestingTags = map[string]bool{
	"source":            true,
	"source_ref":        true,
	"source:ref":        true,
	"history":           true,
	"attribution":       true,
	"created_by":        true,
	"tiger:county":      true,
	"tiger:tlid":        true,
	"tiger:upload_uuid": true,
}

// Converter is an OSM data handler turning the elements of a query result into GeoJSON features. Features are
// created in Done(), because ways and relations might reference nodes appearing later in the result.
type Converter struct {
	objects       []osm.Object
	nodeLocations map[osm.NodeID]orb.Point
	usedNodes     map[osm.NodeID]bool
	memberWays    map[osm.WayID]bool
	ways          map[osm.WayID]*osm.Way

	featureCollection *geojson.FeatureCollection
	droppedObjects    int
}

func NewConverter() *Converter {
	c := &Converter{}
	c.reset()
	return c
}

func (c *Converter) reset() {
	c.objects = []osm.Object{}
	c.nodeLocations = map[osm.NodeID]orb.Point{}
	c.usedNodes = map[osm.NodeID]bool{}
	c.memberWays = map[osm.WayID]bool{}
	c.ways = map[osm.WayID]*osm.Way{}
	c.featureCollection = geojson.NewFeatureCollection()
	c.droppedObjects = 0
}

func (c *Converter) Name() string {
	return "GeoJsonConverter"
}

func (c *Converter) Init() error {
	c.reset()
	return nil
}

func (c *Converter) HandleNode(node *osm.Node) error {
	c.objects = append(c.objects, node)
	if hasLocation(node.Lon, node.Lat) {
		c.nodeLocations[node.ID] = orb.Point{node.Lon, node.Lat}
	}
	return nil
}

func (c *Converter) HandleWay(way *osm.Way) error {
	c.objects = append(c.objects, way)
	c.ways[way.ID] = way
	for _, wayNode := range way.Nodes {
		c.usedNodes[wayNode.ID] = true
	}
	return nil
}

func (c *Converter) HandleRelation(relation *osm.Relation) error {
	c.objects = append(c.objects, relation)
	for _, member := range relation.Members {
		switch member.Type {
		case osm.TypeNode:
			c.usedNodes[osm.NodeID(member.Ref)] = true
		case osm.TypeWay:
			c.memberWays[osm.WayID(member.Ref)] = true
		}
	}
	return nil
}

func (c *Converter) Done() error {
	for _, obj := range c.objects {
		var f *geojson.Feature

		switch osmObj := obj.(type) {
		case *osm.Node:
			f = c.nodeToFeature(osmObj)
		case *osm.Way:
			f = c.wayToFeature(osmObj)
		case *osm.Relation:
			f = c.relationToFeature(osmObj)
		}

		if f == nil {
			c.droppedObjects++
			continue
		}

		c.featureCollection.Append(f)
	}

	sigolo.Debugf("Converted %d OSM objects into %d features (%d without feature or geometry)", len(c.objects), len(c.featureCollection.Features), c.droppedObjects)
	return nil
}

// FeatureCollection returns the features created by the last Done() call.
func (c *Converter) FeatureCollection() *geojson.FeatureCollection {
	return c.featureCollection
}

func (c *Converter) nodeToFeature(node *osm.Node) *geojson.Feature {
	location, ok := c.nodeLocations[node.ID]
	if !ok {
		return nil
	}

	if c.usedNodes[node.ID] && !hasInterestingTags(node.Tags) {
		return nil
	}

	return newFeature(location, ownOsm.OsmObjNode, int64(node.ID), node.Tags)
}

func (c *Converter) wayToFeature(way *osm.Way) *geojson.Feature {
	if c.memberWays[way.ID] && !hasInterestingTags(way.Tags) {
		return nil
	}

	lineString, ok := c.resolveWayNodes(way.Nodes)
	if !ok || len(lineString) < 2 {
		return nil
	}

	if way.Polygon() && isClosed(lineString) && len(lineString) >= 4 {
		return newFeature(orb.Polygon{orb.Ring(lineString)}, ownOsm.OsmObjWay, int64(way.ID), way.Tags)
	}

	return newFeature(lineString, ownOsm.OsmObjWay, int64(way.ID), way.Tags)
}

func (c *Converter) relationToFeature(relation *osm.Relation) *geojson.Feature {
	var geometry orb.Geometry

	relationType := relation.Tags.Find("type")
	if relationType == "multipolygon" || relationType == "boundary" {
		geometry = c.relationToMultiPolygon(relation)
	} else {
		geometry = c.relationToMultiGeometry(relation)
	}

	if geometry == nil {
		return nil
	}

	return newFeature(geometry, ownOsm.OsmObjRelation, int64(relation.ID), relation.Tags)
}

// relationToMultiPolygon assembles the outer and inner member ways to rings. Inner rings are added to the first outer
// ring containing them, inner rings outside of all outer rings are ignored.
func (c *Converter) relationToMultiPolygon(relation *osm.Relation) orb.Geometry {
	var outerLines []orb.LineString
	var innerLines []orb.LineString

	for _, member := range relation.Members {
		if member.Type != osm.TypeWay {
			continue
		}

		lineString, ok := c.resolveMember(member)
		if !ok || len(lineString) < 2 {
			continue
		}

		if member.Role == "inner" {
			innerLines = append(innerLines, lineString)
		} else {
			outerLines = append(outerLines, lineString)
		}
	}

	outerRings := assembleRings(outerLines)
	if len(outerRings) == 0 {
		return nil
	}

	multiPolygon := make(orb.MultiPolygon, 0, len(outerRings))
	for _, outerRing := range outerRings {
		multiPolygon = append(multiPolygon, orb.Polygon{outerRing})
	}

	for _, innerRing := range assembleRings(innerLines) {
		for i, polygon := range multiPolygon {
			if ringContainsRing(polygon[0], innerRing) {
				multiPolygon[i] = append(polygon, innerRing)
				break
			}
		}
	}

	return multiPolygon
}

// relationToMultiGeometry creates a MultiLineString of all way members. Relations without resolvable way members
// become a MultiPoint of their node members.
func (c *Converter) relationToMultiGeometry(relation *osm.Relation) orb.Geometry {
	var lines orb.MultiLineString
	var points orb.MultiPoint

	for _, member := range relation.Members {
		switch member.Type {
		case osm.TypeWay:
			lineString, ok := c.resolveMember(member)
			if ok && len(lineString) >= 2 {
				lines = append(lines, lineString)
			}
		case osm.TypeNode:
			if hasLocation(member.Lon, member.Lat) {
				points = append(points, orb.Point{member.Lon, member.Lat})
			} else if location, ok := c.nodeLocations[osm.NodeID(member.Ref)]; ok {
				points = append(points, location)
			}
		}
	}

	if len(lines) > 0 {
		return lines
	}
	if len(points) > 0 {
		return points
	}
	return nil
}

func (c *Converter) resolveMember(member osm.Member) (orb.LineString, bool) {
	if len(member.Nodes) > 0 {
		return c.resolveWayNodes(member.Nodes)
	}

	way, ok := c.ways[osm.WayID(member.Ref)]
	if !ok {
		return nil, false
	}
	return c.resolveWayNodes(way.Nodes)
}

// resolveWayNodes uses the inline coordinates of the way nodes or, when absent, the location of the node with the same
// ID from the query result. A single unresolvable node makes the whole line unresolvable.
func (c *Converter) resolveWayNodes(wayNodes osm.WayNodes) (orb.LineString, bool) {
	lineString := make(orb.LineString, 0, len(wayNodes))
	for _, wayNode := range wayNodes {
		if hasLocation(wayNode.Lon, wayNode.Lat) {
			lineString = append(lineString, orb.Point{wayNode.Lon, wayNode.Lat})
			continue
		}

		location, ok := c.nodeLocations[wayNode.ID]
		if !ok {
			return nil, false
		}
		lineString = append(lineString, location)
	}
	return lineString, true
}

func newFeature(geometry orb.Geometry, objectType ownOsm.OsmObjectType, id int64, tags osm.Tags) *geojson.Feature {
	f := geojson.NewFeature(geometry)
	f.ID = fmt.Sprintf("%s/%d", objectType.String(), id)
	f.Properties["@osm_id"] = id
	f.Properties["@osm_type"] = objectType.String()
	for _, tag := range tags {
		f.Properties[tag.Key] = tag.Value
	}
	return f
}

func hasInterestingTags(tags osm.Tags) bool {
	for _, tag := range tags {
		if !uninterestingTags[tag.Key] {
			return true
		}
	}
	return false
}

func isValidLocation(lon float64, lat float64) bool {
	return !math.IsNaN(lon) && !math.IsNaN(lat) && !math.IsInf(lon, 0) && !math.IsInf(lat, 0)
}

// hasLocation is false for missing coordinates, which are ownOsm.MissingCoordinate (NaN). 0/0 is a real location.
func hasLocation(lon float64, lat float64) bool {
	return isValidLocation(lon, lat)
}

func isClosed(lineString orb.LineString) bool {
	return len(lineString) > 0 && lineString[0] == lineString[len(lineString)-1]
}
