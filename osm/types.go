package osm

import (
	"fmt"
	"github.com/paulmach/osm"
)

// OsmObjectType is an enum for all the three existing object types in OpenStreetMap.
type OsmObjectType int

const (
	OsmObjUnknown OsmObjectType = iota
	OsmObjNode
	OsmObjWay
	OsmObjRelation
)

func (o OsmObjectType) String() string {
	switch o {
	case OsmObjNode:
		return "node"
	case OsmObjWay:
		return "way"
	case OsmObjRelation:
		return "relation"
	}
	return fmt.Sprintf("[!UNKNOWN OsmObjectType %d]", int(o))
}

// ParseObjectType maps the "type" field of an Overpass JSON element to its object type. Anything other than node, way
// or relation (e.g. "area" or "count" elements) is OsmObjUnknown.
func ParseObjectType(s string) OsmObjectType {
	switch osm.Type(s) {
	case osm.TypeNode:
		return OsmObjNode
	case osm.TypeWay:
		return OsmObjWay
	case osm.TypeRelation:
		return OsmObjRelation
	}
	return OsmObjUnknown
}
