package osm

import (
	"encoding/json"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"math"
	"sort"
	"time"
)

// MissingCoordinate marks coordinates of nodes, way nodes and members which are not part of the response. The
// paulmach/osm types have no presence flag and 0/0 is a valid location.
var MissingCoordinate = math.NaN()

// LatLon is a coordinate as used in the "geometry" arrays of Overpass JSON output. Entries of such arrays might be
// null when the referenced node is not part of the query result.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Member struct {
	Type     string    `json:"type"`
	Ref      int64     `json:"ref"`
	Role     string    `json:"role"`
	Lat      *float64  `json:"lat,omitempty"`
	Lon      *float64  `json:"lon,omitempty"`
	Geometry []*LatLon `json:"geometry,omitempty"`
}

// Element is one entry of the "elements" array returned by an Overpass compatible API. Meta fields (timestamp,
// version, changeset, user, uid) are only present when the query requested them (e.g. "out meta").
type Element struct {
	Type      string            `json:"type"`
	ID        int64             `json:"id"`
	Lat       *float64          `json:"lat,omitempty"`
	Lon       *float64          `json:"lon,omitempty"`
	Nodes     []int64           `json:"nodes,omitempty"`
	Geometry  []*LatLon         `json:"geometry,omitempty"`
	Members   []Member          `json:"members,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
	Version   int               `json:"version,omitempty"`
	Changeset int64             `json:"changeset,omitempty"`
	User      string            `json:"user,omitempty"`
	UID       int64             `json:"uid,omitempty"`
}

type response struct {
	Elements []Element `json:"elements"`
}

// DecodeResponse parses the body of an Overpass JSON response. A body without "elements" results in an empty slice.
func DecodeResponse(raw []byte) ([]Element, error) {
	var r response
	err := json.Unmarshal(raw, &r)
	if err != nil {
		return []Element{}, errors.Wrap(err, "Unable to parse Overpass JSON response")
	}
	if r.Elements == nil {
		return []Element{}, nil
	}
	return r.Elements, nil
}

func (e Element) ObjectType() OsmObjectType {
	return ParseObjectType(e.Type)
}

// EditTime returns the last edit timestamp of the element and false when the element carries no (valid) timestamp.
func (e Element) EditTime() (time.Time, bool) {
	if e.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// ToObject converts the element into the corresponding paulmach/osm object. Elements of unknown type result in an
// error.
func (e Element) ToObject() (osm.Object, error) {
	timestamp, _ := e.EditTime()
	tags := toTags(e.Tags)

	switch e.ObjectType() {
	case OsmObjNode:
		node := &osm.Node{
			ID:          osm.NodeID(e.ID),
			User:        e.User,
			UserID:      osm.UserID(e.UID),
			Visible:     true,
			Version:     e.Version,
			ChangesetID: osm.ChangesetID(e.Changeset),
			Timestamp:   timestamp,
			Tags:        tags,
			Lat:         MissingCoordinate,
			Lon:         MissingCoordinate,
		}
		if e.Lat != nil && e.Lon != nil {
			node.Lat = *e.Lat
			node.Lon = *e.Lon
		}
		return node, nil
	case OsmObjWay:
		return &osm.Way{
			ID:          osm.WayID(e.ID),
			User:        e.User,
			UserID:      osm.UserID(e.UID),
			Visible:     true,
			Version:     e.Version,
			ChangesetID: osm.ChangesetID(e.Changeset),
			Timestamp:   timestamp,
			Nodes:       toWayNodes(e.Nodes, e.Geometry),
			Tags:        tags,
		}, nil
	case OsmObjRelation:
		members := make(osm.Members, 0, len(e.Members))
		for _, m := range e.Members {
			member := osm.Member{
				Type:  osm.Type(m.Type),
				Ref:   m.Ref,
				Role:  m.Role,
				Nodes: toWayNodes(nil, m.Geometry),
				Lat:   MissingCoordinate,
				Lon:   MissingCoordinate,
			}
			if m.Lat != nil && m.Lon != nil {
				member.Lat = *m.Lat
				member.Lon = *m.Lon
			}
			members = append(members, member)
		}
		return &osm.Relation{
			ID:          osm.RelationID(e.ID),
			User:        e.User,
			UserID:      osm.UserID(e.UID),
			Visible:     true,
			Version:     e.Version,
			ChangesetID: osm.ChangesetID(e.Changeset),
			Timestamp:   timestamp,
			Tags:        tags,
			Members:     members,
		}, nil
	}

	return nil, errors.Errorf("Unsupported OSM element type '%s' of element %d", e.Type, e.ID)
}

// toTags creates tags sorted by key, so that conversions of the same element always produce the same result.
func toTags(tagMap map[string]string) osm.Tags {
	tags := make(osm.Tags, 0, len(tagMap))
	for k, v := range tagMap {
		tags = append(tags, osm.Tag{Key: k, Value: v})
	}
	sort.Slice(tags, func(i, j int) bool {
		return tags[i].Key < tags[j].Key
	})
	return tags
}

// toWayNodes combines the node IDs and the optional inline geometry of a way. A way node without coordinates keeps
// MissingCoordinate and is resolved (or dropped) later by the geometry conversion.
func toWayNodes(nodeIds []int64, geometry []*LatLon) osm.WayNodes {
	count := max(len(nodeIds), len(geometry))
	if count == 0 {
		return nil
	}

	wayNodes := make(osm.WayNodes, count)
	for i := 0; i < count; i++ {
		if i < len(nodeIds) {
			wayNodes[i].ID = osm.NodeID(nodeIds[i])
		}
		wayNodes[i].Lat = MissingCoordinate
		wayNodes[i].Lon = MissingCoordinate
		if i < len(geometry) && geometry[i] != nil {
			wayNodes[i].Lat = geometry[i].Lat
			wayNodes[i].Lon = geometry[i].Lon
		}
	}
	return wayNodes
}
