package osm

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"time"
)

// OsmDataHandler receives the elements of one query result. The handle functions are called in the order in which the
// elements appear in the result.
type OsmDataHandler interface {
	Name() string
	Init() error
	HandleNode(node *osm.Node) error
	HandleWay(way *osm.Way) error
	HandleRelation(relation *osm.Relation) error
	Done() error
}

type OsmReader struct {
	skippedElements int
}

func NewOsmReader() *OsmReader {
	return &OsmReader{}
}

// SkippedElements returns the number of elements of the last Read call that were neither nodes, ways nor relations.
func (r *OsmReader) SkippedElements() int {
	return r.skippedElements
}

func (r *OsmReader) Read(elements []Element, handlers ...OsmDataHandler) error {
	sigolo.Debugf("Start processing %d OSM elements", len(elements))
	readStartTime := time.Now()
	r.skippedElements = 0

	for _, handler := range handlers {
		err := handler.Init()
		if err != nil {
			return errors.Wrapf(err, "Initializing OSM data handler '%s' failed", handler.Name())
		}
	}

	for _, element := range elements {
		obj, err := element.ToObject()
		if err != nil {
			sigolo.Tracef("Skip element: %s", err.Error())
			r.skippedElements++
			continue
		}

		switch osmObj := obj.(type) {
		case *osm.Node:
			for _, handler := range handlers {
				err = handler.HandleNode(osmObj)
				if err != nil {
					return errors.Wrapf(err, "Handling node %d using handler '%s' failed", osmObj.ID, handler.Name())
				}
			}
		case *osm.Way:
			for _, handler := range handlers {
				err = handler.HandleWay(osmObj)
				if err != nil {
					return errors.Wrapf(err, "Handling way %d using handler '%s' failed", osmObj.ID, handler.Name())
				}
			}
		case *osm.Relation:
			for _, handler := range handlers {
				err = handler.HandleRelation(osmObj)
				if err != nil {
					return errors.Wrapf(err, "Handling relation %d using handler '%s' failed", osmObj.ID, handler.Name())
				}
			}
		}
	}

	for _, handler := range handlers {
		err := handler.Done()
		if err != nil {
			return errors.Wrapf(err, "Calling done function on handler '%s' failed", handler.Name())
		}
	}

	sigolo.Debugf("Done processing OSM elements in %s (%d skipped)", time.Since(readStartTime), r.skippedElements)

	return nil
}
