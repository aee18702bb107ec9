package stats

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	ownOsm "osm4cities/osm"
	"strconv"
	"time"
)

// RecentActivityMonths is the size of the trailing window of the recent activity statistics.
const RecentActivityMonths = 3

type RecentActivity struct {
	ElementsEdited int `json:"elementsEdited"`
	Changesets     int `json:"changesets"`
	Editors        int `json:"editors"`
}

// IsZero is true when nothing was edited within the recent activity window.
func (r *RecentActivity) IsZero() bool {
	return r == nil || (r.ElementsEdited == 0 && r.Changesets == 0 && r.Editors == 0)
}

// DatasetStats is the statistics snapshot of one refresh. Timestamps and averages are nil when no element carries the
// corresponding meta data.
type DatasetStats struct {
	EditorsCount          int             `json:"editorsCount"`
	ChangesetsCount       int             `json:"changesetsCount"`
	ElementVersionsCount  int             `json:"elementVersionsCount"`
	OldestElement         *time.Time      `json:"oldestElement"`
	MostRecentElement     *time.Time      `json:"mostRecentElement"`
	AverageElementAge     *float64        `json:"averageElementAge"`
	AverageElementVersion *float64        `json:"averageElementVersion"`
	RecentActivity        *RecentActivity `json:"recentActivity,omitempty"`
}

// Extract computes the statistics of the given elements relative to the given point in time.
func Extract(elements []ownOsm.Element, now time.Time) DatasetStats {
	extractor := NewExtractor(now)
	err := ownOsm.NewOsmReader().Read(elements, extractor)
	if err != nil {
		// The extractor itself never fails, so this only happens for broken handlers.
		sigolo.Errorf("Error extracting statistics: %+v", err)
		return DatasetStats{}
	}
	return extractor.Stats()
}

// Extractor is an OSM data handler collecting the edit meta data of every visited object.
type Extractor struct {
	now          time.Time
	recentCutoff time.Time

	elementCount int
	editors      map[string]bool
	changesets   map[osm.ChangesetID]bool
	versionSum   int
	versionCount int
	ageSumDays   float64
	editTimes    int
	oldest       time.Time
	mostRecent   time.Time

	recentElements   int
	recentEditors    map[string]bool
	recentChangesets map[osm.ChangesetID]bool

	stats DatasetStats
}

func NewExtractor(now time.Time) *Extractor {
	e := &Extractor{now: now.UTC()}
	e.recentCutoff = e.now.AddDate(0, -RecentActivityMonths, 0)
	e.reset()
	return e
}

func (e *Extractor) reset() {
	e.elementCount = 0
	e.editors = map[string]bool{}
	e.changesets = map[osm.ChangesetID]bool{}
	e.versionSum = 0
	e.versionCount = 0
	e.ageSumDays = 0
	e.editTimes = 0
	e.oldest = time.Time{}
	e.mostRecent = time.Time{}
	e.recentElements = 0
	e.recentEditors = map[string]bool{}
	e.recentChangesets = map[osm.ChangesetID]bool{}
	e.stats = DatasetStats{}
}

func (e *Extractor) Name() string {
	return "StatisticsExtractor"
}

func (e *Extractor) Init() error {
	e.reset()
	return nil
}

func (e *Extractor) HandleNode(node *osm.Node) error {
	e.add(node.UserID, node.User, node.ChangesetID, node.Version, node.Timestamp)
	return nil
}

func (e *Extractor) HandleWay(way *osm.Way) error {
	e.add(way.UserID, way.User, way.ChangesetID, way.Version, way.Timestamp)
	return nil
}

func (e *Extractor) HandleRelation(relation *osm.Relation) error {
	e.add(relation.UserID, relation.User, relation.ChangesetID, relation.Version, relation.Timestamp)
	return nil
}

func (e *Extractor) add(uid osm.UserID, user string, changeset osm.ChangesetID, version int, timestamp time.Time) {
	e.elementCount++

	editor := editorIdentifier(uid, user)
	if editor != "" {
		e.editors[editor] = true
	}
	if changeset != 0 {
		e.changesets[changeset] = true
	}
	if version > 0 {
		e.versionSum += version
		e.versionCount++
	}

	if timestamp.IsZero() {
		return
	}

	e.editTimes++
	e.ageSumDays += e.now.Sub(timestamp).Hours() / 24
	if e.oldest.IsZero() || timestamp.Before(e.oldest) {
		e.oldest = timestamp
	}
	if e.mostRecent.IsZero() || timestamp.After(e.mostRecent) {
		e.mostRecent = timestamp
	}

	if timestamp.After(e.recentCutoff) {
		e.recentElements++
		if editor != "" {
			e.recentEditors[editor] = true
		}
		if changeset != 0 {
			e.recentChangesets[changeset] = true
		}
	}
}

func (e *Extractor) Done() error {
	e.stats = DatasetStats{
		EditorsCount:         len(e.editors),
		ChangesetsCount:      len(e.changesets),
		ElementVersionsCount: e.versionSum,
	}

	if e.editTimes > 0 {
		oldest := e.oldest
		mostRecent := e.mostRecent
		averageAge := e.ageSumDays / float64(e.editTimes)
		e.stats.OldestElement = &oldest
		e.stats.MostRecentElement = &mostRecent
		e.stats.AverageElementAge = &averageAge
	}

	if e.versionCount > 0 {
		averageVersion := float64(e.versionSum) / float64(e.versionCount)
		e.stats.AverageElementVersion = &averageVersion
	}

	if e.elementCount > 0 {
		e.stats.RecentActivity = &RecentActivity{
			ElementsEdited: e.recentElements,
			Changesets:     len(e.recentChangesets),
			Editors:        len(e.recentEditors),
		}
	}

	sigolo.Debugf("Extracted statistics of %d elements: %d editors, %d changesets, %d edited recently", e.elementCount, e.stats.EditorsCount, e.stats.ChangesetsCount, e.recentElements)
	return nil
}

// Stats returns the statistics created by the last Done() call.
func (e *Extractor) Stats() DatasetStats {
	return e.stats
}

// editorIdentifier prefers the numeric user ID since user names can change.
func editorIdentifier(uid osm.UserID, user string) string {
	if uid != 0 {
		return "uid:" + strconv.FormatInt(int64(uid), 10)
	}
	if user != "" {
		return "user:" + user
	}
	return ""
}
