package report

import (
	"github.com/google/uuid"
	"osm4cities/stats"
	"osm4cities/storage"
	"time"
)

// RecentChangeWindow is the maximum age of the last change of a dataset to be listed as recently changed.
const RecentChangeWindow = 24 * time.Hour

type Classification string

const (
	ClassRecent   Classification = "recent"
	ClassActive   Classification = "active"
	ClassInactive Classification = "inactive"
)

// IsDue returns true when the user never received a report or the interval of the users report frequency elapsed.
// Users with frequency NEVER are never due.
func IsDue(user *storage.User, now time.Time) bool {
	interval, ok := user.ReportsFrequency.Interval()
	if !ok {
		return false
	}
	if user.LastReportSent == nil {
		return true
	}
	return now.Sub(*user.LastReportSent) > interval
}

type DatasetEntry struct {
	ID             uuid.UUID
	Name           string
	CityName       string
	DataCount      int
	LastChanged    *time.Time
	RecentActivity *stats.RecentActivity
	URL            string
	Classification Classification
}

type EmailContent struct {
	Subject string
	HTML    string
	Text    string

	TotalDatasets       int64
	Recent              []DatasetEntry
	Active              []DatasetEntry
	Inactive            []DatasetEntry
	MostRecentlyChanged *DatasetEntry
}

// Report is the generated content for one user who is due.
type Report struct {
	User    storage.User
	Content *EmailContent
}

func classify(lastChanged *time.Time, recentActivity *stats.RecentActivity, now time.Time) Classification {
	if lastChanged != nil && now.Sub(*lastChanged) < RecentChangeWindow {
		return ClassRecent
	}
	if !recentActivity.IsZero() {
		return ClassActive
	}
	return ClassInactive
}
