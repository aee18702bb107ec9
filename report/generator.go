package report

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"github.com/hauke96/sigolo/v2"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"osm4cities/storage"
	"sort"
	"strings"
	"time"
)

type Repository interface {
	FindUserDueForReport(ctx context.Context, now time.Time) (*storage.User, error)
	CountDatasetsByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	FindPublicDatasetsByUser(ctx context.Context, userID uuid.UUID) ([]storage.Dataset, error)
}

// Generator composes report mails from the persisted dataset snapshots. It neither sends mails nor changes any data.
type Generator struct {
	repository Repository
	clock      clockwork.Clock
	baseURL    string
}

func NewGenerator(repository Repository, clock clockwork.Clock, baseURL string) *Generator {
	return &Generator{
		repository: repository,
		clock:      clock,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// GenerateNext creates the report of the next due user. The result is nil when no user is due.
func (g *Generator) GenerateNext(ctx context.Context) (*Report, error) {
	now := g.clock.Now().UTC()

	user, err := g.repository.FindUserDueForReport(ctx, now)
	if err != nil {
		return nil, err
	}
	if user == nil {
		sigolo.Debugf("No user due for a report at %s", now.Format(time.RFC3339))
		return nil, nil
	}
	if !IsDue(user, now) {
		return nil, errors.Errorf("User %s selected for report but not due (frequency %s)", user.ID, user.ReportsFrequency)
	}

	content, err := g.Generate(ctx, user)
	if err != nil {
		return nil, err
	}

	return &Report{User: *user, Content: content}, nil
}

func (g *Generator) Generate(ctx context.Context, user *storage.User) (*EmailContent, error) {
	generateStartTime := time.Now()
	now := g.clock.Now().UTC()

	total, err := g.repository.CountDatasetsByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	datasets, err := g.repository.FindPublicDatasetsByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	content := &EmailContent{
		Subject:       "Your OSM for Cities report",
		TotalDatasets: total,
		Recent:        []DatasetEntry{},
		Active:        []DatasetEntry{},
		Inactive:      []DatasetEntry{},
	}

	for _, dataset := range datasets {
		entry, err := g.toEntry(&dataset, now)
		if err != nil {
			return nil, err
		}

		switch entry.Classification {
		case ClassRecent:
			content.Recent = append(content.Recent, entry)
		case ClassActive:
			content.Active = append(content.Active, entry)
		default:
			content.Inactive = append(content.Inactive, entry)
		}

		if entry.LastChanged != nil && (content.MostRecentlyChanged == nil || entry.LastChanged.After(*content.MostRecentlyChanged.LastChanged)) {
			mostRecent := entry
			content.MostRecentlyChanged = &mostRecent
		}
	}

	sortByLastChange(content.Recent)
	sortByLastChange(content.Active)
	sortByLastChange(content.Inactive)

	content.HTML, content.Text, err = render(user, content, now)
	if err != nil {
		return nil, err
	}

	sigolo.Debugf("Finished report of user %s in %s: %d recent, %d active, %d inactive datasets", user.ID, time.Since(generateStartTime), len(content.Recent), len(content.Active), len(content.Inactive))

	return content, nil
}

func (g *Generator) toEntry(dataset *storage.Dataset, now time.Time) (DatasetEntry, error) {
	datasetStats, err := dataset.DatasetStats()
	if err != nil {
		return DatasetEntry{}, err
	}

	entry := DatasetEntry{
		ID:        dataset.ID,
		Name:      dataset.CityName,
		CityName:  dataset.CityName,
		DataCount: dataset.DataCount,
	}
	if dataset.Template != nil {
		entry.Name = fmt.Sprintf("%s in %s", dataset.Template.Name, dataset.CityName)
	}
	if g.baseURL != "" {
		entry.URL = fmt.Sprintf("%s/datasets/%s", g.baseURL, dataset.ID)
	}
	if datasetStats != nil {
		entry.LastChanged = datasetStats.MostRecentElement
		entry.RecentActivity = datasetStats.RecentActivity
	}
	entry.Classification = classify(entry.LastChanged, entry.RecentActivity, now)

	return entry, nil
}

// sortByLastChange orders the entries by their last change, most recent first. Entries without change come last.
func sortByLastChange(entries []DatasetEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].LastChanged, entries[j].LastChanged
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})
}
