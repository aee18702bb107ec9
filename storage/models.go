package storage

import (
	"encoding/json"
	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"osm4cities/common"
	"osm4cities/stats"
	"strconv"
	"strings"
	"time"
)

// AreaPlaceholder is replaced by the OSM relation ID of the dataset area before a template query is executed.
const AreaPlaceholder = "{OSM_RELATION_ID}"

type ReportsFrequency string

const (
	ReportsDaily  ReportsFrequency = "DAILY"
	ReportsWeekly ReportsFrequency = "WEEKLY"
	ReportsNever  ReportsFrequency = "NEVER"
)

// Interval returns the minimum duration between two reports and false for NEVER or unknown frequencies.
func (f ReportsFrequency) Interval() (time.Duration, bool) {
	switch f {
	case ReportsDaily:
		return 24 * time.Hour, true
	case ReportsWeekly:
		return 7 * 24 * time.Hour, true
	}
	return 0, false
}

type User struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Email            string           `gorm:"column:email;not null;uniqueIndex" json:"email"`
	Name             string           `gorm:"column:name" json:"name"`
	ReportsFrequency ReportsFrequency `gorm:"column:reports_frequency;not null;default:WEEKLY" json:"reportsFrequency"`
	LastReportSent   *time.Time       `gorm:"column:last_report_sent" json:"lastReportSent"`
	CreatedAt        time.Time        `gorm:"column:created_at;not null" json:"createdAt"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

type Template struct {
	ID       uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	Name     string                      `gorm:"column:name;not null" json:"name"`
	Category string                      `gorm:"column:category" json:"category"`
	Tags     datatypes.JSONSlice[string] `gorm:"column:tags" json:"tags"`
	Query    string                      `gorm:"column:query;not null" json:"query"`
}

func (Template) TableName() string { return "templates" }

func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Area is an administrative boundary identified by its OSM relation ID. Bounds has the format
// "minLat,maxLat,minLon,maxLon" as returned by Nominatim.
type Area struct {
	ID          int64          `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name        string         `gorm:"column:name;not null" json:"name"`
	CountryCode string         `gorm:"column:country_code" json:"countryCode"`
	State       string         `gorm:"column:state" json:"state"`
	Bounds      string         `gorm:"column:bounds" json:"bounds"`
	GeoJSON     datatypes.JSON `gorm:"column:geojson" json:"geojson"`
}

func (Area) TableName() string { return "areas" }

type Dataset struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TemplateID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"templateId"`
	Template    *Template      `gorm:"foreignKey:TemplateID;references:ID" json:"template,omitempty"`
	AreaID      int64          `gorm:"not null;index" json:"areaId"`
	Area        *Area          `gorm:"foreignKey:AreaID;references:ID" json:"area,omitempty"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"userId"`
	CityName    string         `gorm:"column:city_name" json:"cityName"`
	IsActive    bool           `gorm:"column:is_active;not null" json:"isActive"`
	IsPublic    bool           `gorm:"column:is_public;not null" json:"isPublic"`
	DataCount   int            `gorm:"column:data_count;not null;default:0" json:"dataCount"`
	LastChecked *time.Time     `gorm:"column:last_checked" json:"lastChecked"`
	Stats       datatypes.JSON `gorm:"column:stats" json:"stats"`
	GeoJSON     datatypes.JSON `gorm:"column:geojson" json:"geojson"`
	BBox        datatypes.JSON `gorm:"column:bbox" json:"bbox"`
	Version     int            `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null" json:"updatedAt"`
}

func (Dataset) TableName() string { return "datasets" }

func (d *Dataset) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Version == 0 {
		d.Version = 1
	}
	return nil
}

// FeatureCollection decodes the stored GeoJSON and returns nil for datasets without snapshot.
func (d *Dataset) FeatureCollection() (*geojson.FeatureCollection, error) {
	if isNullJson(d.GeoJSON) {
		return nil, nil
	}
	fc, err := geojson.UnmarshalFeatureCollection(d.GeoJSON)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to decode GeoJSON of dataset %s", d.ID)
	}
	return fc, nil
}

func (d *Dataset) DatasetStats() (*stats.DatasetStats, error) {
	if isNullJson(d.Stats) {
		return nil, nil
	}
	result := &stats.DatasetStats{}
	err := json.Unmarshal(d.Stats, result)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to decode statistics of dataset %s", d.ID)
	}
	return result, nil
}

func (d *Dataset) BoundingBox() (*common.BBox, error) {
	if isNullJson(d.BBox) {
		return nil, nil
	}
	result := &common.BBox{}
	err := json.Unmarshal(d.BBox, result)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to decode bbox of dataset %s", d.ID)
	}
	return result, nil
}

// ResolveQuery replaces every area placeholder in the template query by the area ID of the dataset.
func (d *Dataset) ResolveQuery() (string, error) {
	if d.Template == nil {
		return "", errors.Errorf("Template %s of dataset %s not loaded", d.TemplateID, d.ID)
	}
	return ResolveQuery(d.Template.Query, d.AreaID), nil
}

func ResolveQuery(query string, areaID int64) string {
	return strings.ReplaceAll(query, AreaPlaceholder, strconv.FormatInt(areaID, 10))
}

type Watch struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"userId"`
	DatasetID uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"datasetId"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
}

func (Watch) TableName() string { return "watches" }

// Snapshot is the result of one successful refresh. It replaces all derived fields of a dataset at once.
type Snapshot struct {
	FeatureCollection *geojson.FeatureCollection
	BBox              *common.BBox
	Stats             stats.DatasetStats
	DataCount         int
	CheckedAt         time.Time
}

func isNullJson(value datatypes.JSON) bool {
	return len(value) == 0 || string(value) == "null"
}
