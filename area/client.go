package area

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/codeGROOVE-dev/retry"
	"github.com/hauke96/sigolo/v2"
	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"io"
	"net/http"
	"net/url"
	"osm4cities/storage"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultURL      = "https://nominatim.openstreetmap.org"
	DefaultCacheTTL = 24 * time.Hour
	userAgent       = "osm4cities"
)

type Lookup interface {
	Lookup(ctx context.Context, relationID int64) (*storage.Area, error)
}

type nominatimPlace struct {
	OsmType     string            `json:"osm_type"`
	OsmID       int64             `json:"osm_id"`
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	BoundingBox []string          `json:"boundingbox"`
	GeoJSON     json.RawMessage   `json:"geojson"`
}

// Client resolves OSM relation IDs to areas using the lookup endpoint of a Nominatim compatible service. Results are
// cached, failed requests are retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *ttlcache.Cache[int64, *storage.Area]
	retryDelay time.Duration
}

func NewClient(baseURL string, cacheTTL time.Duration) *Client {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache: ttlcache.New(
			ttlcache.WithTTL[int64, *storage.Area](cacheTTL),
		),
		retryDelay: time.Second,
	}
}

// Lookup returns the area of the given relation. When the service doesn't know the relation, the error wraps
// storage.ErrNotFound.
func (c *Client) Lookup(ctx context.Context, relationID int64) (*storage.Area, error) {
	if item := c.cache.Get(relationID); item != nil {
		sigolo.Tracef("Area %d found in cache", relationID)
		return item.Value(), nil
	}

	var place *nominatimPlace
	err := retry.Do(
		func() error {
			var err error
			place, err = c.request(ctx, relationID)
			return err
		},
		retry.Attempts(3),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(c.retryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			sigolo.Warnf("Lookup of area %d failed (attempt %d): %s", relationID, n+1, err.Error())
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to lookup area %d", relationID)
	}
	if place == nil {
		return nil, errors.Wrapf(storage.ErrNotFound, "Area %d", relationID)
	}

	area, err := toArea(relationID, place)
	if err != nil {
		return nil, err
	}

	c.cache.Set(relationID, area, ttlcache.DefaultTTL)
	return area, nil
}

func (c *Client) request(ctx context.Context, relationID int64) (*nominatimPlace, error) {
	query := url.Values{}
	query.Set("osm_ids", fmt.Sprintf("R%d", relationID))
	query.Set("format", "json")
	query.Set("addressdetails", "1")
	query.Set("polygon_geojson", "1")

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/lookup?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create lookup request")
	}
	request.Header.Set("User-Agent", userAgent)
	request.Header.Set("Accept", "application/json")

	requestStartTime := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, errors.Wrap(err, "Lookup request failed")
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read lookup response")
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, errors.Errorf("Lookup returned status %d", response.StatusCode)
	}

	var places []nominatimPlace
	err = json.Unmarshal(body, &places)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to decode lookup response")
	}

	sigolo.Debugf("Finished lookup of area %d in %s with %d results", relationID, time.Since(requestStartTime), len(places))

	for _, place := range places {
		if place.OsmType == "relation" && place.OsmID == relationID {
			return &place, nil
		}
	}
	return nil, nil
}

func toArea(relationID int64, place *nominatimPlace) (*storage.Area, error) {
	name := place.Name
	if name == "" {
		name = strings.TrimSpace(strings.Split(place.DisplayName, ",")[0])
	}

	var bounds []string
	for _, value := range place.BoundingBox {
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return nil, errors.Wrapf(err, "Invalid bounding box value '%s' of area %d", value, relationID)
		}
		bounds = append(bounds, value)
	}

	area := &storage.Area{
		ID:          relationID,
		Name:        name,
		CountryCode: strings.ToUpper(place.Address["country_code"]),
		State:       place.Address["state"],
		Bounds:      strings.Join(bounds, ","),
	}
	if len(place.GeoJSON) > 0 {
		area.GeoJSON = datatypes.JSON(place.GeoJSON)
	}
	return area, nil
}
