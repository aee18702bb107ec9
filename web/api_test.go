package web

import (
	"context"
	"encoding/json"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
	"net/http"
	"net/http/httptest"
	"osm4cities/config"
	"osm4cities/mail"
	"osm4cities/overpass"
	"osm4cities/refresh"
	"osm4cities/report"
	"osm4cities/storage"
	"osm4cities/storage/storagetest"
	"osm4cities/util"
	"strings"
	"testing"
	"time"
)

var ctx = context.Background()

type fakeScheduler struct {
	limits []int
}

func (s *fakeScheduler) RunScheduledUpdates(ctx context.Context, limit int) (*refresh.Summary, error) {
	s.limits = append(s.limits, limit)
	return &refresh.Summary{TotalFound: 3, Successful: 2, Failed: 1, Errors: []string{"abc: timeout"}}, nil
}

type fakeReports struct {
	err error
}

func (r *fakeReports) SendNext(ctx context.Context) (*report.TaskResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &report.TaskResult{Sent: false}, nil
}

type fakeRefresher struct {
	err        error
	requesters []uuid.UUID
}

func (r *fakeRefresher) RefreshDataset(ctx context.Context, datasetID uuid.UUID, requester *uuid.UUID) (*refresh.Result, error) {
	r.requesters = append(r.requesters, *requester)
	if r.err != nil {
		return nil, r.err
	}
	return &refresh.Result{DataCount: 7, LastChecked: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)}, nil
}

type fakeLifecycle struct {
	err   error
	calls []string
}

func (l *fakeLifecycle) Create(ctx context.Context, userID uuid.UUID, templateID uuid.UUID, areaID int64) (*storage.Dataset, error) {
	l.calls = append(l.calls, "create")
	if l.err != nil {
		return nil, l.err
	}
	return &storage.Dataset{TemplateID: templateID, AreaID: areaID, UserID: userID, CityName: "Berlin", IsActive: true}, nil
}

func (l *fakeLifecycle) SetActive(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID, active bool) error {
	l.calls = append(l.calls, "active")
	return l.err
}

func (l *fakeLifecycle) Watch(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID) error {
	l.calls = append(l.calls, "watch")
	return l.err
}

func (l *fakeLifecycle) Unwatch(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID) error {
	l.calls = append(l.calls, "unwatch")
	return l.err
}

func (l *fakeLifecycle) Delete(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID) error {
	l.calls = append(l.calls, "delete")
	return l.err
}

type testServer struct {
	cfg       *config.Config
	scheduler *fakeScheduler
	reports   *fakeReports
	refresher *fakeRefresher
	lifecycle *fakeLifecycle
	repo      *storage.Repository
	server    *Server
}

func newTestServer(t *testing.T) *testServer {
	s := &testServer{
		cfg:       &config.Config{CronSecret: "s3cr3t", UpdateLimit: 2},
		scheduler: &fakeScheduler{},
		reports:   &fakeReports{},
		refresher: &fakeRefresher{},
		lifecycle: &fakeLifecycle{},
		repo:      storagetest.OpenRepository(t),
	}
	s.server = NewServer(s.cfg, s.scheduler, s.reports, s.refresher, s.repo, s.lifecycle, HeaderSessionProvider{})
	return s
}

func (s *testServer) do(method string, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	s.server.Router().ServeHTTP(recorder, request)
	return recorder
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var response ErrorResponse
	util.AssertNil(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	return response
}

func TestUpdateDatasets(t *testing.T) {
	// Arrange
	s := newTestServer(t)

	// Act
	recorder := s.do(http.MethodPost, "/api/tasks/update-datasets?limit=5", "", map[string]string{"Authorization": "Bearer s3cr3t"})

	// Assert
	util.AssertEqual(t, http.StatusOK, recorder.Code)
	util.AssertEqual(t, `{"totalFound":3,"successful":2,"failed":1,"errors":["abc: timeout"]}`, recorder.Body.String())
	util.AssertEqual(t, []int{5}, s.scheduler.limits)
}

func TestUpdateDatasets_defaultLimit(t *testing.T) {
	s := newTestServer(t)

	recorder := s.do(http.MethodPost, "/api/tasks/update-datasets", "", map[string]string{"Authorization": "Bearer s3cr3t"})

	util.AssertEqual(t, http.StatusOK, recorder.Code)
	util.AssertEqual(t, []int{2}, s.scheduler.limits)
}

func TestUpdateDatasets_invalidLimit(t *testing.T) {
	s := newTestServer(t)

	recorder := s.do(http.MethodPost, "/api/tasks/update-datasets?limit=0", "", map[string]string{"Authorization": "Bearer s3cr3t"})

	util.AssertEqual(t, http.StatusBadRequest, recorder.Code)
	util.AssertEqual(t, 0, len(s.scheduler.limits))
}

func TestTaskEndpoints_unauthorized(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/tasks/update-datasets", "/api/tasks/send-report"} {
		for _, header := range []string{"", "Bearer wrong", "s3cr3t", "Basic s3cr3t"} {
			recorder := s.do(http.MethodPost, path, "", map[string]string{"Authorization": header})

			util.AssertEqual(t, http.StatusUnauthorized, recorder.Code)
			util.AssertEqual(t, "Unauthorized.", decodeError(t, recorder).Error)
		}
	}
	util.AssertEqual(t, 0, len(s.scheduler.limits))
}

func TestTaskEndpoints_secretNotConfigured(t *testing.T) {
	// Arrange
	s := newTestServer(t)
	s.cfg.CronSecret = ""

	// Act
	recorder := s.do(http.MethodPost, "/api/tasks/update-datasets", "", map[string]string{"Authorization": "Bearer "})

	// Assert
	util.AssertEqual(t, http.StatusInternalServerError, recorder.Code)
	util.AssertEqual(t, "Invalid configuration 'cron-secret': not set", decodeError(t, recorder).Details)
	util.AssertEqual(t, 0, len(s.scheduler.limits))
}

func TestSendReport(t *testing.T) {
	s := newTestServer(t)

	recorder := s.do(http.MethodPost, "/api/tasks/send-report", "", map[string]string{"Authorization": "Bearer s3cr3t"})

	util.AssertEqual(t, http.StatusOK, recorder.Code)
	util.AssertEqual(t, `{"sent":false}`, recorder.Body.String())
}

func TestSendReport_deliveryError(t *testing.T) {
	s := newTestServer(t)
	s.reports.err = &mail.DeliveryError{To: "foo@bar.com", Err: errors.New("rejected")}

	recorder := s.do(http.MethodPost, "/api/tasks/send-report", "", map[string]string{"Authorization": "Bearer s3cr3t"})

	util.AssertEqual(t, http.StatusBadGateway, recorder.Code)
}

func TestRefreshDataset(t *testing.T) {
	// Arrange
	s := newTestServer(t)
	user := uuid.New()

	// Act
	recorder := s.do(http.MethodPost, "/api/datasets/"+uuid.NewString()+"/refresh", "", map[string]string{UserIdHeader: user.String()})

	// Assert
	util.AssertEqual(t, http.StatusOK, recorder.Code)
	util.AssertEqual(t, `{"dataCount":7,"lastChecked":"2024-06-15T12:00:00Z"}`, recorder.Body.String())
	util.AssertEqual(t, []uuid.UUID{user}, s.refresher.requesters)
}

func TestRefreshDataset_errorStatus(t *testing.T) {
	datasetID := uuid.New()
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{errors.Wrapf(storage.ErrNotFound, "Dataset %s", datasetID), http.StatusNotFound, "Dataset not found."},
		{&refresh.ForbiddenError{DatasetID: datasetID, UserID: uuid.New()}, http.StatusForbidden, "Dataset belongs to another user."},
		{&refresh.InactiveDatasetError{DatasetID: datasetID}, http.StatusConflict, "Dataset is inactive."},
		{storage.ErrVersionConflict, http.StatusConflict, "Dataset was changed at the same time, please try again."},
		{errors.Wrap(&overpass.UpstreamQueryError{StatusCode: 504, Err: errors.New("timeout")}, "Query failed"), http.StatusServiceUnavailable, "OSM data service is unavailable, please try again later."},
		{&refresh.ConversionError{DatasetID: datasetID, Err: errors.New("broken")}, http.StatusInternalServerError, "Refresh failed."},
	}

	for _, test := range tests {
		// Arrange
		s := newTestServer(t)
		s.refresher.err = test.err

		// Act
		recorder := s.do(http.MethodPost, "/api/datasets/"+datasetID.String()+"/refresh", "", map[string]string{UserIdHeader: uuid.NewString()})

		// Assert
		util.AssertEqual(t, test.status, recorder.Code)
		util.AssertEqual(t, test.message, decodeError(t, recorder).Error)
	}
}

func TestRefreshDataset_withoutUser(t *testing.T) {
	s := newTestServer(t)

	recorder := s.do(http.MethodPost, "/api/datasets/"+uuid.NewString()+"/refresh", "", nil)

	util.AssertEqual(t, http.StatusUnauthorized, recorder.Code)
	util.AssertEqual(t, 0, len(s.refresher.requesters))
}

func TestRefreshDataset_invalidIds(t *testing.T) {
	s := newTestServer(t)

	recorder := s.do(http.MethodPost, "/api/datasets/123/refresh", "", map[string]string{UserIdHeader: uuid.NewString()})
	util.AssertEqual(t, http.StatusBadRequest, recorder.Code)

	recorder = s.do(http.MethodPost, "/api/datasets/"+uuid.NewString()+"/refresh", "", map[string]string{UserIdHeader: "foo"})
	util.AssertEqual(t, http.StatusBadRequest, recorder.Code)
}

func createStoredDataset(t *testing.T, repo *storage.Repository, owner uuid.UUID, public bool) *storage.Dataset {
	t.Helper()
	template := &storage.Template{Name: "Schools", Query: "nwr[amenity=school](area.a);"}
	util.AssertNil(t, repo.CreateTemplate(ctx, template))
	util.AssertNil(t, repo.SaveArea(ctx, &storage.Area{ID: 62422, Name: "Berlin"}))

	dataset := &storage.Dataset{TemplateID: template.ID, AreaID: 62422, UserID: owner, CityName: "Berlin", IsActive: true, IsPublic: public}
	util.AssertNil(t, repo.CreateDataset(ctx, dataset))

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{13.4, 52.5}))
	util.AssertNil(t, repo.UpdateDatasetSnapshot(ctx, dataset.ID, 1, storage.Snapshot{FeatureCollection: fc, DataCount: 1, CheckedAt: time.Now()}))
	return dataset
}

func TestGeoJson(t *testing.T) {
	// Arrange
	s := newTestServer(t)
	dataset := createStoredDataset(t, s.repo, uuid.New(), true)

	// Act
	recorder := s.do(http.MethodGet, "/api/datasets/"+dataset.ID.String()+"/geojson", "", nil)

	// Assert
	util.AssertEqual(t, http.StatusOK, recorder.Code)
	util.AssertEqual(t, "application/geo+json", recorder.Header().Get("Content-Type"))
	fc, err := geojson.UnmarshalFeatureCollection(recorder.Body.Bytes())
	util.AssertNil(t, err)
	util.AssertEqual(t, 1, len(fc.Features))
}

func TestGeoJson_privateDataset(t *testing.T) {
	// Arrange
	s := newTestServer(t)
	owner := uuid.New()
	dataset := createStoredDataset(t, s.repo, owner, false)
	path := "/api/datasets/" + dataset.ID.String() + "/geojson"

	// Act & Assert
	util.AssertEqual(t, http.StatusForbidden, s.do(http.MethodGet, path, "", nil).Code)
	util.AssertEqual(t, http.StatusForbidden, s.do(http.MethodGet, path, "", map[string]string{UserIdHeader: uuid.NewString()}).Code)
	util.AssertEqual(t, http.StatusOK, s.do(http.MethodGet, path, "", map[string]string{UserIdHeader: owner.String()}).Code)
}

func TestGeoJson_notFound(t *testing.T) {
	s := newTestServer(t)

	recorder := s.do(http.MethodGet, "/api/datasets/"+uuid.NewString()+"/geojson", "", nil)

	util.AssertEqual(t, http.StatusNotFound, recorder.Code)
}

func TestCreateDataset(t *testing.T) {
	// Arrange
	s := newTestServer(t)
	templateID := uuid.New()

	// Act
	recorder := s.do(http.MethodPost, "/api/datasets", `{"templateId":"`+templateID.String()+`","areaId":62422}`, map[string]string{UserIdHeader: uuid.NewString()})

	// Assert
	util.AssertEqual(t, http.StatusCreated, recorder.Code)
	var dataset storage.Dataset
	util.AssertNil(t, json.Unmarshal(recorder.Body.Bytes(), &dataset))
	util.AssertEqual(t, templateID, dataset.TemplateID)
	util.AssertEqual(t, int64(62422), dataset.AreaID)
}

func TestCreateDataset_invalidBody(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []string{"", "{}", `{"templateId":"` + uuid.NewString() + `","areaId":-1}`, `{"areaId":1}`} {
		recorder := s.do(http.MethodPost, "/api/datasets", body, map[string]string{UserIdHeader: uuid.NewString()})
		util.AssertEqual(t, http.StatusBadRequest, recorder.Code)
	}
	util.AssertEqual(t, 0, len(s.lifecycle.calls))
}

func TestDatasetLifecycleEndpoints(t *testing.T) {
	// Arrange
	s := newTestServer(t)
	path := "/api/datasets/" + uuid.NewString()
	headers := map[string]string{UserIdHeader: uuid.NewString()}

	// Act & Assert
	util.AssertEqual(t, http.StatusNoContent, s.do(http.MethodPut, path+"/active", `{"active":false}`, headers).Code)
	util.AssertEqual(t, http.StatusBadRequest, s.do(http.MethodPut, path+"/active", `{}`, headers).Code)
	util.AssertEqual(t, http.StatusNoContent, s.do(http.MethodPost, path+"/watch", "", headers).Code)
	util.AssertEqual(t, http.StatusNoContent, s.do(http.MethodDelete, path+"/watch", "", headers).Code)
	util.AssertEqual(t, http.StatusNoContent, s.do(http.MethodDelete, path, "", headers).Code)
	util.AssertEqual(t, []string{"active", "watch", "unwatch", "delete"}, s.lifecycle.calls)
}

func TestDeleteDataset_tooManyWatchers(t *testing.T) {
	s := newTestServer(t)
	s.lifecycle.err = errors.Wrap(storage.ErrTooManyWatchers, "Dataset has 2 watchers")

	recorder := s.do(http.MethodDelete, "/api/datasets/"+uuid.NewString(), "", map[string]string{UserIdHeader: uuid.NewString()})

	util.AssertEqual(t, http.StatusConflict, recorder.Code)
	util.AssertEqual(t, "Dataset is watched by other users.", decodeError(t, recorder).Error)
}
