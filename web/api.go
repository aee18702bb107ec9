package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"net/http"
	"osm4cities/config"
	ownIo "osm4cities/io"
	"osm4cities/mail"
	"osm4cities/overpass"
	"osm4cities/refresh"
	"osm4cities/report"
	"osm4cities/storage"
	"strconv"
	"strings"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func NewErrorResponse(message string, err error) ErrorResponse {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	return response
}

type BatchRunner interface {
	RunScheduledUpdates(ctx context.Context, limit int) (*refresh.Summary, error)
}

type ReportSender interface {
	SendNext(ctx context.Context) (*report.TaskResult, error)
}

type DatasetFinder interface {
	FindDataset(ctx context.Context, id uuid.UUID) (*storage.Dataset, error)
}

type DatasetLifecycle interface {
	Create(ctx context.Context, userID uuid.UUID, templateID uuid.UUID, areaID int64) (*storage.Dataset, error)
	SetActive(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID, active bool) error
	Watch(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID) error
	Unwatch(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID) error
	Delete(ctx context.Context, userID uuid.UUID, datasetID uuid.UUID) error
}

type Server struct {
	config    *config.Config
	scheduler BatchRunner
	reports   ReportSender
	refresher refresh.DatasetRefresher
	datasets  DatasetFinder
	lifecycle DatasetLifecycle
	sessions  SessionProvider
}

func NewServer(cfg *config.Config, scheduler BatchRunner, reports ReportSender, refresher refresh.DatasetRefresher, datasets DatasetFinder, lifecycle DatasetLifecycle, sessions SessionProvider) *Server {
	return &Server{
		config:    cfg,
		scheduler: scheduler,
		reports:   reports,
		refresher: refresher,
		datasets:  datasets,
		lifecycle: lifecycle,
		sessions:  sessions,
	}
}

func (s *Server) Start(port string) error {
	sigolo.Infof("Start server on port %s", port)
	return http.ListenAndServe(":"+port, s.Router())
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/tasks/update-datasets", s.requireCronSecret(s.handleUpdateDatasets)).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/send-report", s.requireCronSecret(s.handleSendReport)).Methods(http.MethodPost)

	r.HandleFunc("/api/datasets", s.requireUser(s.handleCreateDataset)).Methods(http.MethodPost)
	r.HandleFunc("/api/datasets/{id}", s.requireUser(s.handleDeleteDataset)).Methods(http.MethodDelete)
	r.HandleFunc("/api/datasets/{id}/refresh", s.requireUser(s.handleRefreshDataset)).Methods(http.MethodPost)
	r.HandleFunc("/api/datasets/{id}/active", s.requireUser(s.handleSetActive)).Methods(http.MethodPut)
	r.HandleFunc("/api/datasets/{id}/watch", s.requireUser(s.handleWatch)).Methods(http.MethodPost)
	r.HandleFunc("/api/datasets/{id}/watch", s.requireUser(s.handleUnwatch)).Methods(http.MethodDelete)
	r.HandleFunc("/api/datasets/{id}/geojson", s.handleGeoJson).Methods(http.MethodGet)

	return r
}

// requireCronSecret only lets requests through which carry the configured secret as bearer token.
func (s *Server) requireCronSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		err := s.config.RequireCronSecret()
		if err != nil {
			sigolo.Errorf("Task endpoint %s called without configured secret: %+v", request.URL.Path, err)
			writeError(writer, http.StatusInternalServerError, "Server is not configured for tasks.", err)
			return
		}

		token, found := strings.CutPrefix(request.Header.Get("Authorization"), "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(token), []byte(s.config.CronSecret)) != 1 {
			sigolo.Debugf("Unauthorized request to %s", request.URL.Path)
			writeError(writer, http.StatusUnauthorized, "Unauthorized.", nil)
			return
		}

		next(writer, request)
	}
}

type userHandlerFunc func(writer http.ResponseWriter, request *http.Request, userID uuid.UUID)

func (s *Server) requireUser(next userHandlerFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		userID, err := s.sessions.UserID(request)
		if err != nil {
			writeError(writer, http.StatusBadRequest, "Invalid session.", err)
			return
		}
		if userID == nil {
			writeError(writer, http.StatusUnauthorized, "Login required.", nil)
			return
		}
		next(writer, request, *userID)
	}
}

func (s *Server) handleUpdateDatasets(writer http.ResponseWriter, request *http.Request) {
	limit := s.config.UpdateLimit
	if limitParam := request.URL.Query().Get("limit"); limitParam != "" {
		parsedLimit, err := strconv.Atoi(limitParam)
		if err != nil || parsedLimit < 1 {
			writeError(writer, http.StatusBadRequest, "Parameter 'limit' must be a positive number.", err)
			return
		}
		limit = parsedLimit
	}

	summary, err := s.scheduler.RunScheduledUpdates(request.Context(), limit)
	if err != nil {
		sigolo.Errorf("Scheduled update failed: %+v", err)
		writeError(writer, http.StatusInternalServerError, "Scheduled update failed.", err)
		return
	}

	writeJson(writer, http.StatusOK, summary)
}

func (s *Server) handleSendReport(writer http.ResponseWriter, request *http.Request) {
	result, err := s.reports.SendNext(request.Context())
	if err != nil {
		sigolo.Errorf("Sending report failed: %+v", err)
		writeError(writer, statusOf(err), "Sending report failed.", err)
		return
	}

	writeJson(writer, http.StatusOK, result)
}

func (s *Server) handleRefreshDataset(writer http.ResponseWriter, request *http.Request, userID uuid.UUID) {
	datasetID, ok := datasetIdFromPath(writer, request)
	if !ok {
		return
	}

	result, err := s.refresher.RefreshDataset(request.Context(), datasetID, &userID)
	if err != nil {
		sigolo.Errorf("Refresh of dataset %s requested by %s failed: %+v", datasetID, userID, err)
		writeError(writer, statusOf(err), messageOf(err, "Refresh failed."), err)
		return
	}

	writeJson(writer, http.StatusOK, result)
}

func (s *Server) handleGeoJson(writer http.ResponseWriter, request *http.Request) {
	datasetID, ok := datasetIdFromPath(writer, request)
	if !ok {
		return
	}

	dataset, err := s.datasets.FindDataset(request.Context(), datasetID)
	if err != nil {
		writeError(writer, statusOf(err), messageOf(err, "Unable to load dataset."), err)
		return
	}

	if !dataset.IsPublic {
		userID, err := s.sessions.UserID(request)
		if err != nil || userID == nil || *userID != dataset.UserID {
			writeError(writer, http.StatusForbidden, "Dataset is not public.", nil)
			return
		}
	}

	featureCollection, err := dataset.FeatureCollection()
	if err != nil {
		sigolo.Errorf("Stored GeoJSON of dataset %s is broken: %+v", datasetID, err)
		writeError(writer, http.StatusInternalServerError, "Unable to read dataset.", err)
		return
	}

	writer.Header().Set("Content-Type", "application/geo+json")
	err = ownIo.WriteFeatureCollection(featureCollection, writer)
	if err != nil {
		sigolo.Errorf("Error writing GeoJSON of dataset %s: %+v", datasetID, err)
	}
}

type createDatasetRequest struct {
	TemplateID uuid.UUID `json:"templateId"`
	AreaID     int64     `json:"areaId"`
}

func (s *Server) handleCreateDataset(writer http.ResponseWriter, request *http.Request, userID uuid.UUID) {
	var body createDatasetRequest
	err := json.NewDecoder(request.Body).Decode(&body)
	if err != nil || body.TemplateID == uuid.Nil || body.AreaID <= 0 {
		writeError(writer, http.StatusBadRequest, "Body must contain 'templateId' and a positive 'areaId'.", err)
		return
	}

	dataset, err := s.lifecycle.Create(request.Context(), userID, body.TemplateID, body.AreaID)
	if err != nil {
		sigolo.Errorf("Creating dataset for user %s failed: %+v", userID, err)
		writeError(writer, statusOf(err), messageOf(err, "Unable to create dataset."), err)
		return
	}

	writeJson(writer, http.StatusCreated, dataset)
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

func (s *Server) handleSetActive(writer http.ResponseWriter, request *http.Request, userID uuid.UUID) {
	datasetID, ok := datasetIdFromPath(writer, request)
	if !ok {
		return
	}

	var body setActiveRequest
	err := json.NewDecoder(request.Body).Decode(&body)
	if err != nil || body.Active == nil {
		writeError(writer, http.StatusBadRequest, "Body must contain 'active'.", err)
		return
	}

	err = s.lifecycle.SetActive(request.Context(), userID, datasetID, *body.Active)
	writeEmptyOrError(writer, err, "Unable to change dataset.")
}

func (s *Server) handleWatch(writer http.ResponseWriter, request *http.Request, userID uuid.UUID) {
	datasetID, ok := datasetIdFromPath(writer, request)
	if !ok {
		return
	}
	writeEmptyOrError(writer, s.lifecycle.Watch(request.Context(), userID, datasetID), "Unable to watch dataset.")
}

func (s *Server) handleUnwatch(writer http.ResponseWriter, request *http.Request, userID uuid.UUID) {
	datasetID, ok := datasetIdFromPath(writer, request)
	if !ok {
		return
	}
	writeEmptyOrError(writer, s.lifecycle.Unwatch(request.Context(), userID, datasetID), "Unable to unwatch dataset.")
}

func (s *Server) handleDeleteDataset(writer http.ResponseWriter, request *http.Request, userID uuid.UUID) {
	datasetID, ok := datasetIdFromPath(writer, request)
	if !ok {
		return
	}
	writeEmptyOrError(writer, s.lifecycle.Delete(request.Context(), userID, datasetID), "Unable to delete dataset.")
}

func datasetIdFromPath(writer http.ResponseWriter, request *http.Request) (uuid.UUID, bool) {
	datasetID, err := uuid.Parse(mux.Vars(request)["id"])
	if err != nil {
		writeError(writer, http.StatusBadRequest, "Invalid dataset ID.", err)
		return uuid.Nil, false
	}
	return datasetID, true
}

// statusOf maps errors of the domain packages to HTTP status codes.
func statusOf(err error) int {
	var forbiddenErr *refresh.ForbiddenError
	var inactiveErr *refresh.InactiveDatasetError
	var upstreamErr *overpass.UpstreamQueryError
	var deliveryErr *mail.DeliveryError

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &forbiddenErr):
		return http.StatusForbidden
	case errors.As(err, &inactiveErr), errors.Is(err, storage.ErrVersionConflict), errors.Is(err, storage.ErrTooManyWatchers):
		return http.StatusConflict
	case errors.As(err, &upstreamErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &deliveryErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// messageOf returns a message for end users. Failures of the query service are transient and worth a retry.
func messageOf(err error, fallback string) string {
	switch statusOf(err) {
	case http.StatusNotFound:
		return "Dataset not found."
	case http.StatusForbidden:
		return "Dataset belongs to another user."
	case http.StatusConflict:
		var inactiveErr *refresh.InactiveDatasetError
		if errors.As(err, &inactiveErr) {
			return "Dataset is inactive."
		}
		if errors.Is(err, storage.ErrTooManyWatchers) {
			return "Dataset is watched by other users."
		}
		return "Dataset was changed at the same time, please try again."
	case http.StatusServiceUnavailable:
		return "OSM data service is unavailable, please try again later."
	}
	return fallback
}

func writeEmptyOrError(writer http.ResponseWriter, err error, fallbackMessage string) {
	if err != nil {
		sigolo.Errorf("%s %+v", fallbackMessage, err)
		writeError(writer, statusOf(err), messageOf(err, fallbackMessage), err)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

func writeError(writer http.ResponseWriter, status int, message string, err error) {
	writeJson(writer, status, NewErrorResponse(message, err))
}

func writeJson(writer http.ResponseWriter, status int, value any) {
	responseBytes, err := json.Marshal(value)
	if err != nil {
		sigolo.Errorf("Error marshalling response object: %+v", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_, err = writer.Write(responseBytes)
	if err != nil {
		sigolo.Errorf("Error writing response: %+v", err)
	}
}
