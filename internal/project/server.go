package project

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/provisioner/pkg/cerr"
	"github.com/kazz187/provisioner/pkg/clog"
	"github.com/kazz187/provisioner/pkg/remote"
)

const maxBodyBytes = 1 << 20

type Server struct {
	service *Service
}

func NewServer(service *Service) *Server {
	return &Server{service: service}
}

// Routes mounts the project endpoints on r. Handlers hand their result to
// the cerr response middleware, which must be installed on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/create_project", s.CreateProject)
	r.Post("/create_multi_project", s.CreateMultiProject)
	r.Put("/update_repo_permission", s.UpdateRepoPermission)
	r.Delete("/delete_project", s.DeleteProject)
	r.Delete("/delete_multi_project", s.DeleteMultiProject)
	r.Get("/preflight", s.Preflight)
	r.Get("/history", s.History)
}

func (s *Server) CreateProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	clog.AddAttribute(ctx, clog.OrgAttributeKey, req.OrgName)
	outcome, err := s.service.CreateProject(ctx, req)
	if err != nil {
		setError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, outcomeStatus(outcome, http.StatusCreated), outcome)
}

func (s *Server) CreateMultiProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateMultiProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	clog.AddAttribute(ctx, clog.OrgAttributeKey, req.OrgName)
	batch, err := s.service.CreateMultiProject(ctx, req)
	if err != nil {
		setError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, batch)
}

func (s *Server) UpdateRepoPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UpdateRepoPermissionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	clog.AddAttribute(ctx, clog.OrgAttributeKey, req.OrgName)
	update, err := s.service.UpdateRepoPermission(ctx, req)
	if err != nil {
		setError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, update)
}

func (s *Server) DeleteProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req DeleteProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	clog.AddAttribute(ctx, clog.OrgAttributeKey, req.OrgName)
	outcome, err := s.service.DeleteProject(ctx, req)
	if err != nil {
		setError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, outcomeStatus(outcome, http.StatusOK), outcome)
}

func (s *Server) DeleteMultiProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req DeleteMultiProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	clog.AddAttribute(ctx, clog.OrgAttributeKey, req.OrgName)
	batch, err := s.service.DeleteMultiProject(ctx, req)
	if err != nil {
		setError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, batch)
}

func (s *Server) Preflight(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	org := r.URL.Query().Get("org_name")
	clog.AddAttribute(ctx, clog.OrgAttributeKey, org)
	report, err := s.service.Preflight(ctx, org)
	if err != nil {
		setError(ctx, err)
		return
	}
	status := http.StatusOK
	if !report.Ready {
		status = http.StatusServiceUnavailable
	}
	cerr.SetJSONResponseWithStatus(ctx, status, report)
}

type historyResponse struct {
	Outcomes []*Outcome `json:"outcomes"`
}

func (s *Server) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	req := HistoryRequest{OrgName: q.Get("org_name"), RepoName: q.Get("repo_name")}
	clog.AddAttribute(ctx, clog.OrgAttributeKey, req.OrgName)
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			setError(ctx, &ValidationError{Violations: []FieldViolation{{Field: "limit", Reason: "must be an integer"}}})
			return
		}
		req.Limit = limit
	}
	outcomes, err := s.service.History(ctx, req)
	if err != nil {
		setError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, historyResponse{Outcomes: outcomes})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		cerr.SetNewJSONError(r.Context(), cerr.InvalidArgument, "malformed request body", err)
		return false
	}
	return true
}

// outcomeStatus picks the HTTP status for a single-project outcome. The
// outcome itself is always the body.
func outcomeStatus(o Outcome, success int) int {
	switch o.Status {
	case StatusSuccess:
		return success
	case StatusPartialFailure:
		return http.StatusInternalServerError
	}
	for _, e := range o.Errors {
		if e.Kind == ErrorConflict {
			return http.StatusConflict
		}
	}
	return http.StatusBadGateway
}

func setError(ctx context.Context, err error) {
	var verr *ValidationError
	var rerr *remote.Error
	switch {
	case errors.As(err, &verr):
		e := cerr.NewError(cerr.InvalidArgument, "invalid request", err)
		for _, v := range verr.Violations {
			e.AddDetail(v.Field + ": " + v.Reason)
		}
		cerr.SetJSONError(ctx, e)
	case remote.IsConflict(err):
		cerr.SetNewJSONError(ctx, cerr.AlreadyExists, "resource already exists", err)
	case errors.As(err, &rerr):
		if rerr.StatusCode == http.StatusNotFound {
			cerr.SetNewJSONError(ctx, cerr.NotFound, rerr.Platform+" resource not found", err)
			return
		}
		cerr.SetNewJSONError(ctx, cerr.BadGateway, rerr.Platform+" request failed", err)
	default:
		cerr.SetJSONError(ctx, err)
	}
}
