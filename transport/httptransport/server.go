// Package httptransport serves the project REST API and mounts the edit and
// version-feed endpoints next to it.
package httptransport

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/logging"
	"github.com/c0deZ3R0/pixel-chunk/snapshot"
)

const component = errors.Component("transport/http")

// Server serves the REST API over a snapshot store.
type Server struct {
	store   snapshot.Store
	logger  *logging.Logger
	options *ServerOptions

	// Edit serves GET /projects/{id}/edit when set.
	Edit http.Handler
	// Feed serves GET /projects/{id}/versions/stream when set.
	Feed http.Handler
}

func NewServer(store snapshot.Store, logger *logging.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = logging.WithComponent(logging.Component(component))
	}
	return &Server{
		store:   store,
		logger:  logger,
		options: applyServerOptions(opts...),
	}
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r *mux.Router) {
	r.Methods(http.MethodPost).Path("/projects").HandlerFunc(s.withTimeout(s.createProject))
	r.Methods(http.MethodGet).Path("/projects/{id}").HandlerFunc(s.withTimeout(s.getProject))
	if s.Feed != nil {
		r.Methods(http.MethodGet).Path("/projects/{id}/versions/stream").Handler(s.Feed)
	}
	if s.Edit != nil {
		r.Methods(http.MethodGet).Path("/projects/{id}/edit").Handler(s.Edit)
	}
}

// Handler returns a router with every endpoint and request logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(s.logger))
	s.Routes(r)
	return r
}

func (s *Server) withTimeout(h http.HandlerFunc) http.HandlerFunc {
	if s.options.RequestTimeout <= 0 {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.options.RequestTimeout)
		defer cancel()
		h(w, r.WithContext(ctx))
	}
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	rows, err := dimension(r, "rows", s.options.DefaultRows)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	cols, err := dimension(r, "cols", s.options.DefaultCols)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var project snapshot.Project
	err = s.logger.LogOperation(r.Context(), logging.Operation(errors.OpCreate), logging.Component(component), func() error {
		var err error
		project, _, err = s.store.CreateProject(r.Context(), rows, cols)
		return err
	})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "Project created", logging.ProjectAttr(project.ID))
	respondWithJSON(w, r, http.StatusCreated, project, s.options)
}

func dimension(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.E(errors.OpCreate, component, errors.KindInvalid, err, "parse "+name)
	}
	return n, nil
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := mux.Vars(r)["id"]

	var (
		snap *snapshot.Snapshot
		err  error
	)
	if version := r.URL.Query().Get("version"); version != "" {
		snap, err = s.store.GetByID(ctx, projectID, version)
	} else {
		snap, err = s.store.GetLatest(ctx, projectID)
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	versions, err := s.store.History(ctx, projectID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondWithJSON(w, r, http.StatusOK, ProjectState{
		ID:       projectID,
		State:    snap.Grid,
		Versions: versions,
	}, s.options)
}

func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.LogError(r.Context(), err, "Request failed", logging.ProjectAttr(mux.Vars(r)["id"]))
		message = "internal error"
	}
	respondWithError(w, r, code, errors.KindOf(err), message, s.options)
}
