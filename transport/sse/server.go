// Package sse streams newly appended project versions as server-sent events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/logging"
	"github.com/c0deZ3R0/pixel-chunk/snapshot"
)

const component = errors.Component("transport/sse")

// VersionEvent is the payload of one event.
type VersionEvent struct {
	ProjectID string `json:"project_id"`
	snapshot.ProjectVersion
}

// Notifier wakes a stream early when a project may have a new version.
type Notifier interface {
	Notify(projectID string) (<-chan struct{}, func())
}

type Server struct {
	Store        snapshot.Store
	Logger       *logging.Logger
	PollInterval time.Duration
	// Notifier is optional; without it streams rely on polling alone.
	Notifier Notifier
}

// NewServer creates a new SSE server with default settings
func NewServer(store snapshot.Store, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.WithComponent(logging.Component(component))
	}
	return &Server{
		Store:        store,
		Logger:       logger,
		PollInterval: time.Second,
	}
}

// Handler serves the stream of the project named by the "id" route
// variable. Versions after the "since" query parameter are sent first;
// without it only versions appended after the request are sent.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		ctx := r.Context()
		projectID := mux.Vars(r)["id"]
		history, err := s.Store.History(ctx, projectID)
		if err != nil {
			s.writeError(ctx, w, err)
			return
		}

		seen := history[0].ID
		if since := r.URL.Query().Get("since"); since != "" {
			if _, found := newerThan(history, since); !found {
				http.Error(w, "no such snapshot", http.StatusNotFound)
				return
			}
			seen = since
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		fmt.Fprint(w, ": subscribed\n\n")
		flusher.Flush()

		var wake <-chan struct{}
		if s.Notifier != nil {
			ch, cancel := s.Notifier.Notify(projectID)
			defer cancel()
			wake = ch
		}
		interval := s.PollInterval
		if interval <= 0 {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			fresh, found := newerThan(history, seen)
			if !found {
				// seen fell out of the history window; resync from the newest
				fresh = history[:1]
			}
			for i := len(fresh) - 1; i >= 0; i-- {
				b, err := json.Marshal(VersionEvent{ProjectID: projectID, ProjectVersion: fresh[i]})
				if err != nil {
					s.Logger.LogError(ctx, err, "Encoding version event")
					return
				}
				if _, err := fmt.Fprintf(w, "id: %s\ndata: %s\n\n", fresh[i].ID, b); err != nil {
					return
				}
				seen = fresh[i].ID
			}
			if len(fresh) > 0 {
				flusher.Flush()
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-wake:
			}

			history, err = s.Store.History(ctx, projectID)
			if err != nil {
				if ctx.Err() == nil {
					s.Logger.LogError(ctx, errors.E(errors.Op("sse.Handler"), component, err), "Loading history",
						logging.ProjectAttr(projectID))
				}
				return
			}
		}
	})
}

// newerThan returns the versions before id in a newest-first history.
func newerThan(history []snapshot.ProjectVersion, id string) ([]snapshot.ProjectVersion, bool) {
	for i, v := range history {
		if v.ID == id {
			return history[:i], true
		}
	}
	return nil, false
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch errors.KindOf(err) {
	case errors.KindNoSuchProject:
		http.Error(w, "no such project", http.StatusNotFound)
	default:
		s.Logger.LogError(ctx, err, "Opening version stream", slog.String("component", string(component)))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
