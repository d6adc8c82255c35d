// Package transporthttp exposes the sync subsystem over HTTP: sync
// triggers, status, conflicts, expanded occurrences, and the SSE live
// stream.
package transporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"wellsync/internal/config"
	"wellsync/internal/live"
	"wellsync/internal/model"
	"wellsync/internal/recur"
	"wellsync/internal/store/postgres"
	syncpkg "wellsync/internal/sync"
)

const maxBodyBytes = 1 << 20

// ServerDeps carries the wired application components into the handlers.
type ServerDeps struct {
	Logger       *slog.Logger
	Cfg          *config.Config
	DB           *postgres.DB
	Store        *postgres.Store
	Hub          *live.Hub
	Registry     *syncpkg.StatusRegistry
	Orchestrator *syncpkg.Orchestrator
	Resolver     *syncpkg.Resolver
	Now          func() time.Time
}

func decodeJSONStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// --- Health ---

func (d *ServerDeps) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := d.DB.Ready(r.Context()); err != nil {
		WriteProblem(w, http.StatusServiceUnavailable, "not ready", "database not reachable", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// --- Sync ---

type syncReq struct {
	Provider model.Provider `json:"provider"`
}

// HandlePostSync starts an asynchronous sync pass for the calling user. The
// pass is detached from the request context: closing the request (or the
// user's live stream) never cancels an in-progress sync.
func (d *ServerDeps) HandlePostSync(w http.ResponseWriter, r *http.Request) {
	var req syncReq
	if err := decodeJSONStrict(r, &req); err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid json", err.Error(), nil)
		return
	}
	if !req.Provider.IsValid() {
		WriteProblem(w, http.StatusBadRequest, "validation failed", "unknown provider", map[string][]string{
			"provider": {"must be one of: google, caldav"},
		})
		return
	}

	uid := userID(r)
	go func() {
		// Errors are reflected in the status registry and the live stream.
		_ = d.Orchestrator.StartSync(context.Background(), uid, req.Provider)
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"started"}`))
}

// HandleGetSyncStatus returns all sync statuses for the calling user.
func (d *ServerDeps) HandleGetSyncStatus(w http.ResponseWriter, r *http.Request) {
	statuses := d.Registry.Get(userID(r))
	if statuses == nil {
		statuses = []model.SyncStatus{}
	}
	writeJSON(w, map[string]any{"statuses": statuses})
}

// --- Events ---

type occurrenceResp struct {
	MasterID string    `json:"master_id"`
	Sequence int       `json:"sequence"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// HandleGetEvents returns the user's events in a window, with recurring
// masters expanded into concrete occurrences.
func (d *ServerDeps) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	now := d.Now()
	from, to := now, now.AddDate(0, 0, 7)
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "from must be RFC 3339", nil)
			return
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "to must be RFC 3339", nil)
			return
		}
		to = t
	}
	if !from.Before(to) {
		WriteProblem(w, http.StatusBadRequest, "invalid parameters", "from must be before to", nil)
		return
	}

	events, err := d.Store.UserEvents(r.Context(), userID(r), from, to)
	if err != nil {
		d.Logger.Error("event query failed", "error", err)
		WriteProblem(w, http.StatusInternalServerError, "query error", "could not load events", nil)
		return
	}

	var occurrences []occurrenceResp
	for _, ev := range events {
		if !ev.Recurring || ev.Recurrence == nil {
			continue
		}
		instances, err := recur.ExpandInstances(ev)
		if err != nil {
			d.Logger.Warn("skipping unexpandable recurring event", "eventID", ev.ID, "error", err)
			continue
		}
		for _, inst := range instances {
			if inst.Start.Before(to) && inst.End.After(from) {
				occurrences = append(occurrences, occurrenceResp{
					MasterID: inst.MasterID,
					Sequence: inst.Sequence,
					Title:    inst.Title,
					Start:    inst.Start,
					End:      inst.End,
				})
			}
		}
	}
	if events == nil {
		events = []model.CalendarEvent{}
	}
	if occurrences == nil {
		occurrences = []occurrenceResp{}
	}
	writeJSON(w, map[string]any{"events": events, "occurrences": occurrences})
}

// --- Conflicts ---

func (d *ServerDeps) HandleGetConflicts(w http.ResponseWriter, r *http.Request) {
	pendingOnly := r.URL.Query().Get("pending") == "true"
	conflicts, err := d.Store.ConflictsForUser(r.Context(), userID(r), pendingOnly)
	if err != nil {
		d.Logger.Error("conflict query failed", "error", err)
		WriteProblem(w, http.StatusInternalServerError, "query error", "could not load conflicts", nil)
		return
	}
	if conflicts == nil {
		conflicts = []model.Conflict{}
	}
	writeJSON(w, map[string]any{"conflicts": conflicts})
}

type resolveReq struct {
	Resolution model.Resolution `json:"resolution"`
}

func (d *ServerDeps) HandlePostResolve(w http.ResponseWriter, r *http.Request) {
	conflictID := r.PathValue("id")
	var req resolveReq
	if err := decodeJSONStrict(r, &req); err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid json", err.Error(), nil)
		return
	}

	conflict, err := d.Resolver.Resolve(r.Context(), conflictID, req.Resolution, userID(r))
	switch {
	case err == nil:
		writeJSON(w, map[string]any{"conflict": conflict})
	case errors.Is(err, syncpkg.ErrConflictNotFound):
		WriteProblem(w, http.StatusNotFound, "conflict not found", err.Error(), nil)
	case errors.Is(err, syncpkg.ErrConflictResolved):
		WriteProblem(w, http.StatusConflict, "already resolved", err.Error(), nil)
	case errors.Is(err, syncpkg.ErrInvalidResolution):
		WriteProblem(w, http.StatusBadRequest, "invalid resolution", err.Error(), nil)
	default:
		d.Logger.Error("resolution failed", "conflictID", conflictID, "error", err)
		WriteProblem(w, http.StatusInternalServerError, "resolution failed", err.Error(), nil)
	}
}

// --- Live stream ---

// HandleLive upgrades the request into a long-lived SSE stream registered
// with the hub. An optional ?events= list restricts targeted deliveries to
// those types.
func (d *ServerDeps) HandleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteProblem(w, http.StatusInternalServerError, "streaming unsupported", "response writer cannot flush", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	conn := d.Hub.Open(userID(r), w, flusher)
	if filter := r.URL.Query().Get("events"); filter != "" {
		d.Hub.Subscribe(conn.ID, strings.Split(filter, ",")...)
	}

	select {
	case <-r.Context().Done():
		d.Hub.Close(conn.ID)
	case <-conn.Done():
	}
}

// --- Router ---

func (d *ServerDeps) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", d.HandleHealthz)
	mux.HandleFunc("GET /readyz", d.HandleReadyz)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/calendar/sync", d.HandlePostSync)
	api.HandleFunc("GET /api/v1/calendar/sync/status", d.HandleGetSyncStatus)
	api.HandleFunc("GET /api/v1/calendar/events", d.HandleGetEvents)
	api.HandleFunc("GET /api/v1/calendar/conflicts", d.HandleGetConflicts)
	api.HandleFunc("POST /api/v1/calendar/conflicts/{id}/resolve", d.HandlePostResolve)
	api.HandleFunc("GET /api/v1/live", d.HandleLive)

	var h http.Handler = api
	h = RequireUser(h)
	h = BodyLimit(maxBodyBytes)(h)
	h = RequireJSON(h)
	h = APIKeyAuth(d.Cfg.APIKeys)(h)
	mux.Handle("/api/v1/", h)

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
