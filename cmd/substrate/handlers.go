package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/agentmesh/substrate/admission"
	"github.com/agentmesh/substrate/bus"
	"github.com/agentmesh/substrate/cache"
	"github.com/agentmesh/substrate/depth"
	"github.com/agentmesh/substrate/observability"
	"github.com/agentmesh/substrate/provider"
	"github.com/agentmesh/substrate/types"
)

// healthStatus is the JSON shape returned by /healthz,
// grounded on the teacher's api/handlers/health.go HealthStatus.
type healthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthStatus{Status: "healthy", Timestamp: time.Now()})
}

func handleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": version, "build_time": buildTime, "git_commit": gitCommit,
		})
	}
}

// statusReport aggregates every core component's point-in-time status into
// one response, exercised by GET /v1/status.
type statusReport struct {
	Bus       bus.Stats         `json:"bus"`
	Admission admission.Status  `json:"admission"`
	Providers []provider.Health `json:"providers"`
	Cache     cache.Stats       `json:"cache"`
}

func handleStatus(b *bus.Bus, sched *admission.Scheduler, router *provider.Router, c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusReport{
			Bus:       b.Stats(),
			Admission: sched.Status(),
			Providers: router.ProviderHealth(),
			Cache:     c.Stats(),
		})
	}
}

// handleEvents upgrades the request to a websocket and streams core
// component events to the client, grounded on the teacher's
// agent/streaming/ws_adapter.go connection-adapter style (server accept
// side instead of the teacher's client-dial side).
func handleEvents(sink *observability.WebSocketSink, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.Warn("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()

		unregister := sink.Register(conn)
		defer unregister()

		ctx := conn.CloseRead(r.Context())
		<-ctx.Done()
	}
}

// echoGenerator is the demo shell's sole provider.Generator: it echoes the
// concept back as content so /v1/depth endpoints return something without
// wiring a real LLM backend.
func echoGenerator(ctx context.Context, req provider.Request) (provider.Artifact, error) {
	return provider.Artifact{Content: req.Concept, Provenance: "demo-shell", Complexity: req.Complexity}, nil
}

type depthContentRequest struct {
	Concept  string `json:"concept"`
	Level    int    `json:"level"`
	Modality string `json:"modality"`
}

// handleDepthContent exercises depth.Ladder.ContentAt over HTTP: given a
// concept and level it returns either the materialized artifact or a
// learning path of missing prerequisites.
func handleDepthContent(l *depth.Ladder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req depthContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Concept == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "concept is required"})
			return
		}
		l.Init(req.Concept, 1, 5)

		artifact, path, err := l.ContentAt(r.Context(), req.Concept, req.Level, req.Modality, "", nil)
		if err != nil {
			if e, ok := err.(*types.Error); ok {
				writeJSON(w, http.StatusUnprocessableEntity, e)
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if len(path) > 0 {
			writeJSON(w, http.StatusOK, map[string]any{"learning_path": path})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"artifact": artifact})
	}
}
