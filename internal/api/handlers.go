package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/brickhost/internal/plugin"
	"github.com/mattjoyce/brickhost/internal/protocol"
	"github.com/mattjoyce/brickhost/internal/rpc"
)

// maxBodyBytes bounds config and call request bodies.
const maxBodyBytes = 1 << 20

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	all := s.registry.All()
	loaded := 0
	for _, inst := range all {
		if inst.IsLoaded() {
			loaded++
		}
	}

	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Plugins:       len(all),
		PluginsLoaded: loaded,
	})
}

// handleListPlugins handles GET /plugins.
func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	all := s.registry.All()
	resp := PluginListResponse{Plugins: make([]PluginSummary, 0, len(all))}
	for _, inst := range all {
		st := inst.Status()
		m := inst.Definition().Manifest
		resp.Plugins = append(resp.Plugins, PluginSummary{
			Name:        inst.Name(),
			Version:     m.Version,
			Description: m.Description,
			State:       st.State,
			Loaded:      st.Loaded,
			Commands:    st.Commands,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetPlugin handles GET /plugins/{name}.
func (s *Server) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}

	def := inst.Definition()
	resp := PluginDetailResponse{
		Name:        inst.Name(),
		Dir:         def.Dir,
		Fingerprint: def.Fingerprint,
		Manifest:    def.Manifest,
		Status:      inst.Status(),
	}
	if pc, ok := s.configs[inst.Name()]; ok {
		cfg, err := pc.GetConfig(r.Context())
		if err != nil {
			s.logger.Error("failed to read plugin config", "plugin", inst.Name(), "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to read plugin config")
			return
		}
		resp.Config = cfg
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleLoad handles POST /plugins/{name}/load.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}

	err := inst.TryLoad(r.Context())
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, inst.Status())
	case errors.Is(err, plugin.ErrAlreadyLoaded):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, plugin.ErrUnresponsive):
		s.writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, plugin.ErrExited):
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("plugin load failed", "plugin", inst.Name(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "plugin load failed: "+err.Error())
	}
}

// handleUnload handles POST /plugins/{name}/unload. Unloading an unloaded
// plugin succeeds.
func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	inst.Unload(r.Context())
	respondJSON(w, http.StatusOK, inst.Status())
}

// handleKill handles POST /plugins/{name}/kill.
func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	inst.Kill()
	respondJSON(w, http.StatusOK, inst.Status())
}

// handlePutConfig handles PUT /plugins/{name}/config. The body is a JSON
// object shallow-merged into the stored config; a running plugin sees it on
// its next load.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	pc, ok := s.configs[inst.Name()]
	if !ok {
		s.writeError(w, http.StatusNotFound, "plugin has no config store")
		return
	}

	var updates map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&updates); err != nil || updates == nil {
		s.writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	if err := pc.MergeConfig(r.Context(), updates); err != nil {
		s.logger.Error("failed to update plugin config", "plugin", inst.Name(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update plugin config")
		return
	}
	cfg, err := pc.GetConfig(r.Context())
	if err != nil {
		s.logger.Error("failed to read plugin config", "plugin", inst.Name(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read plugin config")
		return
	}

	respondJSON(w, http.StatusOK, ConfigResponse{Config: cfg, Reload: inst.IsLoaded()})
}

// handleCall handles POST /plugins/{name}/call/{method}. The body, if any,
// is sent as the request params and the plugin's result is returned as is.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	s.call(w, r, inst, chi.URLParam(r, "method"))
}

// handleCommand handles POST /commands/{command}, routing the call to
// whichever loaded plugin registered the command.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	command := chi.URLParam(r, "command")
	inst, ok := plugin.FindCommand(s.registry.All(), command)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("no loaded plugin registered command %q", command))
		return
	}
	w.Header().Set("X-Plugin", inst.Name())
	s.call(w, r, inst, command)
}

func (s *Server) call(w http.ResponseWriter, r *http.Request, inst *plugin.Instance, method string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxBodyBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	var params any
	if len(body) > 0 {
		if !json.Valid(body) {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		params = json.RawMessage(body)
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.CallTimeout)
	defer cancel()

	result, err := inst.Emit(ctx, method, params)
	if err != nil {
		s.writeCallError(w, err)
		return
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

func (s *Server) writeCallError(w http.ResponseWriter, err error) {
	var perr *protocol.Error
	switch {
	case errors.Is(err, plugin.ErrNotLoaded):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &perr):
		status := http.StatusBadGateway
		if perr.Code == protocol.CodeMethodNotFound {
			status = http.StatusNotFound
		}
		respondJSON(w, status, ErrorResponse{Error: perr.Message, Code: perr.Code})
	case errors.Is(err, rpc.ErrClosed):
		s.writeError(w, http.StatusBadGateway, "plugin stopped before replying")
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "plugin did not reply in time")
	default:
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) instance(w http.ResponseWriter, r *http.Request) (*plugin.Instance, bool) {
	inst, ok := s.registry.Get(chi.URLParam(r, "name"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "plugin not found")
		return nil, false
	}
	return inst, true
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
