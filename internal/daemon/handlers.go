package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shurlinet/meshgit/pkg/netcore"
)

// maxRequestBodySize limits the size of JSON request bodies to prevent
// unbounded memory consumption from oversized or malicious payloads.
const maxRequestBodySize = 1 << 20 // 1 MB

// commandTimeout bounds how long an API handler waits for the reactor
// to resolve a command's reply sink.
const commandTimeout = 10 * time.Second

// fetchCommandTimeout bounds how long the fetch handler waits for its
// reply: unlike Track/Untrack/Connect, a Fetch's reply resolves only
// once the underlying git fetch completes, which can run far longer
// than commandTimeout allows.
const fetchCommandTimeout = 2 * time.Minute

// registerRoutes sets up all HTTP routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/peers", s.handlePeers)
	mux.HandleFunc("GET /v1/projects", s.handleProjects)

	mux.HandleFunc("POST /v1/track", s.handleTrack)
	mux.HandleFunc("POST /v1/untrack", s.handleUntrack)
	mux.HandleFunc("POST /v1/connect", s.handleConnect)
	mux.HandleFunc("POST /v1/fetch", s.handleFetch)
	mux.HandleFunc("POST /v1/shutdown", s.handleShutdown)
}

// --- Format helpers ---

func wantsText(r *http.Request) bool {
	if r.URL.Query().Get("format") == "text" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/plain")
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(DataResponse{Data: data})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

func respondText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	fmt.Fprint(w, text)
}

// --- Handlers ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	peers, err := s.runtime.HostLoop().PeerSnapshot(r.Context())
	if err != nil {
		respondError(w, http.StatusGatewayTimeout, err.Error())
		return
	}

	var connected, negotiated int
	for _, p := range peers {
		if p.State != netcore.StateIdle && p.State != netcore.StateDisconnected {
			connected++
		}
		if p.State == netcore.StateNegotiated {
			negotiated++
		}
	}

	resp := StatusResponse{
		PeerID:          s.runtime.Identity().String(),
		Version:         s.runtime.Version(),
		UptimeSeconds:   int(time.Since(s.runtime.StartTime()).Seconds()),
		ListenAddr:      s.runtime.ListenAddr(),
		ConnectedPeers:  connected,
		NegotiatedPeers: negotiated,
		TrackedProjects: len(s.runtime.Storage().LocalInventory()),
	}

	if wantsText(r) {
		var sb strings.Builder
		fmt.Fprintf(&sb, "peer_id: %s\n", resp.PeerID)
		fmt.Fprintf(&sb, "version: %s\n", resp.Version)
		fmt.Fprintf(&sb, "uptime: %ds\n", resp.UptimeSeconds)
		fmt.Fprintf(&sb, "listen_address: %s\n", resp.ListenAddr)
		fmt.Fprintf(&sb, "connected_peers: %d\n", resp.ConnectedPeers)
		fmt.Fprintf(&sb, "negotiated_peers: %d\n", resp.NegotiatedPeers)
		fmt.Fprintf(&sb, "hosted_projects: %d\n", resp.TrackedProjects)
		respondText(w, http.StatusOK, sb.String())
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.runtime.HostLoop().PeerSnapshot(r.Context())
	if err != nil {
		respondError(w, http.StatusGatewayTimeout, err.Error())
		return
	}

	infos := make([]PeerInfo, 0, len(snaps))
	for _, p := range snaps {
		info := PeerInfo{Addr: p.Addr, State: string(p.State), Persistent: p.Persistent}
		if !p.Id.IsZero() {
			info.PeerID = p.Id.String()
		}
		infos = append(infos, info)
	}

	if wantsText(r) {
		var sb strings.Builder
		for _, p := range infos {
			id := p.PeerID
			if id == "" {
				id = "-"
			}
			fmt.Fprintf(&sb, "%s\t%s\t%s\tpersistent=%v\n", p.Addr, id, p.State, p.Persistent)
		}
		respondText(w, http.StatusOK, sb.String())
		return
	}

	respondJSON(w, http.StatusOK, infos)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	summaries := s.runtime.Storage().LocalInventory()
	infos := make([]ProjectInfo, 0, len(summaries))
	for _, sum := range summaries {
		refs := make([]string, 0, len(sum.Refs))
		for name := range sum.Refs {
			refs = append(refs, string(name))
		}
		infos = append(infos, ProjectInfo{ProjId: sum.Id.String(), Refs: refs})
	}

	if wantsText(r) {
		var sb strings.Builder
		for _, p := range infos {
			fmt.Fprintf(&sb, "%s\t%d refs\n", p.ProjId, len(p.Refs))
		}
		respondText(w, http.StatusOK, sb.String())
		return
	}

	respondJSON(w, http.StatusOK, infos)
}

func decodeBody(r *http.Request, target any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize)).Decode(target)
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	s.handleTrackUntrack(w, r, netcore.TrackCommand)
}

func (s *Server) handleUntrack(w http.ResponseWriter, r *http.Request) {
	s.handleTrackUntrack(w, r, netcore.UntrackCommand)
}

func (s *Server) handleTrackUntrack(w http.ResponseWriter, r *http.Request, build func(netcore.ProjId, netcore.ReplySink) netcore.Command) {
	var req TrackRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	proj, err := netcore.ParseProjId(req.ProjId)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid proj_id: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	value, err := submitAndWait(ctx, s.runtime.HostLoop(), build(proj, nil))
	if err != nil {
		respondError(w, http.StatusGatewayTimeout, err.Error())
		return
	}

	changed, _ := value.(bool)
	if s.audit != nil {
		action := "track"
		if r.URL.Path == "/v1/untrack" {
			action = "untrack"
		}
		s.audit.TrackingChange(action, req.ProjId)
	}
	respondJSON(w, http.StatusOK, TrackResponse{ProjId: req.ProjId, Changed: changed})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Addr == "" {
		respondError(w, http.StatusBadRequest, "addr is required")
		return
	}

	s.runtime.HostLoop().Submit(netcore.ConnectCommand(req.Addr))
	slog.Info("connect requested via API", "addr", req.Addr)
	respondJSON(w, http.StatusOK, map[string]string{"status": "connecting"})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	proj, err := netcore.ParseProjId(req.ProjId)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid proj_id: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), fetchCommandTimeout)
	defer cancel()

	value, err := submitAndWait(ctx, s.runtime.HostLoop(), netcore.FetchCommand(proj, nil))
	if err != nil {
		respondError(w, http.StatusGatewayTimeout, err.Error())
		return
	}

	result, _ := value.(netcore.FetchResult)
	resp := FetchResponse{ProjId: req.ProjId, Ok: result.Ok, Err: result.Err}

	if wantsText(r) {
		if resp.Ok {
			respondText(w, http.StatusOK, fmt.Sprintf("fetched %s\n", req.ProjId))
		} else {
			respondText(w, http.StatusOK, fmt.Sprintf("fetch failed for %s: %s\n", req.ProjId, resp.Err))
		}
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(s.shutdownCh)
	}()
}
