package daemon

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	PeerID          string `json:"peer_id"`
	Version         string `json:"version"`
	UptimeSeconds   int    `json:"uptime_seconds"`
	ListenAddr      string `json:"listen_address"`
	ConnectedPeers  int    `json:"connected_peers"`
	NegotiatedPeers int    `json:"negotiated_peers"`
	TrackedProjects int    `json:"tracked_projects"`
}

// PeerInfo is returned by GET /v1/peers, describing one address the
// host has a live or recently-live connection to.
type PeerInfo struct {
	Addr       string `json:"addr"`
	PeerID     string `json:"peer_id,omitempty"`
	State      string `json:"state"`
	Persistent bool   `json:"persistent"`
}

// ProjectInfo is returned by GET /v1/projects, one entry per project
// this node hosts locally.
type ProjectInfo struct {
	ProjId string   `json:"proj_id"`
	Refs   []string `json:"refs"`
}

// TrackRequest is the body for POST /v1/track and POST /v1/untrack.
type TrackRequest struct {
	ProjId string `json:"proj_id"`
}

// TrackResponse reports whether a Track/Untrack command actually
// changed the tracking policy.
type TrackResponse struct {
	ProjId  string `json:"proj_id"`
	Changed bool   `json:"changed"`
}

// ConnectRequest is the body for POST /v1/connect.
type ConnectRequest struct {
	Addr string `json:"addr"`
}

// FetchRequest is the body for POST /v1/fetch.
type FetchRequest struct {
	ProjId string `json:"proj_id"`
}

// FetchResponse reports the outcome of a fetch. It is sent once the git
// fetch has finished (the host's CmdFetchCompleted resolves it); Ok false
// with a non-empty Err means the project is untracked, no peer
// advertises it, or the fetch itself failed.
type FetchResponse struct {
	ProjId string `json:"proj_id"`
	Ok     bool   `json:"ok"`
	Err    string `json:"err,omitempty"`
}

// ErrorResponse is returned on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DataResponse wraps a successful response.
type DataResponse struct {
	Data any `json:"data"`
}
