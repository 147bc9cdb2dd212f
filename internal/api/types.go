package api

import "time"

// StatusResponse is returned by GET /.
type StatusResponse struct {
	Status              string `json:"status"`
	WireGuardConfigPath string `json:"wireguard_config_path"`
}

// AddPeerRequest creates a peer. The name is sanitized server-side.
type AddPeerRequest struct {
	Name string `json:"name"`
}

type AddPeerResponse struct {
	Message    string `json:"message"`
	PeerName   string `json:"peer_name"`
	IPAddress  string `json:"ip_address"`
	ConfigFile string `json:"config_file"`
	PublicKey  string `json:"public_key"`
}

// PeerConfigResponse carries a peer's wg-quick client config.
type PeerConfigResponse struct {
	PeerName string `json:"peer_name"`
	Config   string `json:"config"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ServerInfoResponse struct {
	ServerPublicKey     string `json:"server_public_key"`
	Endpoint            string `json:"endpoint"`
	ServerConfigExists  bool   `json:"server_config_exists"`
	PublicKeyFileExists bool   `json:"public_key_file_exists"`
	PeersDirExists      bool   `json:"peers_dir_exists"`
	PeerCount           int    `json:"peer_count"`
	Path                string `json:"path"`
	Network             string `json:"network,omitempty"`
	// LivePeers is set when the daemon can be inspected.
	LivePeers *int   `json:"live_peers,omitempty"`
	Error     string `json:"error,omitempty"`
}

type ReloadResponse struct {
	Message    string `json:"message"`
	DurationMs int64  `json:"duration_ms"`
}

// Event is one journal entry.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	Kind       string    `json:"kind"`
	Peer       string    `json:"peer,omitempty"`
	Address    string    `json:"address,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
