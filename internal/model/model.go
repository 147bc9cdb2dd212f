package model

import "time"

// Peer is one registered client of the VPN server.
type Peer struct {
	Name         string
	Address      string // host address without prefix, e.g. 10.0.0.2
	PrivateKey   string
	PublicKey    string
	PresharedKey string
	ConfigFile   string // path of the client config relative to the store root
	ClientConfig string
	CreatedAt    time.Time
}

// ServerIdentity is the daemon's own public key and reachable endpoint.
type ServerIdentity struct {
	PublicKey  string
	Endpoint   string // host:port
	ListenPort int
}

// Event kinds published by the registry and the daemon syncer.
const (
	EventPeerAdded          = "peer.added"
	EventPeerRemoved        = "peer.removed"
	EventDaemonSync         = "daemon.sync"
	EventDaemonRestart      = "daemon.restart"
	EventRegistryReconciled = "registry.reconciled"
)

// Event is a single observable registry or daemon outcome.
type Event struct {
	Timestamp time.Time
	Kind      string
	Peer      string
	Address   string
	Outcome   string // success|failure|timeout for daemon events
	Detail    string
	Duration  time.Duration
}

// LivePeer is a peer as currently seen by the running daemon.
type LivePeer struct {
	PublicKey       string
	Endpoint        string
	AllowedIPs      []string
	LatestHandshake time.Time
}
