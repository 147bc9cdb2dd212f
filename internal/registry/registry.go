package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"slices"
	"sync"
	"time"

	"peerctl/internal/daemon"
	"peerctl/internal/events"
	"peerctl/internal/model"
	"peerctl/internal/store"
	"peerctl/internal/wireguard"
)

// ConfStore loads and saves the server's wg-quick config.
type ConfStore interface {
	Load() (*wireguard.ServerConf, error)
	Save(*wireguard.ServerConf) error
	Exists() bool
}

// IdentityProvider returns the server key and endpoint rendered into client configs.
type IdentityProvider interface {
	Identity(ctx context.Context) (model.ServerIdentity, error)
}

type Options struct {
	Store            store.Store
	ServerConfigPath string
	// ServerConf overrides the file at ServerConfigPath.
	ServerConf     ConfStore
	StatePath      string
	Network        netip.Prefix
	ReuseAddresses bool
	PresharedKeys  bool
	Client         wireguard.ClientOptions
	Identity       IdentityProvider
	Daemon         *daemon.Syncer
	Events         events.Publisher
	Logger         *slog.Logger
}

type record struct {
	peer model.Peer
	host int
}

// Registry is the single writer of the peer store and the server config.
// Every mutation holds mu; daemon calls and events happen after it is released.
type Registry struct {
	store      store.Store
	conf       ConfStore
	confPath   string
	statePath  string
	network    netip.Prefix
	reuse      bool
	psk        bool
	clientOpts wireguard.ClientOptions
	identity   IdentityProvider
	daemon     *daemon.Syncer
	events     events.Publisher
	logger     *slog.Logger

	mu       sync.RWMutex
	peers    map[string]*record
	order    []string
	nextHost int
	// stray holds hosts named by peer files that could not be loaded.
	stray map[int]string

	// pushMu orders daemon pushes. syncMu guards syncing and syncPending.
	pushMu      sync.Mutex
	syncMu      sync.Mutex
	syncing     bool
	syncPending bool
}

// New builds a registry from whatever the store holds. A missing store root is
// not an error; the first AddPeer creates it.
func New(ctx context.Context, opts Options) (*Registry, error) {
	if opts.Store == nil {
		return nil, errors.New("registry: store is required")
	}
	if !opts.Network.IsValid() || !opts.Network.Addr().Is4() {
		return nil, fmt.Errorf("registry: invalid network %v", opts.Network)
	}
	if opts.Identity == nil {
		return nil, errors.New("registry: identity provider is required")
	}
	r := &Registry{
		store:      opts.Store,
		conf:       opts.ServerConf,
		confPath:   opts.ServerConfigPath,
		statePath:  opts.StatePath,
		network:    opts.Network.Masked(),
		reuse:      opts.ReuseAddresses,
		psk:        opts.PresharedKeys,
		clientOpts: opts.Client,
		identity:   opts.Identity,
		daemon:     opts.Daemon,
		events:     opts.Events,
		logger:     opts.Logger,
		peers:      map[string]*record{},
		stray:      map[int]string{},
	}
	if r.conf == nil {
		if r.confPath == "" {
			return nil, errors.New("registry: server config path is required")
		}
		r.conf = wireguard.ConfFile{Path: r.confPath}
	}
	if r.events == nil {
		r.events = events.Discard{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	if err := r.scan(); err != nil {
		return nil, err
	}
	if err := r.loadCursor(); err != nil {
		return nil, err
	}
	r.logger.Info("registry loaded", "peers", len(r.order), "network", r.network, "next_host", r.nextHost, "reuse", r.reuse)
	return r, nil
}

func (r *Registry) scan() error {
	names, err := r.store.List()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("peer store root does not exist yet", "root", r.store.Root())
			return nil
		}
		return &StoreIOError{Op: "list peers", Path: r.store.Root(), Err: err}
	}

	byHost := map[int]string{}
	for _, name := range names {
		p, err := r.store.Load(name)
		if err != nil {
			r.logger.Warn("skipping unreadable peer", "peer", name, "error", err)
			continue
		}
		rec, err := r.recordFromStore(p)
		if err != nil {
			r.logger.Warn("skipping malformed peer config", "peer", name, "error", err)
			if h := parseHost(r.network, wireguard.ScanAddress(p.ClientConfig)); h > 0 {
				r.stray[h] = name
				r.logger.Warn("keeping address of malformed peer reserved", "peer", name, "address", hostAddr(r.network, h))
			}
			continue
		}
		if rec.host > 0 {
			if other, ok := byHost[rec.host]; ok {
				r.logger.Warn("peers share an address", "peer", name, "other", other, "address", rec.peer.Address)
			}
			byHost[rec.host] = name
		} else {
			r.logger.Warn("peer address outside network", "peer", name, "address", rec.peer.Address, "network", r.network)
		}
		r.peers[name] = rec
		r.order = append(r.order, name)
	}
	return nil
}

func (r *Registry) recordFromStore(p model.Peer) (*record, error) {
	cc, err := wireguard.ParseClientConfig(p.ClientConfig)
	if err != nil {
		return nil, err
	}
	if p.PrivateKey == "" {
		p.PrivateKey = cc.PrivateKey
	}
	if p.PublicKey == "" {
		pub, err := wireguard.PublicKey(p.PrivateKey)
		if err != nil {
			return nil, err
		}
		p.PublicKey = pub
	}
	if p.PresharedKey == "" {
		p.PresharedKey = cc.PresharedKey
	}
	addr, err := netip.ParseAddr(cc.Address)
	if err != nil {
		return nil, fmt.Errorf("address %q: %w", cc.Address, err)
	}
	p.Address = addr.String()
	p.ClientConfig = ""
	return &record{peer: p, host: hostIndex(r.network, addr)}, nil
}

// loadCursor restores the next host index. It never points at or below a host in use.
func (r *Registry) loadCursor() error {
	next := firstPeerHost
	if r.statePath != "" {
		st, err := store.LoadState(r.statePath)
		if err != nil {
			return &StoreIOError{Op: "read registry state", Path: r.statePath, Err: err}
		}
		if st.Network == r.network.String() {
			next = max(next, st.NextHost)
		} else if st.Network != "" {
			r.logger.Warn("network changed; restarting address cursor", "was", st.Network, "now", r.network)
		}
	}
	for _, rec := range r.peers {
		next = max(next, rec.host+1)
	}
	for h := range r.stray {
		next = max(next, h+1)
	}
	r.nextHost = next
	return nil
}

// AddPeer registers a new peer and returns it with its client config.
func (r *Registry) AddPeer(ctx context.Context, rawName string) (model.Peer, error) {
	name := Sanitize(rawName)
	if name == "" {
		return model.Peer{}, ErrInvalidName
	}

	server, err := r.identity.Identity(ctx)
	if err != nil {
		return model.Peer{}, &StoreIOError{Op: "resolve server identity", Path: r.confPath, Err: err}
	}

	r.mu.Lock()
	peer, err := r.addLocked(name, server)
	r.mu.Unlock()
	if err != nil {
		r.logger.Warn("add peer failed", "peer", name, "error", err)
		return model.Peer{}, err
	}

	r.logger.Info("peer added", "peer", name, "address", peer.Address)
	r.events.Publish(model.Event{Kind: model.EventPeerAdded, Peer: name, Address: peer.Address})
	r.sync(ctx)
	return peer, nil
}

func (r *Registry) addLocked(name string, server model.ServerIdentity) (model.Peer, error) {
	if _, ok := r.peers[name]; ok {
		return model.Peer{}, fmt.Errorf("%w: %s", ErrDuplicatePeer, name)
	}
	exists, err := r.store.Exists(name)
	if err != nil {
		return model.Peer{}, &StoreIOError{Op: "check peer", Path: r.store.Root(), Err: err}
	}
	if exists {
		return model.Peer{}, fmt.Errorf("%w: %s has files in the store", ErrDuplicatePeer, name)
	}

	conf, err := r.conf.Load()
	if err != nil {
		return model.Peer{}, &StoreIOError{Op: "read server config", Path: r.confPath, Err: err}
	}
	if _, ok := conf.Find(name); ok {
		return model.Peer{}, fmt.Errorf("%w: %s already in server config", ErrDuplicatePeer, name)
	}

	host, err := r.allocateLocked(conf)
	if err != nil {
		return model.Peer{}, err
	}

	kp, err := wireguard.GenerateKeyPair()
	if err != nil {
		return model.Peer{}, err
	}
	peer := model.Peer{
		Name:       name,
		Address:    hostAddr(r.network, host).String(),
		PrivateKey: kp.PrivateKey,
		PublicKey:  kp.PublicKey,
		CreatedAt:  time.Now().UTC(),
	}
	if r.psk {
		if peer.PresharedKey, err = wireguard.GeneratePresharedKey(); err != nil {
			return model.Peer{}, err
		}
	}

	if peer.ClientConfig, err = wireguard.RenderClient(peer, server, r.clientOpts); err != nil {
		return model.Peer{}, fmt.Errorf("render client config: %w", err)
	}
	stanza, err := wireguard.RenderStanza(peer)
	if err != nil {
		return model.Peer{}, fmt.Errorf("render server stanza: %w", err)
	}

	if peer.ConfigFile, err = r.store.Save(peer); err != nil {
		return model.Peer{}, &StoreIOError{Op: "write peer files", Path: r.store.ConfigFile(name), Err: err}
	}

	if err := conf.Append(name, peer.PublicKey, stanza); err != nil {
		r.rollbackFiles(name)
		return model.Peer{}, fmt.Errorf("%w: %v", ErrDuplicatePeer, err)
	}
	if err := r.conf.Save(conf); err != nil {
		r.rollbackFiles(name)
		return model.Peer{}, &StoreIOError{Op: "write server config", Path: r.confPath, Err: err}
	}

	next := max(r.nextHost, host+1)
	if err := r.saveCursor(next); err != nil {
		conf.Remove(name, peer.PublicKey)
		if rerr := r.conf.Save(conf); rerr != nil {
			r.logger.Error("rollback of server config failed", "peer", name, "error", rerr)
		}
		r.rollbackFiles(name)
		return model.Peer{}, err
	}

	rec := &record{peer: peer, host: host}
	rec.peer.ClientConfig = ""
	r.peers[name] = rec
	r.order = append(r.order, name)
	r.nextHost = next
	return peer, nil
}

func (r *Registry) rollbackFiles(name string) {
	if err := r.store.Delete(name); err != nil && !errors.Is(err, store.ErrNotFound) {
		r.logger.Error("rollback of peer files failed", "peer", name, "error", err)
	}
}

func (r *Registry) saveCursor(next int) error {
	if r.statePath == "" {
		return nil
	}
	st := &store.State{Network: r.network.String(), NextHost: next}
	if err := store.SaveState(r.statePath, st); err != nil {
		return &StoreIOError{Op: "write registry state", Path: r.statePath, Err: err}
	}
	return nil
}

// RemovePeer deletes a peer's files and its server stanza.
func (r *Registry) RemovePeer(ctx context.Context, rawName string) error {
	name := Sanitize(rawName)
	if name == "" {
		return ErrInvalidName
	}

	r.mu.Lock()
	rec, err := r.removeLocked(name)
	r.mu.Unlock()
	if err != nil {
		r.logger.Warn("remove peer failed", "peer", name, "error", err)
		return err
	}

	r.logger.Info("peer removed", "peer", name, "address", rec.peer.Address)
	r.events.Publish(model.Event{Kind: model.EventPeerRemoved, Peer: name, Address: rec.peer.Address})
	r.sync(ctx)
	return nil
}

func (r *Registry) removeLocked(name string) (*record, error) {
	rec, ok := r.peers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerNotFound, name)
	}

	conf, err := r.conf.Load()
	if err != nil {
		return nil, &StoreIOError{Op: "read server config", Path: r.confPath, Err: err}
	}

	// Keep the client config so a failed server config write can be undone.
	saved, err := r.store.Load(name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, &StoreIOError{Op: "read peer files", Path: r.store.ConfigFile(name), Err: err}
	}

	if err := r.store.Delete(name); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, &StoreIOError{Op: "delete peer files", Path: r.store.ConfigFile(name), Err: err}
	}

	if _, found := conf.Remove(name, rec.peer.PublicKey); !found {
		r.logger.Warn("peer had no stanza in server config", "peer", name)
	}
	if err := r.conf.Save(conf); err != nil {
		if saved.ClientConfig != "" {
			saved.PrivateKey, saved.PublicKey, saved.PresharedKey = rec.peer.PrivateKey, rec.peer.PublicKey, rec.peer.PresharedKey
			if _, rerr := r.store.Save(saved); rerr != nil {
				r.logger.Error("restore of peer files failed", "peer", name, "error", rerr)
			}
		}
		return nil, &StoreIOError{Op: "write server config", Path: r.confPath, Err: err}
	}

	delete(r.peers, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	return rec, nil
}

// ListPeers returns peer names in registration order.
func (r *Registry) ListPeers() ([]string, error) {
	if _, err := os.Stat(r.store.Root()); err != nil {
		return nil, &StoreIOError{Op: "list peers", Path: r.store.Root(), Err: err}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order), nil
}

// Get returns a peer with its client config read back from the store.
func (r *Registry) Get(rawName string) (model.Peer, error) {
	name := Sanitize(rawName)
	if name == "" {
		return model.Peer{}, ErrInvalidName
	}

	r.mu.RLock()
	rec, ok := r.peers[name]
	var peer model.Peer
	if ok {
		peer = rec.peer
	}
	r.mu.RUnlock()
	if !ok {
		return model.Peer{}, fmt.Errorf("%w: %s", ErrPeerNotFound, name)
	}

	stored, err := r.store.Load(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Peer{}, fmt.Errorf("%w: %s has no files in the store", ErrPeerNotFound, name)
		}
		return model.Peer{}, &StoreIOError{Op: "read peer files", Path: r.store.ConfigFile(name), Err: err}
	}
	peer.ClientConfig = stored.ClientConfig
	peer.ConfigFile = stored.ConfigFile
	if peer.CreatedAt.IsZero() {
		peer.CreatedAt = stored.CreatedAt
	}
	return peer, nil
}

// ClientConfig returns the wg-quick config of a peer.
func (r *Registry) ClientConfig(rawName string) (string, error) {
	p, err := r.Get(rawName)
	if err != nil {
		return "", err
	}
	return p.ClientConfig, nil
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) Network() netip.Prefix { return r.network }

func (r *Registry) ConfigPath() string { return r.confPath }

func (r *Registry) Identity(ctx context.Context) (model.ServerIdentity, error) {
	return r.identity.Identity(ctx)
}

// Reconcile appends a stanza for every stored peer missing from the server
// config and returns how many were added.
func (r *Registry) Reconcile(ctx context.Context) (int, error) {
	r.mu.Lock()
	added, err := r.reconcileLocked()
	r.mu.Unlock()
	if err != nil {
		return 0, err
	}

	r.logger.Info("registry reconciled", "added", added, "peers", r.Count())
	r.events.Publish(model.Event{Kind: model.EventRegistryReconciled, Detail: fmt.Sprintf("%d stanzas appended", added)})
	if added > 0 {
		r.sync(ctx)
	}
	return added, nil
}

func (r *Registry) reconcileLocked() (int, error) {
	conf, err := r.conf.Load()
	if err != nil {
		return 0, &StoreIOError{Op: "read server config", Path: r.confPath, Err: err}
	}
	added := 0
	for _, name := range r.order {
		rec := r.peers[name]
		if _, ok := conf.Find(name); ok {
			continue
		}
		if _, ok := conf.FindKey(rec.peer.PublicKey); ok {
			continue
		}
		stanza, err := wireguard.RenderStanza(rec.peer)
		if err != nil {
			r.logger.Warn("cannot render stanza", "peer", name, "error", err)
			continue
		}
		if err := conf.Append(name, rec.peer.PublicKey, stanza); err != nil {
			r.logger.Warn("cannot append stanza", "peer", name, "error", err)
			continue
		}
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := r.conf.Save(conf); err != nil {
		return 0, &StoreIOError{Op: "write server config", Path: r.confPath, Err: err}
	}
	return added, nil
}

// Restart fully restarts the daemon with the current server config.
func (r *Registry) Restart(ctx context.Context) (daemon.Result, error) {
	r.pushMu.Lock()
	defer r.pushMu.Unlock()
	conf, err := r.currentConf()
	if err != nil {
		return daemon.Result{}, err
	}
	if r.daemon == nil {
		return daemon.Result{Outcome: daemon.OutcomeFailure, Err: daemon.ErrDisabled}, nil
	}
	return r.daemon.Restart(context.WithoutCancel(ctx), conf), nil
}

func (r *Registry) currentConf() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conf, err := r.conf.Load()
	if err != nil {
		return "", &StoreIOError{Op: "read server config", Path: r.confPath, Err: err}
	}
	return conf.String(), nil
}

// ServerInfo describes the files and identity the registry works with.
type ServerInfo struct {
	Identity            model.ServerIdentity
	IdentityErr         error
	ConfigPath          string
	ServerConfigExists  bool
	PublicKeyFileExists bool
	StoreRoot           string
	StoreRootExists     bool
	PeerCount           int
	Network             netip.Prefix
}

// ServerInfo never fails; a missing identity is reported in IdentityErr.
func (r *Registry) ServerInfo(ctx context.Context) ServerInfo {
	info := ServerInfo{
		ConfigPath:         r.confPath,
		ServerConfigExists: r.conf.Exists(),
		StoreRoot:          r.store.Root(),
		PeerCount:          r.Count(),
		Network:            r.network,
	}
	info.Identity, info.IdentityErr = r.identity.Identity(ctx)
	if k, ok := r.identity.(interface{ PublicKeyFileExists() bool }); ok {
		info.PublicKeyFileExists = k.PublicKeyFileExists()
	}
	if st, err := os.Stat(r.store.Root()); err == nil && st.IsDir() {
		info.StoreRootExists = true
	}
	return info
}

// sync pushes the server config as it is on disk to the daemon. It runs
// outside the registry lock and never fails the caller. Only one caller pushes
// at a time; a mutation that lands while a push is in flight is picked up by
// that caller's next round, so the last push always carries the newest config.
func (r *Registry) sync(ctx context.Context) {
	if r.daemon == nil {
		return
	}
	r.syncMu.Lock()
	if r.syncing {
		r.syncPending = true
		r.syncMu.Unlock()
		return
	}
	r.syncing = true
	r.syncMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	for {
		r.pushOnce(ctx)

		r.syncMu.Lock()
		if !r.syncPending {
			r.syncing = false
			r.syncMu.Unlock()
			return
		}
		r.syncPending = false
		r.syncMu.Unlock()
	}
}

func (r *Registry) pushOnce(ctx context.Context) {
	r.pushMu.Lock()
	defer r.pushMu.Unlock()
	conf, err := r.currentConf()
	if err != nil {
		r.logger.Error("daemon sync skipped", "error", err)
		return
	}
	r.daemon.Sync(ctx, conf)
}
