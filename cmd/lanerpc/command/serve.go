package command

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lane-rpc/config"
	"lane-rpc/middleware"
	"lane-rpc/placement"
	"lane-rpc/registry"
	"lane-rpc/server"
	"lane-rpc/transport"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a lane-rpc node hosting the demo services",
	Long: `serve starts a node with WORKER_NUM lanes, listens on LISTEN_ADDR and keeps a
connection to every peer in PEERS. Ids in CLIENTS are accepted but never
dialed. With ETCD_ENDPOINTS set the node publishes itself in etcd and resolves
peers listed without an address ("3=") there.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(envFile)
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
		return runNode(cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// node is everything serve starts, in the order it must be stopped.
type node struct {
	server   *server.LocalServer
	listener *transport.Listener
	dir      registry.Registry
}

func runNode(cfg *config.Config, logger *slog.Logger) error {
	n, err := buildNode(cfg)
	if err != nil {
		return err
	}
	if err := n.server.Start(); err != nil {
		n.close()
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- n.listener.Serve(n.server.Handle())
	}()
	logger.Info("node_started",
		"server_id", cfg.ServerID,
		"listen_addr", n.listener.Addr().String(),
		"workers", cfg.WorkerNum,
		"peers", len(cfg.Peers),
		"etcd", cfg.UsesEtcd(),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("received_shutdown_signal")
	case err = <-errChan:
		logger.Error("listener_error", "error", err)
	}
	n.close()
	logger.Info("node_stopped")
	return err
}

func buildNode(cfg *config.Config) (*node, error) {
	dir, err := openDirectory(cfg)
	if err != nil {
		return nil, err
	}
	resolver := newResolver(cfg.Peers, dir)

	var conns []server.Connector
	var tcp []*transport.TCPConnector
	add := func(peer int32, r transport.Resolver) {
		c := transport.NewTCPConnector(cfg.ServerID, peer, r,
			transport.WithHeartbeat(cfg.HeartbeatInterval, transport.DefaultMaxMissedPongs))
		conns = append(conns, c)
		tcp = append(tcp, c)
	}
	for _, peer := range sortedPeers(cfg.Peers) {
		add(peer, resolver)
	}
	// Clients dial in; their connectors never dial out.
	for _, id := range cfg.Clients {
		add(id, nil)
	}

	l, err := transport.Listen(cfg.ListenAddr, cfg.ServerID, nil, tcp...)
	if err != nil {
		closeDirectory(dir)
		return nil, fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}

	s, err := server.NewLocalServer(cfg.ServerID, cfg.WorkerNum, conns,
		server.WithUpdateInterval(cfg.UpdateInterval),
		server.WithCallTTL(cfg.CallTTL),
		server.WithPlacement(placement.NewConsistentHash(0)),
		server.WithRegistry(dir, advertiseAddr(cfg, l)),
		server.WithMiddleware(nodeMiddleware(cfg)...),
		server.WithVersion(version),
	)
	if err != nil {
		l.Close()
		closeDirectory(dir)
		return nil, err
	}
	for _, svc := range demoServices() {
		if err := s.AddService(svc); err != nil {
			l.Close()
			closeDirectory(dir)
			return nil, err
		}
	}
	return &node{server: s, listener: l, dir: dir}, nil
}

func (n *node) close() {
	if err := n.server.Shutdown(shutdownTimeout); err != nil {
		slog.Error("shutdown", "error", err)
	}
	if err := n.listener.Close(); err != nil {
		slog.Warn("close_listener", "error", err)
	}
	closeDirectory(n.dir)
}

// nodeMiddleware returns the lane handler chain, outermost first.
func nodeMiddleware(cfg *config.Config) []middleware.Middleware {
	mws := []middleware.Middleware{middleware.RecoveryMiddleware()}
	if cfg.LogLevel == "debug" {
		mws = append(mws, middleware.LoggingMiddleware())
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		mws = append(mws, middleware.RateLimitMiddleware(cfg.RateLimit, burst))
	}
	return mws
}

// openDirectory returns etcd when endpoints are configured, otherwise an
// in-memory directory local to this process.
func openDirectory(cfg *config.Config) (registry.Registry, error) {
	if !cfg.UsesEtcd() {
		return registry.NewMemoryRegistry(), nil
	}
	reg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints)
	if err != nil {
		return nil, fmt.Errorf("connect to etcd: %w", err)
	}
	return reg, nil
}

func closeDirectory(dir registry.Registry) {
	if c, ok := dir.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("close_directory", "error", err)
		}
	}
}

// advertiseAddr prefers ADVERTISE_ADDR, then the bound listener address
// (which resolves ":0" to the real port).
func advertiseAddr(cfg *config.Config, l *transport.Listener) string {
	if cfg.AdvertiseAddr != "" {
		return cfg.AdvertiseAddr
	}
	return l.Addr().String()
}

func sortedPeers(peers map[int32]string) []int32 {
	ids := make([]int32, 0, len(peers))
	for id := range peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// peerResolver resolves addresses listed in PEERS first and falls back to
// the directory for the rest.
type peerResolver struct {
	static transport.StaticResolver
	dir    transport.Resolver
}

func newResolver(peers map[int32]string, dir registry.Registry) *peerResolver {
	r := &peerResolver{static: make(transport.StaticResolver, len(peers))}
	for id, addr := range peers {
		if addr != "" {
			r.static[id] = addr
		}
	}
	if res, ok := dir.(transport.Resolver); ok {
		r.dir = res
	}
	return r
}

func (r *peerResolver) Resolve(serverID int32) (string, error) {
	addr, err := r.static.Resolve(serverID)
	if err == nil || r.dir == nil || !errors.Is(err, transport.ErrUnknownServer) {
		return addr, err
	}
	return r.dir.Resolve(serverID)
}
