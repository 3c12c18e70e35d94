package command

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lane-rpc/client"
	"lane-rpc/config"
	"lane-rpc/registry"
	"lane-rpc/transport"
)

func TestParseArgs(t *testing.T) {
	got := parseArgs([]string{"42", "-7", "2.5", "1e3", "true", "false", "hello", "True"})
	assert.Equal(t, []any{int64(42), int64(-7), 2.5, 1000.0, true, false, "hello", "True"}, got)
	assert.Empty(t, parseArgs(nil))
}

func TestPeerResolverPrefersStaticAddresses(t *testing.T) {
	dir := registry.NewMemoryRegistry()
	require.NoError(t, dir.Register(registry.ServerInstance{ServerID: 3, Addr: "10.0.0.3:7001"}, 10))
	require.NoError(t, dir.Register(registry.ServerInstance{ServerID: 2, Addr: "stale:1"}, 10))

	r := newResolver(map[int32]string{2: "10.0.0.2:7001", 3: ""}, dir)

	addr, err := r.Resolve(2)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:7001", addr)

	addr, err = r.Resolve(3)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3:7001", addr)

	_, err = r.Resolve(4)
	assert.Error(t, err)
}

func TestNodeMiddleware(t *testing.T) {
	cfg := &config.Config{LogLevel: "info"}
	assert.Len(t, nodeMiddleware(cfg), 1)

	cfg = &config.Config{LogLevel: "debug", RateLimit: 100}
	assert.Len(t, nodeMiddleware(cfg), 3)
}

func TestSortedPeers(t *testing.T) {
	assert.Equal(t, []int32{2, 5, 9}, sortedPeers(map[int32]string{9: "", 2: "", 5: ""}))
}

func TestCallResolverNeedsAddressOrEtcd(t *testing.T) {
	_, _, err := callResolver(1, "", nil)
	assert.Error(t, err)

	r, closeFn, err := callResolver(1, "127.0.0.1:7001", nil)
	require.NoError(t, err)
	defer closeFn()
	addr, err := r.Resolve(1)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", addr)
}

func testConfig() *config.Config {
	return &config.Config{
		ServerID:          1,
		WorkerNum:         2,
		UpdateInterval:    10 * time.Millisecond,
		CallTTL:           2 * time.Second,
		ListenAddr:        "127.0.0.1:0",
		Peers:             map[int32]string{},
		Clients:           []int32{100, 101},
		HeartbeatInterval: time.Second,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

func startTestNode(t *testing.T) *node {
	t.Helper()
	n, err := buildNode(testConfig())
	require.NoError(t, err)
	require.NoError(t, n.server.Start())
	go n.listener.Serve(n.server.Handle())
	t.Cleanup(n.close)
	return n
}

func TestNodeServesDemoServices(t *testing.T) {
	n := startTestNode(t)

	inst, err := n.dir.Discover(1)
	require.NoError(t, err)
	assert.Equal(t, n.listener.Addr().String(), inst.Addr)
	assert.Equal(t, 2, inst.Workers)
	assert.Equal(t, version, inst.Version)

	cli, err := client.NewClient(100, transport.StaticResolver{1: n.listener.Addr().String()}, []int32{1})
	require.NoError(t, err)
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, cli.WaitConnected(ctx))

	got, err := cli.Invoke(ctx, 1, "echo.Echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	got, err = cli.Invoke(ctx, 1, "arith.Mul", 6, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	_, err = cli.Invoke(ctx, 1, "arith.Div", 1, 0)
	assert.ErrorContains(t, err, "divide by zero")

	_, err = cli.Invoke(ctx, 1, "kv.Put", "color", "blue")
	require.NoError(t, err)
	got, err = cli.Invoke(ctx, 1, "kv.Get", "color")
	require.NoError(t, err)
	assert.Equal(t, "blue", got)
	got, err = cli.Invoke(ctx, 1, "kv.Keys")
	require.NoError(t, err)
	assert.Equal(t, []string{"color"}, got)
}

func TestCallCommand(t *testing.T) {
	n := startTestNode(t)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"call", "--id", "101", "--addr", n.listener.Addr().String(), "arith.Add", "2", "3"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "5\n", out.String())
}
