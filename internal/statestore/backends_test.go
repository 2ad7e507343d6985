package statestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sitegen/internal/config"
)

func TestRedisConformance(t *testing.T) {
	runConformance(t, func(t *testing.T) Store {
		mr := miniredis.RunT(t)
		s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:run:")
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRedisKeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	defer s.Close()

	require.NoError(t, s.Save(context.Background(), "run-a", "fp", []byte("x")))
	assert.Equal(t, "fp", mr.HGet("sitegen:run:run-a", "fingerprint"))
	members, err := mr.Members("sitegen:run:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a"}, members)
}

func TestSQLiteConformance(t *testing.T) {
	runConformance(t, func(t *testing.T) Store {
		s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state", "runs.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "run-a", "fp", []byte("x")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	rec, err := s.Load(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, "fp", rec.Fingerprint)
}

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)
	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func TestNATSConformance(t *testing.T) {
	server := startTestNATSServer(t)
	n := 0
	runConformance(t, func(t *testing.T) Store {
		nc, err := nats.Connect(server.ClientURL())
		require.NoError(t, err)
		t.Cleanup(nc.Close)
		n++
		s, err := NewNATS(nc, "runs_"+string(rune('a'+n)))
		require.NoError(t, err)
		return s
	})
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	cfg.Store.Backend = "sqlite"
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "runs.db")
	s, err = Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	require.NoError(t, s.Close())

	mr := miniredis.RunT(t)
	cfg.Store.Backend = "redis"
	cfg.Redis.Addr = mr.Addr()
	s, err = Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, s)
	require.NoError(t, s.Close())

	server := startTestNATSServer(t)
	cfg.Store.Backend = "nats"
	cfg.NATS.URL = server.ClientURL()
	s, err = Open(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &NATS{}, s)
	require.NoError(t, s.Close())

	cfg.Store.Backend = "etcd"
	_, err = Open(ctx, cfg)
	assert.Error(t, err)
}
