package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mnohosten/agentstate/internal/engine"
	"github.com/mnohosten/agentstate/internal/facade"
	"github.com/mnohosten/agentstate/internal/logging"
	"github.com/mnohosten/agentstate/internal/storage"
)

func main() {
	host := flag.String("host", "localhost", "facade host address")
	port := flag.Int("port", 8080, "facade port")
	dataDir := flag.String("data-dir", "", "data directory for durable disk storage; empty means in-memory only")
	syncOnWrite := flag.Bool("sync-on-write", false, "fsync after every WriteState (durability over throughput)")
	compressSnapshots := flag.Bool("compress-snapshots", true, "zstd-compress snapshot files")
	encryptionPassphrase := flag.String("encryption-passphrase", "", "enable AES-256-GCM snapshot encryption with this passphrase")
	corsOrigin := flag.String("cors-origin", "*", "CORS allowed origin")
	enableGraphQL := flag.Bool("graphql", false, "enable the GraphQL facade at /graphql")
	snapshotInterval := flag.Int("snapshot-interval", 1000, "commits between automatic snapshots; 0 disables")
	jsonLogs := flag.Bool("json-logs", false, "emit logs as JSON instead of a human-readable console")
	flag.Parse()

	logging.Init(logging.Config{
		Level:      logging.InfoLevel,
		JSONOutput: *jsonLogs,
		Output:     os.Stderr,
	})
	log := logging.WithComponent("main")

	backend, err := openBackend(*dataDir, *syncOnWrite, *compressSnapshots, *encryptionPassphrase)
	if err != nil {
		log.Error().Err(err).Msg("failed to open storage backend")
		os.Exit(1)
	}

	engCfg := engine.DefaultConfig()
	engCfg.SnapshotInterval = *snapshotInterval
	eng, err := engine.New(backend, engCfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to start engine")
		os.Exit(1)
	}

	facadeCfg := facade.DefaultConfig()
	facadeCfg.Host = *host
	facadeCfg.Port = *port
	facadeCfg.AllowedOrigins = []string{*corsOrigin}
	facadeCfg.EnableGraphQL = *enableGraphQL

	srv := facade.New(eng, facadeCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("facade exited with error")
		os.Exit(1)
	}
}

// openBackend picks a durable on-disk backend when dataDir is set, or an
// in-memory one otherwise. agentstate instances used for scratch sessions
// or tests run fine without a data directory at all.
func openBackend(dataDir string, syncOnWrite, compressSnapshots bool, encryptionPassphrase string) (storage.Backend, error) {
	if dataDir == "" {
		return storage.NewMemoryBackend(), nil
	}

	cfg := storage.DefaultConfig(dataDir)
	cfg.SyncOnWrite = syncOnWrite
	cfg.CompressSnapshot = compressSnapshots
	if encryptionPassphrase != "" {
		cfg.Encryption = storage.EncryptionConfig{Enabled: true, Passphrase: encryptionPassphrase}
	}

	backend, err := storage.OpenDiskBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("open disk backend at %q: %w", dataDir, err)
	}
	return backend, nil
}
