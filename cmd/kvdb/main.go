package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/kvdb/pkg/config"
	"github.com/cuemby/kvdb/pkg/kv"
	"github.com/cuemby/kvdb/pkg/log"
	"github.com/cuemby/kvdb/pkg/metrics"
	"github.com/cuemby/kvdb/pkg/mvcc"
	"github.com/cuemby/kvdb/pkg/pager"
	"github.com/cuemby/kvdb/pkg/server"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "kvdb",
	Short:   "kvdb is an embeddable single-node SQL database engine",
	Version: Version,
	RunE:    runServer,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("kvdb version %s\nCommit: %s\n", Version, Commit))
	rootCmd.Flags().StringP("config", "c", "", "path to a YAML config file (defaults are used when omitted)")
	rootCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "address for the metrics/health HTTP endpoint")
}

func runServer(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: true})

	store, collector, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer closeStore()
	mv := mvcc.New(store, cfg.ID)

	metrics.RegisterComponent("storage", true, "ready")
	metrics.RegisterComponent("wire", false, "initializing")

	if collector != nil {
		collector.Start()
		defer collector.Stop()
	}

	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.Error("metrics server error: " + err.Error())
		}
	}()
	log.Info("metrics endpoint: http://" + metricsAddr + "/metrics")

	srv := server.New(mv)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(cfg.ListenSQL); err != nil {
			errCh <- err
		}
	}()
	metrics.RegisterComponent("wire", true, "ready")
	log.Info("listening on " + cfg.ListenSQL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	return srv.Close()
}

// openStore constructs the kv.Store backing cfg.StorageSQL: an in-memory
// store, or a pager-backed FileStore rooted at cfg.DataDir. For the latter
// it also returns a metrics.Collector sampling the pager's cache gauges.
// closeStore releases whatever openStore opened; it is always non-nil and
// safe to defer unconditionally.
func openStore(cfg config.Config) (kv.Store, *metrics.Collector, func(), error) {
	switch cfg.StorageSQL {
	case "file":
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, nil, nil, fmt.Errorf("creating data directory %q: %w", cfg.DataDir, err)
		}
		dbPath := filepath.Join(cfg.DataDir, cfg.ID+".db")
		noSync := cfg.Sync != nil && !*cfg.Sync
		fs, err := pager.OpenFileStore(dbPath, pager.Config{NoSync: noSync})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening file store at %q: %w", dbPath, err)
		}
		collector := metrics.NewCollector(fs)
		closeStore := func() {
			if err := fs.Close(); err != nil {
				log.Error("closing file store: " + err.Error())
			}
		}
		return fs, collector, closeStore, nil
	default:
		return kv.NewMemoryStore(), nil, func() {}, nil
	}
}
