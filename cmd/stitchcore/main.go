// Command stitchcore serves the needle assignment engine over HTTP.
//
// Configuration comes from STITCHCORE_* environment variables (see
// internal/core/storage.go and internal/blob for the full list), optionally
// filled in from a YAML file passed with -config. Environment values win over
// file values. The listen address resolves from -addr, then
// STITCHCORE_LISTEN_ADDR, then :8009.
package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"stitchcore/internal/adapters/needleapi"
	"stitchcore/internal/blob"
	"stitchcore/internal/core"
)

const defaultListenAddr = ":8009"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		log.Fatalf("stitchcore: %v", err)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stitchcore", flag.ContinueOnError)
	var (
		addr       string
		configPath string
	)
	fs.StringVar(&addr, "addr", "", "listen address (overrides STITCHCORE_LISTEN_ADDR)")
	fs.StringVar(&configPath, "config", "", "path to optional YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if configPath != "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		cfg.apply()
	}

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	listen := resolveListenAddr(addr)
	server := &http.Server{
		Addr:              listen,
		Handler:           app.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// config mirrors the STITCHCORE_* environment variables. apply fills only the
// variables the environment leaves unset, so deployments can pin individual
// settings without editing the file.
type config struct {
	ListenAddr   string `yaml:"listen_addr,omitempty"`
	SeedDefaults bool   `yaml:"seed_defaults,omitempty"`
	Storage      struct {
		Driver      string `yaml:"driver,omitempty"`
		SQLitePath  string `yaml:"sqlite_path,omitempty"`
		PostgresDSN string `yaml:"postgres_dsn,omitempty"`
	} `yaml:"storage,omitempty"`
	Blob struct {
		Driver string `yaml:"driver,omitempty"`
		FSRoot string `yaml:"fs_root,omitempty"`
		S3     struct {
			Bucket         string `yaml:"bucket,omitempty"`
			Region         string `yaml:"region,omitempty"`
			Endpoint       string `yaml:"endpoint,omitempty"`
			AccessKey      string `yaml:"access_key,omitempty"`
			SecretKey      string `yaml:"secret_key,omitempty"`
			ForcePathStyle bool   `yaml:"force_path_style,omitempty"`
			PresignTTL     string `yaml:"presign_ttl,omitempty"`
		} `yaml:"s3,omitempty"`
	} `yaml:"blob,omitempty"`
}

func loadConfig(path string) (config, error) {
	var cfg config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c config) apply() {
	setIfUnset("STITCHCORE_LISTEN_ADDR", c.ListenAddr)
	if c.SeedDefaults {
		setIfUnset("STITCHCORE_SEED_DEFAULTS", "true")
	}
	setIfUnset("STITCHCORE_STORAGE_DRIVER", c.Storage.Driver)
	setIfUnset("STITCHCORE_SQLITE_PATH", c.Storage.SQLitePath)
	setIfUnset("STITCHCORE_POSTGRES_DSN", c.Storage.PostgresDSN)
	setIfUnset("STITCHCORE_BLOB_DRIVER", c.Blob.Driver)
	setIfUnset("STITCHCORE_BLOB_FS_ROOT", c.Blob.FSRoot)
	setIfUnset("STITCHCORE_S3_BUCKET", c.Blob.S3.Bucket)
	setIfUnset("STITCHCORE_S3_REGION", c.Blob.S3.Region)
	setIfUnset("STITCHCORE_S3_ENDPOINT", c.Blob.S3.Endpoint)
	setIfUnset("STITCHCORE_S3_ACCESS_KEY", c.Blob.S3.AccessKey)
	setIfUnset("STITCHCORE_S3_SECRET_KEY", c.Blob.S3.SecretKey)
	if c.Blob.S3.ForcePathStyle {
		setIfUnset("STITCHCORE_S3_FORCE_PATH_STYLE", "true")
	}
	setIfUnset("STITCHCORE_S3_PRESIGN_TTL", c.Blob.S3.PresignTTL)
}

func setIfUnset(key, value string) {
	if value == "" {
		return
	}
	if _, present := os.LookupEnv(key); present {
		return
	}
	_ = os.Setenv(key, value)
}

func resolveListenAddr(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if addr := os.Getenv("STITCHCORE_LISTEN_ADDR"); addr != "" {
		return addr
	}
	return defaultListenAddr
}

func seedDefaultsEnabled() bool {
	raw := os.Getenv("STITCHCORE_SEED_DEFAULTS")
	if raw == "" {
		return false
	}
	enabled, err := strconv.ParseBool(raw)
	return err == nil && enabled
}

// app holds the wired engine components behind the HTTP mux.
type app struct {
	mux    *http.ServeMux
	store  core.PersistentStore
	worker *needleapi.Worker
}

func buildApp(ctx context.Context) (*app, error) {
	engine := core.NewDefaultRulesEngine()
	store, err := core.OpenPersistentStore(engine)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	blobStore, err := blob.Open(ctx)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	registry := prometheus.NewRegistry()
	promRecorder, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	metrics := teeMetrics{promRecorder, core.NewExpvarMetricsRecorder("")}
	auditor := logAuditRecorder{}

	svc := core.NewService(store,
		core.WithAssignmentCache(core.NewAssignmentCache(blobStore)),
		core.WithAuditRecorder(auditor),
		core.WithMetricsRecorder(metrics),
		core.WithDefaultAssignments(seedDefaultsEnabled()),
	)

	worker := needleapi.NewWorker(svc, blobStore, auditor)
	worker.Start()

	handler := needleapi.NewHandler(svc)
	handler.Exports = worker

	mux := http.NewServeMux()
	mux.Handle("/api/", handler)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())

	return &app{mux: mux, store: store, worker: worker}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.worker.Stop(ctx); err != nil {
		log.Printf("stop export worker: %v", err)
	}
	closeStore(a.store)
}

func closeStore(store core.PersistentStore) {
	if closer, ok := store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}
}

// teeMetrics fans every observation out to all configured recorders.
type teeMetrics []core.MetricsRecorder

func (t teeMetrics) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, rec := range t {
		rec.Observe(ctx, operation, success, duration)
	}
}

// logAuditRecorder writes audit entries to the process log.
type logAuditRecorder struct{}

func (logAuditRecorder) Record(_ context.Context, entry core.AuditEntry) {
	if entry.Status == core.AuditStatusError {
		log.Printf("audit %s %s entity=%s id=%s error=%q", entry.Operation, entry.Status, entry.Entity, entry.EntityID, entry.Error)
		return
	}
	log.Printf("audit %s %s entity=%s id=%s detail=%q", entry.Operation, entry.Status, entry.Entity, entry.EntityID, entry.Detail)
}
