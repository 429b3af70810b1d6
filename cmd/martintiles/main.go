// Command martintiles starts the tile server: it loads configuration,
// discovers sources (database tables/functions, SQLite archives), publishes
// them to the catalog, and serves the HTTP surface of spec §6.
//
// Grounded in the teacher's main.go (logger.Init, os.Getenv-driven startup,
// exit-on-fatal-error shape), generalized to the catalog/pipeline
// architecture and the exit codes spec §6 names: 1 configuration error, 2
// source validation error (strict mode), 3 fatal runtime error.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/logger"

	"github.com/tarkov-database/martin-tileserver/config"
	"github.com/tarkov-database/martin-tileserver/controller"
	"github.com/tarkov-database/martin-tileserver/core/archive"
	"github.com/tarkov-database/martin-tileserver/core/catalog"
	"github.com/tarkov-database/martin-tileserver/core/dbsource"
	"github.com/tarkov-database/martin-tileserver/core/pipeline"
	"github.com/tarkov-database/martin-tileserver/core/tilesource"
	"github.com/tarkov-database/martin-tileserver/middleware/cors"
	"github.com/tarkov-database/martin-tileserver/model"
	"github.com/tarkov-database/martin-tileserver/route"
)

func main() {
	fmt.Println("Starting up martin-tileserver")

	defLog := logger.Init("default", true, false, io.Discard)
	defer defLog.Close()

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("configuration error: %v", err)
		os.Exit(1)
	}

	cors.SetAllowedOrigins(cfg.CORSAllowedOrigins)

	cat := catalog.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pool *dbsource.Pool
	if cfg.DatabaseURL != "" {
		pool, err = dbsource.Open(ctx, dbsource.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			logger.Errorf("database connection failed: %v", err)
			os.Exit(3)
		}
	}

	if err := reload(ctx, cat, cfg, pool); err != nil {
		logger.Errorf("initial source load failed: %v", err)
		os.Exit(2)
	}

	if cfg.AutoReloadInterval > 0 {
		go autoReloadLoop(ctx, cat, cfg, pool)
	}

	cache, err := pipeline.NewCache(cfg.CacheMaxBytes, cfg.CacheEmptyTile)
	if err != nil {
		logger.Errorf("cache initialization failed: %v", err)
		os.Exit(3)
	}

	pl := pipeline.New(pipeline.Config{
		RequestTimeout: cfg.RequestTimeout,
		SourceTimeout:  cfg.SourceTimeout,
	}, cache)

	srv := &controller.Server{Catalog: cat, Pipeline: pl}

	httpSrv := &http.Server{
		Addr:    addrFromHostURL(cfg),
		Handler: route.Load(srv),
	}

	go func() {
		logger.Infof("listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("HTTP server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}

func addrFromHostURL(cfg *config.Config) string {
	if cfg.HostURL != nil && cfg.HostURL.Port() != "" {
		return ":" + cfg.HostURL.Port()
	}
	return ":3000"
}

// reload runs full source discovery (archives + database) and publishes
// the result to cat, implementing spec §4.D's auto-reload semantics for
// both the initial load and subsequent ticks.
func reload(ctx context.Context, cat *catalog.Catalog, cfg *config.Config, pool *dbsource.Pool) error {
	named := make(map[string]tilesource.Handle)
	used := make(map[string]bool)

	archives, err := loadArchives(cfg.TileDir)
	if err != nil {
		return err
	}
	for _, a := range archives {
		id := catalog.AssignID(a.stem, used)
		named[id] = archive.NewSourceHandle(id, a.reader)
	}

	if pool != nil {
		tables, err := dbsource.DiscoverTables(ctx, pool)
		if err != nil {
			logger.Warningf("table discovery failed: %v", err)
		}
		for _, t := range tables {
			id := catalog.AssignID(fmt.Sprintf("%s.%s", t.Schema, t.Table), used)
			named[id] = &dbsource.TableSource{
				ID:      id,
				Pool:    pool,
				Desc:    t,
				Opts:    dbsource.DefaultTileSourceOptions(),
				MinZoom: 0,
				MaxZoom: 22,
			}
		}

		functions, err := dbsource.DiscoverFunctions(ctx, pool)
		if err != nil {
			logger.Warningf("function discovery failed: %v", err)
		}
		for _, f := range functions {
			id := catalog.AssignID(fmt.Sprintf("%s.%s", f.Schema, f.Name), used)
			named[id] = &dbsource.FunctionSource{
				ID:      id,
				Pool:    pool,
				Desc:    f,
				MinZoom: 0,
				MaxZoom: 22,
			}
		}
	}

	if len(named) == 0 {
		model.SetInitAsFailed()
		return fmt.Errorf("no sources discovered in %q or database", cfg.TileDir)
	}

	cat.Publish(named)
	return nil
}

func autoReloadLoop(ctx context.Context, cat *catalog.Catalog, cfg *config.Config, pool *dbsource.Pool) {
	ticker := time.NewTicker(cfg.AutoReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := reload(ctx, cat, cfg, pool); err != nil {
				logger.Warningf("auto-reload failed: %v", err)
			}
		}
	}
}

type discoveredArchive struct {
	stem   string
	reader *archive.Reader
}

const archiveExtension = ".mbtiles"

func loadArchives(dir string) ([]discoveredArchive, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading tileset directory: %w", err)
	}

	var out []discoveredArchive
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != archiveExtension {
			continue
		}
		path := filepath.Join(dir, e.Name())
		reader, err := archive.Open(path)
		if err != nil {
			logger.Errorf("opening archive %q failed: %v", e.Name(), err)
			continue
		}
		stem := strings.TrimSuffix(e.Name(), archiveExtension)
		out = append(out, discoveredArchive{stem: stem, reader: reader})
	}
	return out, nil
}
