// Command pkgforged runs the IPA relay/packager service: the HTTP API
// (downloads, packages, install links, upstream proxies) and the Wisp
// tunnel endpoint, over one of two storage backends.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/urfave/cli"

	"github.com/pkgforge/pkgforge/internal/config"
	"github.com/pkgforge/pkgforge/internal/httpapi"
	"github.com/pkgforge/pkgforge/internal/storage"
	"github.com/pkgforge/pkgforge/internal/task"
	"github.com/pkgforge/pkgforge/pkg/logger"
)

// these variables are set at build time via -ldflags.
var (
	version string = "dev"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "pkgforged: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	config.Version = version

	app := cli.App{
		Name:  "pkgforged",
		Usage: "IPA relay/packager and Wisp tunnel service",
		Flags: []cli.Flag{
			cli.IntFlag{Name: "port", Usage: "listen port", EnvVar: "PORT"},
			cli.StringFlag{Name: "data-dir", Usage: "data directory", EnvVar: "DATA_DIR"},
			cli.StringFlag{Name: "public-base-url", Usage: "public base URL for install links", EnvVar: "PUBLIC_BASE_URL"},
			cli.StringFlag{Name: "public-dir", Usage: "static UI root", EnvVar: "PUBLIC_DIR"},
			cli.StringFlag{Name: "storage-backend", Usage: "file or sqlite", EnvVar: "STORAGE_BACKEND"},
		},
		Action: serve,
	}
	return app.Run(args)
}

func serve(c *cli.Context) error {
	cfg := config.FromEnv()
	if v := c.Int("port"); v > 0 {
		cfg.Port = v
	}
	if v := c.String("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v := c.String("public-base-url"); v != "" {
		cfg.PublicBaseURL = v
	}
	if v := c.String("public-dir"); v != "" {
		cfg.PublicDir = v
	}
	if v := c.String("storage-backend"); v != "" {
		cfg.StorageBackend = v
	}

	lg := logger.NewStandardLogger(log.Default())

	blobs := storage.NewLocalBlobStore(cfg.PackagesDir())

	var taskStore storage.TaskStore
	switch cfg.StorageBackend {
	case "sqlite":
		db, err := storage.NewSQLiteTaskStore(cfg.SQLitePath())
		if err != nil {
			return fmt.Errorf("open sqlite task store: %w", err)
		}
		defer db.Close()
		taskStore = db
	default:
		taskStore = storage.NewJSONTaskStore(cfg.TasksFile())
	}

	manager := task.NewManager(blobs, taskStore, lg)
	if err := manager.LoadPersisted(); err != nil {
		return fmt.Errorf("load persisted tasks: %w", err)
	}
	if err := manager.Sweep(); err != nil {
		lg.Warning("orphan sweep failed: %v", err)
	}

	server := httpapi.New(manager, cfg, lg)

	mux := http.NewServeMux()
	if cfg.PublicDir != "" {
		mux.Handle("/api/", server)
		mux.Handle("/wisp/", server)
		mux.Handle("/", http.FileServer(http.Dir(cfg.PublicDir)))
	} else {
		mux.Handle("/", server)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	lg.Info("listening on %s (data dir %s, storage %s)", addr, cfg.DataDir, cfg.StorageBackend)
	return http.ListenAndServe(addr, mux)
}
