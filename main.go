package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/clickweave/clickweave/api"
	"github.com/clickweave/clickweave/config"
	"github.com/clickweave/clickweave/input"
	"github.com/clickweave/clickweave/input/browser"
	"github.com/clickweave/clickweave/input/desktop"
	"github.com/clickweave/clickweave/mcp"
	"github.com/clickweave/clickweave/pkg/logger"
	"github.com/clickweave/clickweave/services/automation"
	"github.com/clickweave/clickweave/services/coordinator"
	"github.com/clickweave/clickweave/services/scheduler"
	"github.com/clickweave/clickweave/storage"
)

// Build information, injected through LDFLAGS.
var (
	Version   = "v0.1.0"
	BuildTime = ""
	GoVersion = ""
)

func main() {
	port := flag.String("port", "", "Server port (default: 8080)")
	host := flag.String("host", "", "Server host (default: 127.0.0.1)")
	configPath := flag.String("config", "config.toml", "Path to config file")
	backend := flag.String("input", "", "Input backend: desktop, browser or dryrun")
	issueToken := flag.String("issue-token", "", "Print an API token for the given subject and exit")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Go Version: %s\n", GoVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *backend != "" {
		cfg.Input.Backend = *backend
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid -input: %v", err)
		}
	}

	logger.InitLogger(&cfg.Log)
	ctx := context.Background()

	if *issueToken != "" {
		token, err := api.IssueToken(cfg.Auth, *issueToken, cfg.TokenTTL())
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		os.Exit(0)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}
	db, err := storage.NewBoltDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Println("✓ Database initialization successful")

	surface, closeSurface, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s input backend: %v", cfg.Input.Backend, err)
	}
	log.Printf("✓ Input backend ready: %s", cfg.Input.Backend)

	coord := coordinator.New(db, surface, coordinatorOptions(cfg))
	if err := coord.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize automation: %v", err)
	}
	log.Println("✓ Automation coordinator initialized successfully")

	var mcpHandler http.Handler
	if cfg.MCP.Enabled {
		mcpHandler = mcp.NewMCPServer(coord, Version, cfg.MCP.Path)
		log.Printf("✓ MCP server mounted at %s", cfg.MCP.Path)
	}

	handler := api.NewHandler(coord, cfg)
	router := api.SetupRouter(handler, mcpHandler, cfg.MCP.Path, cfg.Debug)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 ClickWeave server started at http://%s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	waitForShutdown(srv, coord, db, closeSurface)
}

// openBackend builds the configured input surface and its cleanup func.
func openBackend(ctx context.Context, cfg *config.Config) (input.Backend, func(), error) {
	switch cfg.Input.Backend {
	case config.BackendBrowser:
		b, err := browser.Open(ctx, cfg.Input.Browser)
		if err != nil {
			return nil, nil, err
		}
		return b, func() {
			if err := b.Close(); err != nil {
				log.Printf("Failed to close browser: %v", err)
			}
		}, nil
	case config.BackendDryRun:
		return input.NewDryRun(cfg.Input.DryRun.Width, cfg.Input.DryRun.Height), func() {}, nil
	default:
		d := desktop.New()
		if _, _, err := d.ScreenSize(ctx); err != nil {
			return nil, nil, err
		}
		return d, func() {}, nil
	}
}

func coordinatorOptions(cfg *config.Config) coordinator.Options {
	corner, err := automation.ParseCorner(cfg.Safety.FailsafeCorner)
	if err != nil {
		corner = automation.CornerTopLeft
	}
	return coordinator.Options{
		Controller: automation.Options{
			StopGrace:  cfg.StopGrace(),
			MoveSettle: cfg.MoveSettle(),
			LoopGap:    cfg.LoopGap(),
			Failsafe: automation.Failsafe{
				Enabled: cfg.Safety.FailsafeEnabled,
				Corner:  corner,
				Size:    cfg.Safety.FailsafeSize,
			},
			Timing: automation.NewTimingSource(),
		},
		Scheduler: scheduler.Options{
			Workers:  cfg.Scheduler.Workers,
			Location: cfg.Location(),
		},
		MaxLogEntries:          cfg.History.MaxEntries,
		StopWatcherOnEmergency: cfg.Safety.StopWatcherOnEmergency,
	}
}

// waitForShutdown blocks until SIGINT or SIGTERM, then stops automation
// before the input surface and the database go away.
func waitForShutdown(srv *http.Server, coord *coordinator.Coordinator, db *storage.BoltDB, closeSurface func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.Println("✓ Graceful shutdown mechanism started (Ctrl+C stops any running automation)")

	sig := <-sigChan
	log.Printf("Received exit signal: %v", sig)

	// Event streams hold connections open, so the HTTP drain gets its own
	// deadline.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Println("Stopping automation...")
	if err := coord.Shutdown(ctx); err != nil {
		log.Printf("Failed to stop automation: %v", err)
	} else {
		log.Println("✓ Automation stopped")
	}

	closeSurface()

	log.Println("Closing database...")
	if err := db.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
	} else {
		log.Println("✓ Database closed")
	}
	log.Println("Program exited")
}
