// ABOUTME: CLI entrypoint for the remora swarm daemon with serve, reconcile, and version modes.
// ABOUTME: Wires config/env loading, the SQLite stores, the event bus, the runner, and the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Bullish-Design/remora/bus"
	"github.com/Bullish-Design/remora/config"
	"github.com/Bullish-Design/remora/core"
	"github.com/Bullish-Design/remora/pathutil"
	"github.com/Bullish-Design/remora/reconcile"
	"github.com/Bullish-Design/remora/runner"
	"github.com/Bullish-Design/remora/server"
	"github.com/Bullish-Design/remora/store"
)

var version = "dev"

type cliConfig struct {
	serveMode     bool
	reconcileMode bool
	showVersion   bool
	configPath    string
	projectPath   string
}

func main() {
	_ = config.LoadDotEnv(".env")

	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("remoraswarmd %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

func parseFlags() cliConfig {
	var cfg cliConfig

	fs := flag.NewFlagSet("remoraswarmd", flag.ContinueOnError)
	fs.BoolVar(&cfg.serveMode, "serve", false, "Start the swarm daemon HTTP server")
	fs.BoolVar(&cfg.reconcileMode, "reconcile", false, "Run reconciliation once and exit")
	fs.StringVar(&cfg.configPath, "config", "", "Path to remora.yaml (default: discovered by walking up from cwd)")
	fs.StringVar(&cfg.projectPath, "project", "", "Project root to operate on (default: config's project_path)")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "remoraswarmd %s\n\n", version)
		fmt.Fprintf(os.Stderr, "Usage:\n  remoraswarmd -serve [-config path] [-project path]\n")
		fmt.Fprintf(os.Stderr, "  remoraswarmd -reconcile [-config path] [-project path]\n")
		fmt.Fprintf(os.Stderr, "  remoraswarmd -version\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	return cfg
}

func run(cfg cliConfig) int {
	switch {
	case cfg.serveMode:
		return runServe(cfg)
	case cfg.reconcileMode:
		return runReconcileOnce(cfg)
	default:
		flag.Usage()
		return 0
	}
}

type wiring struct {
	appCfg        config.Config
	projectRoot   string
	events        *store.SQLiteEventStore
	subscriptions *store.SQLiteSubscriptionRegistry
	agents        *store.SQLiteAgentRegistry
	states        *store.FSAgentStateStore
}

func wire(cfg cliConfig) (*wiring, error) {
	appCfg, err := config.Load(cfg.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	projectRoot := cfg.projectPath
	if projectRoot == "" {
		projectRoot = appCfg.ProjectPath
	}
	projectRoot, err = filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project path: %w", err)
	}

	swarmRoot := appCfg.SwarmRoot
	if !filepath.IsAbs(swarmRoot) {
		swarmRoot = filepath.Join(projectRoot, swarmRoot)
	}
	if err := os.MkdirAll(swarmRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create swarm root: %w", err)
	}

	events, err := store.OpenEventStore(filepath.Join(swarmRoot, "events.db"))
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}

	subs, err := store.OpenSubscriptionRegistry(filepath.Join(swarmRoot, "subscriptions.db"))
	if err != nil {
		return nil, fmt.Errorf("open subscription registry: %w", err)
	}

	agents, err := store.OpenAgentRegistry(filepath.Join(swarmRoot, "agents.db"))
	if err != nil {
		return nil, fmt.Errorf("open agent registry: %w", err)
	}

	states := store.NewFSAgentStateStore(swarmRoot)

	events.SetSubscriptions(subs)

	return &wiring{
		appCfg:        appCfg,
		projectRoot:   projectRoot,
		events:        events,
		subscriptions: subs,
		agents:        agents,
		states:        states,
	}, nil
}

func (w *wiring) Close() {
	_ = w.events.Close()
	_ = w.subscriptions.Close()
	_ = w.agents.Close()
}

// newDiscoverer builds the Discoverer used for reconciliation. There is
// no tree-sitter/symbol-level extraction in this runtime, so it walks
// the configured discovery paths and yields one node per file (no
// extension filter is set), honoring the workspace ignore-pattern and
// ignore-dotfiles settings.
func (w *wiring) newDiscoverer() reconcile.Discoverer {
	return reconcile.FileDiscoverer{
		IgnorePatterns: w.appCfg.WorkspaceIgnorePatterns,
		IgnoreDotfiles: w.appCfg.WorkspaceIgnoreDotfiles,
	}
}

func runServe(cfg cliConfig) int {
	w, err := wire(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer w.Close()

	env, err := config.LoadServerEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	b := bus.New()
	w.events.SetBus(b)

	resolver := pathutil.NewResolver(w.projectRoot)
	recon := reconcile.New(w.agents, w.subscriptions, w.states, w.events, w.newDiscoverer(), resolver, w.appCfg.SwarmID)

	appState := server.NewAppState(w.projectRoot, w.events, w.subscriptions, w.agents, w.states, b, recon)

	triggers, err := w.events.GetTriggers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if result, reconErr := recon.Run(w.projectRoot, w.appCfg.DiscoveryPaths, w.appCfg.DiscoveryLanguages); reconErr != nil {
		var partial *core.ReconcilerPartial
		if !errors.As(reconErr, &partial) {
			fmt.Fprintf(os.Stderr, "error: startup reconcile: %v\n", reconErr)
			return 1
		}
		fmt.Fprintf(os.Stderr, "warning: startup reconcile: %v\n", reconErr)
	} else {
		fmt.Fprintf(os.Stderr, "startup reconcile: created=%d orphaned=%d updated=%d total=%d\n",
			result.Created, result.Orphaned, result.Updated, result.Total)
	}

	runnerCfg := runner.Config{
		SwarmID:           w.appCfg.SwarmID,
		MaxConcurrency:    w.appCfg.MaxConcurrency,
		MaxTriggerDepth:   w.appCfg.MaxTriggerDepth,
		TriggerCooldownMs: w.appCfg.TriggerCooldownMs,
	}
	r := runner.New(runnerCfg, w.states, w.events, runner.NoopExecutor{})
	appState.TryStart(r, triggers)

	httpServer := &http.Server{
		Addr:    env.Bind,
		Handler: server.NewRouter(appState),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nshutting down...")
		appState.Stop()
		cancel()
	}()

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	fmt.Fprintf(os.Stderr, "listening on %s (project=%s)\n", env.Bind, w.projectRoot)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	return 0
}

func runReconcileOnce(cfg cliConfig) int {
	w, err := wire(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer w.Close()

	resolver := pathutil.NewResolver(w.projectRoot)
	recon := reconcile.New(w.agents, w.subscriptions, w.states, w.events, w.newDiscoverer(), resolver, w.appCfg.SwarmID)

	result, err := recon.Run(w.projectRoot, w.appCfg.DiscoveryPaths, w.appCfg.DiscoveryLanguages)
	if err != nil {
		var partial *core.ReconcilerPartial
		if !errors.As(err, &partial) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
	}

	fmt.Printf("reconcile: created=%d orphaned=%d updated=%d total=%d\n",
		result.Created, result.Orphaned, result.Updated, result.Total)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return 0
}
