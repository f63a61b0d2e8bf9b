// Package main is the Shirabe CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nakatsu/shirabe/internal/backend"
	"github.com/nakatsu/shirabe/internal/bus"
	"github.com/nakatsu/shirabe/internal/cli"
	"github.com/nakatsu/shirabe/internal/config"
	"github.com/nakatsu/shirabe/internal/history"
	"github.com/nakatsu/shirabe/internal/models"
	"github.com/nakatsu/shirabe/internal/pdfmeta"
	"github.com/nakatsu/shirabe/internal/server"
	"github.com/nakatsu/shirabe/internal/session"
	"github.com/nakatsu/shirabe/internal/store"
	"github.com/nakatsu/shirabe/internal/watcher"
	"github.com/nakatsu/shirabe/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/shirabe/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "shirabe serve" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve":
		runServe()
	case "analyze":
		runAnalyze(models.ModeIndividual)
	case "compare":
		runAnalyze(models.ModeCompare)
	case "guidelines":
		runGuidelines()
	case "history":
		runHistory()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("shirabe version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (watch events, backend invocations, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	sess := components.Session
	sess.Start()
	defer sess.Stop()
	if restored, err := sess.LoadHistory(context.Background()); err != nil {
		logger.Warn("history restore failed", zap.Error(err))
	} else if restored > 0 {
		logger.Info("working set restored from history", zap.Int("records", restored))
	}

	b := components.Bus
	watchOpts := []watcher.WatcherOption{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			b.Publish(models.ChannelDetected, models.DetectedEvent{
				Path: path,
				Name: filepath.Base(path),
			})
		},
		func(path string) {
			if sess.Store().RemoveByPath(path) {
				logger.Info("document removed from working set", zap.String("path", path))
			}
		},
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.ScanExistingFiles()

	srv := server.NewServer(sess, b, cfg, logger,
		server.WithHistoryStore(components.History),
		server.WithWatcher(watchSvc),
		server.WithConfigPath(resolvedConfigPath),
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runAnalyze(mode string) {
	name := "analyze"
	if mode == models.ModeCompare {
		name = "compare"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	instruction := fs.String("instruction", "", "additional instruction passed to the analyzer")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Printf("Usage: shirabe %s [flags] <file.pdf> [file.pdf ...]\n", name)
		os.Exit(1)
	}
	format, ok := parseOutputFormat(*outputFormat)
	if !ok {
		fmt.Printf("Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	logger, components := mustInitialize(*configPath)
	defer logger.Sync()
	defer components.Close()

	printLogEvents(components.Bus)

	sess := components.Session
	for _, arg := range fs.Args() {
		abs, err := filepath.Abs(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid path %q: %v\n", arg, err)
			os.Exit(1)
		}
		if _, err := os.Stat(abs); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot read %s: %v\n", abs, err)
			os.Exit(1)
		}
		sess.AddFile(abs)
	}
	sess.Store().SelectAll()
	sess.SetInstruction(*instruction)

	if _, err := sess.Analyze(context.Background(), mode); err != nil {
		fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteRecords(os.Stdout, sess.Store().Records(), format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runGuidelines() {
	fs := flag.NewFlagSet("guidelines", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	instruction := fs.String("instruction", "", "additional instruction passed to the analyzer")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: shirabe guidelines [flags] <file.pdf> [file.pdf ...]")
		os.Exit(1)
	}

	logger, components := mustInitialize(*configPath)
	defer logger.Sync()
	defer components.Close()

	printLogEvents(components.Bus)

	sess := components.Session
	for _, arg := range fs.Args() {
		abs, err := filepath.Abs(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid path %q: %v\n", arg, err)
			os.Exit(1)
		}
		sess.AddFile(abs)
	}
	sess.Store().SelectAll()
	sess.SetInstruction(*instruction)

	doc, err := sess.Guidelines(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Guideline generation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(doc)
}

func runHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	folder := fs.String("folder", "", "show entries for one project folder")
	limit := fs.Int("limit", 20, "number of entries (ignored with -folder)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, ok := parseOutputFormat(*outputFormat)
	if !ok {
		fmt.Printf("Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	hist, err := history.NewStore(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Printf("Failed to open history: %v\n", err)
		os.Exit(1)
	}
	defer hist.Close()

	ctx := context.Background()
	var entries []*models.HistoryEntry
	if *folder != "" {
		abs, _ := filepath.Abs(*folder)
		entries, err = hist.ByFolder(ctx, abs)
	} else {
		entries, err = hist.Recent(ctx, *limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "History query failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteHistory(os.Stdout, entries, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: shirabe watch <add|remove|list> [path]")
		fmt.Println("  shirabe watch add <path>     Add directory to watch")
		fmt.Println("  shirabe watch remove <path>  Remove directory from watch")
		fmt.Println("  shirabe watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[3:])
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: shirabe watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]any{"path": path, "scan": true})
		resp, err := http.Post(*serverURL+"/api/v1/watch/directories", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Add failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: shirabe watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Remove failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/watch/directories")
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("List failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	History *history.Store
	Bus     *bus.Bus
	Session *session.Session
}

func (c *Components) Close() {
	if c.Session != nil {
		c.Session.Stop()
	}
	if c.History != nil {
		_ = c.History.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	hist, err := history.NewStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history: %w", err)
	}
	codec := pdfmeta.New()
	b := bus.New()

	analyzer := backend.NewCLI(backend.Config{
		Binary:      cfg.Backend.Binary,
		Model:       cfg.Backend.Model,
		Timeout:     cfg.Backend.Timeout(),
		MaxParallel: cfg.Backend.MaxParallel,
	}, b, hist, codec, backend.WithLogger(logger))

	sess := session.New(store.New(), b, analyzer,
		session.WithHistory(hist),
		session.WithMeta(codec),
		session.WithLogger(logger),
	)
	return &Components{History: hist, Bus: b, Session: sess}, nil
}

func mustInitialize(configPath string) (*zap.Logger, *Components) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return logger, components
}

// printLogEvents mirrors run log events onto stderr so terminal runs show the
// same progress messages the API streams.
func printLogEvents(b *bus.Bus) {
	b.Subscribe(models.ChannelLog, func(ev any) {
		le, ok := ev.(models.LogEvent)
		if !ok {
			return
		}
		fmt.Fprintf(os.Stderr, "[%s] %s\n", le.Level, le.Message)
	})
}

func parseOutputFormat(s string) (cli.OutputFormat, bool) {
	switch s {
	case "json":
		return cli.OutputJSON, true
	case "text", "":
		return cli.OutputText, true
	default:
		return cli.OutputText, false
	}
}

func printUsage() {
	fmt.Println(`shirabe - Construction document checker

Usage:
  shirabe serve [flags]                Start the HTTP server
  shirabe analyze [flags] <files...>   Analyze PDFs individually
  shirabe compare [flags] <files...>   Compare PDFs against each other
  shirabe guidelines [flags] <files..> Regenerate folder guidelines from analyzed PDFs
  shirabe history [flags]              Show analysis history
  shirabe watch <add|remove|list>      Manage watched directories
  shirabe version                      Show version
  shirabe help                         Show this help

Serve Flags:
  --config string    Config file path (default: /usr/local/etc/shirabe/config.yaml)
  --debug            Enable debug logging (watch events, backend invocations, etc.)

Analyze/Compare Flags:
  --config string       Config file path
  --instruction string  Additional instruction passed to the analyzer
  --output string       Output format: text or json (default: text)

Guidelines Flags:
  --config string       Config file path
  --instruction string  Additional instruction passed to the analyzer

History Flags:
  --config string    Config file path
  --folder string    Show entries for one project folder
  --limit int        Number of entries (default: 20)
  --output string    Output format: text or json (default: text)

Watch Flags:
  --server string    Server URL (default: http://localhost:8080)

Examples:
  shirabe serve
  shirabe analyze contract.pdf invoice.pdf
  shirabe compare --instruction "focus on totals" estimate.pdf invoice.pdf
  shirabe guidelines *.pdf
  shirabe history --folder /path/to/project
  shirabe watch add /path/to/docs`)
}
