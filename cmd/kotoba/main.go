// Package main is the kotoba CLI entry point.
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
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/cli"
	"github.com/hyperjump/kotoba/internal/config"
	"github.com/hyperjump/kotoba/internal/invalidation"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/server"
	"github.com/hyperjump/kotoba/internal/watcher"
	"github.com/hyperjump/kotoba/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kotoba/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development) and uses it if present.
// Returns the config and the path that was actually loaded.
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
	case "server":
		runServer()
	case "rewrite":
		runRewrite()
	case "classify":
		runClassify()
	case "index":
		runIndex()
	case "rules":
		runRules()
	case "invalidate":
		runInvalidate()
	case "version", "--version", "-v":
		fmt.Printf("kotoba version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// openDirect loads config and initializes components for commands that work
// without a running server.
func openDirect(configPath string, debug bool) (*Components, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewCommandLogger(cfg.Debug || debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	return components, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchOpts := []watcher.Option{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}

	if cfg.Rules.File != "" {
		if _, err := components.ImportRules(ctx, cfg.Rules.File); err != nil {
			logger.Fatal("Failed to import rules", zap.String("path", cfg.Rules.File), zap.Error(err))
		}
		if cfg.Rules.Watch {
			rulesWatch := watcher.ForFile(cfg.Rules.File, func(path string) {
				if _, err := components.ImportRules(ctx, path); err != nil {
					logger.Warn("rule reload failed; keeping previous rules", zap.String("path", path), zap.Error(err))
				}
			}, watchOpts...)
			if err := rulesWatch.Start(ctx); err != nil {
				logger.Fatal("Failed to watch rules", zap.Error(err))
			}
			defer rulesWatch.Stop()
		}
	}

	if len(cfg.Ingest.Directories) > 0 {
		idx := components.Indexer(cfg.Ingest.Index)
		onChange := func(path string) {
			if _, err := idx.IndexFile(ctx, path); err != nil {
				logger.Warn("corpus index file failed", zap.String("path", path), zap.Error(err))
			}
		}
		corpusWatch := watcher.New(cfg.Ingest.Directories, onChange, func(path string) {
			if err := idx.RemoveFile(ctx, path); err != nil {
				logger.Warn("corpus remove file failed", zap.String("path", path), zap.Error(err))
			}
		}, append(watchOpts, watcher.WithRecursive(), watcher.WithExtensions(cfg.Ingest.Extensions...))...)
		if cfg.Ingest.Watch {
			if err := corpusWatch.Start(ctx); err != nil {
				logger.Fatal("Failed to watch corpus", zap.Error(err))
			}
			defer corpusWatch.Stop()
		}
		go corpusWatch.SyncExisting()
	}

	if cfg.Kafka.Enabled && cfg.Cache.Backend == "memory" {
		consumer := invalidation.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, consumerGroup(cfg.Kafka.GroupID),
			components.Cache, logger, components.Metrics)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("invalidation consumer stopped", zap.Error(err))
			}
		}()
	}

	srv := server.NewServer(
		cfg,
		components.Rewriter,
		components.Classifier,
		components.Engine,
		components.Invalidator,
		logger,
		server.WithMetrics(components.Metrics, components.Registry),
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
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the query
// to the front so flag.Parse sees them. The flag package stops at the first
// non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fatalf("%v", err)
	}
	return format
}

func runRewrite() {
	fs := flag.NewFlagSet("rewrite", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the indices directly)")
	index := fs.String("index", "default", "index or alias")
	container := fs.String("container", config.DefaultContainer, "rewrite profile")
	policy := fs.String("cache-policy", string(models.CacheReadWrite), "read_write, read_only or bypass")
	output := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kotoba rewrite [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := buildQuery(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	format := parseFormat(*output)

	var resp models.RewriteResponse
	if *serverURL != "" {
		body := map[string]string{"container": *container, "query": query, "cache_policy": *policy}
		target := fmt.Sprintf("%s/api/v1/indices/%s/rewrite", *serverURL, url.PathEscape(*index))
		if err := doJSON(http.MethodPost, target, body, http.StatusOK, &resp); err != nil {
			fatalf("Rewrite failed: %v", err)
		}
	} else {
		components, logger := openDirect(*configPath, false)
		defer components.Close()
		defer logger.Sync()
		rc, ok := components.Config.Container(*container)
		if !ok {
			fatalf("Unknown container: %s", *container)
		}
		rewrites, err := components.Rewriter.Rewrite(context.Background(), models.RewriteRequest{
			IndexAlias:  *index,
			Container:   *container,
			Query:       query,
			Config:      rc,
			CachePolicy: models.CachePolicy(*policy),
		})
		if err != nil {
			fatalf("Rewrite failed: %v", err)
		}
		resp = models.RewriteResponse{Query: query, Rewrites: rewrites}
	}
	if err := cli.WriteRewrites(os.Stdout, &resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runClassify() {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the indices directly)")
	index := fs.String("index", "default", "index or alias")
	cutoff := fs.Float64("cutoff", 0, "cutoff frequency (0 = configured default)")
	reference := fs.Bool("reference", false, "also consult the reference field")
	edge := fs.Bool("edge-ngram", false, "also consult the edge n-gram field")
	allTokens := fs.Bool("all-tokens", false, "consider every token at a position, not only the first")
	output := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kotoba classify [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := buildQuery(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	format := parseFormat(*output)
	req := models.SpellingRequest{
		Index:           *index,
		Query:           query,
		CutoffFrequency: *cutoff,
		UsingReference:  *reference,
		UsingEdgeNgram:  *edge,
		UsingAllTokens:  *allTokens,
	}

	var resp models.SpellingResponse
	if *serverURL != "" {
		target := fmt.Sprintf("%s/api/v1/indices/%s/classify", *serverURL, url.PathEscape(*index))
		if err := doJSON(http.MethodPost, target, req, http.StatusOK, &resp); err != nil {
			fatalf("Classify failed: %v", err)
		}
	} else {
		components, logger := openDirect(*configPath, false)
		defer components.Close()
		defer logger.Sync()
		if req.CutoffFrequency == 0 {
			req.CutoffFrequency = components.Config.Spelling.CutoffFrequency
		}
		if err := req.Validate(); err != nil {
			fatalf("Classify failed: %v", err)
		}
		resp = models.SpellingResponse{Query: req.Query, Verdict: components.Classifier.Classify(context.Background(), req)}
	}
	if err := cli.WriteVerdict(os.Stdout, &resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	index := fs.String("index", "", "target index (default: ingest.index from config)")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotoba index [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	components, logger := openDirect(*configPath, *debug)
	defer components.Close()
	defer logger.Sync()

	target := *index
	if target == "" {
		target = components.Config.Ingest.Index
	}
	idx := components.Indexer(target)
	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fatalf("Failed to stat path: %v", err)
	}
	if info.IsDir() {
		n, err := idx.IndexDirectory(ctx, path)
		if err != nil {
			fatalf("Indexing directory failed: %v", err)
		}
		fmt.Printf("Indexed %d file(s) from %s into %s\n", n, path, target)
		return
	}
	n, err := idx.IndexFile(ctx, path)
	if err != nil {
		fatalf("Indexing failed: %v", err)
	}
	fmt.Printf("Indexed %d record(s) from %s into %s\n", n, path, target)
}

func runRules() {
	if len(os.Args) < 3 || os.Args[2] != "import" {
		fmt.Println("Usage: kotoba rules import [flags] <file>")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("rules import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[3:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: kotoba rules import [flags] <file>")
		os.Exit(1)
	}

	components, logger := openDirect(*configPath, false)
	defer components.Close()
	defer logger.Sync()

	names, err := components.ImportRules(context.Background(), fs.Arg(0))
	if err != nil {
		fatalf("Import failed: %v", err)
	}
	fmt.Printf("Imported rules for %d index(es): %s\n", len(names), strings.Join(names, ", "))
}

func runInvalidate() {
	fs := flag.NewFlagSet("invalidate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use the configured cache directly)")
	index := fs.String("index", "", "index or alias whose rewrites to drop")
	container := fs.String("container", "", "container whose rewrites to drop")
	_ = fs.Parse(os.Args[2:])

	if *index == "" && *container == "" {
		fmt.Println("Usage: kotoba invalidate [--index name] [--container name]")
		os.Exit(1)
	}

	var res invalidation.Result
	if *serverURL != "" {
		q := url.Values{}
		if *index != "" {
			q.Set("index", *index)
		}
		if *container != "" {
			q.Set("container", *container)
		}
		if err := doJSON(http.MethodDelete, *serverURL+"/api/v1/cache?"+q.Encode(), nil, http.StatusOK, &res); err != nil {
			fatalf("Invalidate failed: %v", err)
		}
	} else {
		components, logger := openDirect(*configPath, false)
		defer components.Close()
		defer logger.Sync()
		var err error
		res, err = components.Invalidator.Invalidate(context.Background(), *index, *container, "cli")
		if err != nil {
			fatalf("Invalidate failed: %v", err)
		}
	}
	fmt.Printf("Removed %d cached rewrite(s); published: %v\n", res.Removed, res.Published)
}

// doJSON sends body as JSON and decodes the response into out when the status
// matches want.
func doJSON(method, target string, body interface{}, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printUsage() {
	fmt.Println(`kotoba - query rewriting and spelling classification service

Usage:
  kotoba server [flags]                Start the HTTP server
  kotoba rewrite [flags] <query>       Show weighted rewrites of a query
  kotoba classify [flags] <query>      Show the spelling verdict of a query
  kotoba index [flags] <path>          Index a corpus file or directory
  kotoba rules import [flags] <file>   Load synonym and expansion rules
  kotoba invalidate [flags]            Drop cached rewrites
  kotoba version                       Show version
  kotoba help                          Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kotoba/config.yaml)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to work
                     on the indices directly when no server is running.
  --output string    Output format: text or json (rewrite, classify)

Examples:
  kotoba server --debug
  kotoba rewrite --index products --container retail "new york pizza"
  kotoba classify --index products --reference wheelz
  kotoba index --index products ./catalog
  kotoba rules import ./rules.yaml
  kotoba invalidate --index products`)
}
