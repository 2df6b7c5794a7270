// Package main is the objio command: it reads object info, downloads and
// uploads objects through any configured backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bleepstore/objio/internal/config"
	"github.com/bleepstore/objio/internal/logging"
	"github.com/bleepstore/objio/internal/metrics"
	"github.com/bleepstore/objio/internal/server"
	"github.com/bleepstore/objio/internal/storage"
)

const usage = `usage: objio [flags] <command> [args]

commands:
  head NAME...          print size, last write time and metadata
  get  NAME...          download objects into -out
  put  NAME=FILE...     upload local files

flags:
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("objio", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "objio.yaml", "path to configuration file")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := fs.String("log-format", "", "log format: text, json (default: from config or text)")
	rangeFlag := fs.String("range", "", "byte range START-END for get (inclusive)")
	outDir := fs.String("out", ".", "directory get writes objects into")
	contentType := fs.String("content-type", "", "content type for put (default: detected)")
	adminAddr := fs.String("admin-addr", "", "serve /health, /stats and /metrics on this address while running")
	timeout := fs.Duration("timeout", 0, "overall deadline; outstanding requests are cancelled when it expires")
	var meta metadataFlag
	fs.Var(&meta, "meta", "metadata KEY=VALUE for put (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	// Command-line flags override config file values.
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	if cfg.Metrics.Enabled {
		metrics.Register()
	}

	mgr, err := storage.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize storage: %v\n", err)
		return 1
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			logger.Error("closing storage", "error", err)
		}
	}()
	logger.Debug("storage initialized", "backend", cfg.Connection.Type)

	if *adminAddr != "" {
		shutdown := serveAdmin(*adminAddr, mgr, logger)
		defer shutdown()
	}

	cmd := &command{
		mgr:         mgr,
		logger:      logger,
		out:         os.Stdout,
		outDir:      *outDir,
		contentType: *contentType,
		metadata:    meta.entries,
	}
	if cmd.rng, err = parseRange(*rangeFlag); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -range: %v\n", err)
		return 2
	}

	names := fs.Args()[1:]
	switch fs.Arg(0) {
	case "head":
		err = cmd.head(ctx, names)
	case "get":
		err = cmd.get(ctx, names)
	case "put":
		err = cmd.put(ctx, names)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", fs.Arg(0))
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", fs.Arg(0), err)
		return 1
	}
	return 0
}

// serveAdmin runs the admin server on addr and returns a function that
// stops it.
func serveAdmin(addr string, mgr storage.IOManager, logger *slog.Logger) func() {
	srv := server.New(mgr)

	go func() {
		logger.Info("admin server listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server error", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("admin shutdown error", "error", err)
		}
	}
}
