// Command webclip is the content capture daemon.
//
// Usage:
//
//	webclip -url https://example.com            # one-shot full-page capture to stdout
//	webclip -url https://example.com -type screenshot
//	webclip -config webclip.yaml                # serve the HTTP API
//	webclip -config webclip.yaml -mcp           # serve MCP tools on stdio
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/webclip/audit"
	"github.com/hazyhaar/webclip/browser"
	"github.com/hazyhaar/webclip/capture"
	"github.com/hazyhaar/webclip/extract"
	"github.com/hazyhaar/webclip/hub"
	"github.com/hazyhaar/webclip/mcpquic"
	"github.com/hazyhaar/webclip/screenshot"
	"github.com/hazyhaar/webclip/store"
)

func main() {
	configPath := flag.String("config", "", "path to webclip.yaml config file")
	oneURL := flag.String("url", "", "capture a single URL and exit")
	oneType := flag.String("type", "fullpage", "capture type for -url: fullpage or screenshot")
	httpAddr := flag.String("http", "", "HTTP API listen address (overrides config)")
	mcpMode := flag.Bool("mcp", false, "serve MCP tools on stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *oneURL, *oneType, *httpAddr, *mcpMode); err != nil {
		logger.Error("webclip: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, oneURL, oneType, httpAddr string, mcpMode bool) error {
	cfg := DefaultConfig()
	if configPath != "" {
		loaded, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}

	svc, cleanup, err := buildService(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if oneURL != "" {
		return runOnce(ctx, svc, oneURL, oneType)
	}
	return serve(ctx, logger, cfg, svc, mcpMode)
}

// buildService assembles the store, browser, and capture service.
func buildService(ctx context.Context, logger *slog.Logger, cfg *Config) (*hub.Service, func(), error) {
	var kv store.KV
	var trail *audit.Trail
	var closers []func()
	if cfg.Store.Path != "" {
		skv, err := store.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		closers = append(closers, func() { skv.Close() })
		kv = skv

		// The audit trail shares the store's database file.
		trail, err = audit.New(skv.DB(), 1000)
		if err != nil {
			return nil, nil, fmt.Errorf("open audit trail: %w", err)
		}
		closers = append(closers, func() { trail.Close() })
		if n, err := trail.Cleanup(ctx, cfg.Store.AuditRetentionDays); err != nil {
			logger.Warn("webclip: audit cleanup failed", "error", err)
		} else if n > 0 {
			logger.Info("webclip: audit cleanup", "deleted", n)
		}
	} else {
		kv = store.NewMemKV()
	}
	st := store.New(kv, store.Options{Cap: cfg.Store.Cap, Logger: logger})

	mgr := browser.NewManager(browser.Config{
		RemoteURL:  cfg.Browser.RemoteURL,
		Headful:    cfg.Browser.Headful,
		Stealth:    true,
		NavTimeout: cfg.Browser.NavTimeout,
		Logger:     logger,
	})
	if err := mgr.Start(ctx); err != nil {
		// A missing Chrome degrades the service to list/clear only.
		logger.Warn("webclip: browser unavailable, captures disabled", "error", err)
		mgr = nil
	} else {
		closers = append(closers, func() { mgr.Close() })
	}

	var opener hub.PageOpener
	if mgr != nil {
		opener = managerOpener{mgr}
	}
	svc := hub.NewService(hub.ServiceConfig{
		Store:  st,
		Opener: opener,
		Extract: extract.Config{
			FullPageSelectors: cfg.Extract.MainSelectors,
			MinMainContentLen: cfg.Extract.MinMainLen,
			Logger:            logger,
		},
		Screenshot: screenshot.Options{
			Cooldown: cfg.Screenshot.Cooldown,
			Timeout:  cfg.Screenshot.Timeout,
			Logger:   logger,
		},
		Trail:  trail,
		Logger: logger,
	})

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return svc, cleanup, nil
}

// managerOpener adapts browser.Manager to the service opener interface.
type managerOpener struct{ mgr *browser.Manager }

func (o managerOpener) Open(ctx context.Context, url string) (hub.CapturePage, error) {
	return o.mgr.Open(ctx, url)
}

// runOnce captures one URL and writes the record to stdout as JSON.
func runOnce(ctx context.Context, svc *hub.Service, url, typ string) error {
	rec, err := svc.CaptureURL(ctx, url, capture.Type(typ))
	if err != nil {
		return fmt.Errorf("capture %s: %w", url, err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

// serve runs the HTTP API and, optionally, the MCP stdio server until
// the context is cancelled.
func serve(ctx context.Context, logger *slog.Logger, cfg *Config, svc *hub.Service, mcpMode bool) error {
	g, gCtx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: newHTTPHandler(svc, logger),
	}
	g.Go(func() error {
		logger.Info("webclip: http api listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if mcpMode {
		g.Go(func() error {
			srv := newMCPServer(svc)
			logger.Info("webclip: mcp serving on stdio")
			if err := srv.Run(gCtx, &mcp.StdioTransport{}); err != nil && gCtx.Err() == nil {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		})
	}

	if cfg.MCPQUIC.Addr != "" {
		var tlsCfg *tls.Config
		var err error
		if cfg.MCPQUIC.Cert != "" && cfg.MCPQUIC.Key != "" {
			tlsCfg, err = mcpquic.ServerTLSConfig(cfg.MCPQUIC.Cert, cfg.MCPQUIC.Key)
		} else {
			tlsCfg, err = mcpquic.SelfSignedTLSConfig()
		}
		if err != nil {
			return fmt.Errorf("mcp quic tls: %w", err)
		}
		ql, err := mcpquic.NewListener(cfg.MCPQUIC.Addr, tlsCfg, newMCPServer(svc), logger)
		if err != nil {
			return fmt.Errorf("mcp quic listener: %w", err)
		}
		g.Go(func() error {
			if err := ql.Serve(gCtx); err != nil && gCtx.Err() == nil {
				return fmt.Errorf("mcp quic: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			return ql.Close()
		})
	}

	return g.Wait()
}

func newMCPServer(svc *hub.Service) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "webclip",
		Version: "1.0.0",
	}, nil)
	svc.RegisterMCP(srv)
	return srv
}
