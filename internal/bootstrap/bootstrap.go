// Package bootstrap implements the operator CLI's per-instance discovery
// and startup (spec.md §6 "Operator CLI" collaborator, made concrete by
// SPEC_FULL.md §7 "Per-instance bootstrap"): a root directory holds one
// subdirectory per server instance, each with its own config.json and
// RSA key pair, and every instance's {login, auth, game} listener trio
// starts independently so one instance's failure never blocks another's.
package bootstrap

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wraithcore/ac5gate/internal/adminhttp"
	"github.com/wraithcore/ac5gate/internal/authsvc"
	"github.com/wraithcore/ac5gate/internal/cipher"
	"github.com/wraithcore/ac5gate/internal/config"
	"github.com/wraithcore/ac5gate/internal/fsdp"
	"github.com/wraithcore/ac5gate/internal/gamesvc"
	"github.com/wraithcore/ac5gate/internal/loginsvc"
	"github.com/wraithcore/ac5gate/internal/metrics"
	"github.com/wraithcore/ac5gate/internal/netio"
)

const configFileName = "config.json"

// ErrConfigFatal marks a configuration or key-load failure (spec.md §7:
// "fatal for that service instance at startup, other instances
// continue").
var ErrConfigFatal = errors.New("bootstrap: configuration fatal")

// DiscoverInstances walks root's immediate subdirectories and returns the
// ones containing a config.json, each a candidate server instance
// (spec.md §6: "auto-discovers per-instance directories under a root
// folder").
func DiscoverInstances(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: reading root %s: %w", root, err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(candidate, configFileName)); err == nil {
			dirs = append(dirs, candidate)
		}
	}
	return dirs, nil
}

// RunAll starts every instance under root in parallel. A single
// instance's configuration or key-load failure is fatal only for that
// instance (spec.md §7): it is logged and the instance is skipped, while
// its siblings continue to run. RunAll returns once every instance has
// returned; instances that started run until ctx is canceled.
func RunAll(ctx context.Context, root string, log *slog.Logger) error {
	dirs, err := DiscoverInstances(root)
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		return fmt.Errorf("bootstrap: no instance directories with %s found under %s", configFileName, root)
	}

	var wg sync.WaitGroup
	for _, dir := range dirs {
		wg.Go(func() {
			instLog := log.With("instance", filepath.Base(dir))
			if err := RunInstance(ctx, dir, instLog); err != nil {
				instLog.Error("instance terminated", "error", err)
			}
		})
	}
	wg.Wait()
	return nil
}

// RunInstance loads one instance's config and keys and runs its login,
// auth, and game listeners plus its admin HTTP surface until ctx is
// canceled or a fatal startup error occurs.
func RunInstance(ctx context.Context, dir string, log *slog.Logger) error {
	cfg, err := config.Load(filepath.Join(dir, configFileName))
	if err != nil {
		return fmt.Errorf("%w: loading config: %v", ErrConfigFatal, err)
	}

	priv, err := cipher.LoadOrCreateRSAKeyPair(
		filepath.Join(dir, cfg.PrivateKeyPath),
		filepath.Join(dir, cfg.PublicKeyPath),
	)
	if err != nil {
		return fmt.Errorf("%w: loading keys: %v", ErrConfigFatal, err)
	}

	reg := metrics.Registry()

	var wg sync.WaitGroup
	errs := make(chan error, 4)

	wg.Go(func() { errs <- runLoginListener(ctx, cfg, priv, log) })
	wg.Go(func() { errs <- runAuthListener(ctx, cfg, priv, log) })
	wg.Go(func() { errs <- runGameListener(ctx, cfg, log) })
	wg.Go(func() { errs <- runAdminHTTP(ctx, cfg, reg, log) })

	wg.Wait()
	close(errs)

	var firstErr error
	for e := range errs {
		if e != nil && firstErr == nil {
			firstErr = e
		}
	}
	return firstErr
}

func runLoginListener(ctx context.Context, cfg config.Config, priv *rsa.PrivateKey, log *slog.Logger) error {
	addr := fmt.Sprintf(":%d", cfg.LoginPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("login listener: %w", err)
	}
	go func() { <-ctx.Done(); ln.Close() }()

	log.Info("login listener started", "address", ln.Addr())
	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				wg.Wait()
				return nil
			}
			log.Error("login accept failed", "error", err)
			continue
		}
		metrics.ConnectionsAccepted.WithLabelValues("login").Inc()
		wg.Go(func() {
			defer conn.Close()
			stream := netio.New(conn, cfg.LoginClientTimeout())
			sess := loginsvc.NewSession(loginsvc.Config{AuthPort: uint16(cfg.AuthPort)}, priv, stream, log)
			if err := sess.Run(); err != nil {
				log.Warn("login session ended", "remote", conn.RemoteAddr(), "error", err)
			}
		})
	}
}

func runAuthListener(ctx context.Context, cfg config.Config, priv *rsa.PrivateKey, log *slog.Logger) error {
	addr := fmt.Sprintf(":%d", cfg.AuthPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("auth listener: %w", err)
	}
	go func() { <-ctx.Done(); ln.Close() }()

	versionMin, versionMax := cfg.AppVersionRange()
	authCfg := authsvc.Config{
		AppVersionMin:   versionMin,
		AppVersionMax:   versionMax,
		PrivateHostname: cfg.PrivateHostname,
		PublicHostname:  cfg.PublicHostname,
		GamePort:        uint16(cfg.GamePort),
	}

	log.Info("auth listener started", "address", ln.Addr())
	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				wg.Wait()
				return nil
			}
			log.Error("auth accept failed", "error", err)
			continue
		}
		metrics.ConnectionsAccepted.WithLabelValues("auth").Inc()
		metrics.ActiveAuthSessions.Inc()
		wg.Go(func() {
			defer conn.Close()
			defer metrics.ActiveAuthSessions.Dec()
			stream := netio.New(conn, cfg.AuthClientTimeout())
			sess := authsvc.NewSession(authCfg, priv, stream, log)
			outcome := "ok"
			if err := sess.Run(); err != nil {
				outcome = "error"
				log.Warn("auth session ended", "remote", conn.RemoteAddr(), "error", err)
			}
			metrics.AuthCompletions.WithLabelValues(outcome).Inc()
		})
	}
}

func runGameListener(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	addr := &net.UDPAddr{Port: cfg.GamePort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("game listener: %w", err)
	}
	go func() { <-ctx.Done(); conn.Close() }()

	rto, heartbeat, closeGrace := cfg.FSDPParams()
	params := fsdp.Params{RTO: rto, HeartbeatPeriod: heartbeat, CloseGrace: closeGrace}
	listener := gamesvc.NewListener(conn, params, log)

	go func() {
		ticker := time.NewTicker(rto)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				listener.TickAll(now)
			}
		}
	}()

	log.Info("game listener started", "address", conn.LocalAddr())
	buf := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := listener.ServeOnce(buf); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("game datagram rejected", "error", err)
		}
	}
}

func runAdminHTTP(ctx context.Context, cfg config.Config, reg *prometheus.Registry, log *slog.Logger) error {
	srv := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: adminhttp.NewRouter(reg),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin http: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin http: %w", err)
		}
		return nil
	}
}
