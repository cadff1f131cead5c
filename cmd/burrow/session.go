package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/renameio"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nao1215/burrow/internal/client"
	"github.com/nao1215/burrow/internal/config"
	"github.com/nao1215/burrow/internal/database"
	"github.com/nao1215/burrow/internal/log"
	"github.com/nao1215/burrow/internal/tor"
	"github.com/nao1215/burrow/internal/transport"
)

var errTorWithProxy = errors.New("--tor and --proxy are mutually exclusive")

// session is everything a command needs to talk to manifests: the
// resolved configuration, a logger and a client, plus the resources the
// client depends on.
type session struct {
	cfg    *config.Config
	v      *viper.Viper
	logger *slog.Logger
	client *client.Client

	daemon *tor.Daemon
	cache  *database.DB
}

// openSession builds the configuration from flags and starts whatever the
// client needs. The caller must Close the session.
func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, v, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:    cfg,
		v:      v,
		logger: setupLogger(cmd.ErrOrStderr(), cfg.Verbose, v.GetBool(flagLogJSON)),
	}
	if err := s.connect(ctx, cmd.ErrOrStderr()); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) connect(ctx context.Context, stderr io.Writer) error {
	switch {
	case s.cfg.UseEmbeddedTor:
		addr, err := s.startTor(ctx, stderr)
		if err != nil {
			return err
		}
		s.cfg.ProxyAddress = addr
	case s.cfg.ProxyAddress != "":
		if err := tor.CheckProxy(ctx, s.cfg.ProxyAddress); err != nil {
			return fmt.Errorf("proxy check failed (make sure a SOCKS5 proxy is running at %s): %w",
				s.cfg.ProxyAddress, err)
		}
		s.logger.Info("SOCKS5 proxy verified", "address", s.cfg.ProxyAddress)
	}

	opts := []client.Option{client.WithLogger(s.logger)}
	if s.cfg.PersistCache {
		db, err := database.Open(s.cfg.CacheDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open cache database: %w", err)
		}
		s.cache = db
		opts = append(opts, client.WithCacheStore(db))
		s.logger.Debug("persistent cache opened", "path", db.Path())
	}

	c, err := client.New(s.cfg, opts...)
	if err != nil {
		return err
	}
	s.client = c
	return nil
}

// startTor starts an embedded Tor daemon and returns its SOCKS address.
func (s *session) startTor(ctx context.Context, stderr io.Writer) (string, error) {
	fmt.Fprintln(stderr, "Starting embedded Tor daemon...")
	fmt.Fprintln(stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.")

	s.daemon = tor.NewDaemon(tor.WithStartupTimeout(s.cfg.TorStartupTimeout))
	if err := s.daemon.Start(ctx); err != nil {
		return "", fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	addr, err := s.daemon.SocksAddr()
	if err != nil {
		return "", err
	}
	if err := tor.CheckProxy(ctx, addr); err != nil {
		return "", fmt.Errorf("embedded Tor proxy check failed: %w", err)
	}

	s.logger.Info("embedded Tor daemon started", "socksAddr", addr)
	fmt.Fprintf(stderr, "Embedded Tor daemon started, SOCKS proxy: %s\n\n", addr)
	return addr, nil
}

// Close releases the session's resources.
func (s *session) Close() {
	if s.daemon != nil {
		s.logger.Info("stopping embedded Tor daemon")
		if err := s.daemon.Stop(); err != nil {
			s.logger.Error("failed to stop embedded Tor", "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("failed to close cache database", "error", err)
		}
	}
}

// setupLogger creates the structured logger for a command run.
func setupLogger(w io.Writer, verbose, asJSON bool) *slog.Logger {
	if asJSON {
		return log.NewSecureJSONLogger(w, verbose)
	}
	return log.NewSecureLogger(w, verbose)
}

// commandContext returns the command's context, cancelled on SIGINT or
// SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// resolveLocation turns a command-line argument into a location. URLs are
// used as given; anything else is a local path.
func resolveLocation(arg string) (string, error) {
	if strings.Contains(arg, "://") {
		return arg, nil
	}
	loc, err := transport.FileLocation(arg)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", arg, err)
	}
	return loc, nil
}

// writeFileAtomic replaces path with data, creating parent directories.
// Readers never observe a partially written file.
func writeFileAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
