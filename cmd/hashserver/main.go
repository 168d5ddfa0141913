// Command hashserver runs the content-addressed HTTP storage server.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sjdv1982/hashserver/internal/api"
	"github.com/sjdv1982/hashserver/internal/dcontext"
	"github.com/sjdv1982/hashserver/internal/herr"
	"github.com/sjdv1982/hashserver/internal/lifecycle"
	"github.com/sjdv1982/hashserver/internal/store"
	"github.com/sjdv1982/hashserver/version"
)

var rawArgs lifecycle.Args

var rootCmd = &cobra.Command{
	Use:   "hashserver <directory>",
	Short: "`hashserver` serves content-addressed buffers over HTTP",
	Long:  "`hashserver` serves content-addressed buffers over HTTP.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			version.PrintVersion()
			return
		}

		var a lifecycle.Args
		if lifecycle.FromEnvironment() {
			a = lifecycle.ResolveEnv()
		} else {
			a = rawArgs
			if len(args) == 1 {
				a.Directory = args[0]
			}
		}

		cfg, err := lifecycle.Resolve(a)
		if err != nil {
			failStartup(a.StatusFile, err)
		}

		ctx := configureLogging(cfg)
		run(ctx, cfg)
	},
}

var showVersion bool

func init() {
	rootCmd.Flags().BoolVar(&rawArgs.Writable, "writable", false, "allow PUT uploads")
	rootCmd.Flags().StringVar(&rawArgs.ExtraDirs, "extra-dirs", "", `semicolon-separated read-only fallback directories, e.g. "A;B;C"`)
	rootCmd.Flags().StringVar(&rawArgs.Layout, "layout", "prefix", "flat|prefix|vault")
	rootCmd.Flags().IntVar(&rawArgs.LockTimeoutSec, "lock-timeout", 120, "lockfile staleness timeout, seconds")
	rootCmd.Flags().StringVar(&rawArgs.Encoding, "encoding", "sha3-256", "digest algorithm")
	rootCmd.Flags().IntVar(&rawArgs.Port, "port", 0, "explicit listen port")
	rootCmd.Flags().IntVar(&rawArgs.PortRangeStart, "port-range-start", 0, "start of random port range")
	rootCmd.Flags().IntVar(&rawArgs.PortRangeEnd, "port-range-end", 0, "end of random port range")
	rootCmd.Flags().StringVar(&rawArgs.Host, "host", "127.0.0.1", "listen host")
	rootCmd.Flags().StringVar(&rawArgs.StatusFile, "status-file", "", "status-file handshake path")
	rootCmd.Flags().IntVar(&rawArgs.TimeoutSec, "timeout", 0, "inactivity shutdown timeout, seconds (0 disables)")
	rootCmd.Flags().StringVar(&rawArgs.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.Flags().StringVar(&rawArgs.LogFormat, "log-format", "text", "log output format (text|json)")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "show the version and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configureLogging applies the configured level and formatter to the
// process-wide logrus logger and returns a base context carrying a
// logger tagged with this instance's id. Every per-request logger
// derives from it.
func configureLogging(cfg lifecycle.Config) context.Context {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	ctx := dcontext.WithValue(dcontext.Background(), "instance.id", newInstanceID())
	return dcontext.WithLogger(ctx, dcontext.GetLogger(ctx, "instance.id"))
}

func newInstanceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}

func run(ctx context.Context, cfg lifecycle.Config) {
	logger := dcontext.GetLogger(ctx)

	var statusObj map[string]any
	if cfg.StatusFile != "" {
		obj, err := lifecycle.WaitForStatusFile(cfg.StatusFile)
		if err != nil {
			failStartup(cfg.StatusFile, err)
		}
		statusObj = obj
	}

	listener, port, err := lifecycle.Listen(cfg.Host, cfg.Port, cfg.PortRangeStart, cfg.PortRangeEnd)
	if err != nil {
		_ = lifecycle.MarkFailed(cfg.StatusFile, statusObj)
		logger.Fatal(err)
	}

	extras := lifecycle.ResolveExtras(cfg)
	engine := store.New(store.Config{
		PrimaryDir:  cfg.Directory,
		Layout:      cfg.Layout,
		Extras:      extras,
		Algorithm:   cfg.Algorithm,
		LockTimeout: cfg.LockTimeout,
		Writable:    cfg.Writable,
	})

	clock := lifecycle.NewActivityClock()
	handler := api.NewRouter(engine, cfg.Writable, clock)

	srv := &http.Server{
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	if err := lifecycle.MarkRunning(cfg.StatusFile, statusObj, port); err != nil {
		logger.WithError(err).Fatal("unable to write status file")
	}

	logger.Infof("hashserver listening on %s:%d (dir=%s layout=%s writable=%v)",
		cfg.Host, port, cfg.Directory, cfg.Layout, cfg.Writable)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		idle := make(chan struct{})
		go func() {
			if lifecycle.WatchInactivity(clock, cfg.Timeout, stop) {
				close(idle)
			}
		}()

		select {
		case sig := <-sigCh:
			logger.Infof("received signal %v, shutting down", sig)
		case <-idle:
			logger.Info("inactivity timeout reached, shutting down")
		case <-stop:
			return
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		close(stop)
		<-done
		logger.Fatal(err)
	}

	close(stop)
	<-done
}

// drainTimeout bounds graceful shutdown's wait for in-flight requests,
// so a stalled client can't block process exit indefinitely.
const drainTimeout = 5 * time.Second

// failStartup exits nonzero, first best-effort recording the failure in
// the status file when one was configured and already exists (the
// handshake never reached "running").
func failStartup(statusFile string, err error) {
	if statusFile != "" {
		if b, readErr := os.ReadFile(statusFile); readErr == nil {
			var obj map[string]any
			if json.Unmarshal(b, &obj) == nil && obj != nil {
				_ = lifecycle.MarkFailed(statusFile, obj)
			}
		}
	}
	if he, ok := err.(*herr.Error); ok {
		fmt.Fprintln(os.Stderr, "configuration error:", he.Error())
	} else {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
	}
	os.Exit(1)
}
