package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matst80/rfbhost/internal/backend"
	"github.com/matst80/rfbhost/internal/config"
	"github.com/matst80/rfbhost/internal/host"
	"github.com/matst80/rfbhost/internal/netutil"
	"github.com/matst80/rfbhost/internal/obs"
	"github.com/matst80/rfbhost/internal/ratelimit"
	"github.com/matst80/rfbhost/internal/session"
	"github.com/matst80/rfbhost/internal/state"
	"github.com/matst80/rfbhost/internal/wsbridge"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const limiterIdle = 5 * time.Minute

var serveFlags struct {
	configDir string
	immediate bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for clients until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(serveFlags.configDir)
		if err != nil {
			return err
		}
		applyFlags(cmd.Flags(), cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		logg, err := obs.NewLogger(cfg.Log)
		if err != nil {
			return err
		}
		obs.SetLogger(logg)
		defer obs.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, serveFlags.immediate)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.configDir, "config-dir", ".", "directory holding an optional .env file")
	f.BoolVar(&serveFlags.immediate, "immediate", false, "close sessions before the listener on shutdown instead of waiting for the accept loop")
	f.Int("display", 0, "display number; the port is base-port+display")
	f.Int("base-port", host.DefaultBasePort, "port of display 0")
	f.String("name", "rfbhost", "display name")
	f.String("bind", "", "interface to bind; empty means all")
	f.Bool("shared", true, "share one backend between all sessions")
	f.String("transport", config.TransportTCP, "tcp or websocket")
	f.Int("send-buffer", 0, "SO_SNDBUF for accepted clients in bytes; 0 keeps the kernel default")
	f.Duration("user-timeout", 0, "drop clients whose unacknowledged data is older than this (linux)")
	f.String("status", ":9100", "metrics and health listen address")
	f.String("log-level", "info", "debug, info, warn or error")
	f.String("redis", "", "redis address for the session presence store")
	rootCmd.AddCommand(serveCmd)
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "display":
			cfg.Host.Display, _ = fs.GetInt(fl.Name)
		case "base-port":
			cfg.Host.BasePort, _ = fs.GetInt(fl.Name)
		case "name":
			cfg.Host.DisplayName = fl.Value.String()
		case "bind":
			cfg.Host.Bind = fl.Value.String()
		case "shared":
			cfg.Host.Shared, _ = fs.GetBool(fl.Name)
		case "transport":
			cfg.Host.Transport = fl.Value.String()
		case "send-buffer":
			cfg.Host.SendBuffer, _ = fs.GetInt(fl.Name)
		case "user-timeout":
			cfg.Host.UserTimeout, _ = fs.GetDuration(fl.Name)
		case "status":
			cfg.Status.Addr = fl.Value.String()
		case "log-level":
			cfg.Log.Level = fl.Value.String()
		case "redis":
			cfg.State.RedisAddr = fl.Value.String()
		}
	})
}

func serve(ctx context.Context, cfg *config.Config, immediate bool) error {
	store, err := state.New(cfg.State.RedisAddr, cfg.State.RedisPassword, cfg.State.RedisDB)
	if err != nil {
		return err
	}
	defer store.Close()
	if r, ok := store.(*state.Redis); ok {
		go r.StartMaintenance(ctx)
	}

	ep := backend.Endpoint{Display: cfg.Host.Display, Name: cfg.Host.DisplayName}
	factory, err := newFactory(ep, cfg.Host.Shared)
	if err != nil {
		return err
	}

	opts := []host.Option{
		host.WithBasePort(cfg.Host.BasePort),
		host.WithBindHost(cfg.Host.Bind),
		host.WithStore(store),
	}
	if cfg.Host.Transport == config.TransportWebsocket {
		opts = append(opts, host.WithListenFunc(wsbridge.ListenPath(cfg.Host.WSPath)))
	} else {
		opts = append(opts, host.WithListenFunc(netutil.ListenWith(netutil.SocketOptions{
			SendBuffer:  cfg.Host.SendBuffer,
			UserTimeout: cfg.Host.UserTimeout,
		})))
	}
	if cfg.Host.RatePerSec > 0 {
		lim := ratelimit.NewLimiter(cfg.Host.RatePerSec, 0, cfg.Host.Burst)
		go pruneLoop(ctx, lim)
		opts = append(opts, host.WithRateLimiter(lim))
	}

	h, err := host.New(factory, session.New, opts...)
	if err != nil {
		return err
	}
	status := startStatusServer(cfg.Status.Addr, h, store)
	store.SetReady(true)
	obs.Info("rfbhost.ready", obs.Fields{"addr": h.Addr().String(), "transport": cfg.Host.Transport})

	select {
	case <-ctx.Done():
		obs.Info("rfbhost.shutdown.signal", obs.Fields{"immediate": immediate})
	case <-h.Done():
		obs.Error("rfbhost.accept.stopped", obs.Fields{"err": errString(h.Err())})
	}
	store.SetClosing(true)

	if immediate {
		err = h.Stop()
	} else {
		err = h.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = status.Shutdown(shutdownCtx)
	obs.Info("rfbhost.shutdown.complete", obs.Fields{})
	if err != nil {
		return err
	}
	return h.Err()
}

func pruneLoop(ctx context.Context, lim *ratelimit.Limiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := lim.Prune(limiterIdle); n > 0 {
				obs.Debug("ratelimit.prune", obs.Fields{"removed": n})
			}
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
