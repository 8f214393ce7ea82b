// Command server boots the lattice world server: it opens the object
// store, bootstraps a fresh world if needed, starts the hot-reload
// supervisor, and serves the TCP, WebSocket, and admin HTTP transports
// until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lattice-mud/lattice/internal/config"
	"github.com/lattice-mud/lattice/internal/dispatch"
	"github.com/lattice-mud/lattice/internal/events"
	"github.com/lattice-mud/lattice/internal/logging"
	"github.com/lattice-mud/lattice/internal/metrics"
	"github.com/lattice-mud/lattice/internal/registry"
	"github.com/lattice-mud/lattice/internal/reload"
	"github.com/lattice-mud/lattice/internal/resolve"
	"github.com/lattice-mud/lattice/internal/scripthost"
	"github.com/lattice-mud/lattice/internal/session"
	"github.com/lattice-mud/lattice/internal/store/boltstore"
	"github.com/lattice-mud/lattice/internal/transport/httpadmin"
	"github.com/lattice-mud/lattice/internal/transport/tcpline"
	"github.com/lattice-mud/lattice/internal/transport/wsline"
	"github.com/lattice-mud/lattice/internal/world"
)

func main() {
	confPath := flag.String("conf", "lattice.json", "path to the JSON config document")
	verbsDir := flag.String("verbs", "verbs", "path to the verb/function source tree")
	godName := flag.String("god-name", envDefault("LATTICE_GOD_NAME", "God"), "name of the first administrator, created on a fresh world")
	godPassword := flag.String("god-password", envDefault("LATTICE_GOD_PASSWORD", "changeme"), "password for the first administrator")
	adminUser := flag.String("admin-user", envDefault("LATTICE_ADMIN_USER", "admin"), "username for the admin HTTP API")
	adminPassword := flag.String("admin-password", envDefault("LATTICE_ADMIN_PASSWORD", "changeme"), "password for the admin HTTP API")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgWatcher, err := config.NewWatcher(*confPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lattice: load config: %v\n", err)
		os.Exit(1)
	}
	cfg := cfgWatcher.Current()

	log, err := logging.New(cfg.ToLoggingConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "lattice: init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	cfgWatcher.SetLogger(log)
	go cfgWatcher.Watch(ctx)

	st, err := boltstore.Open(cfg.Database.Path)
	if err != nil {
		log.Errorw("open object store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	model := world.New(st, boltstore.NewID)
	if err := model.Load(ctx); err != nil {
		log.Errorw("load world", "error", err)
		os.Exit(1)
	}

	boot, err := model.EnsureBootstrap(ctx, *godName, *godPassword)
	if err != nil {
		log.Errorw("bootstrap world", "error", err)
		os.Exit(1)
	}
	log.Infow("world ready", "root_class", boot.RootClassID, "system_object", boot.SystemObjectID, "exit_class", boot.ExitClassID)

	resolver := resolve.New(model, boot.ExitClassID, "system")
	reg := registry.New(registry.NewSnapshot(nil, nil))
	host := scripthost.New(
		scripthost.ModelBuiltins{Model: model, Resolver: resolver, ExitClassID: boot.ExitClassID},
		cfg.Scripting.MaxCallDepth,
		time.Duration(cfg.Scripting.MaxExecutionTimeMs)*time.Millisecond,
	)

	bus := events.New()
	defer bus.Cleanup()

	dispatcher := dispatch.New(model, reg, resolver, host, bus.Notify)

	if err := os.MkdirAll(*verbsDir, 0o755); err != nil {
		log.Errorw("create verbs directory", "error", err)
		os.Exit(1)
	}
	supervisor := reload.New(*verbsDir, reg, host, log, bus)
	if err := supervisor.LoadOnce(ctx); err != nil {
		log.Warnw("initial verb/function load failed, starting with an empty registry", "error", err)
	}
	go func() {
		if err := supervisor.Watch(ctx); err != nil {
			log.Warnw("hot-reload supervisor stopped", "error", err)
		}
	}()

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg, time.Now())

	adminAuth := httpadmin.NewAuthService("", 24*time.Hour)
	adminSrv := httpadmin.New(adminAuth, httpadmin.Credentials{Username: *adminUser, Password: *adminPassword}, model, reg, m, promReg, log)

	players := session.ModelPlayers{Model: model}
	sessions := session.NewRegistry()

	tcpListener := tcpline.New(cfg.Server.TCPAddr, players, dispatcher, bus, sessions, log, "Welcome to Lattice.")
	go func() {
		if err := tcpListener.Serve(ctx); err != nil {
			log.Errorw("tcp listener stopped", "error", err)
		}
	}()

	if cfg.Server.EnableWS {
		wsHandler := wsline.New(players, dispatcher, bus, sessions, log, "Welcome to Lattice.", nil)
		wsSrv := &http.Server{Addr: cfg.Server.WSAddr, Handler: wsHandler}
		go func() {
			if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("websocket server stopped", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			wsSrv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Server.EnableAdmin {
		adminHTTPSrv := &http.Server{Addr: cfg.Server.AdminAddr, Handler: adminSrv}
		if strings.HasPrefix(cfg.Server.PublicURL, "https://") {
			tlsCfg, err := httpadmin.AutocertConfig(cfg.Server.PublicURL, "autocert-cache")
			if err != nil {
				log.Warnw("autocert config failed, serving admin API over plain HTTP", "error", err)
			} else {
				adminHTTPSrv.TLSConfig = tlsCfg
			}
		}
		go func() {
			var err error
			if adminHTTPSrv.TLSConfig != nil {
				err = adminHTTPSrv.ListenAndServeTLS("", "")
			} else {
				err = adminHTTPSrv.ListenAndServe()
			}
			if err != nil && err != http.ErrServerClosed {
				log.Errorw("admin server stopped", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			adminHTTPSrv.Shutdown(shutdownCtx)
		}()
	}

	metricsTicker := time.NewTicker(10 * time.Second)
	defer metricsTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Infow("shutting down")
			return
		case <-metricsTicker.C:
			m.SetSessionCounts(map[string]int{"tcp": tcpListener.SessionCount()})
		}
	}
}

func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}
