package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/varan-neural/media-center/internal/camera"
	"github.com/varan-neural/media-center/internal/config"
	"github.com/varan-neural/media-center/internal/logger"
	"github.com/varan-neural/media-center/internal/metrics"
	"github.com/varan-neural/media-center/internal/session"
	"github.com/varan-neural/media-center/internal/signaling"
)

var (
	configPath = flag.String("config", "./config.yaml", "Camera configuration file")
	pprofAddr  = flag.String("pprof", ":6060", "pprof server address (empty disables it)")
	logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor   = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	logger.Info("main", "media center starting")

	doc, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	m := metrics.New()
	metrics.Init(m)

	signalEndpoint := signaling.New(nil) // dispatcher wired in below
	registry := session.NewRegistry(signalEndpointSender{signalEndpoint})
	signalEndpoint.SetDispatcher(registry)

	mgr := camera.New(registry)
	if err := camera.LoadAll(mgr, doc); err != nil {
		log.Fatalf("failed to load cameras: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	if *pprofAddr != "" {
		go func() {
			logger.Info("main", "pprof listening on %s", *pprofAddr)
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				logger.Warn("main", "pprof server error: %v", err)
			}
		}()
	}

	metricsServer := &http.Server{Addr: doc.MetricsAddr, Handler: metricsMux(m)}
	go func() {
		logger.Info("main", "metrics listening on %s", doc.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("main", "metrics server error: %v", err)
		}
	}()

	healthServer := &http.Server{Addr: doc.HealthAddr, Handler: healthMux(mgr)}
	go func() {
		logger.Info("main", "health listening on %s", doc.HealthAddr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("main", "health server error: %v", err)
		}
	}()

	signalServer := &http.Server{Addr: doc.SignalAddr, Handler: signalEndpoint}
	go func() {
		logger.Info("main", "signaling listening on %s", doc.SignalAddr)
		if err := signalServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("main", "signaling server error: %v", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := mgr.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("main", "camera manager exited: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("main", "shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	signalServer.Shutdown(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)
	healthServer.Shutdown(shutdownCtx)

	<-done
	logger.Info("main", "stopped")
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

func healthMux(mgr *camera.Manager) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "ok",
			"cameras": mgr.Names(),
		})
	})
	return mux
}

// signalEndpointSender adapts *signaling.Endpoint to session.Sender,
// the narrow interface Registry needs to reply to a specific viewer.
type signalEndpointSender struct{ e *signaling.Endpoint }

func (s signalEndpointSender) Send(room, clientID string, env signaling.Envelope) {
	s.e.Send(room, clientID, env)
}
