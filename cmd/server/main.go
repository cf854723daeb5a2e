// Package main runs the trading pipeline server: an HTTP API to start,
// inspect, and resume workflow runs, plus a websocket channel for
// operators to confirm suspended trades.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"token-trader/internal/config"
	"token-trader/internal/discovery"
	"token-trader/internal/market"
	"token-trader/internal/observability"
	"token-trader/internal/onchain"
	"token-trader/internal/storage"
	chstore "token-trader/internal/storage/clickhouse"
	"token-trader/internal/storage/memory"
	"token-trader/internal/storage/migrations"
	pgstore "token-trader/internal/storage/postgres"
	"token-trader/internal/trading"
	"token-trader/internal/validation"
	"token-trader/internal/workflow"
)

func main() {
	envFile := flag.String("env-file", "", "Path to .env file (optional)")
	listenAddr := flag.String("listen", "", "HTTP listen address (overrides LISTEN_ADDR)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.Parse()

	if *useMemory {
		os.Setenv("USE_MEMORY", "true")
	}
	cfg, err := config.Load(*envFile)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("configuration invalid")
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	log := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs, executed, cleanup, err := buildStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("storage init failed")
	}
	defer cleanup()

	marketClient := market.NewHTTPClient(cfg.MarketBaseURL,
		market.WithAPIKey(cfg.MarketAPIKey),
		market.WithTimeout(cfg.MarketTimeout),
		market.WithLogger(log),
	)
	chainClient := onchain.NewHTTPClient(cfg.OnchainRPCURL,
		onchain.WithTimeout(cfg.OnchainTimeout),
	)
	gateway := trading.NewHTTPGateway(cfg.TradingBaseURL, cfg.TradingAPIKey,
		trading.WithTimeout(cfg.TradingTimeout),
		trading.WithLogger(log),
	)

	scorer := discovery.NewScorer(marketClient, log)
	validator := validation.NewValidator(chainClient, log)

	opts := []workflow.RunnerOption{
		workflow.WithDiscoveryParams(discovery.Params{
			Limit:    cfg.DiscoveryLimit,
			MinScore: cfg.DiscoveryMinScore,
			Days:     cfg.DiscoveryDays,
			EVMOnly:  cfg.DiscoveryEVMOnly,
		}),
	}
	if cfg.ClickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("clickhouse connect failed")
		}
		defer conn.Close()
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			log.Fatal().Err(err).Msg("clickhouse migrations failed")
		}
		opts = append(opts,
			workflow.WithScoreSink(chstore.NewScoreHistoryStore(conn)),
			workflow.WithSignalSink(chstore.NewValidationSignalStore(conn)),
		)
	}

	runner := workflow.NewRunner(scorer, validator, gateway, runs, executed, log, opts...)

	srv := &server{runner: runner, log: log}
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // long-running resume handling
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
		cancel()
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("shutdown complete")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.LogFormat == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func buildStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.RunStore, storage.ExecutedTradeStore, func(), error) {
	if cfg.UseMemory {
		log.Info().Msg("using in-memory storage")
		return memory.NewRunStore(), memory.NewExecutedTradeStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return pgstore.NewRunStore(pool), pgstore.NewExecutedTradeStore(pool), pool.Close, nil
}

// server hosts the HTTP and websocket API.
type server struct {
	runner *workflow.Runner
	log    zerolog.Logger
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /runs", s.handleStart)
	mux.HandleFunc("GET /runs/{id}", s.handleGet)
	mux.HandleFunc("POST /runs/{id}/resume", s.handleResume)
	mux.HandleFunc("GET /ws/confirmations", s.handleConfirmations)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	return mux
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	run, err := s.runner.Start(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("start failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	run, err := s.runner.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) handleResume(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	run, err := s.runner.Resume(r.Context(), r.PathValue("id"), payload)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, workflow.ErrInvalidResume), errors.Is(err, workflow.ErrNotSuspended):
		// The run record is returned alongside the rejection so the
		// caller can see it is still suspended.
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error": err.Error(),
			"run":   run,
		})
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// confirmationFrame is one operator message over the websocket.
type confirmationFrame struct {
	RunID     string `json:"runId"`
	Amount    string `json:"amount"`
	FromToken string `json:"fromToken,omitempty"`
}

// handleConfirmations serves the operator confirmation channel: on
// connect, every pending run is pushed; each received frame is applied
// as a resume and the updated run pushed back.
func (s *server) handleConfirmations(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	pending, err := s.runner.Pending(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("pending lookup failed")
		return
	}
	for _, run := range pending {
		if err := conn.WriteJSON(run); err != nil {
			return
		}
	}

	for {
		var frame confirmationFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}

		payload, _ := json.Marshal(workflow.ResumePayload{
			FromToken: frame.FromToken,
			Amount:    frame.Amount,
		})
		run, err := s.runner.Resume(r.Context(), frame.RunID, payload)
		if err != nil && run == nil {
			conn.WriteJSON(map[string]string{"runId": frame.RunID, "error": err.Error()})
			continue
		}
		if err != nil {
			conn.WriteJSON(map[string]interface{}{"run": run, "error": err.Error()})
			continue
		}
		if err := conn.WriteJSON(run); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
