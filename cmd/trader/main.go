// Package main is the command-line entry point for the trading
// pipeline: start a run, or resume a suspended one with an approved
// amount.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"token-trader/internal/config"
	"token-trader/internal/discovery"
	"token-trader/internal/domain"
	"token-trader/internal/market"
	"token-trader/internal/onchain"
	"token-trader/internal/storage"
	"token-trader/internal/storage/memory"
	"token-trader/internal/storage/migrations"
	pgstore "token-trader/internal/storage/postgres"
	"token-trader/internal/trading"
	"token-trader/internal/validation"
	"token-trader/internal/workflow"
)

func main() {
	envFile := flag.String("env-file", "", "Path to .env file (optional)")
	start := flag.Bool("start", false, "Start a new run")
	resume := flag.String("resume", "", "Resume the run with this ID")
	amount := flag.String("amount", "", "Approved trade amount (with -resume)")
	fromToken := flag.String("from", "", "Source token address (optional, defaults to USDC)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.Parse()

	if *useMemory {
		os.Setenv("USE_MEMORY", "true")
	}
	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if !*start && *resume == "" {
		fmt.Fprintln(os.Stderr, "usage: trader -start | trader -resume <runID> -amount <amount> [-from <token>]")
		os.Exit(2)
	}
	if *resume != "" && *amount == "" {
		fmt.Fprintln(os.Stderr, "-amount is required with -resume")
		os.Exit(2)
	}

	ctx := context.Background()

	var runs storage.RunStore
	var executed storage.ExecutedTradeStore
	if cfg.UseMemory {
		runs = memory.NewRunStore()
		executed = memory.NewExecutedTradeStore()
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connect failed")
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("postgres migrations failed")
		}
		runs = pgstore.NewRunStore(pool)
		executed = pgstore.NewExecutedTradeStore(pool)
	}

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

	runner := workflow.NewRunner(
		discovery.NewScorer(marketClient, log),
		validation.NewValidator(chainClient, log),
		gateway,
		runs,
		executed,
		log,
		workflow.WithDiscoveryParams(discovery.Params{
			Limit:    cfg.DiscoveryLimit,
			MinScore: cfg.DiscoveryMinScore,
			Days:     cfg.DiscoveryDays,
			EVMOnly:  cfg.DiscoveryEVMOnly,
		}),
	)

	if *start {
		run, err := runner.Start(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("start failed")
		}
		printRun(run)
		return
	}

	payload, _ := json.Marshal(workflow.ResumePayload{FromToken: *fromToken, Amount: *amount})
	run, err := runner.Resume(ctx, *resume, payload)
	if err != nil {
		if errors.Is(err, workflow.ErrInvalidResume) || errors.Is(err, workflow.ErrNotSuspended) {
			fmt.Fprintf(os.Stderr, "resume rejected: %v\n", err)
			printRun(run)
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("resume failed")
	}
	printRun(run)
}

func printRun(run *domain.WorkflowRun) {
	if run == nil {
		return
	}
	fmt.Printf("run:   %s\nstage: %s\n", run.RunID, run.Stage)
	switch run.Stage {
	case domain.StageConfirm:
		fmt.Printf("\n%s\n\nresume with: trader -resume %s -amount <amount>\n", run.Prompt, run.RunID)
	case domain.StageDone:
		fmt.Printf("trade result: %s\n", string(run.TradeResult))
	case domain.StageFailed:
		fmt.Printf("failure: %s\n", run.FailReason)
	}
}
