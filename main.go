package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fluxline/clpool/lib/bank"
	"github.com/fluxline/clpool/lib/config"
	"github.com/fluxline/clpool/lib/factory"
	"github.com/fluxline/clpool/lib/journal"
	"github.com/fluxline/clpool/lib/pool"
	"github.com/fluxline/clpool/lib/replay"
	"github.com/fluxline/clpool/lib/tickmath"

	ui "github.com/holiman/uint256"
)

func main() {
	root := &cobra.Command{
		Use:          "clpool",
		Short:        "Concentrated liquidity pool engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Apply a scripted sequence of pool operations",
		RunE:  runReplay,
	}
	replayCmd.Flags().String("script", "", "operations script (JSON array)")
	replayCmd.Flags().String("journal", "./data/events.jsonl", "output journal JSONL path")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(replayCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap against a single ad-hoc position",
		RunE:  runQuote,
	}
	quoteCmd.Flags().Int("fee", 3000, "fee tier in pips (500, 3000, 10000)")
	quoteCmd.Flags().Int("tick", 0, "initial pool tick")
	quoteCmd.Flags().Int("tick-lower", -887220, "position lower tick")
	quoteCmd.Flags().Int("tick-upper", 887220, "position upper tick")
	quoteCmd.Flags().String("liquidity", "1000000000000", "position liquidity")
	quoteCmd.Flags().String("amount", "", "swap amount, negative for exact output")
	quoteCmd.Flags().Bool("zero-for-one", true, "sell token0 for token1")
	root.AddCommand(quoteCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Script == "" {
		return fmt.Errorf("script path is required")
	}

	txs, err := replay.Load(cfg.Script)
	if err != nil {
		return err
	}
	logger.Info("script loaded",
		zap.String("path", cfg.Script),
		zap.Int("transactions", len(txs)))

	b := bank.New()
	f := factory.New(b, logger)

	jnl := journal.New(cfg.Journal)
	defer jnl.Close()
	f.SetRecorder(jnl)

	runner := replay.NewRunner(f, b, logger)
	results, err := runner.Run(txs)
	if err != nil {
		return err
	}

	out := json.NewEncoder(os.Stdout)
	for _, res := range results {
		if err := out.Encode(res); err != nil {
			return err
		}
	}
	logger.Info("replay finished",
		zap.Int("applied", len(results)),
		zap.String("journal", cfg.Journal))
	return nil
}

func runQuote(cmd *cobra.Command, _ []string) error {
	fee, _ := cmd.Flags().GetInt("fee")
	tick, _ := cmd.Flags().GetInt("tick")
	tickLower, _ := cmd.Flags().GetInt("tick-lower")
	tickUpper, _ := cmd.Flags().GetInt("tick-upper")
	liquidityStr, _ := cmd.Flags().GetString("liquidity")
	amountStr, _ := cmd.Flags().GetString("amount")
	zeroForOne, _ := cmd.Flags().GetBool("zero-for-one")

	if amountStr == "" {
		return fmt.Errorf("amount is required")
	}
	exactOut := false
	if amountStr[0] == '-' {
		exactOut = true
		amountStr = amountStr[1:]
	}
	amount, err := ui.FromDecimal(amountStr)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if exactOut {
		amount.Neg(amount)
	}
	liquidity, err := ui.FromDecimal(liquidityStr)
	if err != nil {
		return fmt.Errorf("liquidity: %w", err)
	}

	b := bank.New()
	f := factory.New(b, nil)
	p, err := f.Create("T0", "T1", fee)
	if err != nil {
		return err
	}

	price, err := tickmath.GetSqrtRatioAtTick(tick)
	if err != nil {
		return err
	}
	if err := p.Initialize(price); err != nil {
		return err
	}

	// Fund a scratch provider and trader generously so only the pool
	// math constrains the quote.
	funds := ui.MustFromDecimal("115792089237316195423570985008687907853269984665640564039457")
	b.Credit("provider", "T0", funds)
	b.Credit("provider", "T1", funds)
	b.Credit("trader", "T0", funds)
	b.Credit("trader", "T1", funds)

	if _, _, err := p.Mint("provider", tickLower, tickUpper, liquidity, nil,
		b.Payer("provider", p.ID(), "T0", "T1")); err != nil {
		return err
	}

	amount0, amount1, err := p.Swap("trader", zeroForOne, amount, nil, nil,
		b.Payer("trader", p.ID(), "T0", "T1"))
	if err != nil {
		return err
	}

	quote := struct {
		Amount0      string `json:"amount0"`
		Amount1      string `json:"amount1"`
		SqrtPriceX96 string `json:"sqrtPriceX96"`
		Tick         int    `json:"tick"`
		Liquidity    string `json:"liquidity"`
	}{
		Amount0:      pool.SignedDecimal(amount0),
		Amount1:      pool.SignedDecimal(amount1),
		SqrtPriceX96: p.CurrentPrice().ToBig().String(),
		Tick:         p.CurrentTick(),
		Liquidity:    p.TotalLiquidity().ToBig().String(),
	}
	return json.NewEncoder(os.Stdout).Encode(quote)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
