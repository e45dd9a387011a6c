package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/1BDO/MA-Algorithm-Strategy/internal/api"
	"github.com/1BDO/MA-Algorithm-Strategy/internal/data"
	"github.com/1BDO/MA-Algorithm-Strategy/internal/execution"
	"github.com/1BDO/MA-Algorithm-Strategy/internal/model"
	"github.com/1BDO/MA-Algorithm-Strategy/internal/monitoring"
	"github.com/1BDO/MA-Algorithm-Strategy/internal/service"
	"github.com/1BDO/MA-Algorithm-Strategy/internal/strategy"
	"github.com/1BDO/MA-Algorithm-Strategy/pkg/ta"
	"go.uber.org/zap"
)

func main() {
	service.InitLogger()
	defer service.Logger.Sync()

	configPath := "config"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		service.Logger.Fatal("Configuration directory 'config/' not found. Please create it.")
	}
	cfg := service.LoadConfig(configPath)

	// 启动校验：风控参数非法属于配置缺陷，直接退出
	if err := cfg.Validate(); err != nil {
		service.Logger.Fatal("Invalid configuration", zap.Error(err))
	}

	logger := service.Logger.Sugar().With("symbol", cfg.Trading.Symbol)
	logger.Infow("starting trading bot",
		"exchange", cfg.Exchange.Name,
		"paper", cfg.Exchange.Paper,
		"interval", cfg.Trading.Interval,
		"pollInterval", cfg.Trading.PollInterval.String())

	intervalDur, err := service.ParseIntervalDuration(cfg.Trading.Interval)
	if err != nil {
		service.Logger.Fatal("Invalid kline interval", zap.Error(err))
	}

	// 1. 行情缓冲区：REST 装载历史，WS 实时更新正在形成的 K 线
	history := data.NewHistory(cfg.Trading.Symbol, intervalDur, cfg.Trading.HistoryBars+8)
	client := api.NewClient(cfg.Exchange.BaseURL, cfg.Exchange.APIKey, cfg.Exchange.APISecret, logger)

	// 2. 执行器：纸面模式用模拟撮合，真实模式直连 Delta
	var exec execution.Executor
	if cfg.Exchange.Paper {
		sim := execution.NewSimulatorExecutor(&execution.SimulatorConfig{
			Symbol:   cfg.Trading.Symbol,
			Bankroll: cfg.Risk.Bankroll,
			LotSize:  cfg.Trading.LotSize,
			FeeRate:  0.0005,
		}, history, logger)
		exec = sim

		// 模拟器不自己拉行情，启动时用公共 REST 端点把缓冲区灌满
		seedHistory(client, history, cfg, intervalDur, logger)
	} else {
		exec = execution.NewDeltaExecutor(&execution.DeltaConfig{
			Symbol:    cfg.Trading.Symbol,
			ProductID: cfg.Exchange.ProductID,
			Bankroll:  cfg.Risk.Bankroll,
		}, client, history, logger)
	}

	// 3. WS 行情订阅，实时价格喂给缓冲区
	if cfg.Exchange.WSURL != "" {
		feed := api.NewFeed(cfg.Exchange.WSURL, cfg.Trading.Symbol, logger)
		go feed.Start()
		go func() {
			for t := range feed.GetTickerChannel() {
				history.ApplyTicker(t)
			}
		}()
	}

	// 4. 决策引擎
	calc := ta.NewCalculator(cfg.Trading.ShortMAPeriod, cfg.Trading.LongMAPeriod, cfg.Trading.ATRPeriod, logger)
	engine, err := strategy.NewEngine(strategy.EngineConfig{
		Symbol:                       cfg.Trading.Symbol,
		Interval:                     cfg.Trading.Interval,
		HistoryBars:                  cfg.Trading.HistoryBars,
		EntryBandPct:                 cfg.Risk.EntryBandPct,
		MaxPortfolioDrawdownFraction: cfg.Risk.MaxPortfolioDrawdownFraction,
		HaltAfterPortfolioStop:       cfg.Risk.HaltAfterPortfolioStop,
		Sizer: strategy.SizerParams{
			WinProbability:    cfg.Risk.WinProbability,
			RewardRiskRatio:   cfg.Risk.RewardRiskRatio,
			KellyFraction:     cfg.Risk.KellyFraction,
			MaxMarginFraction: cfg.Risk.MaxMarginFraction,
			StopMultiplier:    cfg.Risk.StopMultiplier,
			LotSize:           cfg.Trading.LotSize,
		},
	}, exec, calc, logger)
	if err != nil {
		service.Logger.Fatal("Failed to build engine", zap.Error(err))
	}

	// 5. Prometheus 指标服务
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", monitoring.Handler())
			logger.Infow("metrics listener started", "addr", cfg.Metrics.ListenAddr)
			if err := http.ListenAndServe(cfg.Metrics.ListenAddr, mux); err != nil {
				logger.Errorw("metrics listener stopped", "err", err)
			}
		}()
	}

	// 6. 外部驱动的决策循环：一个 tick 一个周期，周期之间绝不重叠
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOnce(ctx, engine, logger)

	ticker := time.NewTicker(cfg.Trading.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received, stopping")
			return
		case <-ticker.C:
			runOnce(ctx, engine, logger)
		}
	}
}

// runOnce 执行一个决策周期并分类记录结果。
// 数据类错误只作废本周期，下一个 tick 自动重试，这里不做即时重试。
func runOnce(ctx context.Context, engine *strategy.Engine, logger *zap.SugaredLogger) {
	intent, err := engine.RunCycle(ctx)
	switch {
	case err == nil && intent != nil:
		logger.Infow("cycle complete", "intent", intent.String(), "state", string(engine.Risk().State()))
	case err == nil:
		logger.Debugw("cycle complete, no action", "state", string(engine.Risk().State()))
	case errors.Is(err, model.ErrInsufficientData), errors.Is(err, model.ErrSizeBelowMinimum):
		logger.Infow("cycle skipped", "reason", err)
	case errors.Is(err, model.ErrDataUnavailable):
		logger.Warnw("cycle aborted, data unavailable", "err", err)
	case errors.Is(err, model.ErrOrderRejected):
		logger.Errorw("order rejected", "err", err, "state", string(engine.Risk().State()))
	default:
		logger.Errorw("cycle failed", "err", err)
	}
}

// seedHistory 纸面模式启动时从公共 REST 端点装载历史 K 线
func seedHistory(client *api.Client, history *data.History, cfg *service.Config, intervalDur time.Duration, logger *zap.SugaredLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	end := time.Now().UTC()
	start := end.Add(-intervalDur * time.Duration(cfg.Trading.HistoryBars+8))
	bars, err := client.GetCandles(ctx, cfg.Trading.Symbol, cfg.Trading.Interval, start, end)
	if err != nil {
		logger.Warnw("initial candle fetch failed, waiting for ws feed to fill history", "err", err)
		return
	}
	if err := history.Replace(bars); err != nil {
		logger.Warnw("initial candles rejected", "err", err)
		return
	}
	logger.Infow("history seeded", "bars", len(bars))
}
