package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trend-grid-bot-go/internal/bot"
	"trend-grid-bot-go/internal/config"
	"trend-grid-bot-go/internal/downloader"
	"trend-grid-bot-go/internal/exchange"
	"trend-grid-bot-go/internal/indicator"
	"trend-grid-bot-go/internal/ledger"
	"trend-grid-bot-go/internal/logger"
	"trend-grid-bot-go/internal/models"
	"trend-grid-bot-go/internal/persistence"
	"trend-grid-bot-go/internal/reporter"
	"trend-grid-bot-go/internal/stream"
	"trend-grid-bot-go/internal/takeprofit"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	reportEvery := flag.Duration("report", time.Minute, "status table interval (0 disables)")
	flag.Parse()

	// 在加载.env和配置前先用默认参数初始化日志
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("no .env file, reading credentials from the environment")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("load config: %v", err)
	}

	// 使用配置中的日志参数重新初始化
	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	if err := run(cfg, *reportEvery); err != nil {
		logger.S().Fatalf("engine failed: %v", err)
	}
}

func run(cfg *models.Config, reportEvery time.Duration) error {
	apiKey := os.Getenv("EXCHANGE_API_KEY")
	secretKey := os.Getenv("EXCHANGE_SECRET_KEY")
	if apiKey == "" || secretKey == "" {
		return fmt.Errorf("EXCHANGE_API_KEY and EXCHANGE_SECRET_KEY must be set")
	}

	if cfg.IsTestnet {
		cfg.BaseURL = cfg.TestnetAPIURL
		cfg.WSBaseURL = cfg.TestnetWSURL
		logger.S().Info("using the exchange testnet")
	} else {
		cfg.BaseURL = cfg.LiveAPIURL
		cfg.WSBaseURL = cfg.LiveWSURL
	}

	gateway, err := exchange.NewLiveGateway(apiKey, secretKey, cfg.BaseURL, cfg.Symbol)
	if err != nil {
		return fmt.Errorf("gateway init: %w", err)
	}
	if err := gateway.SetLeverage(cfg.Grid.Leverage); err != nil {
		return fmt.Errorf("set leverage: %w", err)
	}

	// 趋势过滤器 + 启动前的K线预热
	var filters []indicator.Filter
	if cfg.MACD.Enabled {
		filters = append(filters, indicator.NewMACDFilter(cfg.MACD))
	}
	if cfg.EMA.Enabled {
		filters = append(filters, indicator.NewEMAFilter(cfg.EMA))
	}
	registry := indicator.NewRegistry(filters...)

	led := ledger.New()
	tpCalc := takeprofit.NewCalculator(cfg.DynamicTP, gateway)

	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer repo.Close()

	controller := bot.NewController(cfg, gateway, led, registry, tpCalc, repo)
	if err := controller.RestoreState(); err != nil {
		logger.S().Warnw("starting fresh, persisted state unusable", "err", err)
	}

	if len(filters) > 0 {
		warmup, err := warmupKlines(cfg)
		if err != nil {
			return fmt.Errorf("kline warmup: %w", err)
		}
		controller.SeedKlines(warmup)
	}

	// 行情流:订阅成交和K线
	timeframe := cfg.MACD.Timeframe
	if timeframe == "" {
		timeframe = cfg.EMA.Timeframe
	}
	if timeframe == "" {
		timeframe = "1m"
	}
	marketConn, err := stream.New(stream.Options{
		Name: "market",
		URL:  func() (string, error) { return cfg.WSBaseURL + "/ws", nil },
		Subscribe: []string{
			fmt.Sprintf("%s@aggTrade", cfg.Symbol),
			fmt.Sprintf("%s@kline_%s", cfg.Symbol, timeframe),
		},
		Cfg: cfg.Stream,
	})
	if err != nil {
		return fmt.Errorf("market stream: %w", err)
	}

	// 账户流:每次重连都换用新的listenKey
	refresh := time.Duration(cfg.Stream.ListenKeyRefreshMin) * time.Minute
	if refresh <= 0 {
		refresh = 15 * time.Minute
	}
	accountConn, err := stream.New(stream.Options{
		Name: "account",
		URL: func() (string, error) {
			key, err := gateway.CreateListenKey()
			if err != nil {
				return "", err
			}
			return cfg.WSBaseURL + "/ws/" + key, nil
		},
		KeepAlive:      gateway.KeepAliveListenKey,
		KeepAliveEvery: refresh,
		Cfg:            cfg.Stream,
	})
	if err != nil {
		return fmt.Errorf("account stream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	marketConn.Connect(ctx)
	accountConn.Connect(ctx)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	var rep *reporter.Reporter
	if reportEvery > 0 {
		rep = reporter.New(controller.StatusSnapshot, reportEvery)
		rep.Start()
	}

	if _, err := controller.Start(); err != nil {
		return fmt.Errorf("controller start: %w", err)
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		controller.Run(ctx, marketConn.Events(), accountConn.Events())
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.S().Info("shutdown signal received")

	// 停止顺序:先撤掉挂单,再停事件循环,最后关流
	if _, err := controller.Stop(); err != nil {
		logger.S().Warnw("stop rejected", "phase", controller.Phase(), "err", err)
	}
	cancel()
	<-runDone
	if rep != nil {
		rep.Stop()
	}
	marketConn.Close()
	accountConn.Close()
	logger.S().Info("engine stopped")
	return nil
}

// warmupKlines 回填足够长的历史窗口供MACD/EMA计算
func warmupKlines(cfg *models.Config) ([]models.Kline, error) {
	need := 0
	if cfg.MACD.Enabled {
		need = cfg.MACD.SlowPeriod + cfg.MACD.SignalPeriod
	}
	if cfg.EMA.Enabled && cfg.EMA.Period > need {
		need = cfg.EMA.Period
	}
	if need == 0 {
		return nil, nil
	}
	// 预留一倍余量,指标初值更稳定
	need *= 2

	timeframe := cfg.MACD.Timeframe
	if timeframe == "" {
		timeframe = cfg.EMA.Timeframe
	}
	if timeframe == "" {
		timeframe = "1m"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return downloader.NewKlineDownloader().Warmup(ctx, cfg.Symbol, timeframe, need)
}

// serveMetrics 暴露Prometheus指标
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.S().Infow("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.S().Errorw("metrics server stopped", "err", err)
	}
}
