package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dantezy/p2p-quoter/internal/config"
	"github.com/dantezy/p2p-quoter/internal/logging"
	"github.com/dantezy/p2p-quoter/internal/metrics"
	"github.com/dantezy/p2p-quoter/internal/orders"
	"github.com/dantezy/p2p-quoter/internal/p2p"
	"github.com/dantezy/p2p-quoter/internal/status"
	"github.com/dantezy/p2p-quoter/internal/store"
	"github.com/dantezy/p2p-quoter/internal/strategy"
	"github.com/dantezy/p2p-quoter/internal/telegram"
)

const (
	version = "0.1.0"
	banner  = `
 ____  ____  ____     ___  _   _  ___ _____ _____ ____
|  _ \|___ \|  _ \   / _ \| | | |/ _ \_   _| ____|  _ \
| |_) | __) | |_) | | | | | | | | | | || | |  _| | |_) |
|  __/ / __/|  __/  | |_| | |_| | |_| || | | |___|  _ <
|_|   |_____|_|      \__\_\\___/ \___/ |_| |_____|_| \_\

P2P Quoter v%s
Automated listing prices and order handling for Bybit P2P
`
)

func main() {
	fmt.Printf(banner, version)
	fmt.Println(strings.Repeat("-", 60))

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	printConfig(cfg)

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("quoter stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, initiating shutdown", zap.String("signal", sig.String()))
		cancel()
	}()

	orderLog, closeLog, err := openOrderLog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLog()

	client := p2p.NewClient(cfg.APIKey, cfg.APISecret, cfg.Testnet).
		WithMarket(cfg.P2P.Token, cfg.P2P.Currency).
		WithAccount(cfg.MyUID).
		WithPaging(cfg.P2P.PageSize, cfg.P2P.MaxPages)

	var venue strategy.Venue = client
	if cfg.DryRun {
		venue = strategy.NewDryRunVenue(client, logger)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	maker, err := strategy.NewMaker(cfg, venue, orderLog, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create maker: %w", err)
	}

	logger.Info("initializing telegram bot")
	bot, err := telegram.NewBot(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.SetDryRun(cfg.DryRun)
	bot.SetController(maker)
	maker.SetNotifier(bot)

	hub := status.NewHub(logger)
	maker.SetPublisher(hub)

	if cfg.AutoStart {
		maker.Start()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hub.Stop()
		return nil
	})
	if cfg.StatusAddr != "" {
		srv := status.NewServer(cfg.StatusAddr, hub, func() any { return maker.Snapshot() }, orderLog, registry, logger)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}
	if cfg.HasTelegram() {
		g.Go(func() error {
			return ignoreCanceled(bot.Listen(gctx))
		})
	}
	g.Go(func() error {
		return ignoreCanceled(maker.Run(gctx))
	})

	if err := bot.NotifyStarted(maker.Running()); err != nil {
		logger.Warn("failed to send startup notification", zap.Error(err))
	}
	logger.Info("quoter running", zap.Bool("auto_start", cfg.AutoStart))
	fmt.Println(strings.Repeat("-", 60))

	err = g.Wait()

	if nerr := bot.NotifyStopped(); nerr != nil {
		logger.Warn("failed to send shutdown notification", zap.Error(nerr))
	}
	return err
}

// openOrderLog selects the order log backend from DATABASE_DRIVER.
func openOrderLog(ctx context.Context, cfg *config.Config, logger *zap.Logger) (orders.OrderLog, func(), error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite, config.DriverPostgres:
		db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open order log: %w", err)
		}
		logger.Info("order log opened", zap.String("driver", cfg.DatabaseDriver))
		return store.NewSQLLog(db), func() { db.Close() }, nil
	default:
		logger.Warn("using in-memory order log; flags are lost on restart")
		return orders.NewMemoryLog(), func() {}, nil
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printConfig(cfg *config.Config) {
	mode := "LIVE"
	if cfg.DryRun {
		mode = "DRY RUN"
	}

	telegramStatus := "disabled"
	if cfg.HasTelegram() {
		telegramStatus = "enabled"
	}

	statusAddr := "disabled"
	if cfg.StatusAddr != "" {
		statusAddr = cfg.StatusAddr
	}

	fmt.Printf("mode:             %s\n", mode)
	fmt.Printf("market:           %s/%s\n", cfg.P2P.Token, cfg.P2P.Currency)
	fmt.Printf("capital:          %.2f\n", cfg.P2P.Total)
	fmt.Printf("poll interval:    %s\n", cfg.P2P.PollInterval())
	fmt.Printf("price step:       %.4f\n", cfg.P2P.PriceStep)
	fmt.Printf("order log:        %s\n", cfg.DatabaseDriver)
	fmt.Printf("status server:    %s\n", statusAddr)
	fmt.Printf("telegram:         %s\n", telegramStatus)
	fmt.Println(strings.Repeat("-", 60))
}
