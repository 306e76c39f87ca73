package main

import (
	"context"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"tomappdev/chatapi"
	"tomappdev/chatclient"
	"tomappdev/coach"
	"tomappdev/database/postgres"
	"tomappdev/deepgramapi"
	"tomappdev/logger"
	"tomappdev/players"
	"tomappdev/telegram"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperdxio/opentelemetry-logs-go/exporters/otlp/otlplogs"
	sdk "github.com/hyperdxio/opentelemetry-logs-go/sdk/logs"
	"github.com/hyperdxio/otel-config-go/otelconfig"
)

const (
	defaultPort          = "8080"
	defaultRatePerMinute = 60
	defaultPlayerID      = "arjun"
)

func main() {
	os.Exit(run())
}

// run owns every deferred shutdown so they complete before main exits.
func run() int {
	godotenv.Load()
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	production := os.Getenv("PRODUCTION") != ""

	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		log.Printf("Error setting up OTel SDK - %v", err)
		return 1
	}
	defer otelShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logExporter, _ := otlplogs.NewExporter(ctx)
	loggerProvider := sdk.NewLoggerProvider(sdk.WithBatcher(logExporter))
	defer loggerProvider.Shutdown(context.Background())

	LogMiddleware := logger.Connect(logger.LoggerConnectProps{
		Production:     production,
		LoggerProvider: loggerProvider,
		ServiceName:    "tomapp-coach",
	})
	defer LogMiddleware.Sync()

	Logger := LogMiddleware.Logger(ctx)
	if production {
		Logger.Info("[Server] Starting in production mode")
	} else {
		Logger.Info("[Server] Starting in development mode")
	}

	player := loadPlayer(ctx, LogMiddleware)

	api := chatapi.Connect(ctx, chatapi.ChatAPIConnectProps{
		Logger:        LogMiddleware,
		Generator:     coach.NewGenerator(tipEntropy(LogMiddleware.Logger(ctx))),
		Player:        player,
		RatePerMinute: envInt("CHAT_RATE_LIMIT_PER_MINUTE", defaultRatePerMinute),
		TrustProxy:    os.Getenv("TRUSTED_PROXY") == "true",
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Serve(ctx, ":"+port)
	})

	if telegram.Enabled() {
		var transcriber *deepgramapi.DeepgramAPI
		if deepgramapi.Enabled() {
			transcriber = deepgramapi.Connect(ctx, deepgramapi.DeepgramConnectProps{Logger: LogMiddleware})
		}

		client := chatclient.Connect(ctx, chatclient.ChatClientConnectProps{
			Logger:  LogMiddleware,
			BaseURL: "http://localhost:" + port,
		})
		bot, err := telegram.Connect(ctx, telegram.TelegramConnectProps{
			Logger:   LogMiddleware,
			Client:   client,
			Deepgram: transcriber,
		})
		if err != nil {
			Logger.Error("[Server] Telegram bot disabled", zap.Error(err))
		} else {
			g.Go(func() error {
				return bot.Listen(ctx)
			})
		}
	}

	if err := g.Wait(); err != nil {
		Logger.Error("[Server] Stopped with error", zap.Error(err))
		return 1
	}
	Logger.Info("[Server] Stopped")
	return 0
}

// loadPlayer reads the player from Postgres when a database is configured and
// falls back to the built-in sample otherwise.
func loadPlayer(ctx context.Context, LogMiddleware *logger.LogMiddleware) *players.Statistics {
	Logger := LogMiddleware.Logger(ctx)
	if !postgres.Enabled() {
		Logger.Info("[Server] No database configured, using sample player")
		return players.Sample()
	}

	db, err := postgres.Connect(ctx, postgres.DatabaseConnectProps{Logger: LogMiddleware})
	if err != nil {
		Logger.Error("[Server] Using sample player", zap.Error(err))
		return players.Sample()
	}
	defer db.Close()

	id := os.Getenv("PLAYER_ID")
	if id == "" {
		id = defaultPlayerID
	}
	player, err := db.LoadPlayer(ctx, id)
	if err != nil {
		Logger.Error("[Server] Using sample player", zap.Error(err), zap.String("player_id", id))
		return players.Sample()
	}
	return player
}

// tipEntropy seeds the tip picker from TIP_SEED so replies can be replayed.
func tipEntropy(Logger *zap.Logger) coach.Entropy {
	seed, err := strconv.ParseUint(os.Getenv("TIP_SEED"), 10, 64)
	if err != nil {
		return nil
	}
	Logger.Info("[Server] Using seeded tips", zap.Uint64("seed", seed))
	return coach.NewLockedEntropy(rand.New(rand.NewPCG(seed, seed)))
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
