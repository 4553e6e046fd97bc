package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"duelgo/internal/config"
	"duelgo/internal/database/db_client"
	"duelgo/internal/http/http_server"
	"duelgo/internal/redis/redis_client"
	"duelgo/internal/redis/watcher/turnwatcher"
	"duelgo/internal/roundlog"
	"duelgo/internal/services/duel"
	"duelgo/internal/services/players"
	"duelgo/internal/syncdb"
	"duelgo/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	var err error
	var cfg *config.Config
	var redisClient *redis.Client

	// 1. Load configuration
	cfg, err = config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis
	redisClient, err = redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()
	Log.Debug("Redis client created successfully")

	// 4. Postgres db client
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	// 5. Player directory + persistence boundary
	playerService := players.NewPlayerService(redisClient, pgDb)

	// 6. WebSockets hub (connection registry)
	hub := ws.NewHub()

	// 7. Room lifecycle orchestrator
	duelService := duel.NewDuelService(hub, playerService, redisClient, pgDb, duel.Options{
		GraceWindow:   cfg.PresenceGrace,
		AnnounceDelay: cfg.AnnounceDelay,
		TurnTimeout:   cfg.TurnTimeout,
		CritChance:    cfg.CritChance,
	})
	hub.SetOnEmpty(duelService.RoomEmptied)

	// 8. Background: turn-timeout watcher ➜ discard abandoned rounds
	go turnwatcher.Run(ctx, redisClient, duelService)

	// 9. Background: 10 s room snapshot mirror + round history tailer
	syncdb.Run(ctx, redisClient, pgDb)
	roundlog.Run(ctx, redisClient, pgDb)

	// 10. Initialize the WS server
	wsSrv := ws.NewWsServer(hub, duelService)

	// 11. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, duelService, playerService)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
