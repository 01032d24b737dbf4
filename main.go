package main

import (
	"boardship/auth"
	"boardship/battle"
	"boardship/config"
	"boardship/crypto"
	"boardship/game"
	"boardship/migrations"
	"boardship/storage"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

const (
	tokenAge        = time.Hour * 24 * 7 // 7 days
	trollTime       = 2 * time.Second
	shutdownTimeout = 30 * time.Second
	purgeInterval   = time.Hour
)

func CreateServer(allowedOrigins []string) *gin.Engine {
	r := gin.New()
	// "/game/join/" is a missing room id, not a path to fix up
	r.RedirectTrailingSlash = false
	r.Use(gin.Recovery())
	r.SetTrustedProxies([]string{"127.0.0.1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})
	r.GET("/health", func(ctx *gin.Context) { ctx.String(200, "healthy") })

	r.Use(func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")

		if slices.Contains(allowedOrigins, origin) {
			ctx.Next()
			return
		}
		ctx.String(http.StatusForbidden, "forbidden origin")
		ctx.Abort()
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Authorization",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}))

	return r
}

func RegisterGameRoutes(r *gin.Engine, gameHandler *game.GameHandler, verifier auth.TokenVerifier) {
	gameGroup := r.Group("/game")
	gameGroup.Use(auth.RequireAuthMiddleware(verifier, trollTime))

	gameGroup.GET("/create", gameHandler.CreateGameHandler)
	gameGroup.GET("/join/:roomid", gameHandler.JoinGameHandler)
	gameGroup.GET("/:roomid/snapshot", gameHandler.SnapshotHandler)
}

// schedulePurge deletes stored matches that finished longer than retention ago.
func schedulePurge(repo *storage.PostgresRepo, retention time.Duration) (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(purgeInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			purged, err := repo.PurgeFinishedMatches(ctx, time.Now().Add(-retention))
			if err != nil {
				log.Error().Err(err).Msg("purging finished matches")
				return
			}
			log.Info().Int64("purged", purged).Msg("purged finished matches")
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	scheduler.Start()
	return scheduler, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}
	config.SetupLogger(cfg)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Dependencies
	var (
		userGetter  game.UserGetter
		matchLoader game.MatchLoader
		recorder    game.Recorder
		pgRepo      *storage.PostgresRepo
		scheduler   gocron.Scheduler
	)

	persisterCtx, stopPersister := context.WithCancel(context.Background())
	defer stopPersister()

	var persisterStopped <-chan struct{}
	if cfg.PostgresURL != "" {
		if err := migrations.Migrate(cfg.PostgresURL); err != nil {
			log.Fatal().Err(err).Msg("running migrations")
		}

		pgRepo, err = storage.NewPostgresRepo(context.Background(), cfg.PostgresURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connecting to postgres")
		}

		persister := game.NewPersister(pgRepo)
		go persister.Run(persisterCtx)
		persisterStopped = persister.Stopped()

		userGetter, matchLoader, recorder = pgRepo, pgRepo, persister

		scheduler, err = schedulePurge(pgRepo, cfg.MatchRecordRetention)
		if err != nil {
			log.Fatal().Err(err).Msg("scheduling match purge")
		}
	} else {
		log.Warn().Msg("POSTGRES_URL not set, matches will not be persisted and players are named by their token")
	}

	tokenManager := crypto.NewJWTManager(cfg.JWTKey, tokenAge)

	idGen := game.NewIdGen()
	tickerGen := game.NewTickerGen()
	timers := game.NewTimerScheduler()
	lobby := game.NewLobby(&idGen, &tickerGen)

	lobbyStarted := make(chan struct{})
	go lobby.LobbyActor(lobbyStarted)
	<-lobbyStarted

	gameHandler := game.NewGameHandler(lobby, userGetter, matchLoader, game.RoomOptions{
		TurnTimeLimit:     cfg.SpeedTurnLimit,
		RankPolicy:        battle.FlatRankPolicy(cfg.RankedWinPoints, cfg.RankedLossPoints),
		FinishedRetention: cfg.FinishedRoomRetention,
		IdleTimeout:       cfg.RoomIdleTimeout,
		Timers:            &timers,
		Recorder:          recorder,
	})

	r := CreateServer(cfg.AllowedOrigins)
	RegisterGameRoutes(r, gameHandler, tokenManager)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, os.Interrupt)
	log.Info().Str("addr", cfg.ListenAddr).Msg("server started")
	<-sigCh
	log.Info().Msg("SIGTERM or SIGINT received, closing rooms before shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
	if err := lobby.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("lobby shutdown")
	}

	if pgRepo != nil {
		// rooms are gone, flush what they left behind
		stopPersister()
		select {
		case <-persisterStopped:
		case <-ctx.Done():
			log.Error().Msg("persister did not drain in time")
		}
		if err := scheduler.Shutdown(); err != nil {
			log.Error().Err(err).Msg("scheduler shutdown")
		}
		pgRepo.Close()
	}

	log.Info().Msg("shutting down now")
}
