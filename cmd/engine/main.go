package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scottgal/stylobot/internal/api"
	"github.com/scottgal/stylobot/internal/botlist"
	"github.com/scottgal/stylobot/internal/config"
	"github.com/scottgal/stylobot/internal/contributors"
	"github.com/scottgal/stylobot/internal/db"
	"github.com/scottgal/stylobot/internal/engine"
	"github.com/scottgal/stylobot/internal/history"
	"github.com/scottgal/stylobot/internal/patterns"
	"github.com/scottgal/stylobot/internal/reputation"
	"github.com/scottgal/stylobot/internal/signals"
	"github.com/scottgal/stylobot/pkg/models"
)

func main() {
	_ = godotenv.Load()
	setupLogging()
	log.Info().Msg("starting stylobot detection engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Detector manifests — optional, everything has defaults.
	cfgProvider, err := config.LoadDir(os.Getenv("STYLOBOT_CONFIG_DIR"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load detector manifests")
	}

	// Shared stores
	store := history.NewStore(history.DefaultStoreConfig())
	store.StartSweeper(ctx, 5*time.Minute)
	cache := reputation.NewMemoryCache()
	countries := history.NewCountryTracker()

	// Bot identity services
	registry := botlist.NewKnownBotRegistry()
	fetcher := botlist.NewPatternFetcher(os.Getenv("STYLOBOT_BOTLIST_URL"), 6*time.Hour)
	if err := fetcher.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial bot list refresh failed, using built-ins")
	}
	fetcher.StartRefresher(ctx)

	// Optional PostgreSQL detection store / time-series reputation.
	var pgStore *db.PostgresStore
	var timeSeries contributors.TimeSeriesReputationProvider
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pgStore, err = db.Connect(ctx, dbURL)
		if err != nil {
			log.Warn().Err(err).Msg("PostgreSQL unavailable, continuing without detection persistence")
		} else {
			defer pgStore.Close()
			if err := pgStore.InitSchema(ctx); err != nil {
				log.Warn().Err(err).Msg("schema init failed")
			}
			timeSeries = pgStore
		}
	}

	// Dashboard feed + recent-evidence ring
	hub := api.NewHub()
	go hub.Run()
	recent := api.NewRecentEvidence(500)

	roster := contributors.DefaultRoster(contributors.Deps{
		Config:     cfgProvider,
		Cache:      cache,
		History:    store,
		Countries:  countries,
		Registry:   registry,
		Fetcher:    fetcher,
		TimeSeries: timeSeries,
	})

	eng := engine.New(engine.DefaultConfig(), roster,
		engine.WithCountryTracker(countries),
		engine.WithEvidenceSink(recent.Add),
		engine.WithEvidenceSink(func(ev *models.AggregatedEvidence) {
			if ev.RiskBand.AtLeast(models.RiskElevated) || ev.ThreatBand.AtLeast(models.ThreatElevated) {
				hub.BroadcastEvidence(ev)
			}
		}),
		engine.WithEvidenceSink(func(ev *models.AggregatedEvidence) {
			if pgStore == nil {
				return
			}
			sig := ""
			if s, ok := ev.Signals[signals.RequestSignature].(string); ok {
				sig = s
			} else {
				sig = patterns.ShortHash(ev.RequestID)
			}
			saveCtx, saveCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer saveCancel()
			if err := pgStore.SaveDetection(saveCtx, sig, ev); err != nil {
				log.Warn().Err(err).Msg("failed to persist detection")
			}
		}),
	)

	router := api.SetupRouter(eng, cache, countries, recent, hub)
	// The demo surface: anything mounted behind the middleware gets scored.
	demo := router.Group("/", api.DetectionMiddleware(eng))
	demo.GET("/demo", func(c *gin.Context) {
		ev, _ := api.EvidenceFrom(c)
		c.JSON(200, ev)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}
	log.Info().Str("port", port).Int("contributors", len(roster)).Msg("engine listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Run(":" + port)
	})
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("engine exited")
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("STYLOBOT_PRETTY_LOGS") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(os.Getenv("STYLOBOT_LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
