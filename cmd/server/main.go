package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scythe504/drawguess-server/internal/ai"
	"github.com/scythe504/drawguess-server/internal/config"
	"github.com/scythe504/drawguess-server/internal/game"
	"github.com/scythe504/drawguess-server/internal/server"
	"github.com/scythe504/drawguess-server/internal/store"
)

func main() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	extraWords := store.LoadWordsFile(cfg.WordsFile)

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, extraWords)
		if err != nil {
			log.Fatal().Err(err).Msg("[main] database connection failed")
		}
		defer pg.Close()
		repo = pg
		log.Info().Msg("[main] using postgres repository")
	} else {
		repo = store.NewMemory(extraWords)
		log.Info().Msg("[main] no DATABASE_URL, using in-memory repository")
	}

	scorer := ai.NewClient(cfg.AIHost, cfg.AIPort)
	engine := game.NewEngine(repo, scorer)

	srv := server.New(cfg, engine, repo)
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("[main] server failed")
	}

	log.Info().Msg("[main] bye")
}
