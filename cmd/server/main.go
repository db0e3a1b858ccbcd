package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/practicerooms/internal/adapters/discord"
	router "github.com/dkeye/practicerooms/internal/adapters/http"
	"github.com/dkeye/practicerooms/internal/adapters/memory"
	"github.com/dkeye/practicerooms/internal/app"
	"github.com/dkeye/practicerooms/internal/app/orch"
	"github.com/dkeye/practicerooms/internal/clock"
	"github.com/dkeye/practicerooms/internal/config"
	"github.com/dkeye/practicerooms/internal/domain"
	"github.com/dkeye/practicerooms/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	repo, err := store.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	defer repo.Close()

	var (
		platform orch.Platform
		sim      *memory.Platform
		guild    = domain.GuildID(cfg.Discord.GuildID)
	)
	switch cfg.Platform {
	case "memory":
		if guild == "" {
			guild = "local"
		}
		sim = memory.NewPlatform(guild)
		platform = sim
	default:
		dp, err := discord.Open(cfg.Discord.Token, cfg.Discord.GuildID, cfg.Discord.InfoChannel)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to discord")
		}
		defer dp.Close()
		waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = dp.WaitReady(waitCtx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("guild", cfg.Discord.GuildID).Msg("guild never became available")
		}
		platform = dp
	}

	policy := app.Policy{
		AutolockDelay:    cfg.Rooms.AutolockDelay,
		SpawnTemplate:    cfg.Rooms.SpawnTemplate,
		BotRole:          cfg.Rooms.BotRole,
		TempMutedRole:    cfg.Rooms.TempMutedRole,
		VerificationRole: cfg.Rooms.VerificationRole,
	}
	o := orch.New(orch.Options{
		Guild:     guild,
		Platform:  platform,
		Store:     repo,
		Clock:     clock.Real{},
		Policy:    policy,
		NoticeTTL: cfg.Rooms.NoticeTTL,
	})

	// The loop outlives the signal context so the restart procedure can run.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go o.Run(loopCtx)

	// Updates seen before Resume runs are ignored; Resume reads the live state.
	if dp, ok := platform.(*discord.Platform); ok {
		unbind := dp.Bind(loopCtx, o)
		defer unbind()
	}
	if err := o.Resume(ctx); err != nil {
		log.Fatal().Err(err).Msg("resume failed")
	}
	go o.StatusLoop(ctx, cfg.Rooms.StatusInterval)

	r := router.SetupRouter(ctx, cfg, router.Deps{Orch: o, Sim: sim, Restart: stop})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("guild", string(guild)).Msg("practice rooms server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	restartCtx, restartCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := o.Restart(restartCtx); err != nil {
		log.Error().Err(err).Msg("restart procedure incomplete")
	}
	restartCancel()
	stopLoop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
