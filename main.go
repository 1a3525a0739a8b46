package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Scrimzay/botarena/internal/botstore"
	"github.com/Scrimzay/botarena/internal/config"
	"github.com/Scrimzay/botarena/internal/engine"
	"github.com/Scrimzay/botarena/internal/recorder"
	"github.com/Scrimzay/botarena/internal/sandbox"
	"github.com/Scrimzay/botarena/internal/server"
	"github.com/Scrimzay/botarena/internal/ticklog"
)

func main() {
	log.Println("=== STARTING BOT ARENA ===")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Config failed: ", err)
	}

	bots, err := botstore.New(cfg.Storage.BotCodeDir)
	if err != nil {
		log.Fatal("Bot store failed: ", err)
	}

	log.Printf("Starting %d sandbox isolates...", cfg.Sandbox.PoolSize)
	pool := sandbox.NewPool(cfg.Sandbox.PoolSize, sandbox.Limits{
		Timeout:     cfg.Sandbox.Timeout,
		MemoryBytes: uint64(cfg.Sandbox.MemoryLimitMB) << 20,
	})
	defer pool.Close()

	rec, err := openRecorder(cfg.Storage)
	if err != nil {
		log.Fatal("Recorder failed: ", err)
	}
	defer rec.Close()

	var opts []engine.Option
	if cfg.Storage.TickLogDir != "" {
		tl := ticklog.New(cfg.Storage.TickLogDir, "ticks")
		defer tl.Close()
		opts = append(opts, engine.WithTickLog(tl))
		log.Printf("Tick log in %s", cfg.Storage.TickLogDir)
	}

	eng := engine.New(cfg, bots, pool, rec, opts...)
	broadcaster := server.NewBroadcaster(eng, cfg.Server.BroadcastInterval)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.SetupRouter(eng, bots, broadcaster),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(ctx)
	})
	g.Go(func() error {
		broadcaster.Run(ctx)
		return nil
	})
	g.Go(func() error {
		log.Printf("Server starting at %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Stopped with error: %v", err)
	}
	eng.Wait()
	log.Println("=== BOT ARENA STOPPED ===")
}

// openRecorder picks every configured store; with none, results are only
// logged.
func openRecorder(s config.Storage) (recorder.Recorder, error) {
	var recs recorder.Multi
	if s.SQLitePath != "" {
		r, err := recorder.OpenSQLite(s.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Printf("Recording games to SQLite at %s", s.SQLitePath)
		recs = append(recs, r)
	}
	if s.PostgresDSN != "" {
		r, err := recorder.OpenPostgres(s.PostgresDSN)
		if err != nil {
			_ = recs.Close()
			return nil, err
		}
		log.Println("Recording games to Postgres")
		recs = append(recs, r)
	}

	switch len(recs) {
	case 0:
		return recorder.LogRecorder{}, nil
	case 1:
		return recs[0], nil
	default:
		return recs, nil
	}
}
