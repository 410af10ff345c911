package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"pixelflut/internal/canvas"
	"pixelflut/internal/config"
	"pixelflut/internal/logging"
	"pixelflut/internal/mirror"
	"pixelflut/internal/server"
	"pixelflut/internal/snapshot"
	"pixelflut/internal/viewer"
)

const version = "0.4"

const banner = `P1XELFLUT! v%s
Connect to %s:%d

>>> SIZE
>>> PX x y hex-color
`

func main() {
	app := cli.NewApp()
	app.Name = "pixelflut"
	app.Usage = "Multiplayer pixel canvas over TCP"
	app.Version = version
	app.Flags = append(config.Flags(), cli.StringFlag{
		Name:  "env-file",
		Usage: "Environment file to load",
		Value: ".env",
	})
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if err := config.LoadEnv(c.String("env-file")); err != nil {
		return err
	}
	settings, err := config.Load()
	if err != nil {
		return err
	}
	if err := settings.LoadFromContext(c); err != nil {
		return err
	}

	log, err := logging.New(os.Stderr, settings.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, settings, log)
}

func serve(ctx context.Context, settings config.Settings, log *logrus.Entry) error {
	cv, err := canvas.New(settings.Width, settings.Height)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := server.NewRegistry(logging.Component(log, "registry"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		registry.Run(ctx)
	}()

	scheduler := server.NewScheduler(registry, settings.TickRate)
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	srv := server.NewServer(cv, registry, logging.Component(log, "server"))
	if err := srv.Start(settings.Host, settings.Port); err != nil {
		return err
	}
	defer srv.Stop()
	log.Infof(banner, version, settings.Host, settings.Port)

	if settings.ViewerAddr != "" {
		v := viewer.New(cv, registry, viewer.Options{
			FPS:           settings.ViewerFPS,
			AllowedOrigin: settings.AllowedOrigin,
		}, logging.Component(log, "viewer"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := v.ListenAndServe(ctx, settings.ViewerAddr); err != nil {
				log.WithError(err).Error("viewer stopped")
			}
		}()
	}

	if settings.RedisAddress != "" {
		rdb := mirror.NewRedisClient(settings.RedisAddress, settings.RedisPassword)
		defer rdb.Close()
		m := mirror.New(rdb, cv, settings.RedisKey, settings.MirrorInterval, logging.Component(log, "mirror"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Run(ctx)
		}()
	}

	if settings.SnapshotDir != "" {
		rec := snapshot.New(cv, settings.SnapshotDir, logging.Component(log, "snapshot"))
		if err := rec.Start(settings.SnapshotSchedule); err != nil {
			return err
		}
		defer rec.Stop()
	}

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}
