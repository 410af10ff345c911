// Package config loads server settings from the environment, an optional
// .env file and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/urfave/cli"

	"pixelflut/internal/canvas"
	"pixelflut/internal/server"
)

// Prefix is prepended to every environment variable, e.g. PIXELFLUT_PORT.
const Prefix = "PIXELFLUT"

type Settings struct {
	// pixelflut listener
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port int    `envconfig:"PORT" default:"2342"`

	// initial canvas size
	Width  int `envconfig:"WIDTH" default:"640"`
	Height int `envconfig:"HEIGHT" default:"480"`

	// ticks per second; every tick refills each client's pixel allowance
	TickRate int `envconfig:"TICK_RATE" default:"60"`

	// HTTP viewer, disabled when ViewerAddr is empty
	ViewerAddr    string `envconfig:"VIEWER_ADDR" default:":8080"`
	ViewerFPS     int    `envconfig:"VIEWER_FPS" default:"10"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"*"`

	// redis mirror, disabled when RedisAddress is empty
	RedisAddress   string        `envconfig:"REDIS_ADDRESS" default:""`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisKey       string        `envconfig:"REDIS_KEY" default:"pixels"`
	MirrorInterval time.Duration `envconfig:"MIRROR_INTERVAL" default:"1s"`

	// history snapshots, disabled when SnapshotDir is empty
	SnapshotDir      string `envconfig:"SNAPSHOT_DIR" default:""`
	SnapshotSchedule string `envconfig:"SNAPSHOT_SCHEDULE" default:"@every 1m"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadEnv reads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading %s: %w", name, err)
		}
	}
	return nil
}

// Load returns the settings found in the environment, falling back to
// defaults.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process(Prefix, &s); err != nil {
		return s, fmt.Errorf("failed to load config: %w", err)
	}
	return s, nil
}

// Flags are the command line overrides understood by LoadFromContext.
func Flags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "host", Usage: "Address to listen on"},
		cli.IntFlag{Name: "port,p", Usage: "Port to listen on"},
		cli.IntFlag{Name: "width", Usage: "Initial canvas width"},
		cli.IntFlag{Name: "height", Usage: "Initial canvas height"},
		cli.IntFlag{Name: "tick-rate", Usage: "Ticks per second"},
		cli.StringFlag{Name: "viewer", Usage: "Viewer HTTP address, empty to disable"},
		cli.StringFlag{Name: "redis", Usage: "Redis address to mirror the canvas to"},
		cli.StringFlag{Name: "snapshot-dir", Usage: "Directory for history snapshots"},
		cli.BoolFlag{Name: "debug,d", Usage: "Enable debug output"},
	}
}

// LoadFromContext applies the flags given on the command line.
func (s *Settings) LoadFromContext(ctx *cli.Context) error {
	if ctx.IsSet("host") {
		s.Host = ctx.String("host")
	}
	if ctx.IsSet("port") {
		s.Port = ctx.Int("port")
	}
	if ctx.IsSet("width") {
		s.Width = ctx.Int("width")
	}
	if ctx.IsSet("height") {
		s.Height = ctx.Int("height")
	}
	if ctx.IsSet("tick-rate") {
		s.TickRate = ctx.Int("tick-rate")
	}
	if ctx.IsSet("viewer") {
		s.ViewerAddr = ctx.String("viewer")
	}
	if ctx.IsSet("redis") {
		s.RedisAddress = ctx.String("redis")
	}
	if ctx.IsSet("snapshot-dir") {
		s.SnapshotDir = ctx.String("snapshot-dir")
	}
	if ctx.Bool("debug") {
		s.LogLevel = "debug"
	}
	return s.Validate()
}

func (s *Settings) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port %d", s.Port)
	}
	if err := canvas.CheckSize(s.Width, s.Height); err != nil {
		return err
	}
	if s.TickRate <= 0 || s.TickRate > server.MaxTickRate {
		return fmt.Errorf("invalid tick rate %d, must be between 1 and %d", s.TickRate, server.MaxTickRate)
	}
	if s.ViewerAddr != "" && s.ViewerFPS <= 0 {
		return fmt.Errorf("invalid viewer fps %d", s.ViewerFPS)
	}
	if s.RedisAddress != "" && s.MirrorInterval <= 0 {
		return fmt.Errorf("invalid mirror interval %v", s.MirrorInterval)
	}
	if s.SnapshotDir != "" && s.SnapshotSchedule == "" {
		return errors.New("snapshot schedule required when snapshot dir is set")
	}
	return nil
}
