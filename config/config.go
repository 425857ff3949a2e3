// Package config holds the tuning values shared by the server and client
// binaries. Defaults are set in init; the binaries override them from
// flags through Bind.
package config

import (
	"flag"
	"time"

	"github.com/automoto/rewind/physics"
	"github.com/automoto/rewind/prebuilt"
	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/prediction/interp"
	"github.com/automoto/rewind/shared/protocol"
)

// NetConfig contains connection settings.
type NetConfig struct {
	// Transport is "ws" for the websocket router or "quic".
	Transport string
	Address   string
	// MetricsAddress serves /metrics when non-empty.
	MetricsAddress string
	DialTimeout    time.Duration
}

// ServerConfig contains dedicated-server settings.
type ServerConfig struct {
	Name string
	// LevelDir is a directory of TMX files; empty uses the embedded levels.
	LevelDir string
	Level    string
	// ReconnectGrace is how long a disconnected player's token stays valid.
	ReconnectGrace time.Duration
}

// SmoothingConfig contains the view error smoothing settings.
type SmoothingConfig struct {
	Position interp.Settings
	Rotation interp.Settings
}

// PlayerConfig contains the gameplay tuning of the prebuilt prefabs.
type PlayerConfig struct {
	Width, Height float64
	Mover         prebuilt.MoverConfig
	Shooter       prebuilt.ShooterConfig
	Projectile    prebuilt.ProjectileConfig
}

var (
	Prediction prediction.Config
	Physics    physics.Config
	Smoothing  SmoothingConfig
	Player     PlayerConfig
	Net        NetConfig
	Server     ServerConfig
)

func init() {
	Prediction = prediction.DefaultConfig()
	Prediction.MTU = protocol.DefaultMTU

	Physics = physics.DefaultConfig()

	Smoothing = SmoothingConfig{
		Position: interp.DefaultPositionSettings(),
		Rotation: interp.DefaultRotationSettings(),
	}

	Player = PlayerConfig{
		Width:      16,
		Height:     16,
		Mover:      prebuilt.DefaultMoverConfig(),
		Shooter:    prebuilt.DefaultShooterConfig(prebuilt.ProjectilePrefab),
		Projectile: prebuilt.DefaultProjectileConfig(),
	}

	Net = NetConfig{
		Transport:   "ws",
		Address:     "localhost:7373",
		DialTimeout: 10 * time.Second,
	}

	Server = ServerConfig{
		Name:           "Rewind Server",
		LevelDir:       "",
		Level:          "arena",
		ReconnectGrace: 30 * time.Second,
	}
}

// Bind registers flags that override the values above.
func Bind(fs *flag.FlagSet) {
	fs.IntVar(&Prediction.TickRate, "tickrate", Prediction.TickRate, "Simulation ticks per second")
	fs.IntVar(&Prediction.HistorySeconds, "history", Prediction.HistorySeconds, "Seconds of state history kept for rollback")
	fs.IntVar(&Prediction.MinInputs, "min-inputs", Prediction.MinInputs, "Inputs buffered before the server consumes a player's queue")
	fs.IntVar(&Prediction.MaxInputs, "max-inputs", Prediction.MaxInputs, "Inputs buffered before the server drops the oldest")
	fs.Float64Var(&Prediction.RepeatFactor, "repeat-factor", Prediction.RepeatFactor, "How long remote inputs are extrapolated, 0 disables")
	fs.IntVar(&Prediction.FullResyncInterval, "resync", Prediction.FullResyncInterval, "Ticks between full resyncs, negative disables")
	fs.IntVar(&Prediction.MTU, "mtu", Prediction.MTU, "Largest input payload sent unreliably")

	fs.StringVar(&Net.Transport, "transport", Net.Transport, "Transport: ws or quic")
	fs.StringVar(&Net.Address, "addr", Net.Address, "Server address")
	fs.StringVar(&Net.MetricsAddress, "metrics", Net.MetricsAddress, "Address to serve Prometheus metrics on, empty disables")
	fs.DurationVar(&Net.DialTimeout, "dial-timeout", Net.DialTimeout, "Connection timeout")

	fs.StringVar(&Server.Name, "name", Server.Name, "Server display name")
	fs.StringVar(&Server.LevelDir, "levels", Server.LevelDir, "Directory holding the TMX levels, empty uses the built-in ones")
	fs.StringVar(&Server.Level, "level", Server.Level, "Level to play")
	fs.DurationVar(&Server.ReconnectGrace, "reconnect-grace", Server.ReconnectGrace, "How long a dropped player may reconnect")
}

// Kit returns the prefab kit for world configured from Player.
func Kit(world *physics.World) *prebuilt.Kit {
	k := prebuilt.NewKit(world)
	k.Mover = Player.Mover
	k.Shooter = Player.Shooter
	k.Projectile = Player.Projectile
	k.PlayerWidth, k.PlayerHeight = Player.Width, Player.Height
	k.PositionSmoothing, k.RotationSmoothing = Smoothing.Position, Smoothing.Rotation
	return k
}
