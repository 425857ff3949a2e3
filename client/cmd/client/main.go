// Command client is a headless bot that joins a server and plays through
// the prediction engine: it walks back and forth, jumps and shoots on a
// fixed schedule while logging prediction diagnostics.
package main

import (
	"context"
	"flag"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/automoto/rewind/assets"
	"github.com/automoto/rewind/config"
	"github.com/automoto/rewind/logging/slogadapter"
	"github.com/automoto/rewind/metrics"
	"github.com/automoto/rewind/network"
	"github.com/automoto/rewind/physics"
	"github.com/automoto/rewind/prebuilt"
	"github.com/automoto/rewind/prediction"
	"github.com/automoto/rewind/shared/protocol"
	"github.com/automoto/rewind/shared/sim"
	"github.com/automoto/rewind/transport/quicnet"
)

func main() {
	config.Bind(flag.CommandLine)
	name := flag.String("player", "bot", "Player name")
	duration := flag.Duration("duration", 0, "Leave after this long, 0 runs until interrupted")
	debug := flag.Bool("debug", false, "Log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slogadapter.New(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	client := network.NewClient(logger)
	switch config.Net.Transport {
	case "quic":
		dialCtx, cancel := context.WithTimeout(ctx, config.Net.DialTimeout)
		err := client.ConnectQUIC(dialCtx, config.Net.Address, quicnet.InsecureClientTLS(), protocol.Version, *name)
		cancel()
		if err != nil {
			log.Fatalf("Connect failed: %v", err)
		}
	case "ws":
		client.ConnectWebsocket(config.Net.Address, protocol.Version, *name)
	default:
		log.Fatalf("Unknown transport %q", config.Net.Transport)
	}
	defer client.Disconnect()

	joinCtx, cancel := context.WithTimeout(ctx, config.Net.DialTimeout)
	accepted, err := client.WaitJoined(joinCtx)
	cancel()
	if err != nil {
		log.Fatalf("Join failed: %v", err)
	}

	var levelFS fs.FS
	if config.Server.LevelDir != "" {
		levelFS = os.DirFS(config.Server.LevelDir)
	}
	lvl, err := assets.OpenLevel(levelFS, ".", accepted.Level)
	if err != nil {
		log.Fatalf("Failed to load level: %v", err)
	}

	cfg := config.Prediction
	cfg.TickRate = accepted.TickRate
	b := &bot{}
	world, err := sim.New(lvl, prediction.RoleClient, sim.Options{
		Prediction: cfg,
		Physics:    config.Physics,
		Kit: func(w *physics.World) *prebuilt.Kit {
			k := config.Kit(w)
			k.Movement = b.move
			k.Aim = b.aim
			k.OnHit = func(_ prediction.Context, h prebuilt.Hit) {
				logger.Info("projectile hit", "projectile", h.Projectile, "target", h.Target)
			}
			k.OnPhase = func(ctx prediction.Context, tr prediction.Transition) {
				if tr.To == prebuilt.PhaseGround && tr.From == prebuilt.PhaseAir {
					logger.Debug("landed", "tick", ctx.CurrentTick())
				}
			}
			return k
		},
		Transport: client,
		Logger:    logger,
		Metrics:   metrics.New(prometheus.NewRegistry(), "client"),
	})
	if err != nil {
		log.Fatalf("Failed to build world: %v", err)
	}
	defer world.Close()

	world.Manager.OnDiagnostic = func(d prediction.Diagnostic) {
		logger.Debug("diagnostic", "detail", d.String())
	}
	client.Bind(world.Manager)
	log.Printf("Joined %q as player %d on %s at %d ticks/s", accepted.ServerName, accepted.PlayerID, lvl.Name, cfg.TickRate)

	run(ctx, world, b, client)
}

func run(ctx context.Context, world *sim.Sim, b *bot, client *network.Client) {
	m := world.Manager
	ticker := time.NewTicker(time.Second / time.Duration(m.TickRate()))
	defer ticker.Stop()
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Println("Leaving")
			return
		case now := <-ticker.C:
			b.tick++
			m.Tick()
			m.UpdateView(now.Sub(last).Seconds())
			last = now
			if client.State() != network.StateJoinedGame {
				log.Printf("Connection lost: %v", client.LastError())
				return
			}
		case <-report.C:
			if p, ok := world.Player(m.LocalPlayer()); ok {
				s := p.Movement.State()
				log.Printf("tick=%d verified=%d pos=(%.1f, %.1f) shots=%d",
					m.LocalTick(), m.LastVerifiedTick(), s.X, s.Y, p.Shooter.State().Shots)
			}
		}
	}
}

// bot drives the local avatar on a fixed schedule.
type bot struct {
	tick int
}

func (b *bot) move(in *prebuilt.MoverInput) {
	in.Direction = 1
	if (b.tick/90)%2 == 1 {
		in.Direction = -1
	}
	in.Jump = b.tick%45 < 3
}

func (b *bot) aim(in *prebuilt.ShooterInput) {
	in.Fire = b.tick%30 == 0
}
