package core

import (
	"sync"
	"time"

	"github.com/automoto/rewind/logging"
)

// GameLoop calls tick at a fixed rate until stopped.
type GameLoop struct {
	tick     func()
	tickRate int
	log      logging.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

func NewGameLoop(tick func(), tickRate int, log logging.Logger) *GameLoop {
	return &GameLoop{
		tick:     tick,
		tickRate: tickRate,
		log:      logging.OrNop(log),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (g *GameLoop) Run() {
	defer close(g.done)
	ticker := time.NewTicker(time.Second / time.Duration(g.tickRate))
	defer ticker.Stop()

	g.log.Info("game loop started", "tickrate", g.tickRate)

	for {
		select {
		case <-g.stopChan:
			g.log.Info("game loop stopped")
			return
		case <-ticker.C:
			g.tick()
		}
	}
}

// Stop ends the loop. It is safe to call more than once and before Run.
func (g *GameLoop) Stop() {
	g.stopOnce.Do(func() { close(g.stopChan) })
}

// Done is closed once Run returns.
func (g *GameLoop) Done() <-chan struct{} { return g.done }
