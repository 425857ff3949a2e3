package core

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/automoto/rewind/prediction"
)

var (
	ErrVersionMismatch = errors.New("client version does not match server")
	ErrServerFull      = errors.New("server is full")
	ErrAlreadyJoined   = errors.New("player is already connected")
)

type registration struct {
	player  prediction.PlayerID
	peer    Peer
	leftAt  time.Time
	hasLeft bool
}

// Registry assigns player ids to connections and lets a dropped player
// reclaim its id with the reconnect token it was given.
type Registry struct {
	mu       sync.RWMutex
	byToken  map[string]*registration
	byPeer   map[Peer]*registration
	byPlayer map[prediction.PlayerID]*registration
	next     prediction.PlayerID

	MaxPlayers int
	Grace      time.Duration
	now        func() time.Time
}

func NewRegistry(maxPlayers int, grace time.Duration) *Registry {
	return &Registry{
		byToken:    make(map[string]*registration),
		byPeer:     make(map[Peer]*registration),
		byPlayer:   make(map[prediction.PlayerID]*registration),
		next:       prediction.NoPlayer + 1,
		MaxPlayers: maxPlayers,
		Grace:      grace,
		now:        time.Now,
	}
}

// Join binds peer to a player. A valid token for a player that left within
// the grace period returns the same id; otherwise a new id and token are
// issued. reconnected reports which case happened.
func (r *Registry) Join(peer Peer, token string) (player prediction.PlayerID, newToken string, reconnected bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reg, ok := r.byToken[token]; ok && token != "" {
		if !reg.hasLeft {
			return 0, "", false, ErrAlreadyJoined
		}
		if r.now().Sub(reg.leftAt) <= r.Grace {
			reg.peer, reg.hasLeft = peer, false
			r.byPeer[peer] = reg
			return reg.player, token, true, nil
		}
		r.forget(token, reg)
	}

	if r.MaxPlayers > 0 && r.activeLocked() >= r.MaxPlayers {
		return 0, "", false, ErrServerFull
	}
	reg := &registration{player: r.next, peer: peer}
	r.next++
	newToken = uuid.NewString()
	r.byToken[newToken] = reg
	r.byPeer[peer] = reg
	r.byPlayer[reg.player] = reg
	return reg.player, newToken, false, nil
}

// Leave marks the player behind peer as gone. It returns false for peers
// that never joined.
func (r *Registry) Leave(peer Peer) (prediction.PlayerID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byPeer[peer]
	if !ok {
		return 0, false
	}
	delete(r.byPeer, peer)
	reg.peer, reg.hasLeft, reg.leftAt = nil, true, r.now()
	return reg.player, true
}

// Player returns the player bound to peer.
func (r *Registry) Player(peer Peer) (prediction.PlayerID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byPeer[peer]
	if !ok {
		return 0, false
	}
	return reg.player, true
}

// Peer returns the connection of a connected player.
func (r *Registry) Peer(player prediction.PlayerID) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byPlayer[player]
	if !ok || reg.hasLeft {
		return nil, false
	}
	return reg.peer, true
}

// Active returns the number of connected players.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked()
}

// Expire drops the tokens of players gone longer than the grace period.
func (r *Registry) Expire() []prediction.PlayerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var gone []prediction.PlayerID
	for token, reg := range r.byToken {
		if reg.hasLeft && r.now().Sub(reg.leftAt) > r.Grace {
			gone = append(gone, reg.player)
			r.forget(token, reg)
		}
	}
	return gone
}

func (r *Registry) forget(token string, reg *registration) {
	delete(r.byToken, token)
	delete(r.byPlayer, reg.player)
}

func (r *Registry) activeLocked() int {
	return len(r.byPeer)
}
