// Package simulation runs patched fixtures at a fixed tick rate and feeds
// them the latest DMX input.
package simulation

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bbernstein/lacylights-motion/internal/fixture"
	"github.com/bbernstein/lacylights-motion/internal/services/pubsub"
)

const (
	defaultTickRateHz   = 60
	defaultStreamRateHz = 20
)

var (
	// ErrFixtureNotFound is returned for unknown fixture IDs.
	ErrFixtureNotFound = errors.New("fixture not found")
	// ErrDuplicateFixture is returned when a fixture ID is already running.
	ErrDuplicateFixture = errors.New("fixture already added")
)

// Config holds simulation timing.
type Config struct {
	TickRateHz   int // motion integration rate
	StreamRateHz int // snapshot publishing rate
}

// PatchEvent is published on pubsub.TopicPatchUpdated.
type PatchEvent struct {
	FixtureID string `json:"fixtureId"`
	Action    string `json:"action"` // "added" or "removed"
}

// Engine owns every running fixture. DMX input arrives on the network
// goroutine and ticks run on the engine goroutine; one mutex serializes both.
type Engine struct {
	mu sync.Mutex

	fixtures   map[string]*fixture.Fixture
	byUniverse map[int][]*fixture.Fixture

	// Last input per universe, applied to fixtures added later
	universes map[int][]byte

	pubsub *pubsub.PubSub

	// Control
	stopChan chan struct{}
	doneChan chan struct{}
	running  bool

	// Configuration
	updateRate  time.Duration
	streamEvery int
	ticks       int
}

// NewEngine creates a simulation engine. ps may be nil.
func NewEngine(ps *pubsub.PubSub, cfg Config) *Engine {
	tickRate := cfg.TickRateHz
	if tickRate <= 0 {
		tickRate = defaultTickRateHz
	}
	streamRate := cfg.StreamRateHz
	if streamRate <= 0 {
		streamRate = defaultStreamRateHz
	}
	if streamRate > tickRate {
		streamRate = tickRate
	}

	return &Engine{
		fixtures:    make(map[string]*fixture.Fixture),
		byUniverse:  make(map[int][]*fixture.Fixture),
		universes:   make(map[int][]byte),
		pubsub:      ps,
		updateRate:  time.Second / time.Duration(tickRate),
		streamEvery: tickRate / streamRate,
	}
}

// Start starts the tick loop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	stop := make(chan struct{})
	done := make(chan struct{})
	e.stopChan, e.doneChan = stop, done
	e.mu.Unlock()

	log.Printf("🎭 Simulation engine started at %v per tick", e.updateRate)
	go e.updateLoop(stop, done)
}

// Stop stops the tick loop and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopChan)
	done := e.doneChan
	e.mu.Unlock()

	<-done
	log.Printf("🎭 Simulation engine stopped")
}

// updateLoop advances fixtures by the measured time between ticks.
func (e *Engine) updateLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.updateRate)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			e.Tick(now.Sub(last).Seconds())
			last = now
		}
	}
}

// IsRunning reports whether the tick loop is running.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// AddFixture starts simulating f and applies the latest input of its universe.
func (e *Engine) AddFixture(f *fixture.Fixture) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.fixtures[f.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFixture, f.ID())
	}
	e.fixtures[f.ID()] = f
	e.byUniverse[f.Universe()] = append(e.byUniverse[f.Universe()], f)
	if data, ok := e.universes[f.Universe()]; ok {
		f.ApplyDMX(data)
	}

	e.publish(pubsub.TopicPatchUpdated, f.ID(), PatchEvent{FixtureID: f.ID(), Action: "added"})
	return nil
}

// RemoveFixture stops simulating a fixture.
func (e *Engine) RemoveFixture(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, ok := e.fixtures[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFixtureNotFound, id)
	}
	delete(e.fixtures, id)

	list := e.byUniverse[f.Universe()]
	for i, candidate := range list {
		if candidate == f {
			e.byUniverse[f.Universe()] = append(list[:i:i], list[i+1:]...)
			break
		}
	}

	e.publish(pubsub.TopicPatchUpdated, id, PatchEvent{FixtureID: id, Action: "removed"})
	return nil
}

// PushUniverse applies a universe of DMX input to the fixtures patched in it.
func (e *Engine) PushUniverse(universe int, channels []byte) {
	data := make([]byte, len(channels))
	copy(data, channels)

	e.mu.Lock()
	e.universes[universe] = data
	for _, f := range e.byUniverse[universe] {
		f.ApplyDMX(data)
	}
	e.mu.Unlock()

	e.publish(pubsub.TopicDMXInput, strconv.Itoa(universe), data)
}

// Tick advances every fixture by deltaSeconds and publishes snapshots at
// the stream rate.
func (e *Engine) Tick(deltaSeconds float64) {
	e.mu.Lock()
	for _, id := range e.sortedIDs() {
		e.fixtures[id].Advance(deltaSeconds)
	}
	e.ticks++
	var states []fixture.State
	if e.pubsub != nil && e.ticks%e.streamEvery == 0 {
		states = e.snapshotLocked()
	}
	e.mu.Unlock()

	for _, state := range states {
		e.publish(pubsub.TopicFixtureState, state.ID, state)
	}
}

// Snapshot returns the state of every fixture ordered by ID.
func (e *Engine) Snapshot() []fixture.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// FixtureState returns the state of one fixture.
func (e *Engine) FixtureState(id string) (fixture.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, ok := e.fixtures[id]
	if !ok {
		return fixture.State{}, fmt.Errorf("%w: %s", ErrFixtureNotFound, id)
	}
	return f.Snapshot(), nil
}

// FixtureUniverse returns the universe and start address of a fixture.
func (e *Engine) FixtureUniverse(id string) (universe, address int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, ok := e.fixtures[id]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrFixtureNotFound, id)
	}
	return f.Universe(), f.Address(), nil
}

// FixtureCount returns the number of running fixtures.
func (e *Engine) FixtureCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fixtures)
}

func (e *Engine) snapshotLocked() []fixture.State {
	ids := e.sortedIDs()
	states := make([]fixture.State, 0, len(ids))
	for _, id := range ids {
		states = append(states, e.fixtures[id].Snapshot())
	}
	return states
}

func (e *Engine) sortedIDs() []string {
	ids := make([]string, 0, len(e.fixtures))
	for id := range e.fixtures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) publish(topic pubsub.Topic, filter string, message interface{}) {
	if e.pubsub != nil {
		e.pubsub.Publish(topic, filter, message)
	}
}
