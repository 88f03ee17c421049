// Package dmx receives Art-Net DMX input and keeps the latest channel values
// of every universe.
package dmx

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"

	"github.com/bbernstein/lacylights-motion/pkg/artnet"
)

const (
	// UniverseSize is the number of channels per DMX universe.
	UniverseSize = 512
	// MaxUniverses is the maximum number of supported universes.
	MaxUniverses = 16

	readBufferSize = 1024
)

var (
	// ErrUnknownUniverse is returned for input addressed to a universe the
	// service does not track.
	ErrUnknownUniverse = errors.New("unknown universe")
	// ErrStaleSequence is returned for ArtDMX packets older than the last
	// accepted packet of their universe.
	ErrStaleSequence = errors.New("stale Art-Net sequence")
	// ErrChannelOutOfRange is returned for channels outside 1..UniverseSize.
	ErrChannelOutOfRange = errors.New("channel out of range")
)

// Handler is called with a copy of a universe after every accepted update.
type Handler func(universe int, channels []byte)

// Service listens for Art-Net DMX input.
type Service struct {
	mu sync.RWMutex

	// Channel values for each universe (1-indexed in the map, 0-indexed channels)
	universes map[int][]byte

	// Last accepted Art-Net sequence per universe (0 means sequencing disabled)
	sequences map[int]byte

	handler Handler

	// Configuration
	enabled    bool
	listenAddr string
	port       int

	// Statistics
	packetsReceived uint64
	packetsDropped  uint64

	// UDP socket
	conn *net.UDPConn

	// Control
	stopChan chan struct{}
	doneChan chan struct{}
	running  bool
}

// Config holds DMX input configuration.
type Config struct {
	Enabled       bool
	ListenAddr    string
	Port          int
	UniverseCount int
}

// NewService creates a new DMX input service.
func NewService(cfg Config) *Service {
	// Apply defaults for zero values
	universeCount := cfg.UniverseCount
	if universeCount <= 0 {
		universeCount = 4
	}
	if universeCount > MaxUniverses {
		universeCount = MaxUniverses
	}
	port := cfg.Port
	if port < 0 {
		port = artnet.DefaultPort // 0 picks a free port
	}

	s := &Service{
		universes:  make(map[int][]byte),
		sequences:  make(map[int]byte),
		enabled:    cfg.Enabled,
		listenAddr: cfg.ListenAddr,
		port:       port,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}

	for i := 1; i <= universeCount; i++ {
		s.universes[i] = make([]byte, UniverseSize)
	}

	return s
}

// SetHandler registers the function called after every universe update.
func (s *Service) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Initialize opens the Art-Net socket and starts receiving.
func (s *Service) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if !s.enabled {
		log.Printf("🎭 DMX input initialized with %d universes (Art-Net disabled)", len(s.universes))
		s.running = true
		close(s.doneChan)
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(s.listenAddr, strconv.Itoa(s.port)))
	if err != nil {
		return fmt.Errorf("failed to resolve Art-Net listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for Art-Net: %w", err)
	}
	s.conn = conn
	s.running = true

	log.Printf("🎭 DMX input initialized with %d universes", len(s.universes))
	log.Printf("📡 Art-Net input listening on %s", conn.LocalAddr())

	go s.receiveLoop(conn)
	return nil
}

// receiveLoop reads packets until the socket is closed.
func (s *Service) receiveLoop(conn *net.UDPConn) {
	defer close(s.doneChan)

	buffer := make([]byte, readBufferSize)
	for {
		n, _, err := conn.ReadFromUDP(buffer)
		if err != nil {
			select {
			case <-s.stopChan:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Art-Net receive error: %v", err)
			continue
		}

		if err := s.HandlePacket(buffer[:n]); err != nil &&
			!errors.Is(err, artnet.ErrNotDMX) && !errors.Is(err, ErrStaleSequence) {
			log.Printf("⚠️  Art-Net input dropped: %v", err)
		}
	}
}

// HandlePacket decodes an ArtDMX packet and applies it to its universe.
func (s *Service) HandlePacket(packet []byte) error {
	parsed, err := artnet.ParseDMXPacket(packet)
	if err != nil {
		s.countDropped()
		return err
	}

	s.mu.Lock()
	if _, ok := s.universes[parsed.Universe]; !ok {
		s.packetsDropped++
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownUniverse, parsed.Universe)
	}
	if s.isStale(parsed.Universe, parsed.Sequence) {
		s.packetsDropped++
		s.mu.Unlock()
		return fmt.Errorf("%w: universe %d sequence %d", ErrStaleSequence, parsed.Universe, parsed.Sequence)
	}
	s.sequences[parsed.Universe] = parsed.Sequence
	s.packetsReceived++
	s.mu.Unlock()

	s.SetUniverse(parsed.Universe, parsed.Channels)
	return nil
}

// isStale reports whether sequence is behind the last accepted one, allowing
// for the 8 bit wrap. Sequence 0 disables the check.
func (s *Service) isStale(universe int, sequence byte) bool {
	last := s.sequences[universe]
	if sequence == 0 || last == 0 {
		return false
	}
	return int8(sequence-last) < 0
}

func (s *Service) countDropped() {
	s.mu.Lock()
	s.packetsDropped++
	s.mu.Unlock()
}

// SetUniverse replaces the channel values of a universe and notifies the
// handler. It returns false for unknown universes.
func (s *Service) SetUniverse(universe int, channels []byte) bool {
	s.mu.Lock()
	universeData := s.universes[universe]
	if universeData == nil {
		s.mu.Unlock()
		return false
	}
	for i := 0; i < UniverseSize; i++ {
		if i < len(channels) {
			universeData[i] = channels[i]
		} else {
			universeData[i] = 0
		}
	}
	snapshot := make([]byte, UniverseSize)
	copy(snapshot, universeData)
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		handler(universe, snapshot)
	}
	return true
}

// SetChannels writes several 1-based channels of a universe and notifies
// the handler once. Nothing is written when any channel is invalid, and the
// handler is skipped when no value changes.
func (s *Service) SetChannels(universe int, values map[int]byte) error {
	s.mu.Lock()
	universeData := s.universes[universe]
	if universeData == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownUniverse, universe)
	}
	for channel := range values {
		if channel < 1 || channel > UniverseSize {
			s.mu.Unlock()
			return fmt.Errorf("%w: %d", ErrChannelOutOfRange, channel)
		}
	}

	changed := false
	for channel, value := range values {
		if universeData[channel-1] != value {
			universeData[channel-1] = value
			changed = true
		}
	}
	if !changed {
		s.mu.Unlock()
		return nil
	}
	snapshot := make([]byte, UniverseSize)
	copy(snapshot, universeData)
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		handler(universe, snapshot)
	}
	return nil
}

// GetUniverse returns all channel values for a universe (as ints for JSON).
func (s *Service) GetUniverse(universe int) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	universeData := s.universes[universe]
	if universeData == nil {
		return nil
	}
	result := make([]int, UniverseSize)
	for i, v := range universeData {
		result[i] = int(v)
	}
	return result
}

// Stats describes the input side for health reporting.
type Stats struct {
	Enabled         bool   `json:"enabled"`
	Universes       int    `json:"universes"`
	PacketsReceived uint64 `json:"packetsReceived"`
	PacketsDropped  uint64 `json:"packetsDropped"`
}

// Stats returns the current input statistics.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Enabled:         s.enabled,
		Universes:       len(s.universes),
		PacketsReceived: s.packetsReceived,
		PacketsDropped:  s.packetsDropped,
	}
}

// LocalAddr returns the address the socket is bound to, or nil.
func (s *Service) LocalAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop stops receiving and closes the socket.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false

	// Signal the receive loop to stop
	close(s.stopChan)
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	<-s.doneChan
	log.Printf("🎭 DMX input stopped")
}
