// Package session tracks the pairing QR code and the connection state of the
// WhatsApp session for the lifetime of the process.
package session

import (
	"sync"

	"whatsapp-relay/models"
)

// State holds the latest QR image and connection state. Every mutation
// overwrites the previous value and notifies the registered watchers.
type State struct {
	mu       sync.RWMutex
	qrImage  string
	conn     models.ConnectionState
	watchers []func(models.SessionSnapshot)
}

func NewState() *State {
	return &State{}
}

// RecordQR stores a freshly rendered pairing code
func (s *State) RecordQR(image string) {
	s.update(func() { s.qrImage = image })
}

// ClearQR marks the pairing code as unavailable
func (s *State) ClearQR() {
	s.update(func() { s.qrImage = "" })
}

// RecordConnectionState overwrites the last known connection state
func (s *State) RecordConnectionState(state models.ConnectionState) {
	s.update(func() { s.conn = state })
}

// QR returns the current pairing image, if any
func (s *State) QR() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.qrImage, s.qrImage != ""
}

// ConnectionState returns the last recorded state, if any
func (s *State) ConnectionState() (models.ConnectionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn, s.conn != ""
}

func (s *State) Snapshot() models.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Watch registers fn to be called with a snapshot after every change.
// Watchers run synchronously on the mutating goroutine and must not block.
func (s *State) Watch(fn func(models.SessionSnapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *State) update(mutate func()) {
	s.mu.Lock()
	mutate()
	snap := s.snapshotLocked()
	watchers := append([]func(models.SessionSnapshot){}, s.watchers...)
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(snap)
	}
}

func (s *State) snapshotLocked() models.SessionSnapshot {
	return models.SessionSnapshot{QRImage: s.qrImage, ConnectionState: s.conn}
}
