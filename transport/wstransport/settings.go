// Package wstransport carries the edit session protocol over websockets.
//
// Each frame is one JSON message from the protocol package. The server sends
// a ready message right after the upgrade, then answers every request with
// exactly one result. Heartbeats use websocket ping and pong control frames
// with read and write deadlines on both ends.
package wstransport

import (
	"time"

	"github.com/c0deZ3R0/pixel-chunk/errors"
)

const component = errors.Component("transport/ws")

type Settings struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	// ReadTimeout must exceed PingInterval or idle peers are dropped.
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 5 * time.Second,
		PingInterval:     10 * time.Second,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     5 * time.Second,
		MaxMessageBytes:  1 << 20,
	}
}

func (s *Settings) setDefaults() {
	d := DefaultSettings()
	if s.HandshakeTimeout <= 0 {
		s.HandshakeTimeout = d.HandshakeTimeout
	}
	if s.PingInterval <= 0 {
		s.PingInterval = d.PingInterval
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = d.ReadTimeout
	}
	if s.ReadTimeout <= s.PingInterval {
		s.ReadTimeout = 3 * s.PingInterval
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = d.WriteTimeout
	}
	if s.MaxMessageBytes <= 0 {
		s.MaxMessageBytes = d.MaxMessageBytes
	}
}

func settingsOrDefault(s *Settings) Settings {
	if s == nil {
		return *DefaultSettings()
	}
	cp := *s
	cp.setDefaults()
	return cp
}
