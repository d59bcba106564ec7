// Package discovery advertises the bridge on the local network over mDNS
// so terminals can find the device without knowing its address.
package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/enbility/zeroconf/v3"
	"github.com/rs/zerolog"
)

const (
	// ServiceType is the mDNS service type browsed by terminal clients
	ServiceType = "_serial-bridge._tcp"

	Domain = "local."
)

// Config describes the advertised service
type Config struct {
	// Instance is the human-readable service instance name, typically
	// the device hostname.
	Instance string

	// Port is the TCP port the HTTP server listens on.
	Port int

	// Device is the attached serial device path, published as a TXT
	// record when known.
	Device string

	Logger zerolog.Logger
}

// Advertiser registers and withdraws the bridge's mDNS record
type Advertiser struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	server *zeroconf.Server
}

func NewAdvertiser(cfg Config) (*Advertiser, error) {
	if cfg.Instance == "" {
		return nil, fmt.Errorf("discovery: instance name is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("discovery: invalid port %d", cfg.Port)
	}
	return &Advertiser{cfg: cfg, log: cfg.Logger}, nil
}

// Start registers the service. Calling Start on a running advertiser
// replaces the existing registration.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	txt := []string{"path=/"}
	if a.cfg.Device != "" {
		txt = append(txt, "device="+a.cfg.Device)
	}

	server, err := zeroconf.Register(
		a.cfg.Instance,
		ServiceType,
		Domain,
		a.cfg.Port,
		txt,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register mdns service: %w", err)
	}

	a.server = server
	a.log.Info().
		Str("instance", a.cfg.Instance).
		Str("type", ServiceType).
		Int("port", a.cfg.Port).
		Msg("mdns service registered")
	return nil
}

// Stop withdraws the registration. Safe to call more than once.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.log.Info().Str("instance", a.cfg.Instance).Msg("mdns service withdrawn")
	}
}

// Run registers the service and withdraws it when ctx ends
func (a *Advertiser) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	a.Stop()
	return nil
}
