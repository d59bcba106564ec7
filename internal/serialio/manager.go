package serialio

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const readBufferSize = 1024

// ManagerConfig wires a Manager to the rest of the bridge
type ManagerConfig struct {
	Device      string        // device path; empty to auto-pick the first discovered port
	Retry       time.Duration // reopen backoff after open failure or disconnect (default 1s)
	PortOptions []Option
	Logger      zerolog.Logger

	OnData       func(p []byte) // called from the read pump for every received chunk
	OnConnect    func(device string)
	OnDisconnect func(device string)
}

// Manager keeps exactly one serial device attached. It opens the configured
// (or first discovered) port, pumps received chunks to OnData and reopens
// after a disconnect, mirroring a hot-pluggable USB serial adapter.
type Manager struct {
	cfg ManagerConfig
	log zerolog.Logger

	mu        sync.RWMutex
	port      Port
	device    string
	connected bool
}

// NewManager creates a manager; Run must be started for it to do anything
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Retry <= 0 {
		cfg.Retry = time.Second
	}
	return &Manager{cfg: cfg, log: cfg.Logger}
}

// Connected reports whether a serial device is currently attached
func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Device returns the path of the attached device, or "" when disconnected
func (m *Manager) Device() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.connected {
		return ""
	}
	return m.device
}

// Transmit writes p to the attached device and drains the kernel buffer.
// It blocks until the data has been handed to the hardware.
func (m *Manager) Transmit(p []byte) error {
	m.mu.RLock()
	port := m.port
	connected := m.connected
	m.mu.RUnlock()

	if !connected || port == nil {
		return ErrNotConnected
	}

	for len(p) > 0 {
		n, err := port.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return port.Drain()
}

// Run attaches and re-attaches the serial device until ctx is done
func (m *Manager) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		device, err := m.pickDevice()
		if err != nil {
			m.sleep(ctx)
			continue
		}

		port, err := Open(device, m.cfg.PortOptions...)
		if err != nil {
			m.log.Debug().Str("device", device).Err(err).Msg("serial open failed, retrying")
			m.sleep(ctx)
			continue
		}

		// Drop whatever accumulated in the kernel buffer while detached.
		_ = port.FlushInput()
		m.attach(device, port)
		m.log.Info().Str("device", device).Msg("serial device attached")
		if m.cfg.OnConnect != nil {
			m.cfg.OnConnect(device)
		}

		err = m.pump(ctx, port)
		m.detach()
		_ = port.Close()
		if m.cfg.OnDisconnect != nil {
			m.cfg.OnDisconnect(device)
		}

		if ctx.Err() != nil {
			return
		}
		m.log.Warn().Str("device", device).Err(err).Msg("serial device detached")
		m.sleep(ctx)
	}
}

// pump reads chunks until a read error or cancellation. VTIME-limited reads
// return (0, nil) on timeout, which keeps the loop responsive to ctx.
func (m *Manager) pump(ctx context.Context, port Port) error {
	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := port.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		if m.cfg.OnData != nil {
			m.cfg.OnData(bytes.Clone(buf[:n]))
		}
	}
}

func (m *Manager) pickDevice() (string, error) {
	if m.cfg.Device != "" {
		return m.cfg.Device, nil
	}
	return FirstPort()
}

func (m *Manager) attach(device string, port Port) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.port = port
	m.device = device
	m.connected = true
}

func (m *Manager) detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.port = nil
	m.connected = false
}

func (m *Manager) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.cfg.Retry):
	}
}
