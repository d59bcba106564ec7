package models

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/allbin/serial-bridge/internal/tui/components"
)

// InputMode represents the current input mode (vim-like)
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
)

func (m InputMode) String() string {
	switch m {
	case InputModeNormal:
		return "NORMAL"
	case InputModeInsert:
		return "INSERT"
	default:
		return "NORMAL"
	}
}

type ConnectionStatusMsg struct {
	Connected bool
	Error     error
}

// DeviceStatusMsg carries a poll of the bridge's status endpoint
type DeviceStatusMsg struct {
	Info components.DeviceInfo
}

// MonitorModel holds the state shared between the monitor TUI and the
// websocket goroutines feeding it.
type MonitorModel struct {
	host string

	// State
	connected bool
	rawData   []components.DataReceivedMsg
	err       error
	ready     bool

	// Input mode (vim-like)
	inputMode InputMode

	// Websocket connection
	conn *websocket.Conn

	// Cancellation and synchronization
	cancel context.CancelFunc
	ctx    context.Context
	mu     sync.RWMutex
}

func NewMonitorModel(host string) *MonitorModel {
	ctx, cancel := context.WithCancel(context.Background())

	return &MonitorModel{
		host:      host,
		rawData:   make([]components.DataReceivedMsg, 0),
		inputMode: InputModeNormal, // Start in normal mode
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (m *MonitorModel) Host() string {
	return m.host
}

func (m *MonitorModel) GetConn() *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

func (m *MonitorModel) SetConn(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conn = conn
}

func (m *MonitorModel) IsConnected() bool {
	return m.connected
}

func (m *MonitorModel) SetConnected(connected bool) {
	m.connected = connected
}

func (m *MonitorModel) GetError() error {
	return m.err
}

func (m *MonitorModel) SetError(err error) {
	m.err = err
}

func (m *MonitorModel) IsReady() bool {
	return m.ready
}

func (m *MonitorModel) SetReady(ready bool) {
	m.ready = ready
}

func (m *MonitorModel) GetRawData() []components.DataReceivedMsg {
	return m.rawData
}

func (m *MonitorModel) AddRawData(msg components.DataReceivedMsg) {
	m.rawData = append(m.rawData, msg)
}

func (m *MonitorModel) ClearData() {
	m.rawData = make([]components.DataReceivedMsg, 0)
}

func (m *MonitorModel) GetInputMode() InputMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputMode
}

func (m *MonitorModel) SetInputMode(mode InputMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputMode = mode
}

func (m *MonitorModel) IsInInsertMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputMode == InputModeInsert
}

func (m *MonitorModel) GetContext() context.Context {
	return m.ctx
}

func (m *MonitorModel) Cancel() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *MonitorModel) Cleanup() {
	if m.cancel != nil {
		m.cancel()
	}

	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()
}
