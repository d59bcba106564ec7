/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/allbin/serial-bridge/internal/tui/components"
	"github.com/allbin/serial-bridge/internal/tui/keys"
	"github.com/allbin/serial-bridge/internal/tui/models"
	"github.com/allbin/serial-bridge/internal/tui/styles"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <host>",
	Short: "Open a terminal to a remote bridge",
	Long: `Open an interactive terminal to a bridge running elsewhere on the
network. Data from the remote serial device streams in real time, and
input is transmitted back through the bridge.

Features:
- Real-time data streaming with timestamps
- ASCII and hex display modes
- ASCII and hex send modes (Tab to toggle in insert mode)
- Device status in the status bar (serial link, client count, updates)

Example usage:
  serial-bridge monitor bridge.local:8080
  serial-bridge monitor 192.168.1.50:8080 --password secret`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		host := strings.TrimPrefix(strings.TrimPrefix(args[0], "http://"), "ws://")
		password, _ := cmd.Flags().GetString("password")

		if err := runMonitorTUI(host, password); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringP("password", "p", "", "Password for bridges with auth enabled")
}

// monitorModel represents the Bubble Tea model for the monitor command
type monitorModel struct {
	*models.MonitorModel
	terminal  *components.Terminal
	statusBar *components.StatusBar
	input     *components.Input
	help      help.Model
	keys      keys.MonitorKeys
}

// login exchanges the password for a session cookie
func login(host, password string) (*http.Cookie, error) {
	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.PostForm("http://"+host+"/api/login", url.Values{"password": {password}})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	for _, c := range resp.Cookies() {
		if c.Name == "session" {
			return c, nil
		}
	}
	return nil, fmt.Errorf("login rejected (status %d)", resp.StatusCode)
}

func runMonitorTUI(host, password string) error {
	m := monitorModel{
		MonitorModel: models.NewMonitorModel(host),
		terminal:     components.NewTerminal(0, 0), // Sized by WindowSizeMsg
		statusBar:    components.NewStatusBar(host),
		input:        components.NewInput("Type message and press Enter to send..."),
		help:         help.New(),
		keys:         keys.NewMonitorKeys(),
	}
	m.statusBar.SetConnecting()

	p := tea.NewProgram(&m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	// Connect in the background
	go func() {
		header := http.Header{}
		if password != "" {
			cookie, err := login(host, password)
			if err != nil {
				p.Send(models.ConnectionStatusMsg{Connected: false, Error: err})
				return
			}
			header.Set("Cookie", cookie.String())
		}

		conn, _, err := websocket.DefaultDialer.Dial("ws://"+host+"/ws", header)
		if err != nil {
			p.Send(models.ConnectionStatusMsg{Connected: false, Error: err})
			return
		}
		m.SetConn(conn)
		p.Send(models.ConnectionStatusMsg{Connected: true})

		// Poll device status for the status bar
		go func() {
			client := &http.Client{Timeout: 2 * time.Second}
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-m.GetContext().Done():
					return
				case <-ticker.C:
					resp, err := client.Get("http://" + host + "/api/status")
					if err != nil {
						continue
					}
					var status struct {
						Connected bool   `json:"connected"`
						Device    string `json:"device"`
						Clients   int    `json:"clients"`
						Update    *struct {
							Status   string `json:"status"`
							Written  int64  `json:"written"`
							Declared int64  `json:"declared"`
						} `json:"update"`
					}
					err = json.NewDecoder(resp.Body).Decode(&status)
					resp.Body.Close()
					if err != nil {
						continue
					}

					info := components.DeviceInfo{
						SerialConnected: status.Connected,
						Device:          status.Device,
						Clients:         status.Clients,
					}
					if status.Update != nil {
						info.UpdateStatus = status.Update.Status
						info.UpdateWritten = status.Update.Written
						info.UpdateDeclared = status.Update.Declared
					}
					p.Send(models.DeviceStatusMsg{Info: info})
				}
			}
		}()

		// Read loop, ends when the connection drops
		go func() {
			defer conn.Close()
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					if m.GetContext().Err() == nil {
						p.Send(models.ConnectionStatusMsg{Connected: false, Error: err})
					}
					return
				}
				p.Send(components.DataReceivedMsg{
					Timestamp: time.Now(),
					Data:      msg,
				})
			}
		}()
	}()

	_, err := p.Run()

	m.Cancel()
	return err
}

func (m *monitorModel) Init() tea.Cmd {
	return nil
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Input area height (includes border)
		inputHeight := 3
		// Status bar is single line
		statusBarHeight := 1

		m.terminal.SetSize(msg.Width, msg.Height-inputHeight-statusBarHeight)
		m.input.SetWidth(msg.Width)
		m.statusBar.SetWidth(msg.Width)
		m.SetReady(true)

	case models.ConnectionStatusMsg:
		m.SetConnected(msg.Connected)
		if msg.Error != nil {
			m.SetError(msg.Error)
			m.statusBar.SetDisconnected(msg.Error)
		} else if msg.Connected {
			m.statusBar.SetConnected()
		} else {
			m.statusBar.SetDisconnected(nil)
		}

	case models.DeviceStatusMsg:
		info := msg.Info
		m.statusBar.SetDeviceInfo(&info)

	case components.DataReceivedMsg:
		if m.IsReady() {
			m.AddRawData(msg)
			m.terminal.AddMessage(msg)
		}

	case tea.KeyMsg:
		if m.IsInInsertMode() {
			switch {
			case key.Matches(msg, m.keys.Escape):
				m.SetInputMode(models.InputModeNormal)
				m.input.Blur()
				return m, tea.Batch(cmds...)
			case key.Matches(msg, m.keys.Enter):
				cmds = append(cmds, m.sendInput()...)
				return m, tea.Batch(cmds...)
			case key.Matches(msg, m.keys.Up):
				m.input.NavigateHistoryUp()
				return m, tea.Batch(cmds...)
			case key.Matches(msg, m.keys.Down):
				m.input.NavigateHistoryDown()
				return m, tea.Batch(cmds...)
			case key.Matches(msg, m.keys.ToggleSendMode):
				m.input.ToggleSendingMode()
				return m, tea.Batch(cmds...)
			}
		} else {
			switch {
			case key.Matches(msg, m.keys.Quit):
				m.Cleanup()
				return m, tea.Quit

			case key.Matches(msg, m.keys.InsertMode):
				m.SetInputMode(models.InputModeInsert)
				m.input.Focus()
				return m, tea.Batch(cmds...)

			case key.Matches(msg, m.keys.Clear):
				m.ClearData()
				m.terminal.Clear()

			case key.Matches(msg, m.keys.Help):
				m.help.ShowAll = !m.help.ShowAll

			case key.Matches(msg, m.keys.ToggleHex):
				m.terminal.ToggleHex()
				m.terminal.Refresh(m.GetRawData())

			case key.Matches(msg, m.keys.ToggleASCII):
				m.terminal.ToggleASCII()
				m.terminal.Refresh(m.GetRawData())

			case key.Matches(msg, m.keys.ToggleSendMode):
				m.input.ToggleSendingMode()
			}
		}
	}

	// Update components (only update input in insert mode)
	var cmd tea.Cmd
	if m.IsInInsertMode() {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	switch msg.(type) {
	case tea.WindowSizeMsg:
		_, cmd = m.terminal.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// sendInput encodes the input per the sending mode and writes it to the
// websocket, reporting the outcome as a TX status line.
func (m *monitorModel) sendInput() []tea.Cmd {
	conn := m.GetConn()
	inputStr := m.input.Value()
	if inputStr == "" || conn == nil {
		return nil
	}

	var dataToSend []byte
	var displayData []byte
	var err error

	switch m.input.GetSendingMode() {
	case components.SendingModeASCII:
		dataToSend = []byte(inputStr + "\n")
		displayData = []byte(inputStr)
	case components.SendingModeHex:
		dataToSend, err = components.ParseHexInput(inputStr)
		if err != nil {
			m.terminal.AddMessage(components.DataReceivedMsg{
				Timestamp: time.Now(),
				Data:      []byte(fmt.Sprintf("Invalid hex input: %v", err)),
			})
			return nil
		}
		displayData = dataToSend
	}

	writeStatusCh := make(chan error, 1)
	go func() {
		writeStatusCh <- conn.WriteMessage(websocket.BinaryMessage, dataToSend)
	}()

	txData := components.DataReceivedMsg{
		Timestamp: time.Now(),
		Data:      displayData,
		IsTX:      true,
		Status:    "PENDING",
	}
	m.AddRawData(txData)
	m.terminal.AddMessage(txData)

	m.input.AddToHistory(inputStr)
	m.input.SetValue("")

	return []tea.Cmd{func() tea.Msg {
		final := components.DataReceivedMsg{
			Timestamp: time.Now(),
			Data:      displayData,
			IsTX:      true,
			Status:    "SENT",
		}
		if err := <-writeStatusCh; err != nil {
			final.Status = "ERROR"
		}
		return final
	}}
}

func (m *monitorModel) View() string {
	var content string
	switch {
	case m.GetError() != nil && !m.IsConnected():
		content = styles.ErrorStyle.Render(fmt.Sprintf("Connection failed: %v", m.GetError()))
	case m.IsReady():
		content = m.terminal.View()
	default:
		content = "Initializing..."
	}

	inputMode := m.GetInputMode().String()
	isInsertMode := m.IsInInsertMode()
	input := m.input.ViewWithMode(inputMode, isInsertMode)

	sendingMode := m.input.GetSendingMode().String()
	timestamp := time.Now().Format("15:04:05")

	terminalWidth := 80
	if m.IsReady() {
		terminalWidth = m.terminal.Width()
	}
	m.statusBar.SetWidth(terminalWidth)

	statusBar := m.statusBar.View(inputMode, sendingMode, m.IsConnected(), timestamp)

	contentWithBorder := styles.ContentBorderStyle.Render(content)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		contentWithBorder,
		input,
		statusBar,
	)
}
