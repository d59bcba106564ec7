package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/serial-bridge/internal/tui/colors"
	"github.com/allbin/serial-bridge/internal/tui/styles"
)

// DeviceInfo mirrors the bridge's status endpoint for the status bar
type DeviceInfo struct {
	SerialConnected bool
	Device          string
	Clients         int
	UpdateStatus    string
	UpdateWritten   int64
	UpdateDeclared  int64
}

type StatusBar struct {
	host   string
	status string
	err    error
	width  int
	device *DeviceInfo
}

func NewStatusBar(host string) *StatusBar {
	return &StatusBar{
		host:   host,
		status: "Connecting...",
	}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetDeviceInfo(info *DeviceInfo) {
	sb.device = info
}

func (sb *StatusBar) SetConnecting() {
	sb.status = "Connecting..."
	sb.err = nil
}

func (sb *StatusBar) SetConnected() {
	sb.status = "Connected"
	sb.err = nil
}

func (sb *StatusBar) SetDisconnected(err error) {
	if err != nil {
		sb.status = fmt.Sprintf("Connection failed: %v", err)
		sb.err = err
	} else {
		sb.status = "Disconnected"
		sb.err = nil
	}
}

// View renders the full-width status bar: input mode, host, connection
// indicator, device details and timestamp.
func (sb *StatusBar) View(inputMode, sendingMode string, connected bool, timestamp string) string {
	terminalWidth := sb.width
	if terminalWidth <= 0 {
		terminalWidth = 80
	}

	// Section 1: Mode indicator (like NORMAL in nvim)
	var modeStyle lipgloss.Style
	if inputMode == "INSERT" {
		modeStyle = lipgloss.NewStyle().
			Foreground(colors.Base).
			Background(colors.Green).
			Bold(true).
			Padding(0, 1)
	} else {
		modeStyle = lipgloss.NewStyle().
			Foreground(colors.Base).
			Background(colors.Blue).
			Bold(true).
			Padding(0, 1)
	}
	mode := modeStyle.Render(inputMode)

	// Section 2: Target host
	host := styles.TitleStyle.Render(sb.host)

	// Section 3: Single character connection indicator
	var connIndicator string
	var connStatus styles.StatusType

	if sb.err != nil {
		connStatus = styles.StatusDisconnected
		connIndicator = "✗"
	} else if connected {
		connStatus = styles.StatusConnected
		connIndicator = "●"
	} else if sb.status == "Connecting..." {
		connStatus = styles.StatusConnecting
		connIndicator = "○"
	} else {
		connStatus = styles.StatusDisconnected
		connIndicator = "○"
	}
	connectionIndicator := styles.GetStatusStyle(connStatus).Render(connIndicator)

	// Section 4: Device-side details from the status endpoint
	var devInfo string
	if sb.device != nil {
		serial := "serial:down"
		if sb.device.SerialConnected {
			serial = "serial:up"
			if sb.device.Device != "" {
				serial = "serial:" + sb.device.Device
			}
		}
		devInfo = fmt.Sprintf("⚡ %s clients:%d", serial, sb.device.Clients)
		if sb.device.UpdateStatus != "" {
			devInfo += fmt.Sprintf(" update:%s %d/%d",
				sb.device.UpdateStatus,
				sb.device.UpdateWritten,
				sb.device.UpdateDeclared)
		}
	} else {
		devInfo = "⚡ bridge"
	}
	devInfoStyle := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Padding(0, 1)
	deviceDetails := devInfoStyle.Render(devInfo)

	// Section 5: Timestamp
	timeStyle := lipgloss.NewStyle().
		Foreground(colors.Subtext1).
		Padding(0, 1)
	clock := timeStyle.Render(timestamp)

	dividerStyle := lipgloss.NewStyle().
		Foreground(colors.Surface2).
		Padding(0, 1)
	divider := dividerStyle.Render("│")

	// Sending mode indicator with Tab hint (only shown in INSERT mode)
	var sendingModeInfo string
	if inputMode == "INSERT" {
		sendingModeStyle := lipgloss.NewStyle().
			Foreground(colors.Peach).
			Bold(true).
			Padding(0, 1)
		sendingModeInfo = sendingModeStyle.Render(fmt.Sprintf("[%s] Tab to toggle", sendingMode))
	}

	var leftSide string
	if sendingModeInfo != "" {
		leftSide = lipgloss.JoinHorizontal(lipgloss.Left, mode, host, connectionIndicator, sendingModeInfo, divider)
	} else {
		leftSide = lipgloss.JoinHorizontal(lipgloss.Left, mode, host, connectionIndicator, divider)
	}

	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, deviceDetails, divider, clock)

	leftWidth := lipgloss.Width(leftSide)
	rightWidth := lipgloss.Width(rightSide)
	spacerWidth := terminalWidth - leftWidth - rightWidth
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	statusBarStyle := lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(terminalWidth)

	content := lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide)
	return statusBarStyle.Render(content)
}
