/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	bridge "github.com/allbin/serial-bridge"
	"github.com/allbin/serial-bridge/internal/discovery"
	"github.com/allbin/serial-bridge/internal/flash"
	"github.com/allbin/serial-bridge/internal/serialio"
	"github.com/allbin/serial-bridge/internal/statusled"
	"github.com/allbin/serial-bridge/internal/web"
)

// restartExitCode tells the supervisor to restart the process so the
// newly staged image takes effect.
const restartExitCode = 3

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge daemon on the device",
	Long: `Run the bridge daemon: attach to the serial device, serve the
websocket terminal and the update endpoints, and advertise the service
over mDNS.

The serial device reconnects automatically when unplugged. A successful
update exits the process with code 3 so the supervisor restarts it onto
the staged image.

Examples:
  serial-bridge serve
  serial-bridge serve --device /dev/ttyUSB0 --addr :8080
  serial-bridge serve --password-hash "$(serial-bridge passwd)"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Storage
		store, err := flash.Open(
			viper.GetString("flash-dir"),
			viper.GetInt64("code-capacity"),
			viper.GetInt64("data-capacity"),
		)
		if err != nil {
			return fmt.Errorf("opening image store: %w", err)
		}

		var verifier bridge.Verifier = flash.NewMagicVerifier(nil)
		if !viper.GetBool("verify-magic") {
			verifier = flash.NopVerifier{}
		}

		// Device core
		indicator, err := bridge.NewIndicator()
		if err != nil {
			return err
		}

		// The manager's callbacks close over br, which is wired right
		// after; they only fire once Run starts.
		var br *bridge.Bridge
		manager := serialio.NewManager(serialio.ManagerConfig{
			Device: viper.GetString("device"),
			Logger: log,
			PortOptions: []serialio.Option{
				serialio.WithBaudRate(viper.GetInt("baud")),
			},
			OnData: func(p []byte) {
				br.OnSerialData(p)
			},
			OnConnect: func(device string) {
				if br.ClientCount() == 0 {
					indicator.Set(bridge.StateSerialConnected)
				}
			},
			OnDisconnect: func(device string) {
				if br.ClientCount() == 0 {
					indicator.Set(bridge.StateIdle)
				}
			},
		})

		br, err = bridge.NewBridge(indicator, manager, manager.Connected)
		if err != nil {
			return err
		}

		stager, err := bridge.NewStager(store, verifier, indicator)
		if err != nil {
			return err
		}

		// A committed update stops the daemon so the supervisor can
		// restart it onto the staged image.
		restart := func() {
			log.Info().Msg("update staged, restarting")
			time.Sleep(time.Second)
			stop()
		}

		server := web.NewServer(web.Config{
			Bridge:        br,
			Stager:        stager,
			Serial:        manager,
			Writer:        manager,
			Auth:          web.NewSessionAuth(viper.GetString("password-hash"), 24*time.Hour),
			Restart:       restart,
			UpdateTimeout: viper.GetDuration("update-timeout"),
			Logger:        log,
		})

		// Status indicator output
		switch viper.GetString("led") {
		case "terminal":
			go indicator.Run(ctx, statusled.NewTerminal(os.Stdout))
		case "sysfs":
			led := statusled.NewSysfs(
				viper.GetString("led-red"),
				viper.GetString("led-green"),
				viper.GetString("led-blue"),
			)
			go indicator.Run(ctx, led)
		}

		go br.RunHeartbeat(ctx)
		go manager.Run(ctx)

		if viper.GetBool("mdns") {
			instance := viper.GetString("mdns-instance")
			if instance == "" {
				instance, _ = os.Hostname()
			}
			adv, err := discovery.NewAdvertiser(discovery.Config{
				Instance: instance,
				Port:     viper.GetInt("mdns-port"),
				Device:   viper.GetString("device"),
				Logger:   log,
			})
			if err != nil {
				return err
			}
			go func() {
				if err := adv.Run(ctx); err != nil {
					log.Warn().Err(err).Msg("mdns advertising failed")
				}
			}()
		}

		log.Info().
			Str("device", viper.GetString("device")).
			Str("addr", viper.GetString("addr")).
			Msg("bridge starting")

		if err := server.Run(ctx, viper.GetString("addr")); err != nil {
			return err
		}

		if info, ok := stager.Last(); ok && info.Status == bridge.StatusComplete {
			os.Exit(restartExitCode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("device", "d", "", "Serial device path (default: first detected port)")
	serveCmd.Flags().IntP("baud", "b", 115200, "Baud rate")
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address")
	serveCmd.Flags().String("flash-dir", "/var/lib/serial-bridge", "Directory backing the image store")
	serveCmd.Flags().Int64("code-capacity", 4<<20, "Capacity of each firmware bank in bytes")
	serveCmd.Flags().Int64("data-capacity", 2<<20, "Capacity of the data region in bytes")
	serveCmd.Flags().Bool("verify-magic", true, "Verify the firmware image header before commit")
	serveCmd.Flags().String("password-hash", "", "bcrypt hash guarding the terminal and updates (empty disables auth)")
	serveCmd.Flags().Duration("update-timeout", 5*time.Second, "Per-read timeout during update uploads")
	serveCmd.Flags().Bool("mdns", true, "Advertise the service over mDNS")
	serveCmd.Flags().String("mdns-instance", "", "mDNS instance name (default: hostname)")
	serveCmd.Flags().Int("mdns-port", 8080, "Port published in the mDNS record")
	serveCmd.Flags().String("led", "none", "Status indicator output: none, terminal, sysfs")
	serveCmd.Flags().String("led-red", "", "sysfs brightness path for the red channel")
	serveCmd.Flags().String("led-green", "", "sysfs brightness path for the green channel")
	serveCmd.Flags().String("led-blue", "", "sysfs brightness path for the blue channel")

	cobra.CheckErr(viper.BindPFlags(serveCmd.Flags()))
}
