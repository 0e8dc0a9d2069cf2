// Command coordinatord hosts the network coordinator: it resolves the
// server's LAN address, starts the discovery responder and session server,
// and drops into a line-oriented admin console on stdin for inspecting
// connected controllers and sending them commands.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rvmesh/coordinator/internal/config"
	"github.com/rvmesh/coordinator/internal/coordinator"
	"github.com/rvmesh/coordinator/internal/events"
	"github.com/rvmesh/coordinator/internal/logging"
	"github.com/rvmesh/coordinator/internal/netaddr"
	"github.com/rvmesh/coordinator/internal/ui"
)

var (
	// Version is set at build time.
	Version = "dev"

	flagConfig   string
	flagLogLevel string
	flagJSONLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "coordinatord",
	Short: "rvmesh network coordinator",
	Long: `coordinatord discovers RV relay controllers over UDP, accepts their
TCP sessions, tracks their declared inventory and live state, and lets an
operator query and command them from an interactive console.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default: ~/.rvcoord/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "emit structured JSON logs instead of text")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("coordinatord %s\n", Version)
	},
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := logging.SetLevel(flagLogLevel); err != nil {
		return err
	}
	if flagJSONLogs {
		logging.SetJSON()
	}
	log := logging.Component("main")

	path := flagConfig
	if path == "" {
		if p, err := config.DefaultPath(); err == nil {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	serverIP := netaddr.Probe()
	log.WithField("server_ip", serverIP).
		WithField("udp_port", cfg.UDPPort).
		WithField("tcp_port", cfg.TCPPort).
		Info("starting coordinator")

	core := coordinator.New(cfg, serverIP)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core.Start(ctx)
	defer core.Stop()

	go logEvents(ctx, core, log)

	runConsole(ctx, core)
	return nil
}

// logEvents drains the coordinator's event stream to the log, giving an
// operator visibility into disconnects and component failures even with
// the console idle.
func logEvents(ctx context.Context, core *coordinator.Core, log *logrus.Entry) {
	ch, unsubscribe := core.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Kind {
			case events.KindDeviceDisconnected:
				log.WithField("target_id", ev.TargetID).Info("device disconnected")
			case events.KindComponentFailed:
				log.WithField("component", ev.Component).WithError(ev.Err).Error("component failed to start")
			}
		}
	}
}

// runConsole reads admin commands from stdin until ctx is cancelled or
// stdin reaches EOF: "devices" prints the live registry, "send <target_id>
// <device_type> <label> <state>" dispatches a command, "quit" exits early.
func runConsole(ctx context.Context, core *coordinator.Core) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Println("coordinatord admin console. Commands: devices, send <target_id> <device_type> <label> <state>, quit")
	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleConsoleLine(core, line); quit {
				return
			}
		}
	}
}

func handleConsoleLine(core *coordinator.Core, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit":
		return true
	case "devices":
		fmt.Print(ui.RenderDevices(core.GetDevices()))
	case "send":
		if len(fields) != 5 {
			fmt.Println("usage: send <target_id> <device_type> <label> <state>")
			return false
		}
		if err := core.SendCommand(fields[1], fields[2], fields[3], fields[4]); err != nil {
			fmt.Println(ui.Color(ui.Red, err.Error()))
		}
	default:
		fmt.Printf("unknown command %q\n", fields[0])
	}
	return false
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
