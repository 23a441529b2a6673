package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/netcode/internal/transport"
	"github.com/1ureka/netcode/internal/util"
)

var connectCmd = &cobra.Command{
	Use:   "connect <host> [port]",
	Short: "Join a game server",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		host := args[0]
		port := cfg.Server.Port
		if len(args) == 2 {
			p, err := strconv.Atoi(args[1])
			if err != nil || p < 1 || p > 65535 {
				return fmt.Errorf("invalid port %q (must be 1~65535)", args[1])
			}
			port = p
		}

		pterm.Info.Printfln("Netcode client — v%s", version)
		pterm.Println()

		tr := transport.New(cfg)
		if err := tr.Connect(host, port); err != nil {
			return err
		}
		defer tr.Disconnect("client quitting")

		util.StartStatsReporter(ctx, tr.Stats())

		// Anything typed on stdin goes out as chat. Lines starting with
		// "/team " reach teammates only.
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if team, ok := strings.CutPrefix(line, "/team "); ok {
					tr.SendChat(team, true)
					continue
				}
				tr.SendChat(line, false)
			}
		}()

		runLoop(ctx, tr)

		util.LogInfo("Client stopped")
		return nil
	},
}
