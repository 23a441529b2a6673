package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/netcode/internal/browser"
	"github.com/1ureka/netcode/internal/protocol"
	"github.com/1ureka/netcode/internal/util"
)

var browseTimeout time.Duration

func init() {
	browseCmd.Flags().DurationVar(&browseTimeout, "timeout", 3*time.Second, "how long to wait for responses")
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Discover game servers on the LAN and configured masters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), browseTimeout)
		defer cancel()

		b, err := browser.New()
		if err != nil {
			return err
		}
		defer b.Close()

		if err := b.Refresh(cfg.Server.Port); err != nil {
			util.LogWarning("%v", err)
		}

		// Masters list servers beyond the broadcast domain; each listed
		// address still gets a direct probe so the table shows a real ping.
		for _, entry := range browser.QueryMasters(ctx, cfg.Browser.MasterServers) {
			if err := b.Probe(entry.Addr); err != nil {
				util.LogDebug("%v", err)
			}
		}

		spinner, _ := pterm.DefaultSpinner.Start("Waiting for responses...")
		deadline := time.Now().Add(browseTimeout)
		for time.Now().Before(deadline) {
			b.Poll()
			time.Sleep(100 * time.Millisecond)
		}
		spinner.Stop()

		servers := b.Servers()
		if len(servers) == 0 {
			pterm.Warning.Println("No servers found")
			return nil
		}

		rows := pterm.TableData{{"Name", "Address", "Players", "Map", "Ping", "Flags"}}
		for _, s := range servers {
			rows = append(rows, []string{
				s.Info.Name,
				s.Addr,
				fmt.Sprintf("%d/%d", s.Info.PlayerCount, s.Info.MaxPlayers),
				s.Info.Map,
				fmt.Sprintf("%d ms", s.PingMillis),
				infoFlags(s.Info.Flags),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func infoFlags(flags uint8) string {
	out := ""
	if flags&protocol.InfoPassworded != 0 {
		out += "P"
	}
	if flags&protocol.InfoAntiCheat != 0 {
		out += "A"
	}
	if flags&protocol.InfoModded != 0 {
		out += "M"
	}
	if flags&protocol.InfoDedicated != 0 {
		out += "D"
	}
	return out
}
