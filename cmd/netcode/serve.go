package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/netcode/internal/protocol"
	"github.com/1ureka/netcode/internal/transport"
	"github.com/1ureka/netcode/internal/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host a game server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		pterm.Info.Printfln("Netcode server — v%s", version)
		pterm.Println()

		tr := transport.New(cfg)
		if err := tr.StartServer(); err != nil {
			return err
		}
		defer tr.Disconnect("server shutting down")

		util.StartStatsReporter(ctx, tr.Stats())
		runLoop(ctx, tr)

		util.LogInfo("Server stopped")
		return nil
	},
}

// runLoop drives the transport at the configured tick rate and drains the
// dispatch queue. A real game would route these messages into its
// simulation; the standalone binary just surfaces the human-readable ones.
func runLoop(ctx context.Context, tr *transport.Transport) {
	interval := time.Duration(float64(time.Second) / cfg.Tuning.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tr.Update()
			drainMessages(tr)
		}
	}
}

func drainMessages(tr *transport.Transport) {
	for {
		msg, ok := tr.PullMessage()
		if !ok {
			return
		}

		switch msg.Type {
		case protocol.TypeChatMessage, protocol.TypeTeamMessage:
			var chat protocol.ChatMessage
			if err := chat.Unmarshal(msg.Payload); err == nil {
				pterm.Printfln("%s: %s", chat.SenderName, chat.Message)
			}

		case protocol.TypeEvent:
			var ev protocol.EventPayload
			if err := ev.Unmarshal(msg.Payload); err != nil {
				continue
			}
			switch ev.Kind {
			case protocol.EventPlayerJoined:
				util.LogInfo("Player %d joined: %s", ev.Subject, ev.Data)
			case protocol.EventPlayerLeft:
				util.LogInfo("Player %d left: %s", ev.Subject, ev.Data)
			case protocol.EventPacketLost:
				util.LogDebug("Delivery failed to peer %d (%s)", ev.Subject, ev.Data)
			}

		case protocol.TypeDisconnect:
			var d protocol.DisconnectPayload
			if err := d.Unmarshal(msg.Payload); err == nil {
				util.LogInfo("Peer %d gone: %s", msg.Sender, d.Reason)
			}

		case protocol.TypeFileComplete:
			if name, data, ok := transport.SplitFile(msg.Payload); ok {
				util.LogSuccess("File %q received from peer %d (%d bytes)", name, msg.Sender, len(data))
			}
		}
	}
}
