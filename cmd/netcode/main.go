// Netcode — reliable UDP game networking.
//
// One binary, three roles: host a game server, join one, or browse for
// servers on the LAN and the configured master lists.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
