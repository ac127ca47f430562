// Package main — точка входа telemetry-server (HTTP + WebSocket).
package main

import (
	"log"

	"github.com/Sp1ker2/rat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
