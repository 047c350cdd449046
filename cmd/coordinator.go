// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"log"
	"os"

	"github.com/knstwrk/stripeline/internal/coordinator"
	"github.com/knstwrk/stripeline/internal/radio"
	"github.com/knstwrk/stripeline/internal/timeout"
	"github.com/spf13/cobra"
)

var coordinatorNodeTablePath string

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the host-side line server that dispatches requests to nodes",
	Long: `Reads one textual request per line from stdin (VERB [node] [args...]),
dispatches it over the radio link with TTL retry, and writes a line-oriented
response (CODE STATUS plus Key: value fields) to stdout for each.

Verbs: HELO, PING, FINGER, START, PAUSE, SKIP, STOP, FRAME, DIM, TPM2, RSSI,
SLEEP, WAKE. See the node table persisted at --node-table for last-known
state across restarts.`,
	RunE: runCoordinator,
}

func init() {
	rootCmd.AddCommand(coordinatorCmd)
	coordinatorCmd.Flags().StringVar(&coordinatorNodeTablePath, "node-table", "nodetable.cbor",
		"path to the persisted CBOR node table")
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("coordinator: radio bridge connected via %s", connInfo)

	table, err := coordinator.LoadNodeTable(coordinatorNodeTablePath)
	if err != nil {
		return fmt.Errorf("coordinator: loading node table: %w", err)
	}

	clock := timeout.New(timeout.NewSystemClock())
	link := radio.New(clock, newConnTransceiver(conn))
	server := coordinator.NewServer(link, clock, table)

	log.Printf("coordinator: ready, reading requests from stdin")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		verb, node, reqArgs, err := coordinator.ParseRequest(line)
		if err != nil {
			fmt.Printf("400 Bad-Request\nReason: %v\n\n", err)
			log.Printf("coordinator: malformed request %q: %v", line, err)
			continue
		}
		resp := server.Handle(verb, node, reqArgs)
		fmt.Print(resp.Format())
		if err := table.Save(coordinatorNodeTablePath); err != nil {
			log.Printf("coordinator: saving node table: %v", err)
		}
	}
	return scanner.Err()
}
