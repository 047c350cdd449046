// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/knstwrk/stripeline/internal/coordinator"
	"github.com/knstwrk/stripeline/internal/radio"
	"github.com/knstwrk/stripeline/internal/timeout"
	"github.com/spf13/cobra"
)

var (
	discoverFrom int
	discoverTo   int
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan a range of node addresses with unicast PING",
	Long: `Since this radio link has no broadcast-discovery frame of its own (node
addresses are statically configured per §1's Non-goals), discover instead
sends a unicast PING to every address in --from..--to and reports which
ones ack, mirroring the reference tool's own discovery sweep but over a
known address range rather than a DISCOVERY_REQUEST broadcast.

Exit codes:
  0 - at least one node responded
  1 - no node responded
  2 - connection error`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().IntVar(&discoverFrom, "from", 0, "first node address to probe")
	discoverCmd.Flags().IntVar(&discoverTo, "to", 31, "last node address to probe (inclusive)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("stripeline discover\nConnection: %s\nRange: %d..%d\n\n", connInfo, discoverFrom, discoverTo)

	clock := timeout.New(timeout.NewSystemClock())
	link := radio.New(clock, newConnTransceiver(conn))
	table := coordinator.NewNodeTable()
	server := coordinator.NewServer(link, clock, table)

	found := 0
	for addr := discoverFrom; addr <= discoverTo; addr++ {
		resp := server.Handle(coordinator.VerbPING, uint8(addr), nil)
		if resp.Code == 100 {
			found++
			fmt.Printf("node %3d: ack (VBat=%s)\n", addr, resp.Fields["VBat"])
		}
		time.Sleep(10 * time.Millisecond)
	}

	fmt.Printf("\n%d of %d addresses responded\n", found, discoverTo-discoverFrom+1)
	if found == 0 {
		os.Exit(1)
	}
	return nil
}
