// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/knstwrk/stripeline/internal/config"
	"github.com/knstwrk/stripeline/internal/node"
	"github.com/knstwrk/stripeline/internal/timeout"
	"github.com/spf13/cobra"
)

var (
	nodeConfigPath string
	nodeUID        uint32
	nodeHex        int
	nodeTPM2Port   string
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run the worker-side pixel/radio pipeline against a configuration file",
	Long: `Runs the node's cooperative superloop: decode radio packets, play scenes,
drive the pixel engine, and debounce the front panel, exactly as the firmware
does on the embedded target.

The configuration file uses the node's own declarative scene language (rf{},
leds{}, mode{} blocks); a file that fails to parse does not abort the run —
diagnostics are written next to it as <config>.log and the node falls back
to standalone mode, driven by --hex.`,
	RunE: runNode,
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.Flags().StringVarP(&nodeConfigPath, "config", "c", "", "path to the node configuration file")
	nodeCmd.Flags().Uint32Var(&nodeUID, "uid", 0, "this node's 32-bit identity, reported to FINGER queries")
	nodeCmd.Flags().IntVar(&nodeHex, "hex", 0, "front-panel hex switch reading, 0x0..0xF")
	nodeCmd.Flags().StringVar(&nodeTPM2Port, "tpm2-port", "",
		"serial port to ingest TPM2/TPZ frames from directly (mode tpm2 only)")
}

type staticIdentity struct{ uid uint32 }

func (i staticIdentity) UID() uint32       { return i.uid }
func (i staticIdentity) HWVersion() uint16 { return 1 }
func (i staticIdentity) SWVersion() uint16 { return 1 }

type staticTelemetry struct{}

func (staticTelemetry) VBat() uint16 { return 0 }
func (staticTelemetry) Temp() int16  { return 0 }

func runNode(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("node: radio bridge connected via %s", connInfo)

	clock := timeout.New(timeout.NewSystemClock())
	xcvr := newConnTransceiver(conn)
	driver := &logStringDriver{}
	hexSwitch := &flagHexSwitch{v: nodeHex}
	button := &flagPushbutton{}

	n := node.New(clock, os.DirFS("."), xcvr, driver, hexSwitch, button,
		staticIdentity{uid: nodeUID}, staticTelemetry{})

	if nodeTPM2Port != "" {
		tpmConn, err := OpenSerialConnection(nodeTPM2Port, baudRate)
		if err != nil {
			return fmt.Errorf("node: opening TPM2 source port: %w", err)
		}
		defer tpmConn.Close()
		n.SetTPM2Source(tpmConn)
	}

	if nodeConfigPath != "" {
		src, err := os.ReadFile(nodeConfigPath)
		if err != nil {
			return fmt.Errorf("node: reading configuration: %w", err)
		}
		var diag bytes.Buffer
		if err := n.LoadConfig(src, &diag); err != nil {
			logPath := nodeConfigPath + ".log"
			if werr := os.WriteFile(logPath, diag.Bytes(), 0o644); werr != nil {
				log.Printf("node: also failed writing diagnostics to %s: %v", logPath, werr)
			}
			log.Printf("node: %v, falling back to standalone mode (see %s)", err, logPath)
		} else if n.Mode() == config.ModeScene {
			if err := n.StartScene(0); err != nil {
				log.Printf("node: scene mode has no scene 0 to autostart: %v", err)
			}
		}
	}

	log.Printf("node: running in %s mode, hex=%#x", n.Mode(), hexSwitch.Read())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := n.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("node: %w", err)
	}
	return nil
}
