// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/knstwrk/stripeline/internal/handler"
	"github.com/spf13/cobra"
)

var analyzeFile string

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Offline decoder/formatter for a captured radio packet log",
	Long: `Reads length-prefixed frames (as written by the bridge protocol cmd/node.go
and cmd/coordinator.go speak to a radio adapter) from --file, or live from
the connection opened via --port/--url if --file is omitted, and prints one
human-readable line per packet: command name, destination, and payload.
The direct analog of the reference tool's own top-level packet formatter.`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzeFile, "file", "", "path to a captured frame log; omit to read live")
}

var commandNames = map[byte]string{
	handler.CmdPing:   "PING",
	handler.CmdStart:  "START",
	handler.CmdSkip:   "SKIP",
	handler.CmdStop:   "STOP",
	handler.CmdPause:  "PAUSE",
	handler.CmdFrame:  "FRAME",
	handler.CmdDim:    "DIM",
	handler.CmdTPM2:   "TPM2",
	handler.CmdFinger: "FINGER",
}

func formatCommand(b byte) string {
	if name, ok := commandNames[b]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", b)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	var src io.Reader
	if analyzeFile != "" {
		f, err := os.Open(analyzeFile)
		if err != nil {
			return fmt.Errorf("analyze: opening %s: %w", analyzeFile, err)
		}
		defer f.Close()
		src = f
	} else {
		conn, connInfo, err := OpenConnection()
		if err != nil {
			return err
		}
		defer conn.Close()
		log.Printf("analyze: reading live via %s", connInfo)
		src = conn
	}

	var lenBuf [4]byte
	count := 0
	for {
		if _, err := io.ReadFull(src, lenBuf[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return fmt.Errorf("analyze: reading frame length: %w", err)
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		frame := make([]byte, n)
		if _, err := io.ReadFull(src, frame); err != nil {
			return fmt.Errorf("analyze: reading frame: %w", err)
		}
		count++
		// Each captured frame is the radio link's own on-air framing:
		// [length byte, destination, command, command args...].
		if len(frame) < 3 {
			fmt.Printf("#%04d runt frame: %s\n", count, hex.EncodeToString(frame))
			continue
		}
		dst := frame[1]
		cmd := frame[2]
		payload := frame[3:]
		fmt.Printf("#%04d dst=%3d cmd=%-8s payload=%s\n", count, dst, formatCommand(cmd), hex.EncodeToString(payload))
	}

	fmt.Printf("\n%d frames decoded\n", count)
	return nil
}
