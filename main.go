// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// stripeline - LED stripe mesh controller and protocol analyzer.
//
// Entry point for the node runner, the host-side coordinator, the live
// monitoring TUI, the discovery sweep, and the offline packet analyzer.
// See cmd/root.go for the full subcommand tree.
package main

import (
	"fmt"
	"os"

	"github.com/knstwrk/stripeline/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
