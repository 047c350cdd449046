// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/knstwrk/stripeline/internal/coordinator"
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/cobra"
)

var monitorNodeTablePath string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live TUI over a running coordinator's persisted node table",
	Long: `Polls the node table a coordinator process persists to disk and renders a
live table of last-seen time, RSSI (colored on a red-to-green gradient),
current scene, and sleep state. Mirrors the reference tool's own
cmd/control_tui.go live-device-list panel, fed here by table reloads
instead of a direct serial stream.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorNodeTablePath, "node-table", "nodetable.cbor",
		"path to the coordinator's persisted CBOR node table")
}

type monitorTickMsg time.Time
type monitorReloadMsg struct {
	table *coordinator.NodeTable
	err   error
}

type monitorModel struct {
	path     string
	table    *coordinator.NodeTable
	err      error
	quitting bool
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) reloadCmd() tea.Cmd {
	return func() tea.Msg {
		table, err := coordinator.LoadNodeTable(m.path)
		return monitorReloadMsg{table: table, err: err}
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(monitorTickCmd(), m.reloadCmd(), tea.EnterAltScreen)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	case monitorTickMsg:
		return m, tea.Batch(monitorTickCmd(), m.reloadCmd())
	case monitorReloadMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.table = msg.table
			m.err = nil
		}
	}
	return m, nil
}

// rssiColor maps an RSSI reading (roughly -110..-30 dBm) onto a
// red-to-green gradient via go-colorful's perceptually uniform blend,
// the direct RSSI-to-color consumer the domain stack calls for.
func rssiColor(rssi int) lipgloss.Color {
	t := float64(rssi+110) / 80
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	bad, _ := colorful.Hex("#D70000")
	good, _ := colorful.Hex("#00D700")
	c := bad.BlendLuv(good, t)
	return lipgloss.Color(c.Hex())
}

var (
	monitorTitleStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1).Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230"))
	monitorHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	monitorErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func (m monitorModel) View() string {
	if m.quitting {
		return ""
	}
	b := monitorTitleStyle.Render("stripeline monitor") + "\n\n"
	if m.err != nil {
		return b + monitorErrorStyle.Render(fmt.Sprintf("could not load %s: %v", m.path, m.err)) + "\n"
	}
	if m.table == nil {
		return b + "loading...\n"
	}

	ids := m.table.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	b += monitorHeaderStyle.Render(fmt.Sprintf("%-5s %-12s %-8s %-6s %s", "NODE", "LAST SEEN", "RSSI", "SCENE", "STATE")) + "\n"
	for _, id := range ids {
		st, ok := m.table.Get(id)
		if !ok {
			continue
		}
		state := "awake"
		if st.Sleeping {
			state = "sleeping"
		}
		rssiStyle := lipgloss.NewStyle().Foreground(rssiColor(st.LastRSSI))
		row := fmt.Sprintf("%-5d %-12d %-8s %-6d %s",
			id, st.LastSeen, rssiStyle.Render(fmt.Sprintf("%d dBm", st.LastRSSI)), st.LastScene, state)
		b += row + "\n"
	}
	b += "\nq to quit\n"
	return b
}

func runMonitor(cmd *cobra.Command, args []string) error {
	m := monitorModel{path: monitorNodeTablePath}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
