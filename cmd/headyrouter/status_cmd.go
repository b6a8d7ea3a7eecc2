package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon health",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	h, err := checkHealth()
	if err != nil {
		fmt.Printf("%s daemon not reachable at %s\n", mark(false), apiAddr)
		return err
	}

	connected := "none"
	if len(h.Connected) > 0 {
		connected = strings.Join(h.Connected, ", ")
	}

	lines := []string{
		titleStyle.Render(h.Service) + " " + mutedStyle.Render(h.Version),
		fmt.Sprintf("%s %s, up %s", mark(h.Status == "healthy"), h.Status, h.Uptime),
		fmt.Sprintf("Backends:   %d/%d connected (%s)", len(h.Connected), h.Configured, connected),
		fmt.Sprintf("Registry:   %d services", h.Registered),
	}
	if g := h.Governance; g != nil {
		lines = append(lines, fmt.Sprintf("Governance: %d intercepted, %d denied (%.0f%% interception)",
			g.Intercepted, g.Denied, g.InterceptionRate*100))
	}
	fmt.Println(panelStyle.Render(strings.Join(lines, "\n")))
	return nil
}
