package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rvmesh/coordinator/internal/registry"
)

// RenderDevices formats a GetDevices snapshot as a colorized table for the
// admin console, using the same color/TTY conventions as the rest of this
// package: color only when stdout is an attached, NO_COLOR-free terminal.
func RenderDevices(devices map[string]registry.Snapshot) string {
	if len(devices) == 0 {
		return Color(Dim, "(no controllers connected)")
	}

	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		dev := devices[id]
		fmt.Fprintf(&b, "%s\n", Color(Bold+Cyan, id))
		if len(dev.Inventory) == 0 {
			fmt.Fprintf(&b, "  %s\n", Color(Dim, "(no declared entries)"))
			continue
		}
		for _, e := range dev.Inventory {
			stateColor := Yellow
			switch e.State {
			case "on":
				stateColor = Green
			case "off":
				stateColor = Red
			}
			fmt.Fprintf(&b, "  %-12s %-20s %s\n", e.ID, e.Label, Color(stateColor, e.State))
		}
	}
	return b.String()
}
