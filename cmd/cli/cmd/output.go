package cmd

import (
	"fmt"
	"time"

	"simplane/pkg/api"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case api.StatusOperational, api.EventSimulationFinish:
		return colorGreen + "✓" + colorReset
	case api.EventSimulationInitError, api.EventSimulationRunError:
		return colorRed + "✗" + colorReset
	case api.StatusMaintenance, api.EventSimulationInit, api.EventSimulationResult:
		return colorYellow + "⏳" + colorReset
	case api.EventSimulationQueued:
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case api.StatusOperational, api.EventSimulationFinish:
		return icon + " " + colorGreen + status + colorReset
	case api.EventSimulationInitError, api.EventSimulationRunError:
		return icon + " " + colorRed + status + colorReset
	case api.StatusMaintenance, api.EventSimulationInit, api.EventSimulationResult:
		return icon + " " + colorYellow + status + colorReset
	case api.EventSimulationQueued:
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
