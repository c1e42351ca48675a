package asterisk

import (
	"fmt"
	"strings"

	"github.com/lq216/gonopbx/internal/database/models"
)

// queueStrategy maps the stored ring strategy to the queue engine's name.
func queueStrategy(s string) string {
	switch s {
	case "roundrobin":
		return "rrmemory"
	case "leastrecent":
		return "leastrecent"
	default:
		return "ringall"
	}
}

// GenerateQueues renders queues.conf with one [rg_<id>] queue per enabled
// ring group, matching the queue names the dialplan dispatches to.
func GenerateQueues(groups []models.RingGroup) string {
	var b strings.Builder

	b.WriteString("; Auto-generated queue configuration\n")
	b.WriteString("; Generated by GonoPBX - do not edit by hand\n\n")
	b.WriteString("[general]\n")
	b.WriteString("persistentmembers=no\n")
	b.WriteString("autofill=yes\n\n")

	for i := range groups {
		g := &groups[i]
		if !g.Enabled {
			continue
		}
		ring := g.RingTime
		if ring == 0 {
			ring = 20
		}
		fmt.Fprintf(&b, "[rg_%d]\n", g.ID)
		fmt.Fprintf(&b, "strategy=%s\n", queueStrategy(g.Strategy))
		fmt.Fprintf(&b, "timeout=%d\n", ring)
		b.WriteString("retry=2\n")
		b.WriteString("ringinuse=no\n")
		b.WriteString("joinempty=yes\n")
		for _, member := range g.Members {
			fmt.Fprintf(&b, "member => PJSIP/%s\n", member)
		}
		b.WriteString("\n")
	}

	return b.String()
}
