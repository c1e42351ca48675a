package dialplan

import (
	"fmt"
	"strings"

	"github.com/lq216/gonopbx/internal/database/models"
)

// writeIVRContext emits the isolated [ivr-N] context for one menu: prompt
// playback, per-digit dispatch, and an invalid/timeout retry counter capped
// at the configured limit.
func writeIVRContext(b *strings.Builder, menu *models.IVRMenu) {
	fmt.Fprintf(b, "[ivr-%d]\n", menu.ID)
	b.WriteString("exten => s,1,NoOp(IVR Menu)\n")
	b.WriteString(" same => n,Set(IVR_TRIES=${IF($[\"${IVR_TRIES}\"=\"\"]?0:${IVR_TRIES})})\n")
	fmt.Fprintf(b, " same => n,Set(IVR_MAX=%d)\n", menu.Retries)
	b.WriteString(" same => n,Answer()\n")
	b.WriteString(" same => n,Wait(0.5)\n")
	if menu.Prompt != "" {
		fmt.Fprintf(b, " same => n,Background(%s)\n", menu.Prompt)
	}
	timeout := menu.TimeoutSeconds
	if timeout == 0 {
		timeout = 5
	}
	fmt.Fprintf(b, " same => n,WaitExten(%d)\n", timeout)

	for _, opt := range menu.Options {
		fmt.Fprintf(b, "exten => %s,1,NoOp(IVR Option %s -> %s)\n", opt.Digit, opt.Digit, opt.Destination)
		fmt.Fprintf(b, " same => n,Goto(internal,%s,1)\n", opt.Destination)
	}

	if menu.TimeoutDestination != "" {
		b.WriteString("exten => i,1,NoOp(IVR Invalid)\n")
		writeIVRRetry(b, fmt.Sprintf(" same => n,Goto(internal,%s,1)\n", menu.TimeoutDestination))
		b.WriteString("exten => t,1,NoOp(IVR Timeout)\n")
		writeIVRRetry(b, fmt.Sprintf(" same => n,Goto(internal,%s,1)\n", menu.TimeoutDestination))
	} else {
		b.WriteString("exten => i,1,Playback(pbx-invalid)\n")
		writeIVRRetry(b, " same => n,Hangup()\n")
		b.WriteString("exten => t,1,Set(IVR_TRIES=$[${IVR_TRIES}+1])\n")
		b.WriteString(" same => n,GotoIf($[${IVR_TRIES} <= ${IVR_MAX}]?s,1)\n")
		b.WriteString(" same => n,Hangup()\n")
	}
	b.WriteString("\n")
}

// writeIVRRetry bumps the retry counter, replays the menu while under the
// limit, and falls through to the exhaustion action otherwise.
func writeIVRRetry(b *strings.Builder, exhausted string) {
	b.WriteString(" same => n,Set(IVR_TRIES=$[${IVR_TRIES}+1])\n")
	b.WriteString(" same => n,GotoIf($[${IVR_TRIES} <= ${IVR_MAX}]?s,1)\n")
	b.WriteString(exhausted)
}
