package dialplan

import (
	"fmt"
	"strings"

	"github.com/lq216/gonopbx/internal/database/models"
)

// Forward type values as stored in configuration.
const (
	ForwardUnconditional = "unconditional"
	ForwardBusy          = "busy"
	ForwardNoAnswer      = "no_answer"
)

// forwardKind selects which dial-logic shape an extension gets. Each kind
// maps to one emission routine so the branching stays flat and testable.
type forwardKind int

const (
	forwardNone forwardKind = iota
	forwardCFU
	forwardBusyOnly
	forwardNoAnswerOnly
	forwardBoth
)

// forwardPlan is the resolved forwarding configuration for one extension.
type forwardPlan struct {
	kind forwardKind
	cfu  *models.CallForward
	cfb  *models.CallForward
	cfna *models.CallForward
}

// buildForwardMap classifies enabled forwards per extension. An unconditional
// forward wins over busy/no-answer rules on the same extension.
func buildForwardMap(forwards []models.CallForward) map[string]forwardPlan {
	m := make(map[string]forwardPlan)
	for i := range forwards {
		f := &forwards[i]
		if !f.Enabled {
			continue
		}
		plan := m[f.Extension]
		switch f.ForwardType {
		case ForwardUnconditional:
			plan.cfu = f
		case ForwardBusy:
			plan.cfb = f
		case ForwardNoAnswer:
			plan.cfna = f
		default:
			continue
		}
		m[f.Extension] = plan
	}
	for ext, plan := range m {
		plan.kind = classify(plan)
		m[ext] = plan
	}
	return m
}

func classify(plan forwardPlan) forwardKind {
	switch {
	case plan.cfu != nil:
		return forwardCFU
	case plan.cfb != nil && plan.cfna != nil:
		return forwardBoth
	case plan.cfb != nil:
		return forwardBusyOnly
	case plan.cfna != nil:
		return forwardNoAnswerOnly
	default:
		return forwardNone
	}
}

// writeDialLogic emits the dial sequence for one extension. earlyAnswer
// answers the channel before dialing; inbound trunk legs need this so the
// upstream provider does not tear the call down while the device rings.
func writeDialLogic(b *strings.Builder, ext string, plan forwardPlan, ringTime int, earlyAnswer bool) {
	if plan.kind == forwardCFU {
		writeCFU(b, plan.cfu, ringTime, earlyAnswer)
		return
	}

	if earlyAnswer {
		writeEarlyAnswer(b)
	}

	// Never dial a device that is known unreachable.
	actualRing := ringTime
	if plan.cfna != nil {
		actualRing = plan.cfna.RingTime
	}
	fmt.Fprintf(b, " same => n,Set(DEVICE_STATE=${DEVICE_STATE(PJSIP/%s)})\n", ext)
	b.WriteString(" same => n,GotoIf($[\"${DEVICE_STATE}\" = \"UNAVAILABLE\"]?unavail)\n")
	b.WriteString(" same => n,GotoIf($[\"${DEVICE_STATE}\" = \"INVALID\"]?unavail)\n")
	fmt.Fprintf(b, " same => n,Dial(PJSIP/%s,%d,tTr)\n", ext, actualRing)

	switch plan.kind {
	case forwardBoth:
		writeBoth(b, ext, plan.cfb, plan.cfna)
	case forwardBusyOnly:
		writeBusyOnly(b, ext, plan.cfb)
	case forwardNoAnswerOnly:
		writeNoAnswerOnly(b, ext, plan.cfna)
	default:
		writeNoForward(b, ext)
	}
}

// writeCFU skips the local device entirely. No voicemail fallback exists on
// this path: the forward target is responsible for the call.
func writeCFU(b *strings.Builder, cfu *models.CallForward, ringTime int, earlyAnswer bool) {
	fmt.Fprintf(b, " same => n,NoOp(CFU active: forwarding to %s)\n", cfu.Destination)
	if earlyAnswer {
		writeEarlyAnswer(b)
	}
	fmt.Fprintf(b, " same => n,Dial(PJSIP/%s@trunk,%d,tT)\n", cfu.Destination, ringTime)
	b.WriteString(" same => n,Hangup()\n")
}

func writeBoth(b *strings.Builder, ext string, cfb, cfna *models.CallForward) {
	b.WriteString(" same => n,GotoIf($[\"${DIALSTATUS}\" = \"BUSY\"]?busy:noanswer)\n")
	fmt.Fprintf(b, " same => n(noanswer),NoOp(CFNA: forwarding to %s)\n", cfna.Destination)
	fmt.Fprintf(b, " same => n,Dial(PJSIP/%s@trunk,30,tT)\n", cfna.Destination)
	fmt.Fprintf(b, " same => n,VoiceMail(%s@default,u)\n", ext)
	b.WriteString(" same => n,Hangup()\n")
	fmt.Fprintf(b, " same => n(busy),NoOp(CFB: forwarding to %s)\n", cfb.Destination)
	fmt.Fprintf(b, " same => n,Dial(PJSIP/%s@trunk,30,tT)\n", cfb.Destination)
	fmt.Fprintf(b, " same => n,VoiceMail(%s@default,b)\n", ext)
	b.WriteString(" same => n,Hangup()\n")
}

func writeBusyOnly(b *strings.Builder, ext string, cfb *models.CallForward) {
	b.WriteString(" same => n,GotoIf($[\"${DIALSTATUS}\" = \"BUSY\"]?busy:unavail)\n")
	fmt.Fprintf(b, " same => n(unavail),VoiceMail(%s@default,u)\n", ext)
	b.WriteString(" same => n,Hangup()\n")
	fmt.Fprintf(b, " same => n(busy),NoOp(CFB: forwarding to %s)\n", cfb.Destination)
	fmt.Fprintf(b, " same => n,Dial(PJSIP/%s@trunk,30,tT)\n", cfb.Destination)
	fmt.Fprintf(b, " same => n,VoiceMail(%s@default,b)\n", ext)
	b.WriteString(" same => n,Hangup()\n")
}

func writeNoAnswerOnly(b *strings.Builder, ext string, cfna *models.CallForward) {
	b.WriteString(" same => n,GotoIf($[\"${DIALSTATUS}\" = \"BUSY\"]?busy:noanswer)\n")
	fmt.Fprintf(b, " same => n(noanswer),NoOp(CFNA: forwarding to %s)\n", cfna.Destination)
	fmt.Fprintf(b, " same => n,Dial(PJSIP/%s@trunk,30,tT)\n", cfna.Destination)
	fmt.Fprintf(b, " same => n,VoiceMail(%s@default,u)\n", ext)
	b.WriteString(" same => n,Hangup()\n")
	fmt.Fprintf(b, " same => n(busy),VoiceMail(%s@default,b)\n", ext)
	b.WriteString(" same => n,Hangup()\n")
}

func writeNoForward(b *strings.Builder, ext string) {
	b.WriteString(" same => n,GotoIf($[\"${DIALSTATUS}\" = \"BUSY\"]?busy:unavail)\n")
	fmt.Fprintf(b, " same => n(unavail),VoiceMail(%s@default,u)\n", ext)
	b.WriteString(" same => n,Hangup()\n")
	fmt.Fprintf(b, " same => n(busy),VoiceMail(%s@default,b)\n", ext)
	b.WriteString(" same => n,Hangup()\n")
}

func writeEarlyAnswer(b *strings.Builder) {
	b.WriteString(" same => n,Answer()\n")
	b.WriteString(" same => n,Wait(0.5)\n")
}
