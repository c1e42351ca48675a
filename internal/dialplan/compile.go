// Package dialplan compiles the stored PBX configuration into an Asterisk
// extensions.conf dialplan. Compilation is a pure function over a Snapshot:
// the same input always yields byte-identical output, and no external
// resource is touched. Writing the artifact and reloading Asterisk is the
// applier's job, not the compiler's.
package dialplan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lq216/gonopbx/internal/database/models"
)

// defaultRingTime is the ring window served by the shared extension
// pattern. Extensions wanting a different window need their own entry.
const defaultRingTime = 20

const header = `; Auto-generated dialplan configuration
; Generated by GonoPBX - do not edit by hand

[general]
static=yes
writeprotect=no
clearglobalvars=no

[globals]

[internal]
; Internal Extension Dialing (PJSIP)
`

// Compile renders the full dialplan for a configuration snapshot.
func Compile(s Snapshot) string {
	var b strings.Builder

	fwdMap := buildForwardMap(s.Forwards)
	outbound := buildOutboundMap(s.Routes, s.Peers)
	trunks := s.trunkByID()
	ringTimeouts := s.ringTimeouts()

	ringGroupByExt := make(map[string]*models.RingGroup, len(s.RingGroups))
	for i := range s.RingGroups {
		ringGroupByExt[s.RingGroups[i].Extension] = &s.RingGroups[i]
	}
	ivrByExt := make(map[string]*models.IVRMenu, len(s.IVRMenus))
	for i := range s.IVRMenus {
		ivrByExt[s.IVRMenus[i].Extension] = &s.IVRMenus[i]
	}

	b.WriteString(header)

	// Exact-match entries beat pattern matches in Asterisk, so ring groups
	// and IVR menus claim their extensions ahead of the generic pattern.
	for i := range s.RingGroups {
		g := &s.RingGroups[i]
		if !g.Enabled {
			continue
		}
		fmt.Fprintf(&b, "exten => %s,1,NoOp(Ring Group %s)\n", g.Extension, g.Name)
		b.WriteString(" same => n,Set(CALLERID(name)=${CALLERID(name)})\n")
		writeRingGroupLogic(&b, g)
		b.WriteString("\n")
	}

	for i := range s.IVRMenus {
		m := &s.IVRMenus[i]
		if !m.Enabled {
			continue
		}
		fmt.Fprintf(&b, "exten => %s,1,NoOp(IVR %s)\n", m.Extension, m.Name)
		fmt.Fprintf(&b, " same => n,Goto(ivr-%d,s,1)\n\n", m.ID)
	}

	// Generic internal dialing pattern plus BLF hints.
	b.WriteString("exten => _1XXX,1,NoOp(Internal Call from ${CALLERID(all)} to ${EXTEN})\n")
	b.WriteString(" same => n,Set(CALLERID(name)=${CALLERID(name)})\n")
	for i := range s.Peers {
		p := &s.Peers[i]
		if p.Enabled && p.BLFEnabled {
			fmt.Fprintf(&b, "exten => %s,hint,PJSIP/%s\n", p.Extension, p.Extension)
		}
	}
	writeDialLogic(&b, "${EXTEN}", forwardPlan{}, defaultRingTime, false)
	b.WriteString("\n")

	// Per-extension overrides: forwarding rules or a non-default mailbox
	// ring timeout cannot ride the shared pattern.
	for _, ext := range overrideExtensions(fwdMap, ringTimeouts) {
		ring := ringTimeouts[ext]
		if ring == 0 {
			ring = defaultRingTime
		}
		fmt.Fprintf(&b, "; Extension %s - custom rules\n", ext)
		fmt.Fprintf(&b, "exten => %s,1,NoOp(Call to %s with forwarding)\n", ext, ext)
		b.WriteString(" same => n,Set(CALLERID(name)=${CALLERID(name)})\n")
		writeDialLogic(&b, ext, fwdMap[ext], ring, false)
		b.WriteString("\n")
	}

	if len(outbound) > 0 {
		b.WriteString("; === Outbound calling via assigned trunks ===\n")
		writeOutboundPattern(&b, "_0X.",
			"Outbound call from ${CHANNEL(endpoint)} to ${EXTEN}", outbound, trunks, true)
		b.WriteString("; International with + prefix\n")
		writeOutboundPattern(&b, "_+X.",
			"Outbound intl call from ${CHANNEL(endpoint)} to ${EXTEN}", outbound, trunks, false)
	}

	b.WriteString(featureCodes)
	b.WriteString(fromTrunkHeader)

	if len(s.Routes) > 0 {
		for i := range s.Routes {
			writeInboundEntry(&b, &s.Routes[i], fwdMap, ringTimeouts, ringGroupByExt, ivrByExt)
		}
	} else {
		b.WriteString(noRoutesBlock)
	}

	b.WriteString(catchAllBlock)

	for i := range s.IVRMenus {
		if s.IVRMenus[i].Enabled {
			writeIVRContext(&b, &s.IVRMenus[i])
		}
	}

	return b.String()
}

// overrideExtensions is the sorted union of extensions with at least one
// enabled forward and extensions with a non-default ring timeout.
func overrideExtensions(fwdMap map[string]forwardPlan, ringTimeouts map[string]int) []string {
	set := make(map[string]struct{}, len(fwdMap))
	for ext := range fwdMap {
		set[ext] = struct{}{}
	}
	for ext, timeout := range ringTimeouts {
		if timeout != defaultRingTime {
			set[ext] = struct{}{}
		}
	}

	exts := make([]string, 0, len(set))
	for ext := range set {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func writeRingGroupLogic(b *strings.Builder, g *models.RingGroup) {
	ring := g.RingTime
	if ring == 0 {
		ring = defaultRingTime
	}
	fmt.Fprintf(b, " same => n,Queue(rg_%d,tT,,,%d)\n", g.ID, ring)
	b.WriteString(" same => n,Hangup()\n")
}

// writeInboundEntry emits one exact-match DID entry. IVR and ring-group
// destinations get an answer-then-dispatch block; plain extensions reuse
// the forward-resolution dial logic with an early answer.
func writeInboundEntry(b *strings.Builder, route *models.InboundRoute,
	fwdMap map[string]forwardPlan, ringTimeouts map[string]int,
	ringGroups map[string]*models.RingGroup, ivrs map[string]*models.IVRMenu) {

	desc := route.Description
	if desc == "" {
		desc = route.DID
	}
	ext := route.DestinationExtension

	fmt.Fprintf(b, "\n; %s\n", desc)
	fmt.Fprintf(b, "exten => %s,1,NoOp(Inbound call to DID %s)\n", route.DID, route.DID)
	b.WriteString(" same => n,Set(CALLERID(name)=${CALLERID(name)})\n")

	ivr := ivrs[ext]
	rg := ringGroups[ext]
	switch {
	case ivr != nil && ivr.Enabled:
		writeEarlyAnswer(b)
		fmt.Fprintf(b, " same => n,Goto(ivr-%d,s,1)\n", ivr.ID)
	case rg != nil && rg.Enabled:
		writeEarlyAnswer(b)
		writeRingGroupLogic(b, rg)
	default:
		ring := ringTimeouts[ext]
		if ring == 0 {
			ring = defaultRingTime
		}
		writeDialLogic(b, ext, fwdMap[ext], ring, true)
	}
}

const featureCodes = `; Voicemail access - dial *98 to check voicemail
exten => *98,1,NoOp(Voicemail Access for ${CALLERID(num)})
 same => n,Answer()
 same => n,Wait(0.5)
 same => n,VoiceMailMain(${CALLERID(num)}@default)
 same => n,Hangup()

; Voicemail direct - dial *97 + extension
exten => _*97XXXX,1,NoOp(Direct Voicemail for ${EXTEN:3})
 same => n,Answer()
 same => n,Wait(0.5)
 same => n,VoiceMail(${EXTEN:3}@default)
 same => n,Hangup()

; Call Pickup
exten => *8,1,NoOp(Call Pickup)
 same => n,Pickup()
 same => n,Hangup()

; Echo test
exten => *43,1,Answer()
 same => n,Echo()
 same => n,Hangup()

`

// fromTrunkHeader includes the recovery handler for providers that omit
// the DID from the Request-URI but carry it in the To header: extract the
// user part and re-dispatch to the matching DID entry, or hang up cleanly.
const fromTrunkHeader = `[from-trunk]
; Inbound DID routing - auto-generated

; Extract DID from To header when Request-URI has no user part
exten => s,1,NoOp(Inbound call with no DID in Request-URI)
 same => n,Set(TO_HDR=${PJSIP_HEADER(read,To)})
 same => n,Set(DID=${CUT(CUT(TO_HDR,@,1),:,2)})
 same => n,NoOp(Extracted DID: ${DID})
 same => n,GotoIf($[${LEN(${DID})} > 0]?from-trunk,${DID},1)
 same => n,NoOp(Could not extract DID from To header)
 same => n,Hangup()

`

const noRoutesBlock = `
; No inbound routes configured
exten => _X.,1,NoOp(Unrouted inbound call to ${EXTEN})
 same => n,Hangup()
`

const catchAllBlock = `
; Catch-all for unmatched inbound calls
exten => _[+0-9].,1,NoOp(Unmatched inbound DID ${EXTEN})
 same => n,Hangup()
`
