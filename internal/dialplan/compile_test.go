package dialplan

import (
	"strings"
	"testing"

	"github.com/lq216/gonopbx/internal/database/models"
)

func testSnapshot() Snapshot {
	return Snapshot{
		Routes: []models.InboundRoute{
			{ID: 1, DID: "03012345670", TrunkID: 1, DestinationExtension: "1001", Enabled: true},
			{ID: 2, DID: "03012345671", TrunkID: 1, DestinationExtension: "1001", Enabled: true},
			{ID: 3, DID: "03012345672", TrunkID: 1, DestinationExtension: "600", Enabled: true},
		},
		Forwards: []models.CallForward{
			{Extension: "1002", ForwardType: ForwardBusy, Destination: "1003", RingTime: 20, Enabled: true},
		},
		Mailboxes: []models.VoicemailMailbox{
			{Extension: "1001", Enabled: true, RingTimeout: 20},
			{Extension: "1004", Enabled: true, RingTimeout: 35},
		},
		Peers: []models.SIPPeer{
			{Extension: "1001", Enabled: true, BLFEnabled: true},
			{Extension: "1002", Enabled: true, BLFEnabled: true},
			{Extension: "1003", Enabled: true, BLFEnabled: false},
		},
		Trunks: []models.SIPTrunk{
			{ID: 1, Name: "main", Provider: "plusnet_basic", SIPServer: "sip.ipfonie.de"},
		},
		RingGroups: []models.RingGroup{
			{ID: 7, Name: "support", Extension: "600", RingTime: 25, Enabled: true, Members: []string{"1001", "1002"}},
		},
		IVRMenus: []models.IVRMenu{
			{ID: 3, Name: "main", Extension: "500", Prompt: "custom/welcome", TimeoutSeconds: 5,
				Retries: 2, Enabled: true,
				Options: []models.IVROption{{Digit: "1", Destination: "1001"}}},
		},
	}
}

func TestCompileDeterministic(t *testing.T) {
	s := testSnapshot()
	first := Compile(s)
	second := Compile(s)
	if first != second {
		t.Error("compiling the same snapshot twice should yield byte-identical output")
	}
}

func TestCompileEmptySnapshot(t *testing.T) {
	out := Compile(Snapshot{})

	for _, want := range []string{
		"[general]",
		"[internal]",
		"exten => _1XXX,1,",
		"[from-trunk]",
		"exten => _X.,1,NoOp(Unrouted inbound call to ${EXTEN})",
		"exten => _[+0-9].,1,",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("empty snapshot output missing %q", want)
		}
	}
	if strings.Contains(out, "=== Outbound calling") {
		t.Error("empty snapshot should not emit outbound section")
	}
}

func TestOverrideExtensions(t *testing.T) {
	fwdMap := buildForwardMap([]models.CallForward{
		{Extension: "1002", ForwardType: ForwardBusy, Destination: "1003", Enabled: true},
		{Extension: "1005", ForwardType: ForwardNoAnswer, Destination: "1001", Enabled: true},
		{Extension: "1005", ForwardType: ForwardBusy, Destination: "1001", Enabled: true},
		{Extension: "1009", ForwardType: ForwardBusy, Destination: "1001", Enabled: false},
	})
	timeouts := map[string]int{"1001": 20, "1004": 35}

	got := overrideExtensions(fwdMap, timeouts)
	want := []string{"1002", "1004", "1005"}
	if len(got) != len(want) {
		t.Fatalf("overrideExtensions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("overrideExtensions()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestUnconditionalForwardHasNoVoicemail(t *testing.T) {
	s := Snapshot{
		Forwards: []models.CallForward{
			{Extension: "1002", ForwardType: ForwardUnconditional, Destination: "01761234567", RingTime: 20, Enabled: true},
		},
	}
	out := Compile(s)

	start := strings.Index(out, "exten => 1002,1,")
	if start < 0 {
		t.Fatal("missing override entry for extension 1002")
	}
	end := strings.Index(out[start:], "\n\n")
	block := out[start : start+end]

	if strings.Contains(block, "VoiceMail(") {
		t.Errorf("unconditional forward block must not contain a voicemail branch:\n%s", block)
	}
	if !strings.Contains(block, "Dial(PJSIP/01761234567@trunk,20,tT)") {
		t.Errorf("unconditional forward block should dial the target via trunk:\n%s", block)
	}
	if strings.Contains(block, "DEVICE_STATE") {
		t.Errorf("unconditional forward must skip the local device entirely:\n%s", block)
	}
}

func TestForwardBranchShapes(t *testing.T) {
	tests := []struct {
		name     string
		forwards []models.CallForward
		want     []string
		notWant  []string
	}{
		{
			name: "busy only",
			forwards: []models.CallForward{
				{Extension: "1002", ForwardType: ForwardBusy, Destination: "1003", RingTime: 20, Enabled: true},
			},
			want: []string{
				`GotoIf($["${DIALSTATUS}" = "BUSY"]?busy:unavail)`,
				"n(busy),NoOp(CFB: forwarding to 1003)",
				"n(unavail),VoiceMail(1002@default,u)",
			},
		},
		{
			name: "no answer only",
			forwards: []models.CallForward{
				{Extension: "1002", ForwardType: ForwardNoAnswer, Destination: "1003", RingTime: 25, Enabled: true},
			},
			want: []string{
				`GotoIf($["${DIALSTATUS}" = "BUSY"]?busy:noanswer)`,
				"n(noanswer),NoOp(CFNA: forwarding to 1003)",
				"Dial(PJSIP/1002,25,tTr)",
				"n(busy),VoiceMail(1002@default,b)",
			},
		},
		{
			name: "busy and no answer",
			forwards: []models.CallForward{
				{Extension: "1002", ForwardType: ForwardBusy, Destination: "1003", RingTime: 20, Enabled: true},
				{Extension: "1002", ForwardType: ForwardNoAnswer, Destination: "1004", RingTime: 30, Enabled: true},
			},
			want: []string{
				"n(noanswer),NoOp(CFNA: forwarding to 1004)",
				"n(busy),NoOp(CFB: forwarding to 1003)",
				"Dial(PJSIP/1002,30,tTr)",
			},
			notWant: []string{"n(unavail)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Compile(Snapshot{Forwards: tt.forwards})
			start := strings.Index(out, "exten => 1002,1,")
			if start < 0 {
				t.Fatal("missing override entry for extension 1002")
			}
			end := strings.Index(out[start:], "\n\n")
			block := out[start : start+end]

			for _, want := range tt.want {
				if !strings.Contains(block, want) {
					t.Errorf("block missing %q:\n%s", want, block)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(block, notWant) {
					t.Errorf("block should not contain %q:\n%s", notWant, block)
				}
			}
		})
	}
}

func TestInboundRingGroupVsExtension(t *testing.T) {
	out := Compile(testSnapshot())

	// DID routed to ring group 600: queue dispatch, no per-extension dial.
	start := strings.Index(out, "exten => 03012345672,1,")
	if start < 0 {
		t.Fatal("missing inbound entry for ring group DID")
	}
	end := strings.Index(out[start:], "\n\n")
	if end < 0 {
		end = len(out) - start
	}
	block := out[start : start+end]
	if !strings.Contains(block, "Queue(rg_7,tT,,,25)") {
		t.Errorf("ring group DID should dispatch to queue:\n%s", block)
	}
	if strings.Contains(block, "DEVICE_STATE") || strings.Contains(block, "VoiceMail(") {
		t.Errorf("ring group DID must not contain per-extension dial logic:\n%s", block)
	}

	// DID routed to plain extension 1001: dial logic, no queue.
	start = strings.Index(out, "exten => 03012345670,1,")
	if start < 0 {
		t.Fatal("missing inbound entry for extension DID")
	}
	end = strings.Index(out[start:], "\n\n")
	if end < 0 {
		end = len(out) - start
	}
	block = out[start : start+end]
	if strings.Contains(block, "Queue(") {
		t.Errorf("plain extension DID must not dispatch to a queue:\n%s", block)
	}
	if !strings.Contains(block, "Dial(PJSIP/1001,20,tTr)") {
		t.Errorf("plain extension DID should dial the extension:\n%s", block)
	}
	// Inbound legs are answered before dialing.
	if !strings.Contains(block, "Answer()") {
		t.Errorf("inbound extension entry should answer early:\n%s", block)
	}
}

func TestExactMatchBeforePattern(t *testing.T) {
	out := Compile(testSnapshot())

	groupIdx := strings.Index(out, "exten => 600,1,NoOp(Ring Group support)")
	ivrIdx := strings.Index(out, "exten => 500,1,NoOp(IVR main)")
	patternIdx := strings.Index(out, "exten => _1XXX,1,")

	if groupIdx < 0 || ivrIdx < 0 || patternIdx < 0 {
		t.Fatal("missing expected entries in output")
	}
	if groupIdx > patternIdx {
		t.Error("ring group entry must precede the generic extension pattern")
	}
	if ivrIdx > patternIdx {
		t.Error("ivr entry must precede the generic extension pattern")
	}
}

func TestOutboundDIDSelection(t *testing.T) {
	routes := []models.InboundRoute{
		{ID: 1, DID: "D1", TrunkID: 1, DestinationExtension: "1001", Enabled: true},
		{ID: 2, DID: "D2", TrunkID: 1, DestinationExtension: "1001", Enabled: true},
	}

	// outbound_cid set and valid: the named route wins.
	entries := buildOutboundMap(routes, []models.SIPPeer{{Extension: "1001", OutboundCID: "D2"}})
	if len(entries) != 1 {
		t.Fatalf("got %d outbound entries, want 1", len(entries))
	}
	if entries[0].route.DID != "D2" {
		t.Errorf("selected DID = %q, want D2", entries[0].route.DID)
	}

	// outbound_cid unset: first assigned route wins.
	entries = buildOutboundMap(routes, []models.SIPPeer{{Extension: "1001"}})
	if entries[0].route.DID != "D1" {
		t.Errorf("selected DID = %q, want D1", entries[0].route.DID)
	}

	// outbound_cid naming a DID not routed to the extension: fall back to first.
	entries = buildOutboundMap(routes, []models.SIPPeer{{Extension: "1001", OutboundCID: "D9"}})
	if entries[0].route.DID != "D1" {
		t.Errorf("selected DID = %q, want D1 fallback", entries[0].route.DID)
	}
}

func TestOutboundPatterns(t *testing.T) {
	out := Compile(testSnapshot())

	for _, want := range []string{
		"exten => _0X.,1,NoOp(Outbound call from ${CHANNEL(endpoint)} to ${EXTEN})",
		"exten => _+X.,1,NoOp(Outbound intl call from ${CHANNEL(endpoint)} to ${EXTEN})",
		`GotoIf($["${CHANNEL(endpoint)}x" = "1001x"]?out-1001)`,
		"n(out-1001),NoOp(Outbound via trunk-ep-1 with CID 03012345670)",
		"Set(CALLERID(num)=03012345670)",
		"Dial(PJSIP/${EXTEN}@trunk-ep-1,120,tT)",
		"Playback(ss-noservice)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestIdentityHeaders(t *testing.T) {
	routes := []models.InboundRoute{
		{ID: 1, DID: "03099", TrunkID: 5, DestinationExtension: "1001", Enabled: true},
	}

	t.Run("telekom uses preferred identity with fixed domain", func(t *testing.T) {
		out := Compile(Snapshot{
			Routes: routes,
			Peers:  []models.SIPPeer{{Extension: "1001", PAI: "4930123"}},
			Trunks: []models.SIPTrunk{{ID: 5, Provider: "telekom_allip", SIPServer: "example.invalid", FromUser: "user5"}},
		})
		if !strings.Contains(out, "Set(PJSIP_HEADER(add,P-Preferred-Identity)=<sip:4930123@tel.t-online.de>)") {
			t.Error("telekom trunk should add P-Preferred-Identity against tel.t-online.de")
		}
		if strings.Contains(out, "P-Asserted-Identity") {
			t.Error("telekom trunk should not add P-Asserted-Identity")
		}
	})

	t.Run("telekom falls back to from_user", func(t *testing.T) {
		out := Compile(Snapshot{
			Routes: routes,
			Peers:  []models.SIPPeer{{Extension: "1001"}},
			Trunks: []models.SIPTrunk{{ID: 5, Provider: "telekom_allip", FromUser: "user5"}},
		})
		if !strings.Contains(out, "Set(PJSIP_HEADER(add,P-Preferred-Identity)=<sip:user5@tel.t-online.de>)") {
			t.Error("telekom trunk should fall back to from_user for the identity number")
		}
	})

	t.Run("other provider uses asserted identity against trunk server", func(t *testing.T) {
		out := Compile(Snapshot{
			Routes: routes,
			Peers:  []models.SIPPeer{{Extension: "1001", PAI: "4930123"}},
			Trunks: []models.SIPTrunk{{ID: 5, Provider: "plusnet_basic", SIPServer: "sip.ipfonie.de"}},
		})
		if !strings.Contains(out, "Set(PJSIP_HEADER(add,P-Asserted-Identity)=<sip:4930123@sip.ipfonie.de>)") {
			t.Error("non-telekom trunk with PAI should add P-Asserted-Identity against the trunk server")
		}
	})

	t.Run("no pai no header", func(t *testing.T) {
		out := Compile(Snapshot{
			Routes: routes,
			Peers:  []models.SIPPeer{{Extension: "1001"}},
			Trunks: []models.SIPTrunk{{ID: 5, Provider: "plusnet_basic", SIPServer: "sip.ipfonie.de"}},
		})
		if strings.Contains(out, "P-Asserted-Identity") || strings.Contains(out, "P-Preferred-Identity") {
			t.Error("no identity header expected without a PAI number")
		}
	})
}

func TestIVRContextRetries(t *testing.T) {
	menu := models.IVRMenu{
		ID: 3, Name: "main", Extension: "500", Prompt: "custom/welcome",
		TimeoutSeconds: 5, Retries: 2, Enabled: true,
		Options: []models.IVROption{
			{Digit: "1", Destination: "1001"},
			{Digit: "2", Destination: "600"},
		},
	}
	out := Compile(Snapshot{IVRMenus: []models.IVRMenu{menu}})

	ctxStart := strings.Index(out, "[ivr-3]")
	if ctxStart < 0 {
		t.Fatal("missing [ivr-3] context")
	}
	ctx := out[ctxStart:]

	for _, want := range []string{
		"Set(IVR_MAX=2)",
		"Background(custom/welcome)",
		"WaitExten(5)",
		"exten => 1,1,NoOp(IVR Option 1 -> 1001)",
		"exten => 2,1,NoOp(IVR Option 2 -> 600)",
		// No timeout destination: exhausting retries plays the fixed
		// announcement and hangs up instead of replaying the menu.
		"exten => i,1,Playback(pbx-invalid)",
		"GotoIf($[${IVR_TRIES} <= ${IVR_MAX}]?s,1)",
	} {
		if !strings.Contains(ctx, want) {
			t.Errorf("ivr context missing %q", want)
		}
	}
	if strings.Contains(ctx, "exten => i,1,NoOp(IVR Invalid)") {
		t.Error("without timeout destination the invalid handler should play the announcement directly")
	}
}

func TestIVRContextTimeoutDestination(t *testing.T) {
	menu := models.IVRMenu{
		ID: 4, Name: "night", Extension: "501", TimeoutSeconds: 8,
		TimeoutDestination: "600", Retries: 1, Enabled: true,
	}
	out := Compile(Snapshot{IVRMenus: []models.IVRMenu{menu}})

	ctxStart := strings.Index(out, "[ivr-4]")
	if ctxStart < 0 {
		t.Fatal("missing [ivr-4] context")
	}
	ctx := out[ctxStart:]

	for _, want := range []string{
		"exten => i,1,NoOp(IVR Invalid)",
		"exten => t,1,NoOp(IVR Timeout)",
		"Goto(internal,600,1)",
	} {
		if !strings.Contains(ctx, want) {
			t.Errorf("ivr context missing %q", want)
		}
	}
	if strings.Contains(ctx, "Playback(pbx-invalid)") {
		t.Error("with a timeout destination the fixed announcement path should not appear")
	}
}

func TestBLFHints(t *testing.T) {
	out := Compile(testSnapshot())

	if !strings.Contains(out, "exten => 1001,hint,PJSIP/1001") {
		t.Error("missing BLF hint for enabled peer 1001")
	}
	if strings.Contains(out, "exten => 1003,hint,") {
		t.Error("peer 1003 has BLF disabled and should not get a hint")
	}
}

func TestFromTrunkRecoveryHandler(t *testing.T) {
	out := Compile(Snapshot{})

	for _, want := range []string{
		"exten => s,1,NoOp(Inbound call with no DID in Request-URI)",
		"Set(DID=${CUT(CUT(TO_HDR,@,1),:,2)})",
		"GotoIf($[${LEN(${DID})} > 0]?from-trunk,${DID},1)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing recovery handler line %q", want)
		}
	}
}
