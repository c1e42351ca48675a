package asterisk

import (
	"strings"
	"testing"

	"github.com/lq216/gonopbx/internal/database/models"
)

func TestGeneratePJSIP(t *testing.T) {
	peers := []models.SIPPeer{
		{Extension: "1001", Secret: "s3cret", CallerID: "Alice", Codecs: "ulaw,alaw", Enabled: true},
		{Extension: "1002", Secret: "x", Enabled: false},
	}
	trunks := []models.SIPTrunk{
		{ID: 2, Name: "main", Provider: "plusnet_basic", AuthMode: "registration",
			SIPServer: "sip.ipfonie.de", Username: "u", Password: "p", FromUser: "u", Enabled: true},
	}

	out := GeneratePJSIP(peers, trunks)

	for _, want := range []string{
		"[1001]\ntype=endpoint",
		"allow=ulaw,alaw",
		"callerid=\"Alice\" <1001>",
		"[1001]\ntype=auth",
		"password=s3cret",
		"[trunk-reg-2]\ntype=registration",
		"server_uri=sip:sip.ipfonie.de",
		"client_uri=sip:u@sip.ipfonie.de",
		"[trunk-ep-2]\ntype=endpoint",
		"[trunk-identify-2]\ntype=identify",
		"[trunk]\ntype=endpoint",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("pjsip output missing %q", want)
		}
	}
	if strings.Contains(out, "[1002]") {
		t.Error("disabled peer should not be rendered")
	}
}

func TestGeneratePJSIPIPAuth(t *testing.T) {
	trunks := []models.SIPTrunk{
		{ID: 3, Name: "ipauth", Provider: "custom", AuthMode: "ip", SIPServer: "10.0.0.5", Enabled: true},
	}
	out := GeneratePJSIP(nil, trunks)

	if strings.Contains(out, "[trunk-reg-3]") {
		t.Error("ip-auth trunk should not register")
	}
	if strings.Contains(out, "outbound_auth=trunk-auth-3") {
		t.Error("ip-auth trunk endpoint should not reference outbound auth")
	}
	if !strings.Contains(out, "[trunk-identify-3]") {
		t.Error("ip-auth trunk still needs an identify section")
	}
}

func TestGenerateVoicemail(t *testing.T) {
	boxes := []models.VoicemailMailbox{
		{Extension: "1001", Enabled: true, PIN: "4321", Name: "Alice", Email: "alice@example.com"},
		{Extension: "1002", Enabled: false, PIN: "1111"},
		{Extension: "1003", Enabled: true},
	}

	out := GenerateVoicemail(boxes, SMTPSettings{Host: "mail.example.com", From: "pbx@example.com"})

	if !strings.Contains(out, "[default]") {
		t.Error("missing default context")
	}
	if !strings.Contains(out, "1001 => 4321,Alice,alice@example.com") {
		t.Error("missing mailbox line for 1001")
	}
	if strings.Contains(out, "1002 =>") {
		t.Error("disabled mailbox should not be rendered")
	}
	// Empty PIN falls back to the provisioning default.
	if !strings.Contains(out, "1003 => 1234,,") {
		t.Error("mailbox without pin should use default pin")
	}
	if !strings.Contains(out, "serveremail=pbx@example.com") {
		t.Error("smtp from address should become serveremail")
	}

	noMail := GenerateVoicemail(boxes, SMTPSettings{})
	if !strings.Contains(noMail, "attach=no") {
		t.Error("without smtp host attachments should be off")
	}
}

func TestGenerateQueues(t *testing.T) {
	groups := []models.RingGroup{
		{ID: 7, Name: "support", Extension: "600", Strategy: "ringall", RingTime: 25,
			Enabled: true, Members: []string{"1001", "1002"}},
		{ID: 8, Name: "night", Extension: "601", Strategy: "roundrobin", Enabled: false},
	}

	out := GenerateQueues(groups)

	for _, want := range []string{
		"[rg_7]",
		"strategy=ringall",
		"timeout=25",
		"member => PJSIP/1001",
		"member => PJSIP/1002",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("queues output missing %q", want)
		}
	}
	if strings.Contains(out, "[rg_8]") {
		t.Error("disabled group should not be rendered")
	}
}

func TestQueueStrategyMapping(t *testing.T) {
	tests := []struct{ in, want string }{
		{"ringall", "ringall"},
		{"roundrobin", "rrmemory"},
		{"leastrecent", "leastrecent"},
		{"", "ringall"},
		{"bogus", "ringall"},
	}
	for _, tt := range tests {
		if got := queueStrategy(tt.in); got != tt.want {
			t.Errorf("queueStrategy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
