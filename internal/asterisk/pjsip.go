package asterisk

import (
	"fmt"
	"strings"

	"github.com/lq216/gonopbx/internal/database/models"
)

const pjsipHeader = `; Auto-generated PJSIP configuration
; Generated by GonoPBX - do not edit by hand

[global]
type=global
user_agent=GonoPBX

[transport-udp]
type=transport
protocol=udp
bind=0.0.0.0:5060

`

// GeneratePJSIP renders pjsip.conf: one endpoint/auth/aor triple per
// enabled peer and a trunk section set per enabled trunk. The endpoint
// names trunk-ep-<id> are what the dialplan dials; a plain [trunk]
// endpoint aliasing the first enabled trunk carries forwarded calls.
func GeneratePJSIP(peers []models.SIPPeer, trunks []models.SIPTrunk) string {
	var b strings.Builder
	b.WriteString(pjsipHeader)

	b.WriteString("; === Subscriber lines ===\n\n")
	for i := range peers {
		p := &peers[i]
		if !p.Enabled {
			continue
		}
		writePeerSections(&b, p)
	}

	b.WriteString("; === Trunks ===\n\n")
	aliasWritten := false
	for i := range trunks {
		t := &trunks[i]
		if !t.Enabled {
			continue
		}
		writeTrunkSections(&b, t)
		if !aliasWritten {
			writeTrunkAlias(&b, t)
			aliasWritten = true
		}
	}

	return b.String()
}

func writePeerSections(b *strings.Builder, p *models.SIPPeer) {
	codecs := p.Codecs
	if codecs == "" {
		codecs = "ulaw,alaw,g722"
	}
	context := p.Context
	if context == "" {
		context = "internal"
	}

	fmt.Fprintf(b, "[%s]\n", p.Extension)
	b.WriteString("type=endpoint\n")
	fmt.Fprintf(b, "context=%s\n", context)
	b.WriteString("disallow=all\n")
	fmt.Fprintf(b, "allow=%s\n", codecs)
	fmt.Fprintf(b, "auth=%s\n", p.Extension)
	fmt.Fprintf(b, "aors=%s\n", p.Extension)
	if p.CallerID != "" {
		fmt.Fprintf(b, "callerid=\"%s\" <%s>\n", p.CallerID, p.Extension)
	}
	if p.PickupGroup != "" {
		fmt.Fprintf(b, "call_group=%s\n", p.PickupGroup)
		fmt.Fprintf(b, "pickup_group=%s\n", p.PickupGroup)
	}
	b.WriteString("direct_media=no\n")
	b.WriteString("rtp_symmetric=yes\n")
	b.WriteString("force_rport=yes\n")
	b.WriteString("rewrite_contact=yes\n")

	fmt.Fprintf(b, "\n[%s]\ntype=auth\nauth_type=userpass\n", p.Extension)
	fmt.Fprintf(b, "username=%s\n", p.Extension)
	fmt.Fprintf(b, "password=%s\n", p.Secret)

	fmt.Fprintf(b, "\n[%s]\ntype=aor\nmax_contacts=2\nremove_existing=yes\nqualify_frequency=60\n\n", p.Extension)
}

func writeTrunkSections(b *strings.Builder, t *models.SIPTrunk) {
	codecs := t.Codecs
	if codecs == "" {
		codecs = "ulaw,alaw,g722"
	}
	context := t.Context
	if context == "" {
		context = "from-trunk"
	}

	if t.AuthMode == "registration" {
		fmt.Fprintf(b, "[trunk-reg-%d]\n", t.ID)
		b.WriteString("type=registration\n")
		fmt.Fprintf(b, "outbound_auth=trunk-auth-%d\n", t.ID)
		fmt.Fprintf(b, "server_uri=sip:%s\n", t.SIPServer)
		fmt.Fprintf(b, "client_uri=sip:%s@%s\n", t.Username, t.SIPServer)
		b.WriteString("retry_interval=60\n")
		b.WriteString("expiration=300\n")
		fmt.Fprintf(b, "line=yes\nendpoint=trunk-ep-%d\n\n", t.ID)

		fmt.Fprintf(b, "[trunk-auth-%d]\ntype=auth\nauth_type=userpass\n", t.ID)
		fmt.Fprintf(b, "username=%s\n", t.Username)
		fmt.Fprintf(b, "password=%s\n\n", t.Password)
	}

	fmt.Fprintf(b, "[trunk-ep-%d]\n", t.ID)
	b.WriteString("type=endpoint\n")
	fmt.Fprintf(b, "context=%s\n", context)
	b.WriteString("disallow=all\n")
	fmt.Fprintf(b, "allow=%s\n", codecs)
	fmt.Fprintf(b, "aors=trunk-aor-%d\n", t.ID)
	if t.AuthMode == "registration" {
		fmt.Fprintf(b, "outbound_auth=trunk-auth-%d\n", t.ID)
	}
	if t.FromUser != "" {
		fmt.Fprintf(b, "from_user=%s\n", t.FromUser)
	}
	fmt.Fprintf(b, "from_domain=%s\n", t.SIPServer)
	b.WriteString("direct_media=no\n")
	b.WriteString("rtp_symmetric=yes\n")

	fmt.Fprintf(b, "\n[trunk-aor-%d]\ntype=aor\n", t.ID)
	fmt.Fprintf(b, "contact=sip:%s\n", t.SIPServer)
	b.WriteString("qualify_frequency=60\n\n")

	// Match inbound traffic from the carrier host to this trunk endpoint.
	fmt.Fprintf(b, "[trunk-identify-%d]\ntype=identify\n", t.ID)
	fmt.Fprintf(b, "endpoint=trunk-ep-%d\n", t.ID)
	fmt.Fprintf(b, "match=%s\n\n", t.SIPServer)
}

// writeTrunkAlias emits the [trunk] endpoint used by call-forward targets
// (Dial(PJSIP/<number>@trunk) in the dialplan).
func writeTrunkAlias(b *strings.Builder, t *models.SIPTrunk) {
	codecs := t.Codecs
	if codecs == "" {
		codecs = "ulaw,alaw,g722"
	}
	b.WriteString("[trunk]\ntype=endpoint\ncontext=from-trunk\ndisallow=all\n")
	fmt.Fprintf(b, "allow=%s\n", codecs)
	fmt.Fprintf(b, "aors=trunk-aor-%d\n", t.ID)
	if t.AuthMode == "registration" {
		fmt.Fprintf(b, "outbound_auth=trunk-auth-%d\n", t.ID)
	}
	if t.FromUser != "" {
		fmt.Fprintf(b, "from_user=%s\n", t.FromUser)
	}
	fmt.Fprintf(b, "from_domain=%s\n\n", t.SIPServer)
}
