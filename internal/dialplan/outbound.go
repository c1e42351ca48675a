package dialplan

import (
	"fmt"
	"strings"

	"github.com/lq216/gonopbx/internal/database/models"
)

// Provider families with a dedicated identity-header strategy.
const (
	ProviderTelekomAllIP  = "telekom_allip"
	ProviderPlusnetBasic  = "plusnet_basic"
	ProviderPlusnetConn   = "plusnet_connect"
	telekomIdentityDomain = "tel.t-online.de"
)

// outboundEntry binds an extension to its selected outbound route.
type outboundEntry struct {
	ext   string
	route *models.InboundRoute
	pai   string
}

// buildOutboundMap selects the outbound DID route per extension. The peer's
// outbound_cid wins when it names a DID actually routed to the extension,
// otherwise the first assigned route is used. Entries keep the order in
// which extensions first appear in the route list, so the output is stable
// for a given snapshot.
func buildOutboundMap(routes []models.InboundRoute, peers []models.SIPPeer) []outboundEntry {
	peerByExt := make(map[string]*models.SIPPeer, len(peers))
	for i := range peers {
		peerByExt[peers[i].Extension] = &peers[i]
	}

	routesByExt := make(map[string][]*models.InboundRoute)
	var order []string
	for i := range routes {
		ext := routes[i].DestinationExtension
		if _, seen := routesByExt[ext]; !seen {
			order = append(order, ext)
		}
		routesByExt[ext] = append(routesByExt[ext], &routes[i])
	}

	entries := make([]outboundEntry, 0, len(order))
	for _, ext := range order {
		extRoutes := routesByExt[ext]
		selected := extRoutes[0]
		var pai string
		if peer := peerByExt[ext]; peer != nil {
			pai = peer.PAI
			if peer.OutboundCID != "" {
				for _, r := range extRoutes {
					if r.DID == peer.OutboundCID {
						selected = r
						break
					}
				}
			}
		}
		entries = append(entries, outboundEntry{ext: ext, route: selected, pai: pai})
	}
	return entries
}

// writeOutboundPattern emits one outbound numbering pattern: the endpoint
// dispatch table, the no-route fallback, and one trunk leg per extension.
func writeOutboundPattern(b *strings.Builder, pattern, headNoOp string, entries []outboundEntry,
	trunks map[int64]*models.SIPTrunk, noRouteNoOp bool) {

	fmt.Fprintf(b, "exten => %s,1,NoOp(%s)\n", pattern, headNoOp)
	for _, e := range entries {
		fmt.Fprintf(b, " same => n,GotoIf($[\"${CHANNEL(endpoint)}x\" = \"%sx\"]?out-%s)\n", e.ext, e.ext)
	}
	if noRouteNoOp {
		b.WriteString(" same => n,NoOp(No outbound route for this extension)\n")
	}
	b.WriteString(" same => n,Playback(ss-noservice)\n")
	b.WriteString(" same => n,Hangup()\n")

	for _, e := range entries {
		tid := e.route.TrunkID
		trunk := trunks[tid]
		fmt.Fprintf(b, "\n same => n(out-%s),NoOp(Outbound via trunk-ep-%d with CID %s)\n", e.ext, tid, e.route.DID)
		fmt.Fprintf(b, " same => n,Set(CALLERID(num)=%s)\n", e.route.DID)
		writeIdentityHeader(b, trunk, e.pai)
		fmt.Fprintf(b, " same => n,Dial(PJSIP/${EXTEN}@trunk-ep-%d,120,tT)\n", tid)
		b.WriteString(" same => n,Hangup()\n")
	}
	b.WriteString("\n")
}

// writeIdentityHeader applies the provider identity policy. The Telekom
// family requires P-Preferred-Identity against a fixed carrier domain;
// other providers get P-Asserted-Identity against the trunk's SIP server
// when a PAI number is configured.
func writeIdentityHeader(b *strings.Builder, trunk *models.SIPTrunk, pai string) {
	if trunk != nil && trunk.Provider == ProviderTelekomAllIP {
		number := pai
		if number == "" {
			number = trunk.FromUser
		}
		if number != "" {
			fmt.Fprintf(b, " same => n,Set(PJSIP_HEADER(add,P-Preferred-Identity)=<sip:%s@%s>)\n",
				number, telekomIdentityDomain)
		}
		return
	}
	if pai != "" {
		domain := "localhost"
		if trunk != nil {
			domain = trunk.SIPServer
		}
		fmt.Fprintf(b, " same => n,Set(PJSIP_HEADER(add,P-Asserted-Identity)=<sip:%s@%s>)\n", pai, domain)
	}
}
