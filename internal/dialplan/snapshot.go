package dialplan

import "github.com/lq216/gonopbx/internal/database/models"

// Snapshot is the read-only configuration view the compiler consumes.
// The caller assembles it from storage; the compiler never touches the
// database or any other external resource.
type Snapshot struct {
	Routes     []models.InboundRoute
	Forwards   []models.CallForward
	Mailboxes  []models.VoicemailMailbox
	Peers      []models.SIPPeer
	Trunks     []models.SIPTrunk
	RingGroups []models.RingGroup
	IVRMenus   []models.IVRMenu
}

// trunkByID builds a lookup of trunk id to trunk.
func (s *Snapshot) trunkByID() map[int64]*models.SIPTrunk {
	m := make(map[int64]*models.SIPTrunk, len(s.Trunks))
	for i := range s.Trunks {
		m[s.Trunks[i].ID] = &s.Trunks[i]
	}
	return m
}

// ringTimeouts maps extension to mailbox ring timeout, defaulting to 20.
func (s *Snapshot) ringTimeouts() map[string]int {
	m := make(map[string]int, len(s.Mailboxes))
	for _, mb := range s.Mailboxes {
		timeout := mb.RingTimeout
		if timeout == 0 {
			timeout = defaultRingTime
		}
		m[mb.Extension] = timeout
	}
	return m
}
