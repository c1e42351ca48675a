package models

import "time"

// AdminUser represents an admin panel or phone user.
type AdminUser struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	FullName     string
	Role         string // "admin" | "user"
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SIPPeer represents a subscriber line (an internal extension's device account).
type SIPPeer struct {
	ID          int64
	Extension   string
	Secret      string
	CallerID    string
	Context     string
	Codecs      string
	OutboundCID string // DID used as caller-ID on outbound calls; empty = first assigned route
	PAI         string // identity header override number
	BLFEnabled  bool
	PickupGroup string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SIPTrunk represents a carrier-facing SIP connection.
type SIPTrunk struct {
	ID          int64
	Name        string
	Provider    string // "plusnet_basic" | "plusnet_connect" | "telekom_allip" | "custom"
	AuthMode    string // "registration" | "ip"
	SIPServer   string
	Username    string
	Password    string
	FromUser    string
	CallerID    string
	NumberBlock string
	Context     string
	Codecs      string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InboundRoute maps a public DID to an internal destination extension.
type InboundRoute struct {
	ID                   int64
	DID                  string
	TrunkID              int64
	DestinationExtension string
	Description          string
	Enabled              bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CallForward is a per-extension forwarding rule. At most one rule exists
// per (extension, forward_type) pair.
type CallForward struct {
	ID          int64
	Extension   string
	ForwardType string // "unconditional" | "busy" | "no_answer"
	Destination string
	RingTime    int
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VoicemailMailbox is a voicemail box bound to an extension.
type VoicemailMailbox struct {
	ID          int64
	Extension   string
	Enabled     bool
	PIN         string
	Name        string
	Email       string
	RingTimeout int // seconds the device rings before voicemail; 20 is the default
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RingGroup is a hunt group reachable under its own extension number.
// Members is the ordered list of member extensions.
type RingGroup struct {
	ID             int64
	Name           string
	Extension      string
	Strategy       string // "ringall" | "roundrobin" | "leastrecent"
	RingTime       int
	InboundTrunkID int64  // 0 = none
	InboundDID     string // DID auto-synced into inbound routes, empty = none
	Enabled        bool
	Members        []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IVROption maps a DTMF digit to a destination extension.
type IVROption struct {
	Digit       string
	Destination string
}

// IVRMenu is an automated menu reachable under its own extension number.
// Options is ordered by configured position.
type IVRMenu struct {
	ID                 int64
	Name               string
	Extension          string
	Prompt             string
	TimeoutSeconds     int
	TimeoutDestination string // empty = announce invalid input and hang up
	Retries            int
	InboundTrunkID     int64
	InboundDID         string
	Enabled            bool
	Options            []IVROption
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Contact is an address book entry, either global or owned by one extension.
type Contact struct {
	ID                int64
	Name              string
	InternalExtension string
	ExternalNumber    string
	Company           string
	Tag               string
	Note              string
	OwnerExtension    string // empty = global scope
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CDR is a finalized call detail record emitted by the call correlator.
type CDR struct {
	ID          int64
	CallDate    time.Time
	CLID        string
	Src         string
	Dst         string
	DContext    string
	Channel     string
	DstChannel  string
	LastApp     string
	LastData    string
	Duration    int
	BillSec     int
	Disposition string
	AMAFlags    int
	UniqueID    string
	UserField   string
}

// SystemSetting is a key-value configuration entry.
type SystemSetting struct {
	Key         string
	Value       string
	Description string
	UpdatedAt   time.Time
}

// AuditLog records a configuration mutation for the audit trail.
type AuditLog struct {
	ID         int64
	Timestamp  time.Time
	Username   string
	Action     string
	ObjectType string
	ObjectID   string
	Details    string // JSON
	IPAddress  string
}
