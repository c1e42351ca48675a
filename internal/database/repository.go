package database

import (
	"context"

	"github.com/lq216/gonopbx/internal/database/models"
)

// AdminUserRepository manages admin panel users.
type AdminUserRepository interface {
	Create(ctx context.Context, user *models.AdminUser) error
	GetByID(ctx context.Context, id int64) (*models.AdminUser, error)
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	List(ctx context.Context) ([]models.AdminUser, error)
	Update(ctx context.Context, user *models.AdminUser) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
}

// SIPPeerRepository manages subscriber lines.
type SIPPeerRepository interface {
	Create(ctx context.Context, peer *models.SIPPeer) error
	GetByID(ctx context.Context, id int64) (*models.SIPPeer, error)
	GetByExtension(ctx context.Context, extension string) (*models.SIPPeer, error)
	List(ctx context.Context) ([]models.SIPPeer, error)
	Update(ctx context.Context, peer *models.SIPPeer) error
	Delete(ctx context.Context, id int64) error
}

// SIPTrunkRepository manages carrier trunks.
type SIPTrunkRepository interface {
	Create(ctx context.Context, trunk *models.SIPTrunk) error
	GetByID(ctx context.Context, id int64) (*models.SIPTrunk, error)
	GetByName(ctx context.Context, name string) (*models.SIPTrunk, error)
	List(ctx context.Context) ([]models.SIPTrunk, error)
	Update(ctx context.Context, trunk *models.SIPTrunk) error
	Delete(ctx context.Context, id int64) error
}

// InboundRouteRepository manages DID to extension mappings.
type InboundRouteRepository interface {
	Create(ctx context.Context, route *models.InboundRoute) error
	GetByID(ctx context.Context, id int64) (*models.InboundRoute, error)
	GetByDID(ctx context.Context, did string) (*models.InboundRoute, error)
	List(ctx context.Context) ([]models.InboundRoute, error)
	ListEnabled(ctx context.Context) ([]models.InboundRoute, error)
	ListByExtension(ctx context.Context, extension string) ([]models.InboundRoute, error)
	Update(ctx context.Context, route *models.InboundRoute) error
	Delete(ctx context.Context, id int64) error
}

// CallForwardRepository manages per-extension forwarding rules.
type CallForwardRepository interface {
	Create(ctx context.Context, fwd *models.CallForward) error
	GetByID(ctx context.Context, id int64) (*models.CallForward, error)
	Get(ctx context.Context, extension, forwardType string) (*models.CallForward, error)
	List(ctx context.Context) ([]models.CallForward, error)
	ListEnabled(ctx context.Context) ([]models.CallForward, error)
	ListByExtension(ctx context.Context, extension string) ([]models.CallForward, error)
	Update(ctx context.Context, fwd *models.CallForward) error
	Delete(ctx context.Context, id int64) error
}

// VoicemailMailboxRepository manages voicemail boxes.
type VoicemailMailboxRepository interface {
	Create(ctx context.Context, box *models.VoicemailMailbox) error
	GetByExtension(ctx context.Context, extension string) (*models.VoicemailMailbox, error)
	List(ctx context.Context) ([]models.VoicemailMailbox, error)
	Upsert(ctx context.Context, box *models.VoicemailMailbox) error
	Delete(ctx context.Context, extension string) error
}

// RingGroupRepository manages ring groups and their ordered members.
type RingGroupRepository interface {
	Create(ctx context.Context, group *models.RingGroup) error
	GetByID(ctx context.Context, id int64) (*models.RingGroup, error)
	GetByExtension(ctx context.Context, extension string) (*models.RingGroup, error)
	GetByName(ctx context.Context, name string) (*models.RingGroup, error)
	List(ctx context.Context) ([]models.RingGroup, error)
	Update(ctx context.Context, group *models.RingGroup) error
	Delete(ctx context.Context, id int64) error
}

// IVRMenuRepository manages IVR menus and their ordered options.
type IVRMenuRepository interface {
	Create(ctx context.Context, menu *models.IVRMenu) error
	GetByID(ctx context.Context, id int64) (*models.IVRMenu, error)
	GetByExtension(ctx context.Context, extension string) (*models.IVRMenu, error)
	GetByName(ctx context.Context, name string) (*models.IVRMenu, error)
	List(ctx context.Context) ([]models.IVRMenu, error)
	Update(ctx context.Context, menu *models.IVRMenu) error
	Delete(ctx context.Context, id int64) error
}

// ContactRepository manages address book entries.
type ContactRepository interface {
	Create(ctx context.Context, contact *models.Contact) error
	GetByID(ctx context.Context, id int64) (*models.Contact, error)
	List(ctx context.Context, ownerExtension string) ([]models.Contact, error)
	ListGlobal(ctx context.Context) ([]models.Contact, error)
	Update(ctx context.Context, contact *models.Contact) error
	Delete(ctx context.Context, id int64) error
}

// CDRListFilter specifies filtering and pagination for CDR list queries.
type CDRListFilter struct {
	Limit       int
	Offset      int
	Search      string // matches clid, src, or dst
	Disposition string
	StartDate   string // RFC3339 or YYYY-MM-DD
	EndDate     string // RFC3339 or YYYY-MM-DD
}

// CDRRepository manages call detail records.
type CDRRepository interface {
	Create(ctx context.Context, cdr *models.CDR) error
	List(ctx context.Context, filter CDRListFilter) ([]models.CDR, int, error)
	ListRecent(ctx context.Context, limit int) ([]models.CDR, error)
	CountByDisposition(ctx context.Context) (map[string]int64, error)
}

// SystemSettingRepository manages key-value system settings.
type SystemSettingRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	GetAll(ctx context.Context) ([]models.SystemSetting, error)
}

// AuditLogRepository records and lists configuration mutations.
type AuditLogRepository interface {
	Log(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, limit, offset int) ([]models.AuditLog, int, error)
}
