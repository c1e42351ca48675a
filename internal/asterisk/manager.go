// Package asterisk renders stored configuration into the engine's native
// config files (pjsip.conf, voicemail.conf, queues.conf) and applies them
// together with the compiled dialplan.
package asterisk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lq216/gonopbx/internal/database"
	"github.com/lq216/gonopbx/internal/dialplan"
)

// Reload console commands per artifact.
const (
	reloadDialplan  = "dialplan reload"
	reloadPJSIP     = "module reload res_pjsip.so"
	reloadVoicemail = "module reload app_voicemail.so"
	reloadQueues    = "queue reload all"
)

// Manager loads configuration snapshots, runs the generators, and pushes
// the artifacts through the applier. All mutating API handlers call back
// into it after a write.
type Manager struct {
	peers      database.SIPPeerRepository
	trunks     database.SIPTrunkRepository
	routes     database.InboundRouteRepository
	forwards   database.CallForwardRepository
	mailboxes  database.VoicemailMailboxRepository
	ringGroups database.RingGroupRepository
	ivrMenus   database.IVRMenuRepository
	settings   database.SystemSettingRepository
	applier    Applier
	logger     *slog.Logger
}

// NewManager wires a Manager to its repositories and applier.
func NewManager(
	peers database.SIPPeerRepository,
	trunks database.SIPTrunkRepository,
	routes database.InboundRouteRepository,
	forwards database.CallForwardRepository,
	mailboxes database.VoicemailMailboxRepository,
	ringGroups database.RingGroupRepository,
	ivrMenus database.IVRMenuRepository,
	settings database.SystemSettingRepository,
	applier Applier,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		peers:      peers,
		trunks:     trunks,
		routes:     routes,
		forwards:   forwards,
		mailboxes:  mailboxes,
		ringGroups: ringGroups,
		ivrMenus:   ivrMenus,
		settings:   settings,
		applier:    applier,
		logger:     logger,
	}
}

// LoadSnapshot assembles the compiler's input from storage. Only enabled
// inbound routes are presented; everything else is filtered inside the
// generators so disabled records still round-trip through the API.
func (m *Manager) LoadSnapshot(ctx context.Context) (dialplan.Snapshot, error) {
	var s dialplan.Snapshot
	var err error

	if s.Routes, err = m.routes.ListEnabled(ctx); err != nil {
		return s, fmt.Errorf("loading inbound routes: %w", err)
	}
	if s.Forwards, err = m.forwards.List(ctx); err != nil {
		return s, fmt.Errorf("loading call forwards: %w", err)
	}
	if s.Mailboxes, err = m.mailboxes.List(ctx); err != nil {
		return s, fmt.Errorf("loading voicemail mailboxes: %w", err)
	}
	if s.Peers, err = m.peers.List(ctx); err != nil {
		return s, fmt.Errorf("loading sip peers: %w", err)
	}
	if s.Trunks, err = m.trunks.List(ctx); err != nil {
		return s, fmt.Errorf("loading sip trunks: %w", err)
	}
	if s.RingGroups, err = m.ringGroups.List(ctx); err != nil {
		return s, fmt.Errorf("loading ring groups: %w", err)
	}
	if s.IVRMenus, err = m.ivrMenus.List(ctx); err != nil {
		return s, fmt.Errorf("loading ivr menus: %w", err)
	}
	return s, nil
}

// ApplyDialplan recompiles extensions.conf and reloads the dialplan.
func (m *Manager) ApplyDialplan(ctx context.Context) error {
	snapshot, err := m.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	return m.applier.Apply(ctx, Artifact{
		Filename:  "extensions.conf",
		Content:   dialplan.Compile(snapshot),
		ReloadCmd: reloadDialplan,
	})
}

// ApplyPJSIP regenerates pjsip.conf and reloads the SIP stack.
func (m *Manager) ApplyPJSIP(ctx context.Context) error {
	peers, err := m.peers.List(ctx)
	if err != nil {
		return fmt.Errorf("loading sip peers: %w", err)
	}
	trunks, err := m.trunks.List(ctx)
	if err != nil {
		return fmt.Errorf("loading sip trunks: %w", err)
	}
	return m.applier.Apply(ctx, Artifact{
		Filename:  "pjsip.conf",
		Content:   GeneratePJSIP(peers, trunks),
		ReloadCmd: reloadPJSIP,
	})
}

// ApplyVoicemail regenerates voicemail.conf with the current SMTP settings.
func (m *Manager) ApplyVoicemail(ctx context.Context) error {
	mailboxes, err := m.mailboxes.List(ctx)
	if err != nil {
		return fmt.Errorf("loading voicemail mailboxes: %w", err)
	}
	smtp, err := m.loadSMTPSettings(ctx)
	if err != nil {
		return err
	}
	return m.applier.Apply(ctx, Artifact{
		Filename:  "voicemail.conf",
		Content:   GenerateVoicemail(mailboxes, smtp),
		ReloadCmd: reloadVoicemail,
	})
}

// ApplyQueues regenerates queues.conf for the current ring groups.
func (m *Manager) ApplyQueues(ctx context.Context) error {
	groups, err := m.ringGroups.List(ctx)
	if err != nil {
		return fmt.Errorf("loading ring groups: %w", err)
	}
	return m.applier.Apply(ctx, Artifact{
		Filename:  "queues.conf",
		Content:   GenerateQueues(groups),
		ReloadCmd: reloadQueues,
	})
}

// ApplyAll regenerates every artifact. Used at startup and after bulk
// changes; each failure is reported but does not stop the others.
func (m *Manager) ApplyAll(ctx context.Context) error {
	var firstErr error
	steps := []struct {
		name  string
		apply func(context.Context) error
	}{
		{"pjsip", m.ApplyPJSIP},
		{"voicemail", m.ApplyVoicemail},
		{"queues", m.ApplyQueues},
		{"dialplan", m.ApplyDialplan},
	}
	for _, step := range steps {
		if err := step.apply(ctx); err != nil {
			m.logger.Error("apply failed", "artifact", step.name, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("applying %s: %w", step.name, err)
			}
		}
	}
	return firstErr
}

func (m *Manager) loadSMTPSettings(ctx context.Context) (SMTPSettings, error) {
	var smtp SMTPSettings
	var err error

	if smtp.Host, err = m.settings.Get(ctx, "smtp_host"); err != nil {
		return smtp, fmt.Errorf("loading smtp settings: %w", err)
	}
	if smtp.Port, err = m.settings.Get(ctx, "smtp_port"); err != nil {
		return smtp, fmt.Errorf("loading smtp settings: %w", err)
	}
	tls, err := m.settings.Get(ctx, "smtp_tls")
	if err != nil {
		return smtp, fmt.Errorf("loading smtp settings: %w", err)
	}
	smtp.TLS = tls == "true" || tls == "1"
	if smtp.User, err = m.settings.Get(ctx, "smtp_user"); err != nil {
		return smtp, fmt.Errorf("loading smtp settings: %w", err)
	}
	if smtp.Password, err = m.settings.Get(ctx, "smtp_password"); err != nil {
		return smtp, fmt.Errorf("loading smtp settings: %w", err)
	}
	if smtp.From, err = m.settings.Get(ctx, "smtp_from"); err != nil {
		return smtp, fmt.Errorf("loading smtp settings: %w", err)
	}
	return smtp, nil
}
