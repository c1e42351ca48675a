package asterisk

import (
	"fmt"
	"strings"

	"github.com/lq216/gonopbx/internal/database/models"
)

// SMTPSettings carries the mail-delivery settings rendered into the
// voicemail [general] section. Zero value disables email notification.
type SMTPSettings struct {
	Host     string
	Port     string
	TLS      bool
	User     string
	Password string
	From     string
}

// GenerateVoicemail renders voicemail.conf with one mailbox line per
// enabled mailbox in the default context the dialplan references.
func GenerateVoicemail(mailboxes []models.VoicemailMailbox, smtp SMTPSettings) string {
	var b strings.Builder

	b.WriteString("; Auto-generated voicemail configuration\n")
	b.WriteString("; Generated by GonoPBX - do not edit by hand\n\n")
	b.WriteString("[general]\n")
	b.WriteString("format=wav49|wav\n")
	b.WriteString("maxmsg=100\n")
	b.WriteString("maxsecs=180\n")
	b.WriteString("emaildateformat=%d.%m.%Y %H:%M\n")
	if smtp.Host != "" {
		b.WriteString("attach=yes\n")
		from := smtp.From
		if from == "" {
			from = "voicemail@localhost"
		}
		fmt.Fprintf(&b, "serveremail=%s\n", from)
		b.WriteString("mailcmd=/usr/bin/msmtp -t\n")
	} else {
		b.WriteString("attach=no\n")
	}
	b.WriteString("\n[default]\n")

	for i := range mailboxes {
		mb := &mailboxes[i]
		if !mb.Enabled {
			continue
		}
		pin := mb.PIN
		if pin == "" {
			pin = "1234"
		}
		fmt.Fprintf(&b, "%s => %s,%s,%s\n", mb.Extension, pin, mb.Name, mb.Email)
	}

	return b.String()
}
