package snapshot

import (
	"fmt"
	"strings"
	"time"

	"github.com/hamed0406/pagewatch/internal/domain"
)

// The status line is grepped by dashboards; these markers must stay stable.
const (
	ChangedMessage   = "Changements détectés"
	UnchangedMessage = "Pas de changements détectés"
	errorPrefix      = "Erreur: "
)

// NewStatus builds the record written after a successful iteration.
func NewStatus(h domain.HealthResult, changed bool, at time.Time) domain.StatusRecord {
	msg := UnchangedMessage
	if changed {
		msg = ChangedMessage
	}
	return domain.StatusRecord{Health: h.Status, Port: h.Port, Message: msg, Changed: changed, WrittenAt: at}
}

// ErrorStatus builds the record written when an iteration failed.
func ErrorStatus(health domain.HealthStatus, port string, err error, at time.Time) domain.StatusRecord {
	reason := strings.NewReplacer("|", "/", "\n", " ", "\r", " ").Replace(err.Error())
	if port == "" {
		port = "unknown"
	}
	return domain.StatusRecord{Health: health, Port: port, Message: errorPrefix + reason, WrittenAt: at}
}

// FormatStatus renders
// "Status: <health> | Port: <port> | <message> à <HH:MM:SS>".
func FormatStatus(r domain.StatusRecord) string {
	return fmt.Sprintf("Status: %s | Port: %s | %s à %s", r.Health, r.Port, r.Message, r.WrittenAt.Format("15:04:05"))
}

// ParseStatus is the inverse of FormatStatus. Only the time of day survives
// the round trip; callers fill the date from the file's mtime.
func ParseStatus(line string) (domain.StatusRecord, error) {
	line = strings.TrimSpace(line)
	parts := strings.SplitN(line, " | ", 3)
	if len(parts) != 3 {
		return domain.StatusRecord{}, fmt.Errorf("malformed status line %q", line)
	}
	health, ok := strings.CutPrefix(parts[0], "Status: ")
	if !ok {
		return domain.StatusRecord{}, fmt.Errorf("malformed status field %q", parts[0])
	}
	port, ok := strings.CutPrefix(parts[1], "Port: ")
	if !ok {
		return domain.StatusRecord{}, fmt.Errorf("malformed port field %q", parts[1])
	}
	rec := domain.StatusRecord{Health: domain.HealthStatus(health), Port: port, Message: parts[2]}
	if i := strings.LastIndex(parts[2], " à "); i >= 0 {
		rec.Message = parts[2][:i]
		if t, err := time.Parse("15:04:05", parts[2][i+len(" à "):]); err == nil {
			rec.WrittenAt = t
		}
	}
	rec.Changed = rec.Message == ChangedMessage
	return rec, nil
}

// IsChangeLine reports whether a raw status line announces detected changes.
// "Pas de changements détectés" contains the lower-cased marker too, so the
// match is anchored on the field separator.
func IsChangeLine(line string) bool {
	return strings.Contains(line, "| "+ChangedMessage+" à ")
}
