package orders

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"github.com/wolfman30/mealprep-intake/internal/intake"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?1?[-.\s]?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`)
)

// HashContact returns the hex SHA-256 of a normalized email or phone, so
// archived snapshots can still be joined per customer.
func HashContact(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	h := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", h)
}

// ScrubPII replaces emails with [EMAIL] and phone numbers with [PHONE].
func ScrubPII(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	text = phoneRe.ReplaceAllString(text, "[PHONE]")
	return text
}

// RedactSnapshot strips direct contact details from an archived snapshot.
// Email and phone become hashes; free text is scrubbed. Names are kept.
func RedactSnapshot(snap intake.IntakeSnapshot) intake.IntakeSnapshot {
	rec := snap.Record.Clone()
	rec.Identity.Email = HashContact(rec.Identity.Email)
	rec.Identity.Phone = HashContact(rec.Identity.Phone)
	rec.Goals.Allergies = ScrubPII(rec.Goals.Allergies)
	rec.Consent.Notes = ScrubPII(rec.Consent.Notes)
	snap.Record = rec
	return snap
}
