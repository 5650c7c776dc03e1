package hipaa

import (
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

// Log fields never carry patient names in clear text, only initials.

// Initials reduces a name to "J.D." form.
func Initials(name string) string {
	var b strings.Builder
	for _, part := range strings.Fields(name) {
		for _, r := range part {
			if unicode.IsLetter(r) {
				b.WriteRune(unicode.ToUpper(r))
				b.WriteByte('.')
				break
			}
		}
	}
	return b.String()
}

// Patient adds a redacted patient name to a log event.
func Patient(e *zerolog.Event, name string) *zerolog.Event {
	return e.Str("patient", Initials(name))
}
