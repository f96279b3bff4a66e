// Package phone canonicalizes raw WhatsApp sender identifiers into the
// single key format used for session lookup, locking, and routing.
//
// The canonical form is digits-only: country code 54, mobile indicator 9,
// then the 10-digit area+subscriber number — 13 digits total, e.g.
// "5491155550123". Inputs arrive in many shapes: JIDs with protocol
// suffixes ("5491155550123@s.whatsapp.net", ":12" device parts), numbers
// with "+" and separators, numbers missing the country code or the mobile
// indicator, and numbers with the local trunk prefix "0".
package phone

import "strings"

const (
	countryCode = "54"
	mobileTrunk = "9"

	// subscriberLen is the area code + subscriber number length.
	subscriberLen = 10

	// canonicalLen is len(countryCode) + len(mobileTrunk) + subscriberLen.
	canonicalLen = 13
)

// jidSuffixes are channel-specific suffixes stripped before digit extraction.
var jidSuffixes = []string{"@s.whatsapp.net", "@c.us", "@g.us", "@lid", "@broadcast"}

// Normalize converts a raw sender identifier to its canonical 13-digit key.
//
// It is a pure function and idempotent: Normalize(Normalize(x)) == Normalize(x).
// Malformed or under-length input still yields a best-effort canonical value
// rather than an error; the ingestion pipeline cannot block on a bad
// identifier, so leniency here is deliberate and matches observed production
// behavior.
func Normalize(raw string) string {
	s := raw

	// Device part of a JID ("5491155550123:12@s.whatsapp.net"). Only cut
	// when the colon directly follows a digit, so scheme-style prefixes
	// ("whatsapp:549...") are left for digit extraction.
	if i := strings.IndexByte(s, ':'); i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		if j := strings.IndexByte(s, '@'); j > i {
			s = s[:i] + s[j:]
		} else if j < 0 {
			s = s[:i]
		}
	}

	for _, suffix := range jidSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}

	digits := keepDigits(s)

	// Local trunk prefix: "011..." is a domestic dialing artifact, not part
	// of the subscriber number.
	if len(digits) > subscriberLen && strings.HasPrefix(digits, "0") {
		digits = strings.TrimPrefix(digits, "0")
	}

	switch {
	case len(digits) == canonicalLen && strings.HasPrefix(digits, countryCode+mobileTrunk):
		return digits

	case len(digits) == canonicalLen-1 && strings.HasPrefix(digits, countryCode):
		// Country code present, mobile indicator missing: 54 + 10 digits.
		return countryCode + mobileTrunk + digits[len(countryCode):]

	case len(digits) == subscriberLen+1 && strings.HasPrefix(digits, mobileTrunk):
		// Mobile indicator + subscriber, no country code: 9 + 10 digits.
		return countryCode + digits

	case len(digits) > subscriberLen:
		// Over-long or otherwise unrecognized prefix: keep the last
		// subscriberLen digits and re-prefix.
		return countryCode + mobileTrunk + digits[len(digits)-subscriberLen:]

	default:
		// Bare subscriber number, or shorter. Under-length input is still
		// prefixed rather than rejected (lenient by design of the original
		// pipeline; see DESIGN.md open questions). A short value that
		// already carries the canonical prefix passes through unchanged so
		// the function stays idempotent.
		if strings.HasPrefix(digits, countryCode+mobileTrunk) {
			return digits
		}
		return countryCode + mobileTrunk + digits
	}
}

// IsCanonical reports whether s is already in canonical form.
func IsCanonical(s string) bool {
	return len(s) == canonicalLen &&
		strings.HasPrefix(s, countryCode+mobileTrunk) &&
		keepDigits(s) == s
}

func keepDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
