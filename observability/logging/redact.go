package logging

import (
	"log/slog"
	"net/netip"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// accountVisibleChars is how many characters of the bech32 data part stay
// visible on each side of a masked account.
const accountVisibleChars = 4

var redactionAllowlist = map[string]struct{}{
	"service":    {},
	"env":        {},
	"message":    {},
	"severity":   {},
	"timestamp":  {},
	"error":      {},
	"reason":     {},
	"component":  {},
	"method":     {},
	"code":       {},
	"request_id": {},
	"listen":     {},
	"duration":   {},
	"asset":      {},
	"amount":     {},
	"mints":      {},
	"approvals":  {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist returns a sorted copy of the log keys that are allowed to be emitted
// without redaction.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. The original key casing is preserved for readability.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskAccount shortens a bech32 account to its prefix and the edges of its
// data part, e.g. "yeti1qypq...x7f3". Values that are not bech32 are redacted.
func MaskAccount(key, value string) slog.Attr {
	value = strings.TrimSpace(value)
	if value == "" {
		return slog.String(key, value)
	}
	sep := strings.LastIndexByte(value, '1')
	if sep <= 0 {
		return slog.String(key, RedactedValue)
	}
	data := value[sep+1:]
	if len(data) <= 2*accountVisibleChars {
		return slog.String(key, value[:sep+1]+"...")
	}
	return slog.String(key, value[:sep+1]+data[:accountVisibleChars]+"..."+data[len(data)-accountVisibleChars:])
}

// MaskRemote keeps the network part of a client IP: the /24 of an IPv4
// address and the /48 of an IPv6 address. Anything else is redacted.
func MaskRemote(key, value string) slog.Attr {
	value = strings.TrimSpace(value)
	if value == "" {
		return slog.String(key, value)
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return slog.String(key, RedactedValue)
	}
	bits := 48
	if addr.Is4() || addr.Is4In6() {
		addr = addr.Unmap()
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return slog.String(key, RedactedValue)
	}
	return slog.String(key, prefix.String())
}
