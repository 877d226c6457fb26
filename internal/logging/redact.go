package logging

import (
	"net"
	"strings"

	log "github.com/sirupsen/logrus"
)

const mask = "***"

var secretKeyMarkers = []string{"token", "key", "password", "secret", "auth", "sign"}

// Redact masks value according to the field name it is logged under.
func Redact(key, value string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.Contains(k, "email") || strings.Contains(k, "mail"):
		return RedactEmail(value)
	case isIPKey(k):
		return RedactIP(value)
	case containsAny(k, secretKeyMarkers):
		return RedactToken(value)
	case k == "id" || strings.HasSuffix(k, "_id"):
		return RedactIdentifier(value)
	default:
		return value
	}
}

// RedactEmail keeps the first character of the local part and the domain.
func RedactEmail(value string) string {
	at := strings.LastIndex(value, "@")
	if at <= 0 {
		return mask
	}
	return value[:1] + mask + value[at:]
}

// RedactIP keeps the network half of an address.
func RedactIP(value string) string {
	host := value
	if h, _, err := net.SplitHostPort(value); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.TrimSpace(host))
	if ip == nil {
		return mask
	}
	if v4 := ip.To4(); v4 != nil {
		parts := strings.Split(v4.String(), ".")
		return parts[0] + "." + parts[1] + ".***.***"
	}
	groups := strings.Split(ip.String(), ":")
	if len(groups) < 2 {
		return mask
	}
	return groups[0] + ":" + groups[1] + ":" + mask
}

// RedactToken keeps a short prefix and suffix of long secrets.
func RedactToken(value string) string {
	if len(value) < 8 {
		return mask
	}
	return value[:4] + "..." + value[len(value)-3:] + mask
}

// RedactIdentifier shortens UUID-shaped identifiers; other values pass through.
func RedactIdentifier(value string) string {
	if !looksLikeUUID(value) {
		return value
	}
	return value[:8] + mask
}

// Field is a typed log field whose key selects a redaction rule.
type Field struct {
	Key   string
	Value any
}

func Email(v string) Field   { return Field{Key: "email", Value: v} }
func IP(v string) Field      { return Field{Key: "ip", Value: v} }
func UserID(v string) Field  { return Field{Key: "user_id", Value: v} }
func Token(v string) Field   { return Field{Key: "token", Value: v} }
func OrderID(v string) Field { return Field{Key: "order_id", Value: v} }

// Fields converts typed fields into logrus fields.
func Fields(fields ...Field) log.Fields {
	out := make(log.Fields, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

func isIPKey(k string) bool {
	if k == "ip" || strings.HasPrefix(k, "ip_") || strings.HasSuffix(k, "_ip") || strings.Contains(k, "_ip_") {
		return true
	}
	return strings.Contains(k, "addr")
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func looksLikeUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, r := range s {
		switch i {
		case 8, 13, 18, 23:
			if r != '-' {
				return false
			}
		default:
			if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
				return false
			}
		}
	}
	return true
}
