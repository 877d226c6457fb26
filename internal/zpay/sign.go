package zpay

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Sign computes the Z-Pay MD5 signature: parameters sorted by key, empty
// values and sign/sign_type skipped, joined as k=v&k=v, merchant key appended.
func Sign(params map[string]string, key string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == "sign" || k == "sign_type" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	b.WriteString(key)
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify checks the sign parameter in constant time.
func Verify(params map[string]string, key string) bool {
	got := strings.ToLower(strings.TrimSpace(params["sign"]))
	if got == "" || key == "" {
		return false
	}
	want := Sign(params, key)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// IsPaidStatus interprets the loosely typed status field providers return.
// Only 1 (as number or string) and "paid" count as paid.
func IsPaidStatus(v any) bool {
	switch s := v.(type) {
	case nil:
		return false
	case bool:
		return s
	case int:
		return s == 1
	case int64:
		return s == 1
	case float64:
		return s == 1 && !math.IsNaN(s)
	case json.Number:
		f, err := s.Float64()
		return err == nil && f == 1
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(s))
		if trimmed == "paid" {
			return true
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		return err == nil && f == 1
	default:
		return false
	}
}
