package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"sort"
	"strings"
)

// Pair is one field of a canonical message. Canonical messages are declared
// as ordered pair lists per provider and operation, never assembled ad hoc.
type Pair struct {
	Name  string
	Value string
}

// Encoding selects the percent-encoding rule for canonical messages. The
// gateway provider signs ASCII-encoded values at creation time but
// UTF-8-encoded values when verifying a return; the two must never be mixed
// or verification silently fails.
type Encoding int

const (
	EncodeASCII Encoding = iota
	EncodeUTF8
)

// Encode percent-encodes s the way the gateway provider's reference
// implementation does: alphanumerics and '.', '-', '*', '_' pass through,
// space becomes '+', everything else is percent-encoded with uppercase hex.
// In ASCII mode a non-ASCII rune collapses to the charset replacement byte
// '?', i.e. "%3F".
func Encode(s string, enc Encoding) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '*', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('+')
		case r < 0x80:
			escapeByte(&b, byte(r))
		case enc == EncodeASCII:
			b.WriteString("%3F")
		default:
			var buf [4]byte
			n := copy(buf[:], string(r))
			for i := 0; i < n; i++ {
				escapeByte(&b, buf[i])
			}
		}
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"

func escapeByte(b *strings.Builder, c byte) {
	b.WriteByte('%')
	b.WriteByte(upperhex[c>>4])
	b.WriteByte(upperhex[c&0x0f])
}

// SortedQuery builds the gateway-style canonical message: pairs sorted by
// field name, empty values omitted, "name=encode(value)" joined by '&'.
// Field names are not encoded.
func SortedQuery(pairs []Pair, enc Encoding) string {
	sorted := make([]Pair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	parts := make([]string, 0, len(sorted))
	for _, p := range sorted {
		if p.Value == "" {
			continue
		}
		parts = append(parts, p.Name+"="+Encode(p.Value, enc))
	}
	return strings.Join(parts, "&")
}

// FixedOrder builds a wallet-style canonical message: pairs joined as
// "name=value" with '&' in the exact order given, raw values, empty values
// included as empty strings.
func FixedOrder(pairs []Pair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.Name+"="+p.Value)
	}
	return strings.Join(parts, "&")
}

// PipeJoined builds a wallet-style canonical message of bare values joined
// with '|' in the exact order given.
func PipeJoined(values []string) string {
	return strings.Join(values, "|")
}

// SignSHA256 computes the lowercase hex HMAC-SHA256 of message under key.
func SignSHA256(key, message string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignSHA512 computes the lowercase hex HMAC-SHA512 of message under key.
func SignSHA512(key, message string) string {
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySHA256 checks supplied against the recomputed digest in constant time.
func VerifySHA256(key, message, supplied string) bool {
	return hmac.Equal([]byte(SignSHA256(key, message)), []byte(strings.ToLower(supplied)))
}

// VerifySHA512 checks supplied against the recomputed digest in constant time.
func VerifySHA512(key, message, supplied string) bool {
	return hmac.Equal([]byte(SignSHA512(key, message)), []byte(strings.ToLower(supplied)))
}
