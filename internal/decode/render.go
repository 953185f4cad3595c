package decode

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// ViewMode selects how a stored payload is rendered for a consumer.
// Views are computed on demand from the raw bytes, never stored.
type ViewMode string

const (
	ViewText   ViewMode = "text"
	ViewHex    ViewMode = "hex"
	ViewBase64 ViewMode = "base64"
	ViewDump   ViewMode = "dump"
)

// ParseViewMode validates a mode string from a query parameter.
func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(s) {
	case ViewText, ViewHex, ViewBase64, ViewDump:
		return ViewMode(s), nil
	case "":
		return ViewText, nil
	default:
		return "", fmt.Errorf("unknown view mode %q", s)
	}
}

// Render produces the requested view of a payload. Text is a lossy
// best-effort decode (invalid sequences become U+FFFD), hex and base64
// are exact encodings of the raw bytes, dump is a classic offset/hex/
// ASCII dump.
func Render(payload []byte, mode ViewMode) string {
	switch mode {
	case ViewHex:
		return hex.EncodeToString(payload)
	case ViewBase64:
		return base64.StdEncoding.EncodeToString(payload)
	case ViewDump:
		return hexDump(payload)
	default:
		return strings.ToValidUTF8(string(payload), "�")
	}
}

func hexDump(data []byte) string {
	var sb strings.Builder
	for offset := 0; offset < len(data); offset += 16 {
		sb.WriteString(fmt.Sprintf("%04x  ", offset))

		end := offset + 16
		if end > len(data) {
			end = len(data)
		}
		for i := offset; i < offset+16; i++ {
			if i < end {
				sb.WriteString(fmt.Sprintf("%02x ", data[i]))
			} else {
				sb.WriteString("   ")
			}
			if i == offset+7 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(" |")

		for i := offset; i < end; i++ {
			b := data[i]
			if b >= 0x20 && b <= 0x7e {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('|')
		sb.WriteByte('\n')
	}
	return sb.String()
}
