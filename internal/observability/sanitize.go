package observability

const maxLogMessageLength = 200

// SanitizeMessage collapses non-printable characters to spaces and caps
// the message length, so untrusted error text is safe to log.
func SanitizeMessage(msg string) string {
	out := make([]byte, 0, len(msg))
	lastSpace := false
	for i := 0; i < len(msg) && len(out) < maxLogMessageLength; i++ {
		b := msg[i]
		if b < 0x20 || b > 0x7e {
			if !lastSpace {
				out = append(out, ' ')
				lastSpace = true
			}
			continue
		}
		out = append(out, b)
		lastSpace = b == ' '
	}
	return string(out)
}

// SafeError returns a sanitized form of err's message.
func SafeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeMessage(err.Error())
}
