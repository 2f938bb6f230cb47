package gdb

import "strings"

// attachFailurePrefix starts the diagnostic line gdb prints when the
// kernel refuses an attach (permissions, already traced, gone).
const attachFailurePrefix = "ptrace:"

// threadMarker is the substring identifying a thread entry in an
// "info threads" reply.
const threadMarker = "Thread"

// AttachFailed scans an attach reply for gdb's failure diagnostic. If
// one is found it returns the full line as the message, and true.
func AttachFailed(lines []string) (string, bool) {
	for _, line := range lines {
		if strings.HasPrefix(line, attachFailurePrefix) {
			return line, true
		}
	}
	return "", false
}

// ThreadIDs extracts thread identifiers from an "info threads" reply,
// in reply order and with reply multiplicity. For every line
// mentioning a thread it takes the line's first run of ASCII digits,
// which in gdb's listing is the thread number usable with the thread
// command. Lines without the marker, or with no digits, are skipped.
//
// This is a best-effort scrape of gdb's informal listing format, not a
// structured parse.
func ThreadIDs(lines []string) []string {
	var threads []string
	for _, line := range lines {
		if !strings.Contains(line, threadMarker) {
			continue
		}
		if id := firstDigitRun(line); id != "" {
			threads = append(threads, id)
		}
	}
	return threads
}

func firstDigitRun(s string) string {
	start := -1
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
			if start < 0 {
				start = i
			}
		case start >= 0:
			return s[start:i]
		}
	}
	if start >= 0 {
		return s[start:]
	}
	return ""
}
