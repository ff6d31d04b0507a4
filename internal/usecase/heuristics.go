package usecase

import (
	"regexp"
	"strings"
)

// eventPatterns is the keyword/temporal match for reminder and event candidates.
// It is deliberately loose; the calendar stage applies the real gate.
var eventPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bremind(er|ers|s)?\b|\bdon'?t forget\b`),
	regexp.MustCompile(`\b(today|tonight|tomorrow|tmrw|tomorow)\b`),
	regexp.MustCompile(`\b(next|this|coming)\s+(week|weekend|month|year|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
	regexp.MustCompile(`\b(on\s+)?(mon|tues?|wed(nes)?|thu(rs)?|fri|sat(ur)?|sun)(day)\b`),
	regexp.MustCompile(`\b(at\s+)?\d{1,2}(:\d{2})?\s*(am|pm)\b|\bat\s+\d{1,2}:\d{2}\b|\bnoon\b|\bmidnight\b`),
	regexp.MustCompile(`\b\d{1,2}[/.]\d{1,2}([/.]\d{2,4})?\b|\b\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`\b(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(st|nd|rd|th)?\b|\b\d{1,2}(st|nd|rd|th)?\s+(of\s+)?(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\b`),
	regexp.MustCompile(`\bin\s+\d+\s+(minutes?|mins?|hours?|hrs?|days?|weeks?|months?)\b`),
	regexp.MustCompile(`\b(meeting|appointment|appt|deadline|due|schedule[d]?|call with|lunch with|dinner with|interview|birthday|anniversary)\b`),
}

// IsEventCandidate reports whether content looks like something with a date or a
// reminder in it.
func IsEventCandidate(content string) bool {
	c := strings.ToLower(content)
	if strings.TrimSpace(c) == "" {
		return false
	}
	for _, re := range eventPatterns {
		if re.MatchString(c) {
			return true
		}
	}
	return false
}
