package puzzle

import (
	"regexp"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_\-]+)\.(count|target|remaining|progress)\}`)

// Render expands message placeholders against the table. Unknown ids are
// left untouched.
func (t *Table) Render(msg string) string {
	if !strings.Contains(msg, "{") {
		return msg
	}
	return placeholderRe.ReplaceAllStringFunc(msg, func(m string) string {
		parts := placeholderRe.FindStringSubmatch(m)
		id, attr := parts[1], parts[2]
		count, ok := t.Count(id)
		if !ok {
			return m
		}
		target, _ := t.Target(id)
		switch attr {
		case "count":
			return strconv.Itoa(count)
		case "target":
			return strconv.Itoa(target)
		case "remaining":
			return strconv.Itoa(target - count)
		case "progress":
			if s := t.sequences[id]; s != nil {
				return strings.Join(s.Progress(), ", ")
			}
			return strconv.Itoa(count)
		}
		return m
	})
}
