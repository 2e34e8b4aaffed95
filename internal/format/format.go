// Package format shapes model output into WhatsApp-ready messages:
// markdown normalization, word budgets with balanced styling markers,
// message splitting and list verticalization.
package format

import (
	"errors"
	"regexp"
	"strings"
)

const (
	// DefaultWordLimit is the per-message budget the persona promises.
	DefaultWordLimit = 30
	// softWordLimit caps free-form prose before truncation kicks in.
	softWordLimit = 40
	// maxListItems caps verticalized enumerations.
	maxListItems = 8
)

// messageBreak is the marker the model emits between intended messages.
const messageBreak = "¶¶"

var (
	crlfRe       = regexp.MustCompile(`\r\n`)
	blankRunsRe  = regexp.MustCompile(`\n{3,}`)
	boldRunsRe   = regexp.MustCompile(`\*{4,}`)
	italicRunsRe = regexp.MustCompile(`_{4,}`)
	spaceRunsRe  = regexp.MustCompile(`[ \t]{2,}`)
	blankSplitRe = regexp.MustCompile(`\n{2,}`)
	lineRunsRe   = regexp.MustCompile(`\n+`)
	listSepRe    = regexp.MustCompile(`\s*[,;]\s*`)
)

// Normalize cleans raw model output: unified newlines, collapsed blank
// runs, de-duplicated styling markers and spaces. Returns "" for
// effectively empty input.
func Normalize(text string) string {
	s := crlfRe.ReplaceAllString(text, "\n")
	s = blankRunsRe.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = boldRunsRe.ReplaceAllString(s, "**")
	s = italicRunsRe.ReplaceAllString(s, "__")
	s = spaceRunsRe.ReplaceAllString(s, " ")
	return s
}

// EnforceWordLimit truncates text past limit whitespace-separated
// words, re-balancing any styling markers the cut left open so
// WhatsApp does not render a dangling ** or ~ literally.
func EnforceWordLimit(text string, limit int) string {
	if text == "" {
		return text
	}
	if limit <= 0 {
		limit = DefaultWordLimit
	}
	tokens := strings.Fields(text)
	if len(tokens) <= limit {
		return text
	}

	trimmed := strings.Join(tokens[:limit], " ")
	if strings.Count(trimmed, "**")%2 != 0 {
		trimmed += "**"
	}
	if strings.Count(trimmed, "_")%2 != 0 {
		trimmed += "_"
	}
	if strings.Count(trimmed, "~")%2 != 0 {
		trimmed += "~"
	}
	return trimmed
}

// Split breaks one completion into the separate messages the model
// asked for via the break marker. Without markers it falls back to
// paragraph boundaries, and failing that returns the text whole.
// Every returned message is normalized and non-empty.
func Split(text string) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	var parts []string
	if strings.Contains(normalized, messageBreak) {
		parts = strings.Split(normalized, messageBreak)
	} else {
		parts = blankSplitRe.Split(normalized, -1)
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{normalized}
	}
	return out
}

// salesContextPatterns detect price or closing language. Messages in
// an active sales context are never truncated or re-flowed, a cut
// price line loses the sale.
var salesContextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\s*\d+`),
	regexp.MustCompile(`(?i)\bS/\s*\d+`),
	regexp.MustCompile(`(?i)\b\d+[,.]?\d*\s*(usd|mxn|soles|dólares|dolares|pesos)\b`),
	regexp.MustCompile(`(?i)\bprecio(s)?\b`),
	regexp.MustCompile(`(?i)\bpaquete(s)?\b`),
	regexp.MustCompile(`(?i)\bpromoc(ión|ion)\b`),
	regexp.MustCompile(`(?i)\binversi(ón|on)\b`),
	regexp.MustCompile(`(?i)\bcerrar(emos)?\b`),
	regexp.MustCompile(`(?i)\bcompra(r)?\b`),
	regexp.MustCompile(`(?i)\bagenda(r)?\b`),
}

// HasSalesContext reports whether text carries price or closing
// language.
func HasSalesContext(text string) bool {
	for _, re := range salesContextPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	lower := strings.ToLower(text)
	return strings.Contains(lower, "venta") || strings.Contains(lower, "cierre")
}

// LimitWords soft-caps free-form prose at max words, skipping the cap
// entirely when the text is in a sales context.
func LimitWords(text string, max int) string {
	if max <= 0 {
		max = softWordLimit
	}
	tokens := strings.Fields(text)
	if len(tokens) <= max || HasSalesContext(text) {
		return strings.TrimSpace(text)
	}
	return strings.Join(tokens[:max], " ")
}

// Verticalize turns an enumeration into one item per line, capped at
// max items. Texts that already have line breaks split on them;
// otherwise commas and semicolons become breaks. Sales-context texts
// keep all their items.
func Verticalize(text string, max int) string {
	if max <= 0 {
		max = maxListItems
	}
	s := crlfRe.ReplaceAllString(text, "\n")

	var segments []string
	if strings.Contains(s, "\n") {
		segments = lineRunsRe.Split(s, -1)
	} else {
		segments = strings.Split(listSepRe.ReplaceAllString(s, "\n"), "\n")
	}

	items := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg = strings.TrimSpace(seg); seg != "" {
			items = append(items, seg)
		}
	}

	if len(items) <= max || HasSalesContext(s) {
		return strings.Join(items, "\n")
	}
	return strings.Join(items[:max], "\n")
}

// ErrEmptyTitle is returned by Section for a blank title. A section
// without a heading is a template bug, not a formatting choice.
var ErrEmptyTitle = errors.New("format: section requires a non-empty title")

// Section renders a WhatsApp-style titled bullet list. Items are
// whitespace-collapsed; empty ones are dropped.
func Section(title string, items []string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrEmptyTitle
	}

	bullets := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.Join(strings.Fields(item), " "); item != "" {
			bullets = append(bullets, "• "+item)
		}
	}
	if len(bullets) == 0 {
		return "*" + title + "*", nil
	}
	return "*" + title + "*\n" + strings.Join(bullets, "\n"), nil
}
