package task

import (
	"regexp"
	"sort"
	"strings"
)

// Pictographic markers for the well-known tags (Obsidian Tasks compatible).
// Tags in this table render as "<marker> <value>"; everything else renders
// as "#name:value" or "#name".
var tagToMarker = map[string]string{
	TagID:        "🆔",
	TagDue:       "📅",
	TagScheduled: "⏳",
	TagCreated:   "➕",
	TagCompleted: "✅",
	TagBlocked:   "⛔",
}

var markerToTag = func() map[string]string {
	m := make(map[string]string, len(tagToMarker))
	for tag, marker := range tagToMarker {
		m[marker] = tag
	}
	return m
}()

// canonicalTagOrder fixes the on-disk tag order regardless of how tags were
// ordered when parsed or added. Keys not listed here follow, sorted by name.
var canonicalTagOrder = []string{
	TagID, TagDue, TagScheduled, TagCreated, TagCompleted,
	TagBlocked, TagEstimate, TagStub,
}

var (
	wikiLinkRe = regexp.MustCompile(`\[\[.*?\]\]`)
	tagRe      = regexp.MustCompile(`(?:#([\w/-]+):|(🆔|📅|⏳|➕|✅|⛔)\s+)(\S+)|#([\w/-]+)`)
)

// SplitTags splits the content of a task line into title and tags.
//
// Tags sit at the end of the line; the title is everything before the
// earliest match. Wiki-links ([[...]]) are masked with equal-length blanks
// before scanning so a "#" or marker inside them is never taken for a tag
// while byte offsets, and therefore the title, stay correct.
//
// The legacy "b" key is normalized to "blocked" on read.
func SplitTags(text string) (string, map[string]string) {
	tags := map[string]string{}

	masked := wikiLinkRe.ReplaceAllStringFunc(text, func(m string) string {
		return strings.Repeat(" ", len(m))
	})

	earliest := len(text)
	for _, m := range tagRe.FindAllStringSubmatchIndex(masked, -1) {
		switch {
		case m[2] >= 0: // #tag:value
			tags[masked[m[2]:m[3]]] = masked[m[6]:m[7]]
		case m[4] >= 0: // marker value
			tags[markerToTag[masked[m[4]:m[5]]]] = masked[m[6]:m[7]]
		case m[8] >= 0: // #tag without value
			tags[masked[m[8]:m[9]]] = ""
		}
		if m[0] < earliest {
			earliest = m[0]
		}
	}

	if v, ok := tags["b"]; ok {
		if _, exists := tags[TagBlocked]; !exists {
			tags[TagBlocked] = v
		}
		delete(tags, "b")
	}

	return strings.TrimSpace(text[:earliest]), tags
}

// RenderTag renders a single tag in its canonical markdown form.
func RenderTag(name, value string) string {
	if marker, ok := tagToMarker[name]; ok {
		return marker + " " + value
	}
	if value != "" {
		return "#" + name + ":" + value
	}
	return "#" + name
}

// RenderTags renders all tags space-separated in canonical order. The order
// is fixed so serializing a parsed file is idempotent after one pass.
func RenderTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}

	rendered := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, name := range canonicalTagOrder {
		if value, ok := tags[name]; ok {
			rendered = append(rendered, RenderTag(name, value))
			seen[name] = true
		}
	}

	var rest []string
	for name := range tags {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		rendered = append(rendered, RenderTag(name, tags[name]))
	}

	return strings.Join(rendered, " ")
}
