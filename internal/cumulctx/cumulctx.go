// Package cumulctx implements the append-with-deduplication and
// oldest-first truncation discipline used to grow a memory block's value
// without ever exceeding the agent runtime's byte budget. It is a direct
// port of the Python reference's _build_cumulative_context /
// _truncate_oldest_entries pair, generalized to Go's string/byte semantics.
package cumulctx

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MaxLength is the hard byte cap the runtime enforces on a memory block's
// value. The core enforces it locally before every write.
const MaxLength = 4800

// Marker is the literal line prepended to a value whenever one or more
// entries were dropped during truncation.
const Marker = "--- OLDER ENTRIES TRUNCATED ---"

// similarityThreshold is the single constant governing both containment and
// n-gram-overlap similarity checks in Similar. The Python original documents
// it but never centralizes it; we expose it here as the one knob a test can
// reason about.
const similarityThreshold = 0.9

const truncatedSuffix = " [CONTENT TRUNCATED]"

const knowledgeGraphHeader = "Relevant Entities from Knowledge Graph:"

var entryDelimiterPattern = regexp.MustCompile(`\n\n--- CONTEXT ENTRY \(([^)]+)\) ---\n\n`)

var tagLinePattern = regexp.MustCompile(`(?m)^(?:Node|Fact): (.+)$`)

// entry is one timestamped block of an append log. Timestamp is empty for
// content that predates the first delimiter (the value's very first entry,
// written by the empty-existing-context branch of Append).
type entry struct {
	Timestamp string
	Content   string
}

// Delimiter renders the literal entry separator for a UTC instant.
func Delimiter(at time.Time) string {
	return fmt.Sprintf("\n\n--- CONTEXT ENTRY (%s) ---\n\n", at.UTC().Format("2006-01-02 15:04:05 UTC"))
}

func delimiterForTimestamp(ts string) string {
	return "\n\n--- CONTEXT ENTRY (" + ts + ") ---\n\n"
}

// delimiterLen is constant: every rendered timestamp has the same fixed
// width ("2006-01-02 15:04:05 UTC"), so the length of the delimiter never
// depends on which instant produced it.
var delimiterLen = len(delimiterForTimestamp("0000-00-00 00:00:00 UTC"))

func parseEntries(value string) []entry {
	if value == "" {
		return nil
	}

	locs := entryDelimiterPattern.FindAllStringSubmatchIndex(value, -1)
	if len(locs) == 0 {
		return []entry{{Content: value}}
	}

	var entries []entry
	if first := strings.TrimSpace(value[:locs[0][0]]); first != "" {
		entries = append(entries, entry{Content: first})
	}

	for i, loc := range locs {
		ts := value[loc[2]:loc[3]]
		start := loc[1]
		end := len(value)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		content := strings.TrimSpace(value[start:end])
		if content == "" {
			continue
		}
		entries = append(entries, entry{Timestamp: ts, Content: content})
	}

	return entries
}

// Append grows existing with new, applying deduplication against the most
// recent entry and then byte-bounded truncation. now is the instant used to
// stamp the new entry; callers pass time.Now().UTC().
func Append(existing, newContext string, now time.Time) string {
	if strings.TrimSpace(newContext) == "" {
		return existing
	}
	if strings.TrimSpace(existing) == "" {
		return capSingleEntry(newContext, now)
	}

	entries := parseEntries(existing)
	if len(entries) > 0 && Similar(entries[len(entries)-1].Content, newContext) {
		return existing
	}

	candidate := existing + Delimiter(now) + newContext
	if len(candidate) <= MaxLength {
		return candidate
	}

	return truncate(append(entries, entry{Timestamp: now.UTC().Format("2006-01-02 15:04:05 UTC"), Content: newContext}), now)
}

// capSingleEntry enforces the MaxLength invariant even when existing is
// empty: the append-with-no-prior-context path must never emit a value
// longer than the runtime's budget.
func capSingleEntry(newContext string, now time.Time) string {
	if len(newContext) <= MaxLength {
		return newContext
	}
	return truncate([]entry{{Content: newContext}}, now)
}

// truncate applies the oldest-first drop algorithm to an already-parsed
// entry list, guaranteeing the result is at most MaxLength bytes and begins
// with Marker whenever any entry was dropped.
func truncate(entries []entry, now time.Time) string {
	if len(entries) == 0 {
		return ""
	}

	newest := entries[len(entries)-1]

	if len(newest.Content)+len(Marker)+delimiterLen > MaxLength {
		avail := MaxLength - len(Marker) - delimiterLen - len(truncatedSuffix)
		if avail < 0 {
			avail = 0
		}
		delim := entryDelimiter(newest, now)
		return Marker + delim + truncateBytes(newest.Content, avail) + truncatedSuffix
	}

	kept := []entry{newest}
	size := len(newest.Content)

	for i := len(entries) - 2; i >= 0; i-- {
		e := entries[i]
		if size+delimiterLen+len(e.Content)+len(Marker)+delimiterLen <= MaxLength {
			kept = append([]entry{e}, kept...)
			size += delimiterLen + len(e.Content)
		} else {
			break
		}
	}

	var sb strings.Builder
	sb.WriteString(Marker)
	for _, e := range kept {
		sb.WriteString(entryDelimiter(e, now))
		sb.WriteString(e.Content)
	}
	return sb.String()
}

// entryDelimiter renders an entry's own delimiter, falling back to now for
// the rare legacy entry that predates any delimiter (only possible for the
// value's original first entry).
func entryDelimiter(e entry, now time.Time) string {
	if e.Timestamp == "" {
		return Delimiter(now)
	}
	return delimiterForTimestamp(e.Timestamp)
}

func truncateBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	// Avoid splitting a multi-byte rune.
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// Similar reports whether b is close enough to a that appending b would be a
// near-duplicate of a. It combines containment and character n-gram overlap,
// with a carve-out: knowledge-graph context blocks whose extracted Node/Fact
// tags are entirely disjoint are never considered similar, even if their
// surrounding boilerplate text overlaps heavily.
func Similar(a, b string) bool {
	if a == "" || b == "" {
		return false
	}

	if hasDistinguishingTags(a, b) {
		return false
	}

	aClean := strings.ToLower(strings.TrimSpace(a))
	bClean := strings.ToLower(strings.TrimSpace(b))

	if aClean == bClean {
		return true
	}

	shorter, longer := aClean, bClean
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(longer) == 0 {
		return false
	}

	lengthRatio := float64(len(shorter)) / float64(len(longer))
	if lengthRatio < similarityThreshold {
		return false
	}

	if strings.Contains(longer, shorter) {
		return true
	}

	return ngramOverlap(aClean, bClean) > similarityThreshold
}

// hasDistinguishingTags implements the query-awareness carve-out: when both
// sides are knowledge-graph context blocks with at least one extractable
// Node/Fact tag, and their tag sets share nothing in common, they describe
// distinct retrievals and must never be deduplicated against one another.
func hasDistinguishingTags(a, b string) bool {
	if !strings.Contains(a, knowledgeGraphHeader) || !strings.Contains(b, knowledgeGraphHeader) {
		return false
	}

	tagsA := extractTags(a)
	tagsB := extractTags(b)
	if len(tagsA) == 0 || len(tagsB) == 0 {
		return false
	}

	for t := range tagsA {
		if _, ok := tagsB[t]; ok {
			return false
		}
	}
	return true
}

func extractTags(content string) map[string]struct{} {
	tags := map[string]struct{}{}
	for _, m := range tagLinePattern.FindAllStringSubmatch(content, -1) {
		tags[m[1]] = struct{}{}
	}
	return tags
}

func ngrams(s string, n int) map[string]struct{} {
	set := map[string]struct{}{}
	r := []rune(s)
	if len(r) < n {
		if s != "" {
			set[s] = struct{}{}
		}
		return set
	}
	for i := 0; i+n <= len(r); i++ {
		set[string(r[i:i+n])] = struct{}{}
	}
	return set
}

func ngramOverlap(a, b string) float64 {
	const n = 3
	as := ngrams(a, n)
	bs := ngrams(b, n)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}

	intersection := 0
	for k := range as {
		if _, ok := bs[k]; ok {
			intersection++
		}
	}
	union := len(as) + len(bs) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
