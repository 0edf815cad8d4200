// Package session implements the per-session orchestrator that drives the
// graph runtime, adapts interrupts to an async request/reply channel, and
// enforces at-most-once delivery of a logical interrupt (spec §4.2).
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
)

// normalizedVariants holds the three normalization forms spec §4.2/§9
// prescribe for an interrupt's content, plus their hashes: collapsed
// whitespace + lowercase; the same with punctuation stripped; and a
// sorted-unique-token set.
type normalizedVariants struct {
	whitespace string
	noPunct    string
	tokenSet   string
}

func normalize(content string) normalizedVariants {
	lower := strings.ToLower(content)
	whitespace := strings.Join(strings.Fields(lower), " ")

	var noPunctBuilder strings.Builder
	for _, r := range whitespace {
		if unicode.IsPunct(r) {
			continue
		}
		noPunctBuilder.WriteRune(r)
	}
	noPunct := strings.Join(strings.Fields(noPunctBuilder.String()), " ")

	tokens := strings.Fields(noPunct)
	var alpha []string
	for _, t := range tokens {
		var b strings.Builder
		for _, r := range t {
			if unicode.IsLetter(r) {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			alpha = append(alpha, b.String())
		}
	}
	sort.Strings(alpha)
	alpha = uniqueStrings(alpha)
	tokenSet := strings.Join(alpha, " ")

	return normalizedVariants{whitespace: whitespace, noPunct: noPunct, tokenSet: tokenSet}
}

func uniqueStrings(in []string) []string {
	out := in[:0]
	var prev string
	first := true
	for _, s := range in {
		if first || s != prev {
			out = append(out, s)
			prev = s
			first = false
		}
	}
	return out
}

// keys returns every normalized variant and its sha256 hash, the full set
// of strings that must be checked/stored for membership per §9: "All three
// variants and their hashes are stored when an interrupt is accepted."
func (v normalizedVariants) keys() []string {
	values := []string{v.whitespace, v.noPunct, v.tokenSet}
	out := make([]string, 0, len(values)*2)
	for _, s := range values {
		out = append(out, s, hashOf(s))
	}
	return out
}

func hashOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// lcsRatio returns the longest-common-subsequence length between a and b,
// normalized by the longer string's length, as the similarity measure spec
// §4.2 (P5) calls for.
func lcsRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcsLen := prev[lb]

	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	return float64(lcsLen) / float64(maxLen)
}

// DuplicateFilter implements the duplicate-interrupt suppression algorithm
// of spec §4.2/§9/P5: a per-session gate that accepts at most one logical
// interrupt at a time and rejects near-identical repeats within a cooldown
// window or a bounded recently-seen set.
type DuplicateFilter struct {
	mu sync.Mutex

	waitingForInput bool
	lastAcceptedAt  time.Time
	lastAccepted    string // whitespace-normalized content of the last accepted interrupt

	seen  map[string]struct{}
	order []string // insertion order, for trimming to half capacity on overflow

	cooldown   time.Duration
	similarity float64
	capacity   int
}

// NewDuplicateFilter builds a filter with the given tunables. A zero cooldown
// disables the cooldown check and a negative one falls back to 500ms; zero or
// negative similarity and capacity fall back to 0.80 and 50 entries.
func NewDuplicateFilter(cooldown time.Duration, similarity float64, capacity int) *DuplicateFilter {
	if cooldown < 0 {
		cooldown = 500 * time.Millisecond
	}
	if similarity <= 0 {
		similarity = 0.80
	}
	if capacity <= 0 {
		capacity = 50
	}
	return &DuplicateFilter{
		seen:       make(map[string]struct{}),
		cooldown:   cooldown,
		similarity: similarity,
		capacity:   capacity,
	}
}

// Accept reports whether the given interrupt content should be delivered.
// It rejects when any of the conditions in spec §4.2 hold: already waiting
// for input, within the cooldown of the last accepted interrupt, too
// similar to the last accepted interrupt's content, or already present
// (under any of its three normalized forms or hashes) in the recently-seen
// set. On acceptance it records all three variants and marks the filter as
// waiting for input.
func (f *DuplicateFilter) Accept(content string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.waitingForInput {
		return false
	}

	now := time.Now()
	if !f.lastAcceptedAt.IsZero() && now.Sub(f.lastAcceptedAt) < f.cooldown {
		return false
	}

	variants := normalize(content)
	if f.lastAccepted != "" && lcsRatio(variants.whitespace, f.lastAccepted) >= f.similarity {
		return false
	}

	for _, k := range variants.keys() {
		if _, ok := f.seen[k]; ok {
			return false
		}
	}

	f.waitingForInput = true
	f.lastAcceptedAt = now
	f.lastAccepted = variants.whitespace
	for _, k := range variants.keys() {
		f.remember(k)
	}
	return true
}

// remember inserts k into the bounded recently-seen set, trimming to half
// capacity (oldest-first) on overflow, per §9.
func (f *DuplicateFilter) remember(k string) {
	if _, ok := f.seen[k]; ok {
		return
	}
	f.seen[k] = struct{}{}
	f.order = append(f.order, k)
	if len(f.order) > f.capacity {
		half := f.capacity / 2
		if half < 1 {
			half = 1
		}
		drop := f.order[:len(f.order)-half]
		for _, d := range drop {
			delete(f.seen, d)
		}
		f.order = append([]string(nil), f.order[len(f.order)-half:]...)
	}
}

// Resumed clears the waiting-for-input gate once the orchestrator has
// consumed the user's reply to the last accepted interrupt.
func (f *DuplicateFilter) Resumed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitingForInput = false
}

// Waiting reports whether an accepted interrupt is still awaiting reply.
func (f *DuplicateFilter) Waiting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waitingForInput
}
