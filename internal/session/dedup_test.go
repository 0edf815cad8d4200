package session

import (
	"testing"
	"time"
)

func TestDuplicateFilter_RejectsWhileWaiting(t *testing.T) {
	f := NewDuplicateFilter(time.Millisecond, 0.80, 50)

	if !f.Accept("What's your level?") {
		t.Fatal("first interrupt should be accepted")
	}
	if f.Accept("What's your level?") {
		t.Fatal("second interrupt should be rejected while waiting for input")
	}
}

func TestDuplicateFilter_RejectsWithinCooldown(t *testing.T) {
	f := NewDuplicateFilter(time.Hour, 0.80, 50)

	if !f.Accept("Would you like to study or chat?") {
		t.Fatal("first interrupt should be accepted")
	}
	f.Resumed()
	if f.Accept("Totally different unrelated question here") {
		t.Fatal("interrupt within cooldown window should be rejected regardless of content")
	}
}

func TestDuplicateFilter_RejectsSimilarContent(t *testing.T) {
	f := NewDuplicateFilter(0, 0.80, 50)

	if !f.Accept("Would you like to study flashcards or just chat?") {
		t.Fatal("first interrupt should be accepted")
	}
	f.Resumed()

	// Near-identical retry (punctuation/casing jitter) must be rejected (P5).
	if f.Accept("would you like to study flashcards or just chat") {
		t.Fatal("near-duplicate interrupt should be rejected")
	}
}

func TestDuplicateFilter_AcceptsDissimilarContent(t *testing.T) {
	f := NewDuplicateFilter(0, 0.80, 50)

	if !f.Accept("Would you like to study flashcards or just chat?") {
		t.Fatal("first interrupt should be accepted")
	}
	f.Resumed()

	if !f.Accept("Great, let's look at your first card: tree (木)") {
		t.Fatal("sufficiently different content should be accepted")
	}
}

func TestDuplicateFilter_RejectsRememberedContent(t *testing.T) {
	f := NewDuplicateFilter(0, 0.95, 50)

	if !f.Accept("Hey! I'm Kotori. What's your level?") {
		t.Fatal("first interrupt should be accepted")
	}
	f.Resumed()
	if !f.Accept("Great job! Let's try another one: 食べる") {
		t.Fatal("second, different interrupt should be accepted")
	}
	f.Resumed()

	// Exact repeat of the very first prompt, well outside similarity range
	// of the second, must still be caught by the remembered-set check.
	if f.Accept("Hey! I'm Kotori. What's your level?") {
		t.Fatal("previously emitted interrupt should be rejected from the remembered set")
	}
}

func TestDuplicateFilter_TrimsToHalfCapacityOnOverflow(t *testing.T) {
	f := NewDuplicateFilter(0, 2, 4) // similarity > 1 disables the LCS check

	for i := 0; i < 10; i++ {
		content := "distinct prompt " + string(rune('a'+i))
		if !f.Accept(content) {
			t.Fatalf("prompt %d should be accepted (similarity check disabled)", i)
		}
		f.Resumed()
	}

	if len(f.seen) > 4 {
		t.Fatalf("seen set should never exceed its capacity of 4 entries, got %d entries", len(f.seen))
	}
}

func TestLCSRatio(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "", 0},
		{"abc", "abc", 1},
		{"abc", "abd", 2.0 / 3.0},
	}
	for _, c := range cases {
		got := lcsRatio(c.a, c.b)
		if got != c.want {
			t.Errorf("lcsRatio(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
