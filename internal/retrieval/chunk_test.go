package retrieval

import (
	"math"
	"strings"
	"testing"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{"short text is one chunk", "hello", 10, 2, []string{"hello"}},
		{"overlapping windows", "abcdefghij", 4, 2, []string{"abcd", "cdef", "efgh", "ghij"}},
		{"no overlap", "abcdef", 3, 0, []string{"abc", "def"}},
		{"overlap >= size is ignored", "abcdef", 3, 3, []string{"abc", "def"}},
		{"whitespace windows dropped", "ab      ", 2, 0, []string{"ab"}},
		{"empty", "", 5, 1, nil},
		{"multibyte runes", "αβγδ", 2, 0, []string{"αβ", "γδ"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Chunk(tt.text, tt.size, tt.overlap)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("Chunk() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChunk_Defaults(t *testing.T) {
	text := strings.Repeat("x", 1200)
	got := Chunk(text, 0, -1)
	// Default size 500, overlap ignored when negative.
	if len(got) != 3 || len(got[0]) != 500 || len(got[2]) != 200 {
		t.Errorf("Chunk() lens = %d chunks", len(got))
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2}, []float64{1, 2}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"length mismatch", []float64{1}, []float64{1, 0}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOverlap(t *testing.T) {
	q := terms("Is fasting required while travelling?")
	if len(q) != 5 {
		t.Fatalf("terms() = %v", q)
	}
	if got := Overlap(q, "Fasting, while travelling, is eased."); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("Overlap() = %v, want 0.8", got)
	}
	if got := Overlap(q, "unrelated"); got != 0 {
		t.Errorf("Overlap() = %v, want 0", got)
	}
	if got := Overlap(terms("a ?"), "a"); got != 0 {
		t.Errorf("Overlap() with no usable terms = %v, want 0", got)
	}
}
