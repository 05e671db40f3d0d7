package patentqa

import (
	"strings"
	"testing"
)

func TestAssembleContextFormat(t *testing.T) {
	set := NewDocumentSet()
	set.Add(doc("a.txt", "alpha"))
	set.Add(doc("b.txt", "beta"))
	got := AssembleContext(set)
	want := "--- Source: a.txt ---\nalpha\n\n--- Source: b.txt ---\nbeta"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestAssembleContextEmpty(t *testing.T) {
	if got := AssembleContext(NewDocumentSet()); got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}
}

func TestParseContextRoundTrip(t *testing.T) {
	set := NewDocumentSet()
	set.Add(doc("a.txt", "first paragraph\n\nsecond paragraph"))
	set.Add(doc("b.txt", ""))
	set.Add(NewRetrievedDocument("orphan body", nil))
	set.Add(doc("c.txt", "tail\n"))

	blocks := ParseContext(AssembleContext(set))
	docs := set.Documents()
	if len(blocks) != len(docs) {
		t.Fatalf("expected %d blocks, got %d", len(docs), len(blocks))
	}
	for i, b := range blocks {
		if b.Source != docs[i].Source || b.Content != docs[i].Content {
			t.Fatalf("block %d: expected %q/%q, got %q/%q", i, docs[i].Source, docs[i].Content, b.Source, b.Content)
		}
	}
}

func TestAssembleContextDoesNotTruncate(t *testing.T) {
	big := strings.Repeat("x", 200000)
	set := NewDocumentSet()
	set.Add(doc("big.txt", big))
	if !strings.HasSuffix(AssembleContext(set), big) {
		t.Fatalf("expected full content in context")
	}
}
