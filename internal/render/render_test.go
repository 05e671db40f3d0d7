package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMarkdownToHTMLMarksCitations(t *testing.T) {
	out, err := MarkdownToHTML("Stacked capacitors reduce leakage `[us20230012345a1p.txt]` and [kr1020210001234.txt].")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `<cite class="source" data-source="us20230012345a1p.txt">[us20230012345a1p.txt]</cite>`) {
		t.Fatalf("expected code-span citation marked, got: %s", out)
	}
	if !strings.Contains(out, `data-source="kr1020210001234.txt"`) {
		t.Fatalf("expected bare citation marked, got: %s", out)
	}
}

func TestMarkdownToHTMLDropsRawHTML(t *testing.T) {
	out, err := MarkdownToHTML("<script>alert(1)</script>\n\n**bold**")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "<script>") {
		t.Fatalf("expected raw html omitted, got: %s", out)
	}
	if !strings.Contains(out, "<strong>bold</strong>") {
		t.Fatalf("expected markdown rendered, got: %s", out)
	}
}

func TestMarkdownToHTMLTables(t *testing.T) {
	out, err := MarkdownToHTML("| a | b |\n|---|---|\n| 1 | 2 |\n")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "<table>") {
		t.Fatalf("expected GFM table, got: %s", out)
	}
}

func TestCitedSourcesDistinctInOrder(t *testing.T) {
	got := CitedSources("see [b.txt], [a.txt] and again [b.txt]; not [notes.md]")
	if strings.Join(got, ",") != "b.txt,a.txt" {
		t.Fatalf("unexpected sources %v", got)
	}
}

func TestApplyPrintLayoutHooksBreaksBeforeReferences(t *testing.T) {
	out := applyPrintLayoutHooks("<h2>Answer</h2><p>x</p><h2>References</h2><ul></ul>")
	if !strings.Contains(out, `<h2 data-page-break-before="true">References</h2>`) {
		t.Fatalf("expected page break hook, got: %s", out)
	}
	in := "<h2>Answer</h2>"
	if applyPrintLayoutHooks(in) != in {
		t.Fatalf("expected no change when heading absent")
	}
}

func TestBuildHTMLEscapesQuestionAndListsSources(t *testing.T) {
	r := NewChromiumPDFRenderer("")
	out, err := r.BuildHTML(AnswerDocument{
		Question:  "What about <b>leakage</b>?",
		Answer:    "It is low [a.txt].",
		Model:     "gemini-2.5-flash",
		IndexID:   "3d_dram",
		Sources:   []string{"a.txt", "b.txt"},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"What about &lt;b&gt;leakage&lt;/b&gt;?", "<li>b.txt</li>", "<strong>Model:</strong> gemini-2.5-flash", "cite.source"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in html", want)
		}
	}
}

func TestLoadStyleCSSFromDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "style.css"), []byte("body{color:red}"), 0o644); err != nil {
		t.Fatal(err)
	}
	css, err := NewChromiumPDFRenderer(dir).loadStyleCSS()
	if err != nil {
		t.Fatal(err)
	}
	if css != "body{color:red}" {
		t.Fatalf("unexpected css %q", css)
	}
	if _, err := NewChromiumPDFRenderer(filepath.Join(dir, "missing")).loadStyleCSS(); err == nil {
		t.Fatal("expected error for missing style dir")
	}
}

func TestRenderRejectsEmptyAnswer(t *testing.T) {
	if _, err := NewChromiumPDFRenderer("").Render(context.Background(), AnswerDocument{Answer: " "}); err == nil {
		t.Fatal("expected error for empty answer")
	}
}
