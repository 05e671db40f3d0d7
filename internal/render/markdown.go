package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// MarkdownToHTML renders model output as HTML. Raw HTML in the input is not
// passed through.
func MarkdownToHTML(markdown string) (string, error) {
	var out strings.Builder
	if err := md.Convert([]byte(markdown), &out); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return markCitations(out.String()), nil
}

// Citations look like [us20230012345a1p.txt], either bare or in a code span.
var citationRe = regexp.MustCompile(`(?:<code>)?\[([A-Za-z0-9][A-Za-z0-9._\-]*\.txt)\](?:</code>)?`)

func markCitations(contentHTML string) string {
	return citationRe.ReplaceAllString(contentHTML, `<cite class="source" data-source="$1">[$1]</cite>`)
}

// CitedSources lists the distinct source names cited in an answer, in order.
func CitedSources(answer string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, m := range citationRe.FindAllStringSubmatch(answer, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}
