package patentqa

import (
	"regexp"
	"strings"
)

const blockSeparator = "\n\n"

var sourceHeaderRe = regexp.MustCompile(`(?m)^--- Source: (.*) ---\n`)

func sourceHeader(source string) string {
	return "--- Source: " + source + " ---\n"
}

// AssembleContext renders documents as labeled blocks in set order. Nothing is
// truncated; an oversized context fails at the completion call instead.
func AssembleContext(set *DocumentSet) string {
	docs := set.Documents()
	blocks := make([]string, 0, len(docs))
	for _, d := range docs {
		blocks = append(blocks, sourceHeader(d.Source)+d.Content)
	}
	return strings.Join(blocks, blockSeparator)
}

type ContextBlock struct {
	Source  string
	Content string
}

// ParseContext splits an assembled context back into its blocks.
func ParseContext(context string) []ContextBlock {
	locs := sourceHeaderRe.FindAllStringSubmatchIndex(context, -1)
	out := make([]ContextBlock, 0, len(locs))
	for i, loc := range locs {
		end := len(context)
		if i+1 < len(locs) {
			end = strings.LastIndex(context[:locs[i+1][0]], blockSeparator)
			if end < loc[1] {
				end = locs[i+1][0]
			}
		}
		out = append(out, ContextBlock{
			Source:  context[loc[2]:loc[3]],
			Content: context[loc[1]:end],
		})
	}
	return out
}
