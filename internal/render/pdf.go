package render

import (
	"context"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

//go:embed style.css
var defaultStyleCSS string

// AnswerDocument is one answered question ready for printing.
type AnswerDocument struct {
	Question  string
	Answer    string
	Model     string
	IndexID   string
	Sources   []string
	CreatedAt time.Time
}

type ChromiumPDFRenderer struct {
	styleDir   string
	chromePath string
	styleOnce  sync.Once
	styleCSS   string
	styleErr   error
}

// NewChromiumPDFRenderer uses styleDir/style.css when styleDir is set and the
// built-in stylesheet otherwise.
func NewChromiumPDFRenderer(styleDir string) *ChromiumPDFRenderer {
	return &ChromiumPDFRenderer{
		styleDir:   styleDir,
		chromePath: detectChromePath(),
	}
}

func (r *ChromiumPDFRenderer) Render(ctx context.Context, doc AnswerDocument) ([]byte, error) {
	if strings.TrimSpace(doc.Answer) == "" {
		return nil, errors.New("answer is empty")
	}
	htmlDoc, err := r.BuildHTML(doc)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;padding-right:8px;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				WithMarginLeft(0.45).
				WithMarginRight(0.45).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, err
	}
	return pdf, nil
}

func (r *ChromiumPDFRenderer) BuildHTML(doc AnswerDocument) (string, error) {
	answerHTML, err := MarkdownToHTML(doc.Answer)
	if err != nil {
		return "", err
	}
	answerHTML = applyPrintLayoutHooks(answerHTML)

	styleCSS, err := r.loadStyleCSS()
	if err != nil {
		return "", err
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>Patent Answer</title>" +
		"<style>" + styleCSS + "\n" +
		"html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;} " +
		`h2[data-page-break-before="true"]{break-before:page;page-break-before:always;} ` +
		"@media print{ @page{size:auto;margin:12mm;} body{background:#fff !important;padding:0;} }" +
		"</style></head><body>" +
		"<div class='answer-header'><div class='answer-meta'>" + buildMetaHTML(doc) + "</div></div>" +
		"<div class='question'>" + html.EscapeString(doc.Question) + "</div>" +
		"<div class='answer-html'>" + answerHTML + "</div>" +
		buildSourcesHTML(doc.Sources) +
		"</body></html>", nil
}

// Long synthesis answers put their reference list on a fresh page.
func applyPrintLayoutHooks(contentHTML string) string {
	reReferences := regexp.MustCompile(`(?i)<h2([^>]*)>\s*(References|Sources|Cited Documents)\s*</h2>`)
	return reReferences.ReplaceAllString(contentHTML, `<h2$1 data-page-break-before="true">$2</h2>`)
}

func (r *ChromiumPDFRenderer) loadStyleCSS() (string, error) {
	r.styleOnce.Do(func() {
		if r.styleDir == "" {
			r.styleCSS = defaultStyleCSS
			return
		}
		b, err := os.ReadFile(filepath.Join(r.styleDir, "style.css"))
		if err != nil {
			r.styleErr = fmt.Errorf("read style.css: %w", err)
			return
		}
		r.styleCSS = string(b)
	})
	return r.styleCSS, r.styleErr
}

func buildMetaHTML(doc AnswerDocument) string {
	var out strings.Builder
	if doc.IndexID != "" {
		out.WriteString("<div><strong>Index:</strong> " + html.EscapeString(doc.IndexID) + "</div>")
	}
	if doc.Model != "" {
		out.WriteString("<div><strong>Model:</strong> " + html.EscapeString(doc.Model) + "</div>")
	}
	if !doc.CreatedAt.IsZero() {
		out.WriteString("<div><strong>Date:</strong> " + html.EscapeString(doc.CreatedAt.In(time.Local).Format("January 2, 2006 at 3:04 PM MST")) + "</div>")
	}
	return out.String()
}

func buildSourcesHTML(sources []string) string {
	if len(sources) == 0 {
		return ""
	}
	var out strings.Builder
	out.WriteString("<div class='sources'><strong>Retrieved documents:</strong><ul>")
	for _, s := range sources {
		out.WriteString("<li>" + html.EscapeString(s) + "</li>")
	}
	out.WriteString("</ul></div>")
	return out.String()
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
