package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs a shareable report built with nao1215/markdown.
type MarkdownWriter struct {
	out io.Writer
}

func NewMarkdownWriter(out io.Writer) *MarkdownWriter {
	return &MarkdownWriter{out: out}
}

func (w *MarkdownWriter) Write(r *Report) error {
	md := markdown.NewMarkdown(w.out)

	md.H1("DeepCheck Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Generated", r.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Endpoint", "`" + r.Endpoint + "`"},
			{"Files", strconv.Itoa(len(r.Entries))},
		},
	})
	md.PlainText("")

	w.writeSummary(md, r)
	w.writeEntries(md, r)

	return md.Build()
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, r *Report) {
	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Verdict", "Count"},
		Rows: [][]string{
			{"AI GENERATED", strconv.Itoa(r.Fake)},
			{"REAL IMAGE", strconv.Itoa(r.Real)},
			{"Failed", strconv.Itoa(r.Failed)},
		},
	})
	md.PlainText("")

	if r.Fake+r.Real > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Verdicts"),
			piechart.WithShowData(true),
		)
		if r.Fake > 0 {
			chart.LabelAndIntValue("AI generated", uint64(r.Fake))
		}
		if r.Real > 0 {
			chart.LabelAndIntValue("Real", uint64(r.Real))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case r.Failed > 0:
		md.Warningf("%d file(s) could not be scanned.", r.Failed)
	case r.Fake > 0:
		md.Importantf("%d image(s) look AI generated.", r.Fake)
	default:
		md.Tip("No AI generated images detected.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeEntries(md *markdown.Markdown, r *Report) {
	md.H2("Files")
	md.PlainText("")
	if len(r.Entries) == 0 {
		md.PlainText("No files scanned.")
		return
	}

	rows := make([][]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		verdict, conf := e.Verdict, e.Display
		if e.Status == StatusFailed {
			verdict, conf = "failed: "+e.Error, "-"
		}
		rows = append(rows, []string{
			"`" + e.Path + "`",
			e.Mode,
			verdict,
			conf,
			strconv.FormatInt(e.DurationMS, 10) + "ms",
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"File", "Mode", "Verdict", "Confidence", "Duration"},
		Rows:   rows,
	})
}
