package report

import (
	"fmt"
	"io"
	"strings"
)

// TextWriter outputs one line per file, for terminals.
type TextWriter struct {
	out io.Writer
}

func NewTextWriter(out io.Writer) *TextWriter {
	return &TextWriter{out: out}
}

func (w *TextWriter) Write(r *Report) error {
	var sb strings.Builder
	for _, e := range r.Entries {
		if e.Status == StatusFailed {
			fmt.Fprintf(&sb, "%s\tFAILED\t%s\n", e.Path, e.Error)
			continue
		}
		fmt.Fprintf(&sb, "%s\t%s\t%s\t%s\t%dms\n", e.Path, e.Verdict, e.Display, e.Mode, e.DurationMS)
	}
	fmt.Fprintf(&sb, "\n%d scanned: %d AI generated, %d real, %d failed\n",
		len(r.Entries), r.Fake, r.Real, r.Failed)

	_, err := io.WriteString(w.out, sb.String())
	return err
}
