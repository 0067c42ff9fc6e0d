package web

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/warehouse/internal/importer"
)

// handleRunPage renders the run summary fragment shown when an import
// finishes, or its progress while it is still running.
func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.Status(chi.URLParam(r, "runID"))
	if err != nil {
		msg := importer.MapError(err)
		templ.Handler(errorAlert(msg), templ.WithStatus(statusForCode(msg.Code))).ServeHTTP(w, r)
		return
	}
	templ.Handler(runSummary(st)).ServeHTTP(w, r)
}

// runSummary renders a run's progress, or its counts and row errors once
// it has finished.
func runSummary(st importer.RunStatus) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.printf(`<section class="import-run" id="run-%s">`, templ.EscapeString(st.ID))

		if st.Result == nil {
			p.printf(`<p class="import-progress">Importing %d rows: %d%%</p>`, st.Rows, st.Progress.Percent)
			p.printf(`<progress max="100" value="%d"></progress>`, st.Progress.Percent)
			p.printf(`</section>`)
			return p.err
		}

		res := st.Result
		p.printf(`<h2>%s</h2>`, templ.EscapeString(completionMessage(*res)))
		p.printf(`<dl><dt>Succeeded</dt><dd class="ok">%d</dd><dt>Failed</dt><dd class="failed">%d</dd></dl>`, res.Success, res.Failed)

		if len(res.Errors) > 0 {
			p.printf(`<table class="import-errors"><thead><tr><th>Row</th><th>Error</th></tr></thead><tbody>`)
			for _, e := range res.Errors {
				p.printf(`<tr><td>%d</td><td>%s</td></tr>`, e.Row, templ.EscapeString(e.Error))
			}
			p.printf(`</tbody></table>`)
		}
		p.printf(`</section>`)
		return p.err
	})
}

// errorAlert renders an operator-facing error.
func errorAlert(msg importer.UserMessage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.printf(`<div class="alert alert-error" role="alert"><p>%s</p>`, templ.EscapeString(msg.Message))
		if msg.Action != "" {
			p.printf(`<p>%s</p>`, templ.EscapeString(msg.Action))
		}
		p.printf(`<small>%s</small></div>`, templ.EscapeString(msg.Code))
		return p.err
	})
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
