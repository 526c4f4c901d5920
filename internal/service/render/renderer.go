package render

import (
	"fmt"
	"time"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

// FormatRenderer turns a sequenced submission into a document of one format.
type FormatRenderer interface {
	Format() models.ReportFormat
	Render(doc models.ReportDocument) ([]byte, error)
}

// Renderer dispatches a document to the renderer registered for its format.
type Renderer struct {
	renderers map[models.ReportFormat]FormatRenderer
}

func NewRenderer(renderers ...FormatRenderer) *Renderer {
	r := &Renderer{renderers: make(map[models.ReportFormat]FormatRenderer, len(renderers))}
	for _, fr := range renderers {
		r.renderers[fr.Format()] = fr
	}
	return r
}

// NewDefaultRenderer registers the HTML and PDF renderers.
func NewDefaultRenderer() *Renderer {
	return NewRenderer(NewHTMLRenderer(), NewPDFRenderer())
}

func (r *Renderer) Render(doc models.ReportDocument, format models.ReportFormat) ([]byte, error) {
	fr, ok := r.renderers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, format)
	}
	return fr.Render(doc)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
