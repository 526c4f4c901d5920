package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/models"
	"github.com/RubachokBoss/plagiarism-checker/report-service/internal/service/timeline"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"ts":    formatTime,
	"trail": timeline.TrailString,
	"inc":   func(i int) int { return i + 1 },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Student Activity Report</title>
<style>
body { font-family: Arial, sans-serif; max-width: 900px; margin: 0 auto; padding: 20px; }
h1 { color: #2c3e50; border-bottom: 2px solid #3498db; padding-bottom: 10px; }
.info-box { background-color: #f8f9fa; border: 1px solid #dee2e6; border-radius: 5px; padding: 15px; margin-bottom: 20px; }
.student { page-break-inside: avoid; margin-bottom: 40px; }
table { width: 100%; border-collapse: collapse; margin-bottom: 15px; }
table, th, td { border: 1px solid #dee2e6; }
th { background-color: #f2f2f2; padding: 8px; text-align: left; }
td { padding: 6px 8px; }
tr:nth-child(even) { background-color: #f8f9fa; }
.footer { margin-top: 40px; font-size: 0.8em; text-align: center; color: #7f8c8d; }
</style>
</head>
<body>
<h1>Student Activity Report</h1>
<p class="meta">Students: {{len .Students}}</p>
{{- range .Students}}
<section class="student" id="student-{{.StudentID}}">
<div class="info-box">
<h2>Student {{.StudentID}}</h2>
<p><strong>Namespace:</strong> {{.Namespace}}</p>
<p><strong>Number of Events:</strong> {{len .Trail}}</p>
<p><strong>Event Order:</strong> {{trail .}}</p>
</div>
<h3>Units in Visit Order</h3>
<table class="units">
<thead><tr><th>Question</th><th>Unit ID</th><th>First Seen</th></tr></thead>
<tbody>
{{- range .Units}}
<tr><td>{{.Alias}}</td><td>{{.Unit}}</td><td>{{ts .FirstSeen}}</td></tr>
{{- else}}
<tr><td colspan="3">No units visited</td></tr>
{{- end}}
</tbody>
</table>
<h3>Detailed Event Timeline</h3>
<table class="events">
<thead><tr><th>#</th><th>Question</th><th>Unit ID</th><th>Event Type</th><th>Timestamp</th></tr></thead>
<tbody>
{{- range $i, $step := .Trail}}
<tr><td>{{inc $i}}</td><td>{{$step.Alias}}</td><td>{{$step.Unit}}</td><td>{{$step.Type}}</td><td>{{ts $step.CreatedTime}}</td></tr>
{{- end}}
</tbody>
</table>
</section>
{{- else}}
<p class="empty">No student records were submitted.</p>
{{- end}}
<div class="footer">
<p>Report {{.JobID}} generated at {{ts .GeneratedAt}} UTC</p>
</div>
</body>
</html>
`))

type htmlRenderer struct{}

func NewHTMLRenderer() FormatRenderer {
	return htmlRenderer{}
}

func (htmlRenderer) Format() models.ReportFormat {
	return models.ReportFormatHTML
}

func (htmlRenderer) Render(doc models.ReportDocument) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("failed to render html report: %w", err)
	}
	return buf.Bytes(), nil
}
