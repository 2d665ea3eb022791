package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/featherwatch/featherwatch/app/correlation"
	"github.com/featherwatch/featherwatch/app/database"
)

// Data is everything one daily report renders.
type Data struct {
	Date         string
	TotalPosts   int
	Scores       []database.AccountScore
	Correlations []database.CorrelationRun
	Shifts       []correlation.Shift
	Hashtags     []string
	GeneratedAt  time.Time
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: sans-serif; margin: 2em; color: #222; }
  table { border-collapse: collapse; margin: 1em 0; }
  th, td { border: 1px solid #ccc; padding: 0.4em 0.8em; text-align: left; }
  th { background: #f3f3f3; }
  .positive { color: #1a7f37; }
  .negative { color: #b42318; }
  .neutral { color: #666; }
  footer { margin-top: 2em; font-size: 0.8em; color: #888; }
</style>
</head>
<body>
<h1>Daily sentiment report · {{.Date}}</h1>
<p>{{.TotalPosts}} posts collected across {{len .Scores}} accounts.</p>

<h2>Accounts</h2>
<table>
<tr><th>Account</th><th>Posts</th><th>Average</th><th>Pos</th><th>Neg</th><th>Neu</th><th>Mood</th></tr>
{{range .Scores}}
<tr>
  <td>@{{.Account}}</td>
  <td>{{.TotalPosts}}</td>
  <td>{{printf "%.3f" .AvgSentiment}}</td>
  <td>{{.PositiveCount}}</td>
  <td>{{.NegativeCount}}</td>
  <td>{{.NeutralCount}}</td>
  <td class="{{.Label}}">{{.Label}}</td>
</tr>
{{end}}
</table>

<h2>Price correlation</h2>
{{if .Correlations}}
<table>
<tr><th>Series</th><th>Coefficient</th><th>Samples</th><th>Strength</th></tr>
{{range .Correlations}}
<tr>
  <td>{{.Series}}</td>
  <td>{{if .Valid}}{{printf "%.3f" .Coefficient}}{{else}}n/a{{end}}</td>
  <td>{{.Samples}}</td>
  <td>{{if .Valid}}{{.Strength}}{{else}}insufficient data{{end}}</td>
</tr>
{{end}}
</table>
{{else}}
<p>No correlation results for this run.</p>
{{end}}

{{if .Shifts}}
<h2>Sentiment shifts</h2>
<ul>
{{range .Shifts}}
<li>{{.Date.Format "2006-01-02"}}: {{.Direction}} by {{printf "%.2f" .Delta}}</li>
{{end}}
</ul>
{{end}}

{{if .Hashtags}}
<h2>Trending hashtags</h2>
<p>{{range .Hashtags}}#{{.}} {{end}}</p>
{{end}}

<footer>Generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}</footer>
</body>
</html>
`))

// Generate renders the daily report to HTML.
func Generate(data Data) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}
