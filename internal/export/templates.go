package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var receiptTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/receipt.html")
	if err != nil {
		// Fallback to built-in template if file not found
		receiptTemplate = template.Must(template.New("receipt").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	receiptTemplate = template.Must(template.New("receipt").Funcs(funcMap).Parse(string(templateContent)))
}

// RenderReceiptHTML renders the receipt template with provided data.
func RenderReceiptHTML(r Receipt) (string, error) {
	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Return Receipt</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { width: 100%; border-collapse: collapse; }
    td { padding: 0.5rem; border-bottom: 1px solid #eee; }
    td:first-child { font-weight: bold; width: 35%; }
  </style>
</head>
<body>
  <h1>Return Receipt</h1>
  <div class="meta">Findr | Claim {{.ClaimID}} | {{formatDate .ReturnedAt "Jan 2, 2006 15:04"}}</div>
  <table>
    <tr><td>Item</td><td>{{.ItemTitle}}</td></tr>
    <tr><td>Category</td><td>{{.Category}}</td></tr>
    <tr><td>Found at</td><td>{{.LocationName}}</td></tr>
    <tr><td>Returned by</td><td>{{.FinderName}}</td></tr>
    <tr><td>Returned to</td><td>{{.ClaimantName}}</td></tr>
    <tr><td>Approved by</td><td>{{.ApprovedBy}}</td></tr>
  </table>
</body>
</html>`
