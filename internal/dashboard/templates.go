package dashboard

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// Render renders one of the embedded dashboard templates against data,
// using layout.html as the outer shell.
func Render(w io.Writer, templateName string, data interface{}) error {
	funcMap := template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Format("2006-01-02 15:04:05")
		},
		"formatBackpressure": func(b float64) string {
			return fmt.Sprintf("%.2f", b)
		},
	}

	tmpl, err := template.New("layout.html").Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+templateName)
	if err != nil {
		return err
	}

	return tmpl.Execute(w, data)
}
