// Package render turns a verification outcome into the HTML page the user
// sees after the OAuth round trip.
package render

import (
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// ResultTemplate is the template name handlers pass to echo.Context.Render.
const ResultTemplate = "result"

// Colors used for the status banner.
const (
	ColorSuccess = "#43b581"
	ColorDenied  = "#faa61a"
	ColorError   = "#f04747"
)

// Result is everything the page needs.
type Result struct {
	Status  string
	Color   string
	Message string
	DaysOld int
	ShowAge bool // false on error pages where no account was inspected
	CTA     string
}

// ForVerification builds the page for a finished callback.
func ForVerification(verified, rewarded bool, daysOld int) Result {
	if !verified {
		return Result{
			Status:  "Not verified",
			Color:   ColorDenied,
			Message: "Your Discord account is too new. Accounts must be at least 3 days old to join.",
			DaysOld: daysOld,
			ShowAge: true,
			CTA:     "Come back once your account is old enough and run the verification again.",
		}
	}
	msg := "Your account passed the age check."
	if rewarded {
		msg += " 200 coins were added to your balance."
	}
	return Result{
		Status:  "Verified",
		Color:   ColorSuccess,
		Message: msg,
		DaysOld: daysOld,
		ShowAge: true,
		CTA:     "You can close this tab and return to Discord.",
	}
}

// Failure builds an error page. message must be safe to show to users.
func Failure(message string) Result {
	return Result{
		Status:  "Verification failed",
		Color:   ColorError,
		Message: message,
		CTA:     "Start the verification again from Discord.",
	}
}

var resultPage = template.Must(template.New(ResultTemplate).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Status}}</title>
<style>
body{margin:0;font-family:system-ui,sans-serif;background:#2c2f33;color:#fff;display:flex;align-items:center;justify-content:center;min-height:100vh}
.card{background:#23272a;border-radius:12px;padding:32px;max-width:420px;text-align:center}
.status{font-size:1.6em;font-weight:700}
.age{opacity:.8}
</style>
</head>
<body>
<div class="card">
<div class="status" style="color: {{.Color}}">{{.Status}}</div>
<p>{{.Message}}</p>
{{- if .ShowAge}}
<p class="age">Account age: {{.DaysOld}} day(s)</p>
{{- end}}
{{- if .CTA}}
<p>{{.CTA}}</p>
{{- end}}
</div>
</body>
</html>
`))

// Page writes the HTML for r.
func Page(w io.Writer, r Result) error {
	return errors.Wrap(resultPage.Execute(w, r), "render result page")
}

// Renderer plugs the result page into echo.
type Renderer struct{}

// Render implements echo.Renderer.
func (Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	if name != ResultTemplate {
		return errors.Errorf("unknown template %q", name)
	}
	r, ok := data.(Result)
	if !ok {
		return errors.Errorf("template %q wants render.Result, got %T", name, data)
	}
	return Page(w, r)
}
