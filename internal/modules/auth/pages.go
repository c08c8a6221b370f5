package auth

import (
	"bytes"
	"html/template"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/authgate/internal/pkg/cookie"
	"github.com/mx-space/authgate/internal/pkg/response"
)

type loginPageData struct {
	Error     string
	Previous  *cookie.PreviousIdentity
	SignInURL string
	SwitchURL string
}

type interstitialData struct {
	LogoutURL   string
	RedirectURL string
	TimeoutMS   int64
	TimeoutSec  int
}

const pageStyle = `body{font-family:system-ui,sans-serif;background:#f6f8fa;color:#1f2328;display:flex;min-height:100vh;align-items:center;justify-content:center;margin:0}
main{background:#fff;border:1px solid #d0d7de;border-radius:8px;padding:32px;width:320px;text-align:center}
.button{display:block;background:#1f883d;color:#fff;border-radius:6px;padding:10px;text-decoration:none;margin:12px 0}
.error{color:#cf222e}
.previous img{border-radius:50%}
button.link{background:none;border:none;color:#0969da;cursor:pointer;padding:0}`

var loginTemplate = template.Must(template.New("login").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>Sign in</title>
<style>` + pageStyle + `</style>
</head>
<body>
<main>
<h1>Sign in</h1>
{{if .Error}}<p class="error" role="alert">{{.Error}}</p>{{end}}
{{with .Previous}}
<section class="previous">
{{if .AvatarURL}}<img src="{{.AvatarURL}}" alt="" width="48" height="48">{{end}}
<a class="button" href="{{$.SignInURL}}">Continue as {{if .DisplayName}}{{.DisplayName}}{{else}}{{.Username}}{{end}}</a>
<button type="button" class="link" id="forget">Not you? Forget this account</button>
</section>
<p><a href="{{$.SwitchURL}}">Use a different GitHub account</a></p>
{{else}}
<a class="button" href="{{.SignInURL}}">Sign in with GitHub</a>
{{end}}
</main>
<script>
var f = document.getElementById("forget");
if (f) {
  f.addEventListener("click", function () {
    fetch("/auth/previous", {method: "DELETE", credentials: "same-origin"}).then(function () { location.reload(); });
  });
}
</script>
</body>
</html>
`))

var interstitialTemplate = template.Must(template.New("interstitial").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="{{.TimeoutSec}};url={{.RedirectURL}}">
<title>Switching account</title>
<style>` + pageStyle + `</style>
</head>
<body>
<main>
<h1>Signed out</h1>
<p>Taking you to GitHub to choose an account.</p>
<p><a href="{{.RedirectURL}}">Continue now</a></p>
<iframe src="{{.LogoutURL}}" title="provider logout" hidden sandbox referrerpolicy="no-referrer"></iframe>
</main>
<script>
(function () {
  var target = {{.RedirectURL}};
  var done = false;
  function go() { if (!done) { done = true; location.replace(target); } }
  var frame = document.querySelector("iframe");
  frame.addEventListener("load", go);
  frame.addEventListener("error", go);
  setTimeout(go, {{.TimeoutMS}});
})();
</script>
</body>
</html>
`))

// renderPage executes tpl into a buffer so a template error never leaves a
// half-written page.
func renderPage(c *gin.Context, status int, tpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		response.InternalError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

