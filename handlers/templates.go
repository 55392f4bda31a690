package handlers

import "html/template"

// The pages reload themselves when /ws reports a session change.
const pageScript = `<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  var first = true;
  ws.onmessage = function () {
    if (first) { first = false; return; }
    location.reload();
  };
})();
</script>`

const qrcodePage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>WhatsApp QR Code</title></head>
<body style="font-family: sans-serif; text-align: center">
<h1>Escaneie o QR Code</h1>
<img src="{{.Image}}" alt="QR Code">
{{with .State}}<p>{{.}}</p>{{end}}
` + pageScript + `
</body>
</html>`

const unavailablePage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>WhatsApp QR Code</title></head>
<body style="font-family: sans-serif; text-align: center">
<h1>QR Code não disponível</h1>
<p>O WhatsApp já está conectado ou o QR Code ainda não foi gerado.</p>
{{with .State}}<p>{{.}}</p>{{end}}
` + pageScript + `
</body>
</html>`

var pageTemplates = func() *template.Template {
	t := template.Must(template.New("qrcode").Parse(qrcodePage))
	template.Must(t.New("unavailable").Parse(unavailablePage))
	return t
}()
