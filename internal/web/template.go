package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/plant-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"opt": func(v *float64) string {
		if v == nil {
			return "n/a"
		}
		return fmt.Sprintf("%.1f", *v)
	},
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Local().Format(status.LastWaterLayout)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Plant Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.bad { color: red; }
.muted { color: #888; }
</style>
</head>
<body>
<h1>Plant Controller{{if .Config.MockSensors}} <span class="muted">(mock sensors)</span>{{end}}</h1>

<h2>Sensors</h2>
{{with .Sensors}}<table>
<tr><th>Soil</th><td>{{opt .Soil}}%</td></tr>
<tr><th>Light</th><td>{{printf "%.1f" .Light}} lx</td></tr>
<tr><th>Temperature</th><td>{{opt .Temperature}} &deg;C</td></tr>
<tr><th>Humidity</th><td>{{opt .Humidity}}%</td></tr>
<tr><th>Touch</th><td>{{if .Touch}}yes{{else}}no{{end}}</td></tr>
</table>
<p class="muted">read {{when $.SensorsAt}}</p>{{else}}<p class="muted">no reading yet</p>{{end}}
<p class="muted">touches {{.Events.TouchOn}}, dry spells {{.Events.SoilDry}}</p>

<h2>Watering</h2>
<table>
<tr><th>Today</th><td>{{printf "%.1f" .Watering.DailySeconds}}s of {{printf "%.0f" .Config.DailyLimitSec}}s</td></tr>
<tr><th>Last water</th><td>{{when .Watering.LastWater}}</td></tr>
<tr><th>Pulses</th><td>{{.Watering.Count}}</td></tr>
<tr><th>Cooldown</th><td>{{printf "%.0f" .Config.CooldownSec}}s</td></tr>
<tr><th>Pump</th><td class="{{if .Pump.Ready}}ok{{else}}bad{{end}}">{{if .Config.PumpMock}}mock{{else}}GPIO {{.Config.PumpPin}}{{end}}{{if .Pump.InitMessage}} ({{.Pump.InitMessage}}){{end}}</td></tr>
{{if .Pump.ReleaseError}}<tr><th>Release</th><td class="bad">{{.Pump.ReleaseError}}</td></tr>{{end}}
</table>

<h2>Camera</h2>
<table>
<tr><th>Mode</th><td>{{.Config.CameraMode}}</td></tr>
<tr><th>Providers</th><td>{{range $i, $p := .Camera.Providers}}{{if $i}}, {{end}}{{$p}}{{else}}none{{end}}</td></tr>
<tr><th>Initialized</th><td>{{if .Camera.Initialized}}yes{{else}}no{{end}}</td></tr>
{{if .Camera.Breaker}}<tr><th>Breaker</th><td>{{.Camera.Breaker}}</td></tr>{{end}}
<tr><th>Last capture</th><td>{{when .Camera.LastCapture}}{{if .Camera.LastSource}} ({{.Camera.LastSource}}){{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}ok{{else}}bad{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
<tr><th>API key</th><td class="{{if .Config.APIKeySet}}ok{{else}}bad{{end}}">{{if .Config.APIKeySet}}set{{else}}default{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/status">sensors</a> | <a href="/camera/health">camera</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("http: render index: %v", err)
	}
}
