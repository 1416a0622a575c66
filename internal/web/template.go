package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/relay-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"seconds": func(ms uint32) string {
		return fmt.Sprintf("%ds", ms/1000)
	},
	"relay": status.RelayString,
	"oneDecimal": func(v float64) string {
		return fmt.Sprintf("%.1f", v)
	},
}).Parse(indexHTML))

func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>{{.Hostname}} relay controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.error { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{.Hostname}}{{if .Config.Simulated}} (simulated sensor){{end}}</h1>

<h2>Relay</h2>
<table>
<tr><th>State</th><td id="relay-state" class="{{if .Schedule.CurrentState}}on{{else}}off{{end}}">{{relay .Schedule.CurrentState}}</td></tr>
<tr><th>Timer</th><td>{{if .Schedule.Enabled}}enabled{{else}}disabled{{end}}</td></tr>
<tr><th>Phase</th><td>{{.Schedule.Phase}}</td></tr>
<tr><th>On duration</th><td>{{seconds .Schedule.OnDurationMs}}</td></tr>
<tr><th>Off duration</th><td>{{seconds .Schedule.OffDurationMs}}</td></tr>
<tr><th>Transitions</th><td>{{.Counts.RelayOn}} on / {{.Counts.RelayOff}} off</td></tr>
</table>

<h2>Sensor</h2>
<table>
{{if .Reading}}<tr><th>Temperature</th><td id="temperature">{{oneDecimal .Reading.TemperatureC}} &deg;C</td></tr>
<tr><th>Humidity</th><td id="humidity">{{oneDecimal .Reading.HumidityPct}} %</td></tr>
<tr><th>Read at</th><td>{{.ReadingAt.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{else}}<tr><th>Reading</th><td class="error">none yet</td></tr>{{end}}
{{if .LastError}}<tr><th>Last error</th><td class="error">{{.LastError}}</td></tr>{{end}}
<tr><th>Failures</th><td>{{.Errors.NotFound}} not found / {{.Errors.Timeout}} timeout / {{.Errors.ChecksumMismatch}} checksum</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Instance</th><td>{{.InstanceID}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Sample</th><td>{{.Config.SampleMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Pins</th><td>sensor {{.Config.PinDHT}}, relay {{.Config.PinRelay}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// The template needs Uptime as a field, not a method call with a receiver copy.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
