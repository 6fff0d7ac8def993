package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sweeney/stim-relay/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"ago": func(t time.Time, now time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.RelTime(t, now, "ago", "from now")
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Stim Relay</title>
<style>
body { font: 14px/1.4 ui-monospace, monospace; max-width: 640px; margin: 1.5em auto; padding: 0 1em; color: #222; }
h1 { font-size: 1.3em; margin-bottom: 0.2em; }
h2 { font-size: 1em; text-transform: uppercase; letter-spacing: 0.05em; color: #555; }
table { border-collapse: collapse; width: 100%; margin: 0.5em 0 1.2em; }
th, td { text-align: left; padding: 3px 8px; border-bottom: 1px solid #e4e4e4; }
th { width: 38%; font-weight: normal; color: #555; }
.CONNECTED, .STIMULATED, .mqtt-up { color: #1a7f37; font-weight: bold; }
.FIRING { color: #bf5700; font-weight: bold; }
.IDLE, .UNKNOWN { color: #9a6700; }
.STOPPED { color: #888; }
.PREVENTED, .mqtt-down { color: #cf222e; }
</style>
</head>
<body>
<h1>Stim Relay</h1>

<h2>Relay</h2>
<table>
<tr><th>State</th><td id="state" class="{{stateOrUnknown (printf "%s" .State)}}">{{stateOrUnknown (printf "%s" .State)}}</td></tr>
<tr><th>Source</th><td>{{.Config.Source}}</td></tr>
<tr><th>Actuator</th><td>{{.Config.Actuator}}{{if .Config.Output}} ({{.Config.Output}}){{end}}</td></tr>
<tr><th>Last stimulation</th><td>{{ago .LastStimulation .Now}}</td></tr>
{{if .LastEvent}}<tr><th>Last trigger</th><td class="{{.LastEvent.Outcome}}">{{.LastEvent.Outcome}} {{ago .LastEvent.Timestamp .Now}}</td></tr>{{end}}
</table>

<h2>Triggers</h2>
<table>
<tr><th>Total</th><td>{{.Counts.Triggers}}</td></tr>
<tr><th>Stimulated</th><td>{{.Counts.Stimulated}}</td></tr>
<tr><th>Prevented</th><td>{{.Counts.Prevented}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}mqtt-up{{else}}mqtt-down{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
{{if .Config.PulseCount}}<tr><th>Pulse train</th><td>{{.Config.PulseCount}} x {{.Config.Level}}V, {{.Config.PulseMs}}ms on / {{.Config.PauseMs}}ms off</td></tr>{{end}}
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

// formatUptime renders d as "3d 04:05:06", dropping the day part when zero.
func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	days, secs := secs/86400, secs%86400
	clock := fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
	if days > 0 {
		return fmt.Sprintf("%dd %s", days, clock)
	}
	return clock
}

type pageData struct {
	status.Snapshot
	Uptime time.Duration
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return indexTmpl.Execute(w, pageData{Snapshot: snap, Uptime: snap.Uptime()})
}
