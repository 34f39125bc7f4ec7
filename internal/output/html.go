package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gaolou/ssefire/internal/probe"
	"github.com/gaolou/ssefire/internal/runner"
	"github.com/gaolou/ssefire/internal/stats"
)

// ReportMetadata describes the test run configuration shown in the report.
type ReportMetadata struct {
	RunID     string
	Target    string
	Threads   int
	Duration  time.Duration
	ModelName string
}

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt string
	Metadata    ReportMetadata
	Summary     stats.Summary
	Series      []runner.Snapshot
	SeriesJSON  template.JS
	Results     []probe.Result
}

// GenerateHTMLReport writes a standalone HTML report with embedded charts.
func GenerateHTMLReport(w io.Writer, summary stats.Summary, series []runner.Snapshot, results []probe.Result, metadata ReportMetadata) error {
	seriesJSON, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("marshal time series: %w", err)
	}

	data := HTMLReportData{
		GeneratedAt: time.Now().Format(time.RFC3339),
		Metadata:    metadata,
		Summary:     summary,
		Series:      series,
		SeriesJSON:  template.JS(seriesJSON),
		Results:     results,
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Format("15:04:05.000")
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("execute template: %w", err)
	}
	return nil
}

// ReportPath resolves the output path for an HTML report. An empty explicit
// path yields report/report[_model]_<timestamp>.html, creating the directory.
func ReportPath(explicit, modelName string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	dir := "report"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	name := "report_" + timestamp + ".html"
	if safe := sanitizeName(modelName); safe != "" {
		name = "report_" + safe + "_" + timestamp + ".html"
	}
	return filepath.Join(dir, name), nil
}

// WriteHTMLReport resolves the path and writes the report file.
func WriteHTMLReport(path string, summary stats.Summary, series []runner.Snapshot, results []probe.Result, metadata ReportMetadata) (string, error) {
	resolved, err := ReportPath(path, metadata.ModelName)
	if err != nil {
		return "", err
	}

	file, err := os.Create(resolved)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer file.Close()

	if err := GenerateHTMLReport(file, summary, series, results, metadata); err != nil {
		return "", err
	}
	return resolved, nil
}

func sanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>SSE Streaming Load Test Report</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 { font-size: 2rem; margin-bottom: 10px; }
        header .meta { opacity: 0.9; font-size: 0.9rem; }
        .content { padding: 40px; }
        .cards {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(180px, 1fr));
            gap: 16px;
            margin-bottom: 32px;
        }
        .card {
            background: #f8f9fc;
            border: 1px solid #e4e8f0;
            border-radius: 8px;
            padding: 18px;
            text-align: center;
        }
        .card .value { font-size: 1.6rem; font-weight: 600; }
        .card .label { font-size: 0.8rem; color: #7f8c9b; text-transform: uppercase; }
        .card.failed .value { color: #e74c3c; }
        h2 {
            font-size: 1.2rem;
            margin: 28px 0 12px;
            padding-bottom: 6px;
            border-bottom: 2px solid #e4e8f0;
        }
        table { width: 100%; border-collapse: collapse; font-size: 0.85rem; }
        th, td { padding: 8px 10px; text-align: right; border-bottom: 1px solid #eef1f6; }
        th { background: #f8f9fc; color: #5a6474; }
        th:first-child, td:first-child { text-align: left; }
        canvas { width: 100%; height: 260px; margin-bottom: 20px; }
        .error-list { color: #e74c3c; font-size: 0.85rem; }
    </style>
</head>
<body>
<div class="container">
    <header>
        <h1>SSE Streaming Load Test Report</h1>
        <div class="meta">
            Run {{.Metadata.RunID}} · Generated {{.GeneratedAt}} · Target {{.Metadata.Target}}
            · {{.Metadata.Threads}} threads{{if .Metadata.ModelName}} · Model {{.Metadata.ModelName}}{{end}}
        </div>
    </header>
    <div class="content">
        <div class="cards">
            <div class="card"><div class="value">{{.Summary.TotalRequests}}</div><div class="label">Requests</div></div>
            <div class="card"><div class="value">{{.Summary.Successful}}</div><div class="label">Successful</div></div>
            <div class="card failed"><div class="value">{{.Summary.Failed}}</div><div class="label">Failed</div></div>
            <div class="card"><div class="value">{{formatFloat .Summary.SuccessRate}}%</div><div class="label">Success Rate</div></div>
            <div class="card"><div class="value">{{.Summary.TotalTokens}}</div><div class="label">Tokens</div></div>
            <div class="card"><div class="value">{{formatFloat .Summary.AvgTTFT}} ms</div><div class="label">Avg TTFT</div></div>
            <div class="card"><div class="value">{{formatFloat .Summary.AvgTPOT}} ms</div><div class="label">Avg TPOT</div></div>
            <div class="card"><div class="value">{{formatFloat .Summary.AvgThroughput}}</div><div class="label">Tokens/s</div></div>
        </div>

        <h2>Latency Percentiles (ms)</h2>
        <table>
            <tr><th>Metric</th><th>Average</th><th>P90</th><th>P95</th><th>P99</th></tr>
            <tr><td>TTFT</td><td>{{formatFloat .Summary.AvgTTFT}}</td><td>{{formatFloat .Summary.TTFT.P90}}</td><td>{{formatFloat .Summary.TTFT.P95}}</td><td>{{formatFloat .Summary.TTFT.P99}}</td></tr>
            <tr><td>TPOT</td><td>{{formatFloat .Summary.AvgTPOT}}</td><td>{{formatFloat .Summary.TPOT.P90}}</td><td>{{formatFloat .Summary.TPOT.P95}}</td><td>{{formatFloat .Summary.TPOT.P99}}</td></tr>
            <tr><td>TTFB</td><td>{{formatFloat .Summary.AvgTTFB}}</td><td>{{formatFloat .Summary.TTFB.P90}}</td><td>{{formatFloat .Summary.TTFB.P95}}</td><td>{{formatFloat .Summary.TTFB.P99}}</td></tr>
        </table>

        {{if .Series}}
        <h2>Tokens per Second</h2>
        <canvas id="chart-tps"></canvas>
        <h2>Average Response Time (ms)</h2>
        <canvas id="chart-resp"></canvas>
        {{end}}

        <h2>Per-Thread Averages</h2>
        <table>
            <tr><th>Thread</th><th>Requests</th><th>TTFT (ms)</th><th>TPOT (ms)</th><th>TTFB (ms)</th><th>Response (ms)</th><th>Tokens/s</th></tr>
            {{range .Summary.Threads}}
            <tr>
                <td>{{.WorkerID}}</td><td>{{.Requests}}</td>
                <td>{{formatFloat .AvgTTFT}}</td><td>{{formatFloat .AvgTPOT}}</td>
                <td>{{formatFloat .AvgTTFB}}</td><td>{{formatFloat .AvgResponseTime}}</td>
                <td>{{formatFloat .AvgThroughput}}</td>
            </tr>
            {{end}}
        </table>

        <h2>Requests</h2>
        <table>
            <tr><th>Thread</th><th>Start</th><th>Status</th><th>Chunks</th><th>Tokens</th><th>TTFB (ms)</th><th>TTFT (ms)</th><th>TPOT (ms)</th><th>Response (ms)</th><th>Error</th></tr>
            {{range .Results}}
            <tr>
                <td>{{.WorkerID}}</td><td>{{formatTime .RequestStart}}</td><td>{{.StatusCode}}</td>
                <td>{{.ChunkCount}}</td><td>{{.TokenCount}}</td>
                <td>{{formatFloat .TTFB}}</td><td>{{formatFloat .TTFT}}</td>
                <td>{{formatFloat .TPOT}}</td><td>{{formatFloat .TotalResponseTime}}</td>
                <td>{{.Err}}</td>
            </tr>
            {{end}}
        </table>

        {{if .Summary.Errors}}
        <h2>Errors</h2>
        <ul class="error-list">
            {{range .Summary.Errors}}<li>{{.}}</li>{{end}}
        </ul>
        {{end}}
    </div>
</div>
<script>
const series = {{.SeriesJSON}};

function drawLine(canvasID, values, color) {
    const canvas = document.getElementById(canvasID);
    if (!canvas || !values.length) return;
    canvas.width = canvas.clientWidth;
    canvas.height = canvas.clientHeight;
    const ctx = canvas.getContext('2d');
    const pad = 36;
    const w = canvas.width - pad * 2;
    const h = canvas.height - pad * 2;
    const max = Math.max(...values, 1);

    ctx.strokeStyle = '#e4e8f0';
    ctx.beginPath();
    ctx.moveTo(pad, pad);
    ctx.lineTo(pad, pad + h);
    ctx.lineTo(pad + w, pad + h);
    ctx.stroke();

    ctx.strokeStyle = color;
    ctx.lineWidth = 2;
    ctx.beginPath();
    values.forEach((v, i) => {
        const x = pad + (values.length === 1 ? 0 : (i / (values.length - 1)) * w);
        const y = pad + h - (v / max) * h;
        if (i === 0) ctx.moveTo(x, y); else ctx.lineTo(x, y);
    });
    ctx.stroke();

    ctx.fillStyle = '#7f8c9b';
    ctx.font = '11px sans-serif';
    ctx.fillText(max.toFixed(1), 2, pad + 4);
    ctx.fillText('0', 2, pad + h + 4);
}

if (series) {
    drawLine('chart-tps', series.map(s => s.tokens_per_second), '#667eea');
    drawLine('chart-resp', series.map(s => s.avg_response_time), '#764ba2');
}
</script>
</body>
</html>
`
