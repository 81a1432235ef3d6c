package alert

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/pulsecore/internal/quality"
	"github.com/marketpulse/pulsecore/internal/types"
)

// contextDetailLabels lists the raw (non-typed) Details keys the
// detector suite uses for its context block, in the order the
// formatter renders them. Centralised here rather than re-derived from
// each detector, since every detector that populates these writes the
// same literal key names (internal/detect/crypto.go).
var contextDetailLabels = []struct {
	key   string
	label string
	unit  string
}{
	{"symbol", "Symbol", ""},
	{"fairValue", "Fair value", ""},
	{"edge", "Edge", ""},
	{"volatility", "Volatility", ""},
	{"daysLeft", "Days to expiry", ""},
}

// messageInput is everything the formatter needs to render one alert,
// gathered by the dispatcher before calling format.
type messageInput struct {
	Anomaly      types.AnomalyDetected
	Quality      quality.Result
	MarketName   string
	URL          string
	Position     *types.PaperPosition
	Balance      decimal.Decimal
	OpenPosCount int
}

// format renders the structured alert message: emoji+score header,
// HTML-escaped question, market type/resolution,
// context block, score breakdown, catalyst, signal line, optional
// paper-trade block, and a link.
func format(in messageInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s <b>[%d/100]</b> %s\n", qualityEmoji(in.Quality.Score), in.Quality.Score, html.EscapeString(in.MarketName))

	resolution := "unknown"
	if in.Quality.HoursToResolution != nil {
		resolution = fmt.Sprintf("%.1fh", *in.Quality.HoursToResolution)
	}
	fmt.Fprintf(&b, "Type: %s | Resolves in: %s\n", in.Quality.Type, resolution)

	if ctx := renderContext(in.Anomaly.Details); ctx != "" {
		b.WriteString(ctx)
		b.WriteByte('\n')
	}

	if len(in.Quality.Reasons) > 0 {
		fmt.Fprintf(&b, "Score: %s\n", strings.Join(in.Quality.Reasons, " | "))
	}

	if catalyst, ok := in.Anomaly.Details[types.DetailCatalyst].(string); ok && catalyst != "" {
		fmt.Fprintf(&b, "Catalyst: %s\n", html.EscapeString(catalyst))
	}

	if signal, ok := in.Anomaly.Details[types.DetailSignal].(string); ok && signal != "" {
		line := signal
		if roi, ok := in.Anomaly.Details[types.DetailROI].(float64); ok {
			line += fmt.Sprintf(" (ROI: +%.0f%%)", roi*100)
		}
		fmt.Fprintf(&b, "Signal: %s\n", line)
	}

	if in.Position != nil {
		pctOfPortfolio := 0.0
		if !in.Balance.Add(in.Position.Size).IsZero() {
			equity := in.Balance.Add(in.Position.Size)
			pct, _ := in.Position.Size.Div(equity).Float64()
			pctOfPortfolio = pct * 100
		}
		fmt.Fprintf(&b, "Paper trade: %s @ %s | $%s (%.1f%% of portfolio) | Balance: $%s | Open: %d\n",
			in.Position.Direction, in.Position.EntryPrice.StringFixed(4), in.Position.Size.StringFixed(2),
			pctOfPortfolio, in.Balance.StringFixed(2), in.OpenPosCount)
	}

	if in.URL != "" {
		fmt.Fprintf(&b, `<a href="%s">View market</a>`, html.EscapeString(in.URL))
	}

	return strings.TrimRight(b.String(), "\n")
}

func renderContext(details map[string]any) string {
	var parts []string
	for _, d := range contextDetailLabels {
		v, ok := details[d.key]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v%s", d.label, v, d.unit))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " | ")
}

func qualityEmoji(score int) string {
	switch {
	case score >= 85:
		return "⚡"
	case score >= 70:
		return "🟢"
	default:
		return "🟡"
	}
}
