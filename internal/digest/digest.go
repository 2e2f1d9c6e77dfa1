// Package digest renders the morning/evening/weekly SMS digest bodies
// named as an external collaborator in spec §1 ("static digest template
// formatter") and supplemented per SPEC_FULL.md §C into a concrete
// text/template-based renderer, fed by C3's assembled snapshot plus the
// trust and revenue tables. Grounded on the teacher's preference for
// small, focused template helpers over ad hoc string concatenation when
// a payload has more than a couple of conditional lines.
package digest

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/orchestratord/orchestratord/internal/contextassembler"
	"github.com/orchestratord/orchestratord/internal/trust"
)

const morningTemplate = `Good morning. {{len .Snapshot.Projects}} project(s) tracked{{if .NeedsAttention}}, {{len .NeedsAttention}} need attention:
{{range .NeedsAttention}}- {{.Name}}: {{.Reason}}
{{end}}{{else}}, none flagged.
{{end}}Autonomy: {{.Snapshot.TrustLevel}}. Pending reminders: {{.Snapshot.PendingReminders}}.`

const windDownTemplate = `Wind-down. {{len .ActiveSessions}} session(s) still running{{if .ActiveSessions}}: {{join .ActiveSessions ", "}}{{end}}.
Decisions today: {{.DecisionsToday}}. Evaluations below 3: {{.LowScoreCount}}.`

const weeklyRevenueTemplate = `Weekly revenue: {{range .Sources}}{{.Source}} {{if .Unreachable}}(unreachable){{else}}${{printf "%.2f" .Delta}} (latest ${{printf "%.2f" .Latest}}){{end}}
{{end}}`

const trustPromotionTemplate = `Trust check ({{.Recommendation.CurrentLevel}}): {{.Recommendation.Detail}}{{if .Recommendation.Eligible}}
Consider promoting to {{.Recommendation.NextLevel}} via config.{{end}}`

var funcMap = template.FuncMap{
	"join": strings.Join,
}

// MorningInput feeds the 07:00 morning digest (spec §4.10 scheduled job).
type MorningInput struct {
	Snapshot contextassembler.Snapshot
}

// NeedsAttention returns the subset of Snapshot.Projects flagged
// needsAttention, used by morningTemplate's range.
func (m MorningInput) NeedsAttention() []contextassembler.ProjectSnapshot {
	var out []contextassembler.ProjectSnapshot
	for _, p := range m.Snapshot.Projects {
		if p.NeedsAttention {
			out = append(out, p)
		}
	}
	return out
}

// WindDownInput feeds the 21:45 evening wind-down digest.
type WindDownInput struct {
	ActiveSessions []string
	DecisionsToday int
	LowScoreCount  int
}

// RevenueSourceSummary is one source's weekly delta for the weekly
// revenue digest.
type RevenueSourceSummary struct {
	Source      string
	Delta       float64
	Latest      float64
	Unreachable bool
}

// WeeklyRevenueInput feeds the Sunday 07:00 weekly revenue digest.
type WeeklyRevenueInput struct {
	Sources []RevenueSourceSummary
}

// TrustPromotionInput feeds the daily 10:00 trust-promotion check,
// always rendered as an advisory tier-3 SUMMARY body (spec §9, never
// self-applied — see internal/trust).
type TrustPromotionInput struct {
	Recommendation trust.Recommendation
}

// Renderer renders each digest body from a fixed set of text/template
// templates, parsed once at construction.
type Renderer struct {
	morning  *template.Template
	windDown *template.Template
	weekly   *template.Template
	trustRec *template.Template
}

// NewRenderer parses all digest templates. Panics on a template syntax
// error since the templates are fixed at compile time, never operator-
// supplied.
func NewRenderer() *Renderer {
	return &Renderer{
		morning:  template.Must(template.New("morning").Funcs(funcMap).Parse(morningTemplate)),
		windDown: template.Must(template.New("winddown").Funcs(funcMap).Parse(windDownTemplate)),
		weekly:   template.Must(template.New("weekly").Funcs(funcMap).Parse(weeklyRevenueTemplate)),
		trustRec: template.Must(template.New("trust").Funcs(funcMap).Parse(trustPromotionTemplate)),
	}
}

// Morning renders the morning digest body.
func (r *Renderer) Morning(in MorningInput) (string, error) {
	return render(r.morning, in)
}

// WindDown renders the evening wind-down digest body.
func (r *Renderer) WindDown(in WindDownInput) (string, error) {
	return render(r.windDown, in)
}

// WeeklyRevenue renders the weekly revenue summary digest body.
func (r *Renderer) WeeklyRevenue(in WeeklyRevenueInput) (string, error) {
	return render(r.weekly, in)
}

// TrustPromotion renders the daily trust-promotion advisory body.
func (r *Renderer) TrustPromotion(in TrustPromotionInput) (string, error) {
	return render(r.trustRec, in)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s digest: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// TimestampLabel formats ts for inclusion in a digest body, matching
// the compact format the SMS transport budget favors (spec §4.6 "1500
// char cap").
func TimestampLabel(ts time.Time) string {
	return ts.Format("Jan 2 15:04")
}
