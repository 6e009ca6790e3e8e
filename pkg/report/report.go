// Package report renders a resolved CVE as console tables or JSON.
//
// Rendering writes to an injected io.Writer so callers (and tests) decide
// where output goes.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/exploopio/cvemap/pkg/mapping"
	"github.com/exploopio/cvemap/pkg/nvd"
	"github.com/exploopio/cvemap/pkg/shared/severity"
	"github.com/exploopio/cvemap/pkg/tables"
)

// Fallback cell values.
const (
	NotAvailable  = "N/A"
	NoMitigation  = "No mitigation available"
	UnknownActor  = "Unknown"
	NoMappings    = "No mappings found"
	cellSeparator = "\t| "
)

// cellCleaner flattens control characters that tabwriter would read as row
// or cell boundaries.
var cellCleaner = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ", "\v", " ", "\f", " ")

// Summary is the vulnerability summary section.
type Summary struct {
	CVEID       string   `json:"cve_id"`
	Description string   `json:"description"`
	BaseScore   *float64 `json:"cvss_v31_base_score,omitempty"`
	Severity    string   `json:"severity"`
}

// Score returns the formatted base score or "N/A".
func (s Summary) Score() string {
	if s.BaseScore == nil {
		return NotAvailable
	}
	return fmt.Sprintf("%.1f", *s.BaseScore)
}

// TechniqueRow is one line of the technique table.
type TechniqueRow struct {
	TechniqueID   string `json:"technique_id"`
	TechniqueName string `json:"technique_name"`
	Mitigation    string `json:"mitigation"`
}

// ThreatActorRow is one line of the threat-actor table.
type ThreatActorRow struct {
	CWEID       string `json:"cwe_id"`
	ThreatActor string `json:"threat_actor"`
}

// Report is everything a run displays.
type Report struct {
	RunID        string           `json:"run_id,omitempty"`
	Summary      Summary          `json:"summary"`
	Techniques   []TechniqueRow   `json:"techniques"`
	ThreatActors []ThreatActorRow `json:"threat_actors"`
}

// Build applies the display fallbacks and produces a Report. Technique rows
// are ordered by technique id; threat-actor rows follow cweIDs.
func Build(cve *nvd.CVE, attack mapping.AttackMapping, cweIDs []string,
	actors tables.ThreatActorMap, mitigations tables.MitigationMap) *Report {

	r := &Report{
		Techniques:   make([]TechniqueRow, 0, len(attack)),
		ThreatActors: make([]ThreatActorRow, 0, len(cweIDs)),
	}

	r.Summary = Summary{CVEID: NotAvailable, Description: NotAvailable, Severity: severity.Unknown.Label()}
	if cve != nil {
		r.Summary.CVEID = cve.ID
		if d := cve.Description(); d != "" {
			r.Summary.Description = d
		}
		if score, ok := cve.BaseScoreV31(); ok {
			r.Summary.BaseScore = &score
			level := severity.FromNVD(cve.Metrics.CvssMetricV31[0].CvssData.BaseSeverity)
			if level == severity.Unknown {
				level = severity.FromCVSS(score)
			}
			r.Summary.Severity = level.Label()
		}
	}

	for _, id := range attack.IDs() {
		mitigation, ok := mitigations[id]
		if !ok {
			mitigation = NoMitigation
		}
		r.Techniques = append(r.Techniques, TechniqueRow{
			TechniqueID:   id,
			TechniqueName: attack[id],
			Mitigation:    mitigation,
		})
	}

	for _, cweID := range cweIDs {
		actor, ok := actors[cweID]
		if !ok {
			actor = UnknownActor
		}
		r.ThreatActors = append(r.ThreatActors, ThreatActorRow{CWEID: cweID, ThreatActor: actor})
	}

	return r
}

// Options controls presentation.
type Options struct {
	// Color enables ANSI colours on titles and severity.
	Color bool

	// JSON emits the Report as an indented JSON document instead of tables.
	JSON bool

	// PromptOut receives the input prompt in JSON mode. Nil drops it.
	PromptOut io.Writer
}

// Presenter writes reports and user-facing messages to a sink.
type Presenter struct {
	out  io.Writer
	opts Options
}

// NewPresenter creates a presenter writing to out.
func NewPresenter(out io.Writer, opts Options) *Presenter {
	return &Presenter{out: out, opts: opts}
}

// Render writes the three tables, or the JSON document.
func (p *Presenter) Render(r *Report) error {
	if p.opts.JSON {
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	if err := p.renderSummary(r.Summary); err != nil {
		return err
	}
	if err := p.renderTechniques(r.Techniques); err != nil {
		return err
	}
	return p.renderThreatActors(r.ThreatActors)
}

// Message prints a single user-facing line, e.g. "CVE not found.".
func (p *Presenter) Message(format string, args ...interface{}) {
	if p.opts.JSON {
		return
	}
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Prompt writes text without a trailing newline. In JSON mode it goes to
// PromptOut so the main output remains a single document.
func (p *Presenter) Prompt(text string) {
	if p.opts.JSON {
		if p.opts.PromptOut != nil {
			fmt.Fprint(p.opts.PromptOut, text)
		}
		return
	}
	fmt.Fprint(p.out, text)
}

// Error prints a user-facing failure line. In JSON mode it emits {"error": ...}.
func (p *Presenter) Error(msg string) {
	if p.opts.JSON {
		_ = json.NewEncoder(p.out).Encode(map[string]string{"error": msg})
		return
	}
	fmt.Fprintln(p.out, p.paint(color.FgRed).Sprint(msg))
}

func (p *Presenter) renderSummary(s Summary) error {
	p.title("Vulnerability Summary")

	sev := s.Severity
	if p.opts.Color {
		sev = p.severityColor(sev).Sprint(sev)
	}
	return p.table(
		[]string{"CVE ID", "Description", "CVSS Score", "Severity"},
		[][]string{{s.CVEID, s.Description, s.Score(), sev}},
	)
}

func (p *Presenter) renderTechniques(rows []TechniqueRow) error {
	p.title("MITRE ATT&CK Techniques")

	cells := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells = append(cells, []string{row.TechniqueID, row.TechniqueName, row.Mitigation})
	}
	if len(cells) == 0 {
		cells = append(cells, []string{NoMappings})
	}
	return p.table([]string{"Technique ID", "Technique Name", "Mitigation"}, cells)
}

func (p *Presenter) renderThreatActors(rows []ThreatActorRow) error {
	p.title("Threat Actor Groups")

	cells := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells = append(cells, []string{row.CWEID, row.ThreatActor})
	}
	return p.table([]string{"CWE ID", "Threat Actor Group"}, cells)
}

func (p *Presenter) title(s string) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, p.paint(color.Bold, color.FgCyan).Sprint(s))
}

func (p *Presenter) table(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, joinCells(header))
	rule := make([]string, len(header))
	for i, h := range header {
		rule[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, joinCells(rule))

	for _, row := range rows {
		fmt.Fprintln(tw, joinCells(row))
	}
	return tw.Flush()
}

func joinCells(cells []string) string {
	clean := make([]string, len(cells))
	for i, c := range cells {
		clean[i] = cellCleaner.Replace(c)
	}
	return strings.Join(clean, cellSeparator)
}

func (p *Presenter) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if p.opts.Color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func (p *Presenter) severityColor(label string) *color.Color {
	switch severity.FromNVD(label) {
	case severity.Critical:
		return p.paint(color.Bold, color.FgRed)
	case severity.High:
		return p.paint(color.FgRed)
	case severity.Medium:
		return p.paint(color.FgYellow)
	case severity.Low:
		return p.paint(color.FgGreen)
	default:
		return p.paint()
	}
}
