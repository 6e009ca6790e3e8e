package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/cvemap/pkg/mapping"
	"github.com/exploopio/cvemap/pkg/nvd"
	"github.com/exploopio/cvemap/pkg/tables"
)

func log4shell() *nvd.CVE {
	return &nvd.CVE{
		ID:           "CVE-2021-44228",
		Descriptions: []nvd.Description{{Lang: "en", Value: "Apache Log4j2 JNDI features do not protect against attacker controlled LDAP endpoints."}},
		Metrics: &nvd.Metrics{CvssMetricV31: []nvd.CvssMetric{{
			CvssData: nvd.CvssData{Version: "3.1", BaseScore: 10.0, BaseSeverity: "CRITICAL"},
		}}},
		Weaknesses: []nvd.Weakness{{Description: []nvd.Description{{Lang: "en", Value: "CWE-502"}}}},
	}
}

// tableRows returns the data rows of the table printed under title, each
// split on the column separator.
func tableRows(t *testing.T, out, title string) [][]string {
	t.Helper()
	lines := strings.Split(out, "\n")
	start := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == title {
			start = i
			break
		}
	}
	require.NotEqual(t, -1, start, "title %q not found in:\n%s", title, out)

	var rows [][]string
	// skip title, header and rule lines
	for _, l := range lines[start+3:] {
		if strings.TrimSpace(l) == "" {
			break
		}
		parts := strings.Split(l, "|")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		rows = append(rows, parts)
	}
	return rows
}

func render(t *testing.T, r *Report) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, NewPresenter(&buf, Options{}).Render(r))
	return buf.String()
}

func TestRender_EndToEndScenario(t *testing.T) {
	cve := log4shell()
	attack := mapping.AttackMapping{"T1059.007": "JavaScript"}
	r := Build(cve, attack, []string{"CWE-502"}, tables.ThreatActorMap{"CWE-79": "FIN7"}, tables.MitigationMap{})

	out := render(t, r)

	assert.Equal(t, [][]string{{"T1059.007", "JavaScript", "No mitigation available"}},
		tableRows(t, out, "MITRE ATT&CK Techniques"))
	assert.Equal(t, [][]string{{"CWE-502", "Unknown"}},
		tableRows(t, out, "Threat Actor Groups"))

	summary := tableRows(t, out, "Vulnerability Summary")
	require.Len(t, summary, 1)
	assert.Equal(t, "CVE-2021-44228", summary[0][0])
	assert.Equal(t, "10.0", summary[0][2])
	assert.Equal(t, "CRITICAL", summary[0][3])
}

func TestRender_MultilineDescriptionStaysOnOneRow(t *testing.T) {
	cve := log4shell()
	cve.Descriptions = []nvd.Description{{Lang: "en", Value: "line one\nline two\twith tab\r\nline three"}}
	out := render(t, Build(cve, nil, nil, nil, nil))

	summary := tableRows(t, out, "Vulnerability Summary")
	require.Len(t, summary, 1)
	require.Len(t, summary[0], 4)
	assert.Equal(t, "line one line two with tab line three", summary[0][1])
	assert.Equal(t, "10.0", summary[0][2])
	assert.Equal(t, "CRITICAL", summary[0][3])
}

func TestRender_MappedActorAndMitigation(t *testing.T) {
	r := Build(log4shell(),
		mapping.AttackMapping{"T1059": "Command Injection"},
		[]string{"CWE-502"},
		tables.ThreatActorMap{"CWE-502": "APT41"},
		tables.MitigationMap{"T1059": "Disable or remove unnecessary interpreters"},
	)
	out := render(t, r)

	assert.Equal(t, [][]string{{"T1059", "Command Injection", "Disable or remove unnecessary interpreters"}},
		tableRows(t, out, "MITRE ATT&CK Techniques"))
	assert.Equal(t, [][]string{{"CWE-502", "APT41"}},
		tableRows(t, out, "Threat Actor Groups"))
}

func TestRender_NoMappingsPlaceholder(t *testing.T) {
	r := Build(log4shell(), mapping.AttackMapping{}, []string{"NVD-CWE-noinfo"}, tables.ThreatActorMap{}, tables.MitigationMap{})
	out := render(t, r)

	assert.Equal(t, [][]string{{"No mappings found"}}, tableRows(t, out, "MITRE ATT&CK Techniques"))
	assert.Equal(t, [][]string{{"NVD-CWE-noinfo", "Unknown"}}, tableRows(t, out, "Threat Actor Groups"))
}

func TestBuild_SummaryFallbacks(t *testing.T) {
	r := Build(&nvd.CVE{ID: "CVE-2000-0001"}, nil, nil, nil, nil)

	assert.Equal(t, "CVE-2000-0001", r.Summary.CVEID)
	assert.Equal(t, "N/A", r.Summary.Description)
	assert.Nil(t, r.Summary.BaseScore)
	assert.Equal(t, "N/A", r.Summary.Score())
	assert.Equal(t, "N/A", r.Summary.Severity)
	assert.Empty(t, r.Techniques)
	assert.Empty(t, r.ThreatActors)
}

func TestBuild_SeverityFromScoreWhenLabelMissing(t *testing.T) {
	cve := &nvd.CVE{ID: "CVE-2000-0002", Metrics: &nvd.Metrics{CvssMetricV31: []nvd.CvssMetric{{CvssData: nvd.CvssData{BaseScore: 5.3}}}}}
	r := Build(cve, nil, nil, nil, nil)

	assert.Equal(t, "5.3", r.Summary.Score())
	assert.Equal(t, "MEDIUM", r.Summary.Severity)
}

func TestBuild_TechniquesSorted(t *testing.T) {
	r := Build(log4shell(), mapping.AttackMapping{"T1190": "b", "T1059": "a"}, nil, nil, nil)
	require.Len(t, r.Techniques, 2)
	assert.Equal(t, "T1059", r.Techniques[0].TechniqueID)
	assert.Equal(t, "T1190", r.Techniques[1].TechniqueID)
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	r := Build(log4shell(), mapping.AttackMapping{"T1059.007": "JavaScript"}, []string{"CWE-502"}, nil, nil)
	r.RunID = "run-1"

	require.NoError(t, NewPresenter(&buf, Options{JSON: true}).Render(r))

	var got Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "CVE-2021-44228", got.Summary.CVEID)
	require.NotNil(t, got.Summary.BaseScore)
	assert.InDelta(t, 10.0, *got.Summary.BaseScore, 0.001)
	assert.Equal(t, []TechniqueRow{{TechniqueID: "T1059.007", TechniqueName: "JavaScript", Mitigation: NoMitigation}}, got.Techniques)
	assert.Equal(t, []ThreatActorRow{{CWEID: "CWE-502", ThreatActor: UnknownActor}}, got.ThreatActors)
}

func TestPresenter_MessagesAndColor(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPresenter(&buf, Options{})
		p.Error("CVE not found.")
		assert.Equal(t, "CVE not found.\n", buf.String())
	})

	t.Run("colored", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPresenter(&buf, Options{Color: true})
		p.Error("CVE not found.")
		assert.Contains(t, buf.String(), "\x1b[")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPresenter(&buf, Options{JSON: true})
		p.Message("Enter CVE ID: ")
		p.Error("CVE not found.")
		assert.JSONEq(t, `{"error":"CVE not found."}`, buf.String())
	})
}

func TestPresenter_Prompt(t *testing.T) {
	t.Run("table mode", func(t *testing.T) {
		var out, side bytes.Buffer
		NewPresenter(&out, Options{PromptOut: &side}).Prompt("Enter CVE ID: ")
		assert.Equal(t, "Enter CVE ID: ", out.String())
		assert.Empty(t, side.String())
	})

	t.Run("json mode writes to prompt output", func(t *testing.T) {
		var out, side bytes.Buffer
		NewPresenter(&out, Options{JSON: true, PromptOut: &side}).Prompt("Enter CVE ID: ")
		assert.Empty(t, out.String())
		assert.Equal(t, "Enter CVE ID: ", side.String())
	})

	t.Run("json mode without prompt output", func(t *testing.T) {
		var out bytes.Buffer
		NewPresenter(&out, Options{JSON: true}).Prompt("Enter CVE ID: ")
		assert.Empty(t, out.String())
	})
}
