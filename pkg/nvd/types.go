package nvd

// Response is the body of the NVD CVE API 2.0.
type Response struct {
	ResultsPerPage  int             `json:"resultsPerPage"`
	StartIndex      int             `json:"startIndex"`
	TotalResults    int             `json:"totalResults"`
	Format          string          `json:"format"`
	Version         string          `json:"version"`
	Timestamp       string          `json:"timestamp"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// Vulnerability wraps a CVE record in the API response.
type Vulnerability struct {
	CVE CVE `json:"cve"`
}

// CVE is one vulnerability record as returned by NVD.
type CVE struct {
	ID               string        `json:"id"`
	SourceIdentifier string        `json:"sourceIdentifier"`
	Published        string        `json:"published"`
	LastModified     string        `json:"lastModified"`
	VulnStatus       string        `json:"vulnStatus"`
	Descriptions     []Description `json:"descriptions"`
	Metrics          *Metrics      `json:"metrics"`
	Weaknesses       []Weakness    `json:"weaknesses"`
}

// Description is a language-tagged text value.
type Description struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

// Metrics holds the CVSS scoring blocks. Only v3.1 feeds the summary table.
type Metrics struct {
	CvssMetricV40 []CvssMetric `json:"cvssMetricV40,omitempty"`
	CvssMetricV31 []CvssMetric `json:"cvssMetricV31,omitempty"`
	CvssMetricV30 []CvssMetric `json:"cvssMetricV30,omitempty"`
	CvssMetricV2  []CvssMetric `json:"cvssMetricV2,omitempty"`
}

// CvssMetric is one scoring entry from a given source.
type CvssMetric struct {
	Source              string   `json:"source"`
	Type                string   `json:"type"`
	CvssData            CvssData `json:"cvssData"`
	ExploitabilityScore float64  `json:"exploitabilityScore"`
	ImpactScore         float64  `json:"impactScore"`
}

// CvssData carries the fields common to every CVSS version.
type CvssData struct {
	Version      string  `json:"version"`
	VectorString string  `json:"vectorString"`
	BaseScore    float64 `json:"baseScore"`
	BaseSeverity string  `json:"baseSeverity,omitempty"`
}

// Weakness lists the CWE classifications a source assigned to the CVE.
type Weakness struct {
	Source      string        `json:"source"`
	Type        string        `json:"type"`
	Description []Description `json:"description"`
}

// Description returns the first non-empty description in the order NVD
// listed them, or "" when there is none.
func (c *CVE) Description() string {
	if c == nil {
		return ""
	}
	for _, d := range c.Descriptions {
		if d.Value != "" {
			return d.Value
		}
	}
	return ""
}

// BaseScoreV31 returns the first CVSS v3.1 base score.
func (c *CVE) BaseScoreV31() (float64, bool) {
	if c == nil || c.Metrics == nil || len(c.Metrics.CvssMetricV31) == 0 {
		return 0, false
	}
	return c.Metrics.CvssMetricV31[0].CvssData.BaseScore, true
}

// WeaknessValues returns every description value of every weakness entry in
// document order. Duplicates are kept.
func (c *CVE) WeaknessValues() []string {
	if c == nil {
		return nil
	}
	var values []string
	for _, w := range c.Weaknesses {
		for _, d := range w.Description {
			values = append(values, d.Value)
		}
	}
	return values
}
