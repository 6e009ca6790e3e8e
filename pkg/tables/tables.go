// Package tables loads the static reference tables cvemap cross-references:
// CWE to ATT&CK techniques, CWE to threat-actor groups, and ATT&CK technique
// to mitigation text.
//
// Each loader returns an empty, non-nil mapping alongside the error on
// failure, so a caller that only checks for emptiness still behaves.
package tables

import (
	"encoding/json"
	"errors"
	"io/fs"

	"github.com/exploopio/cvemap/pkg/compress"
	"github.com/exploopio/cvemap/pkg/core"
	cmerrors "github.com/exploopio/cvemap/pkg/errors"
)

// Default file names, resolved relative to the working directory.
const (
	DefaultTechniquesFile   = "cwe_to_attack.json"
	DefaultThreatActorsFile = "cwe_to_threat_actors.json"
	DefaultMitigationsFile  = "attack_mitigations.json"
)

// TechniqueEntry holds the parallel technique id and name lists for one CWE.
type TechniqueEntry struct {
	TechniqueIDs   []string `json:"technique_id"`
	TechniqueNames []string `json:"technique_name"`
}

// Pairs returns (id, name) pairs. When the lists differ in length the
// extra tail of the longer list is dropped.
func (e TechniqueEntry) Pairs() [][2]string {
	n := min(len(e.TechniqueIDs), len(e.TechniqueNames))
	pairs := make([][2]string, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, [2]string{e.TechniqueIDs[i], e.TechniqueNames[i]})
	}
	return pairs
}

// TechniqueMap maps a CWE id to its ATT&CK techniques.
type TechniqueMap map[string]TechniqueEntry

// ThreatActorMap maps a CWE id to a threat-actor group name.
type ThreatActorMap map[string]string

// MitigationMap maps an ATT&CK technique id to mitigation text.
type MitigationMap map[string]string

// Paths names the three table files.
type Paths struct {
	Techniques   string `yaml:"techniques"`
	ThreatActors string `yaml:"threat_actors"`
	Mitigations  string `yaml:"mitigations"`
}

// DefaultPaths returns the file names used when nothing is configured.
func DefaultPaths() Paths {
	return Paths{
		Techniques:   DefaultTechniquesFile,
		ThreatActors: DefaultThreatActorsFile,
		Mitigations:  DefaultMitigationsFile,
	}
}

// Set bundles the three loaded tables.
type Set struct {
	Techniques   TechniqueMap
	ThreatActors ThreatActorMap
	Mitigations  MitigationMap
}

// Empty reports whether any of the three tables has no entries.
func (s *Set) Empty() bool {
	return len(s.Techniques) == 0 || len(s.ThreatActors) == 0 || len(s.Mitigations) == 0
}

// Loader reads tables from disk and reports failures through its logger.
type Loader struct {
	logger core.Logger
}

// NewLoader creates a loader. A nil logger discards messages.
func NewLoader(logger core.Logger) *Loader {
	return &Loader{logger: core.OrNop(logger)}
}

// LoadTechniques loads the CWE to ATT&CK technique table.
func (l *Loader) LoadTechniques(path string) (TechniqueMap, error) {
	m := TechniqueMap{}
	if err := l.load("tables.LoadTechniques", path, &m); err != nil {
		return TechniqueMap{}, err
	}
	if m == nil {
		m = TechniqueMap{}
	}
	return m, nil
}

// LoadThreatActors loads the CWE to threat-actor table.
func (l *Loader) LoadThreatActors(path string) (ThreatActorMap, error) {
	m := ThreatActorMap{}
	if err := l.load("tables.LoadThreatActors", path, &m); err != nil {
		return ThreatActorMap{}, err
	}
	if m == nil {
		m = ThreatActorMap{}
	}
	return m, nil
}

// LoadMitigations loads the technique to mitigation table.
func (l *Loader) LoadMitigations(path string) (MitigationMap, error) {
	m := MitigationMap{}
	if err := l.load("tables.LoadMitigations", path, &m); err != nil {
		return MitigationMap{}, err
	}
	if m == nil {
		m = MitigationMap{}
	}
	return m, nil
}

// LoadSet loads all three tables. Every table is attempted even when an
// earlier one fails, so the log names each broken file. The first error is
// returned; the Set always holds three non-nil maps.
func (l *Loader) LoadSet(paths Paths) (*Set, error) {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	techniques, err := l.LoadTechniques(paths.Techniques)
	keep(err)
	actors, err := l.LoadThreatActors(paths.ThreatActors)
	keep(err)
	mitigations, err := l.LoadMitigations(paths.Mitigations)
	keep(err)

	set := &Set{
		Techniques:   techniques,
		ThreatActors: actors,
		Mitigations:  mitigations,
	}
	l.logger.Debug("loaded tables: %d techniques, %d threat actors, %d mitigations",
		len(techniques), len(actors), len(mitigations))
	return set, firstErr
}

func (l *Loader) load(op, path string, dst any) error {
	data, err := compress.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Error("file not found: %s", path)
			return cmerrors.E(cmerrors.KindFileMissing, op, "file not found: "+path, err)
		}
		// Unreadable or undecompressable content is treated as malformed.
		l.logger.Error("decode error in %s: %v", path, err)
		return cmerrors.E(cmerrors.KindFileMalformed, op, "decode error: "+path, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		l.logger.Error("decode error in %s: %v", path, err)
		return cmerrors.E(cmerrors.KindFileMalformed, op, "decode error: "+path, err)
	}
	return nil
}
