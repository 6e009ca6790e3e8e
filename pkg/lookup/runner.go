// Package lookup sequences one cvemap run: load the static tables, read the
// CVE id, fetch the record, resolve ATT&CK techniques and display the result.
//
// Each failure is handled where it happens: the runner prints one user-facing
// line and returns the error. Nothing is retried and nothing is displayed
// after an abort.
package lookup

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/exploopio/cvemap/pkg/core"
	cmerrors "github.com/exploopio/cvemap/pkg/errors"
	"github.com/exploopio/cvemap/pkg/mapping"
	"github.com/exploopio/cvemap/pkg/metrics"
	"github.com/exploopio/cvemap/pkg/nvd"
	"github.com/exploopio/cvemap/pkg/report"
	"github.com/exploopio/cvemap/pkg/tables"
)

// User-facing messages.
const (
	PromptText      = "Enter CVE ID: "
	MsgTablesFailed = "Failed to load mapping tables."
	MsgNotFound     = "CVE not found."
	MsgInputFailed  = "Failed to read CVE ID."
)

// ErrEmptyTable is returned when every table decoded but at least one has
// no entries.
var ErrEmptyTable = cmerrors.E(cmerrors.KindFileMalformed, "lookup.Run", "mapping table has no entries")

// State is a step of a run.
type State int

const (
	StateLoadTables State = iota
	StatePromptInput
	StateFetch
	StateResolve
	StateDisplay
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateLoadTables:
		return "LOAD_TABLES"
	case StatePromptInput:
		return "PROMPT_INPUT"
	case StateFetch:
		return "FETCH"
	case StateResolve:
		return "RESOLVE"
	case StateDisplay:
		return "DISPLAY"
	case StateEnd:
		return "END"
	default:
		return "UNKNOWN"
	}
}

// Fetcher retrieves a single CVE record. *nvd.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, cveID string) (*nvd.CVE, error)
}

// TableLoader loads the three static tables. *tables.Loader implements it.
type TableLoader interface {
	LoadSet(paths tables.Paths) (*tables.Set, error)
}

// Config wires a Runner.
type Config struct {
	// Tables names the three table files.
	Tables tables.Paths

	// Fetcher is required.
	Fetcher Fetcher

	// Presenter is required.
	Presenter *report.Presenter

	// Loader defaults to tables.NewLoader(Logger).
	Loader TableLoader

	// Input is read when Run is called without an id.
	Input io.Reader

	Logger  core.Logger
	Metrics metrics.Collector
}

// Runner executes lookups.
type Runner struct {
	paths     tables.Paths
	fetcher   Fetcher
	loader    TableLoader
	presenter *report.Presenter
	input     *bufio.Reader
	logger    core.Logger
	metrics   metrics.Collector
}

// NewRunner creates a runner from cfg.
func NewRunner(cfg *Config) *Runner {
	logger := core.OrNop(cfg.Logger)

	loader := cfg.Loader
	if loader == nil {
		loader = tables.NewLoader(logger)
	}

	input := cfg.Input
	if input == nil {
		input = strings.NewReader("")
	}

	return &Runner{
		paths:     cfg.Tables,
		fetcher:   cfg.Fetcher,
		loader:    loader,
		presenter: cfg.Presenter,
		input:     bufio.NewReader(input),
		logger:    logger,
		metrics:   metrics.OrNop(cfg.Metrics),
	}
}

// Run performs one lookup. When cveID is empty the runner prompts for it on
// the presenter and reads one line from its input. The id is passed to the
// fetcher as typed, minus the line terminator.
func (r *Runner) Run(ctx context.Context, cveID string) error {
	runID := uuid.NewString()
	log := &runLogger{Logger: r.logger, runID: runID}

	// LOAD_TABLES
	log.enter(StateLoadTables)
	set, err := r.loader.LoadSet(r.paths)
	r.recordTables(set)
	if err == nil && (set == nil || set.Empty()) {
		err = ErrEmptyTable
	}
	if err != nil {
		log.Error("loading tables: %v", err)
		r.metrics.CounterInc(metrics.LookupsTotal.Name, "status", metrics.StatusTablesError)
		r.presenter.Error(MsgTablesFailed)
		return err
	}

	// PROMPT_INPUT
	if cveID == "" {
		log.enter(StatePromptInput)
		cveID, err = r.readID()
		if err != nil {
			log.Error("reading CVE id: %v", err)
			r.metrics.CounterInc(metrics.LookupsTotal.Name, "status", metrics.StatusInputError)
			r.presenter.Error(MsgInputFailed)
			return cmerrors.E(cmerrors.KindInvalidInput, "lookup.Run", "read CVE id", err)
		}
	}

	// FETCH
	log.enter(StateFetch)
	timer := metrics.NewTimer(r.metrics, metrics.LookupDuration.Name)
	cve, err := r.fetcher.Fetch(ctx, cveID)
	elapsed := timer.ObserveDuration()
	if err == nil && cve == nil {
		err = cmerrors.E(cmerrors.KindNotFound, "lookup.Run", "empty record for "+cveID)
	}
	if err != nil {
		log.Debug("lookup of %q failed after %s: %v", cveID, elapsed, err)
		if apiErr, ok := cmerrors.IsAPIError(err); ok {
			log.Info("NVD answered %d for %s", apiErr.StatusCode, apiErr.URL)
		}
		r.metrics.CounterInc(metrics.LookupsTotal.Name, "status", metrics.StatusNotFound)
		r.presenter.Error(MsgNotFound)
		return err
	}

	// RESOLVE
	log.enter(StateResolve)
	attack, cweIDs := mapping.Resolve(cve, set.Techniques)
	log.Info("%s: %d weakness ids, %d techniques", cve.ID, len(cweIDs), len(attack))
	r.metrics.GaugeSet(metrics.WeaknessesSeen.Name, float64(len(cweIDs)))
	r.metrics.GaugeSet(metrics.TechniquesResolved.Name, float64(len(attack)))

	// DISPLAY
	log.enter(StateDisplay)
	rep := report.Build(cve, attack, cweIDs, set.ThreatActors, set.Mitigations)
	rep.RunID = runID
	if err := r.presenter.Render(rep); err != nil {
		return cmerrors.E(cmerrors.KindInternal, "lookup.Run", "render report", err)
	}

	r.metrics.CounterInc(metrics.LookupsTotal.Name, "status", metrics.StatusOK)
	log.enter(StateEnd)
	return nil
}

func (r *Runner) readID() (string, error) {
	r.presenter.Prompt(PromptText)

	line, err := r.input.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

func (r *Runner) recordTables(set *tables.Set) {
	if set == nil {
		return
	}
	r.metrics.GaugeSet(metrics.TableEntries.Name, float64(len(set.Techniques)), "table", "techniques")
	r.metrics.GaugeSet(metrics.TableEntries.Name, float64(len(set.ThreatActors)), "table", "threat_actors")
	r.metrics.GaugeSet(metrics.TableEntries.Name, float64(len(set.Mitigations)), "table", "mitigations")
}

// runLogger prefixes every line with the run id.
type runLogger struct {
	core.Logger
	runID string
}

func (l *runLogger) enter(s State) {
	l.Debug("state %s", s)
}

func (l *runLogger) Debug(format string, args ...interface{}) {
	l.Logger.Debug("[run %s] "+format, append([]interface{}{l.runID}, args...)...)
}

func (l *runLogger) Info(format string, args ...interface{}) {
	l.Logger.Info("[run %s] "+format, append([]interface{}{l.runID}, args...)...)
}

func (l *runLogger) Warn(format string, args ...interface{}) {
	l.Logger.Warn("[run %s] "+format, append([]interface{}{l.runID}, args...)...)
}

func (l *runLogger) Error(format string, args ...interface{}) {
	l.Logger.Error("[run %s] "+format, append([]interface{}{l.runID}, args...)...)
}
