// cvemap - CVE to MITRE ATT&CK lookup
//
// Fetches one CVE record from the NVD, maps its CWE weaknesses to ATT&CK
// techniques through static tables and prints the techniques, their
// mitigations and the threat-actor groups associated with each CWE.
//
// Usage:
//
//	cvemap                         # prompts for the CVE id
//	cvemap CVE-2021-44228
//	cvemap -json -config cvemap.yaml CVE-2021-44228
//	cvemap -metrics-file /var/lib/node_exporter/textfile/cvemap.prom CVE-2021-44228
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/exploopio/cvemap/pkg/config"
	"github.com/exploopio/cvemap/pkg/core"
	"github.com/exploopio/cvemap/pkg/lookup"
	"github.com/exploopio/cvemap/pkg/metrics"
	"github.com/exploopio/cvemap/pkg/nvd"
	"github.com/exploopio/cvemap/pkg/report"
)

const (
	appName    = "cvemap"
	appVersion = "1.0.0"
)

func main() {
	os.Exit(run())
}

func run() int {
	// CLI flags
	configPath := flag.String("config", "", "Path to yaml config file")
	cveID := flag.String("cve", "", "CVE id to look up (prompted for when empty)")
	nvdURL := flag.String("nvd-url", "", "NVD CVE API 2.0 URL (or CVEMAP_NVD_URL env)")
	apiKey := flag.String("api-key", "", "NVD API key (or NVD_API_KEY env)")
	outputJSON := flag.Bool("json", false, "Output the report as JSON")
	noColor := flag.Bool("no-color", false, "Disable coloured output (or NO_COLOR env)")
	metricsFile := flag.String("metrics-file", "", "Write run metrics in Prometheus text format (or CVEMAP_METRICS_FILE env)")
	verbose := flag.Bool("verbose", false, "Verbose output")
	showVersion := flag.Bool("version", false, "Show version")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [CVE-ID]\n\n", appName)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, appVersion)
		return 0
	}

	cfg, err := config.Load(*configPath, ".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}

	// Flags win over file and environment
	cfg.NVD.BaseURL = flagOr(*nvdURL, cfg.NVD.BaseURL)
	cfg.NVD.APIKey = flagOr(*apiKey, cfg.NVD.APIKey)
	cfg.Output.MetricsFile = flagOr(*metricsFile, cfg.Output.MetricsFile)
	cfg.Output.JSON = cfg.Output.JSON || *outputJSON
	cfg.Output.NoColor = cfg.Output.NoColor || *noColor
	cfg.Verbose = cfg.Verbose || *verbose

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	id := *cveID
	if id == "" && flag.NArg() > 0 {
		id = flag.Arg(0)
	}

	// Setup context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := core.NewLogger(appName, cfg.LogLevel, cfg.Verbose)

	var collector metrics.Collector = &metrics.NopCollector{}
	var prom *metrics.PrometheusCollector
	if cfg.Output.MetricsFile != "" {
		prom, err = metrics.NewPrometheusCollector(nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating metrics collector: %v\n", err)
			return 1
		}
		collector = prom
	}

	// In JSON mode stdout carries only the document, so the prompt goes to stderr.
	presenter := report.NewPresenter(os.Stdout, report.Options{
		Color:     !cfg.Output.NoColor && !cfg.Output.JSON && stdoutIsTerminal(),
		JSON:      cfg.Output.JSON,
		PromptOut: os.Stderr,
	})

	runner := lookup.NewRunner(&lookup.Config{
		Tables:    cfg.Tables,
		Fetcher:   nvd.NewClient(&cfg.NVD, logger.WithPrefix(appName+"/nvd")),
		Presenter: presenter,
		Input:     os.Stdin,
		Logger:    logger,
		Metrics:   collector,
	})

	runErr := runner.Run(ctx, id)

	if prom != nil {
		if err := prom.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			logger.Error("writing metrics to %s: %v", cfg.Output.MetricsFile, err)
		}
	}

	if runErr != nil {
		logger.Debug("run aborted: %v", runErr)
		return 1
	}
	return 0
}

func flagOr(flagVal, fallback string) string {
	if flagVal != "" {
		return flagVal
	}
	return fallback
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
