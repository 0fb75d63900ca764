// Command extract-html reads HTML (from stdin, a URL, or a directory of files),
// applies a listing rule set, and writes the extracted records.
//
// Usage (stdin, rule file):
//
//	cat page.html | extract-html -rules listings.yaml
//
// Usage (fetch URL, built-in preset, CSV):
//
//	extract-html -url "https://example.com/search?q=plumbers" -preset business -format csv -out plumbers.csv
//
// Usage (directory mode):
//
//	extract-html -dir "./pages" -rules listings.yaml
//
// Usage (store into a database, deduplicated by row hash):
//
//	extract-html -url "..." -preset business -store sqlite -dsn ./listings.db -table listings
//
// Debug (print outer HTML blocks):
//
//	cat page.html | extract-html -selector "div.result"
//
// Debug (show which listings were accepted and which selector won each field):
//
//	cat page.html | extract-html -preset business -explain
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/extracthtml"
	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/logging"
	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/metrics"
	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/metrics/datadog"
	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/presets"
	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/recordio"
	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/sink"
	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/storage"
	_ "github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/storage/all"
)

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
		http.DefaultClient,
	))
}

type options struct {
	rules       string
	preset      string
	listPresets bool
	url         string
	dir         string
	base        string
	timeout     time.Duration
	format      string
	out         string
	columns     string
	preview     int
	summary     bool
	fatal       bool
	fatalSet    bool

	store string
	dsn   string
	table string

	metricsBackend string
	logLevel       string
	logFile        string
	envFile        string

	selector string
	text     bool
	explain  bool
}

// run is split out from main so we can unit test the command without spawning
// an OS process.
//
// It returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage/config errors
//   - 1 for operational/runtime errors
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	fs := flag.NewFlagSet("extract-html", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.rules, "rules", "", "Path to a rule set (YAML or JSON)")
	fs.StringVar(&o.preset, "preset", "", "Use a built-in rule set instead of -rules (see -list-presets)")
	fs.BoolVar(&o.listPresets, "list-presets", false, "Print the built-in rule sets and exit")
	fs.StringVar(&o.url, "url", "", "Optional: fetch HTML from URL instead of stdin")
	fs.StringVar(&o.dir, "dir", "", "Optional: directory of HTML files to parse")
	fs.StringVar(&o.base, "base", "", "Base URL for resolving links (defaults to -url)")
	fs.DurationVar(&o.timeout, "timeout", 20*time.Second, "Timeout for -url fetch")
	fs.StringVar(&o.format, "format", "json", "Output format: json, jsonl, csv or table")
	fs.StringVar(&o.out, "out", "", "Write output to this file instead of stdout")
	fs.StringVar(&o.columns, "columns", "", "Comma-separated output columns (csv and table formats)")
	fs.IntVar(&o.preview, "preview", 0, "Print the first N records as a table on stderr")
	fs.BoolVar(&o.summary, "summary", false, "Print run counts and per-column fill rates on stderr")
	fs.BoolVar(&o.fatal, "fatal-on-listing-error", false, "Fail the run on the first listing error")
	fs.StringVar(&o.store, "store", "", "Also store records: sqlite, postgres or mssql (env EXTRACT_STORE_KIND)")
	fs.StringVar(&o.dsn, "dsn", "", "Database DSN for -store (env EXTRACT_STORE_DSN)")
	fs.StringVar(&o.table, "table", "", "Destination table for -store (defaults to the rule set name)")
	fs.StringVar(&o.metricsBackend, "metrics-backend", "", "Metrics backend: datadog or none (env METRICS_BACKEND)")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&o.logFile, "log-file", "", "Also write JSON logs to this file (rotated)")
	fs.StringVar(&o.envFile, "env", "", "Load environment variables from this file (default: .env if present)")
	fs.StringVar(&o.selector, "selector", "", "Debug: CSS selector to print matches for")
	fs.BoolVar(&o.text, "text", false, "Debug: print text blocks for -selector matches")
	fs.BoolVar(&o.explain, "explain", false, "Debug: explain acceptance and field sources per listing")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := checkFlags(o); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "fatal-on-listing-error" {
			o.fatalSet = true
		}
	})

	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			fmt.Fprintf(stderr, "load env: %v\n", err)
			return 2
		}
	} else {
		_ = godotenv.Load()
	}
	o.store = firstNonEmpty(o.store, os.Getenv("EXTRACT_STORE_KIND"))
	o.dsn = firstNonEmpty(o.dsn, os.Getenv("EXTRACT_STORE_DSN"))
	o.metricsBackend = firstNonEmpty(o.metricsBackend, os.Getenv("METRICS_BACKEND"))

	logger, closeLog, err := logging.New(logging.Options{Level: o.logLevel, File: o.logFile, Console: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v\n", err)
		return 2
	}
	defer func() { _ = closeLog() }()

	if o.listPresets {
		for _, name := range presets.Names() {
			fmt.Fprintln(stdout, name)
		}
		return 0
	}

	loader := extracthtml.NewLoader(httpClient, o.timeout)

	// Debug selector mode needs HTML input (stdin or url) but no rules.
	if o.selector != "" {
		html, err := loader.Load(ctx, extracthtml.Input{URL: o.url, Stdin: stdin})
		if err != nil {
			fmt.Fprintf(stderr, "load html: %v\n", err)
			return 1
		}
		if err := extracthtml.DebugPrintSelector(stdout, html, o.selector, o.text); err != nil {
			fmt.Fprintf(stderr, "debug selector: %v\n", err)
			return 1
		}
		return 0
	}

	rs, err := loadRuleSet(o.rules, o.preset)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	exOpts := []extracthtml.Option{
		extracthtml.WithLogger(logger),
		extracthtml.WithBaseURL(firstNonEmpty(o.base, o.url)),
	}
	if o.fatalSet {
		exOpts = append(exOpts, extracthtml.WithFatalOnListingError(o.fatal))
	}
	ex, err := extracthtml.Compile(*rs, exOpts...)
	if err != nil {
		fmt.Fprintf(stderr, "compile rules: %v\n", err)
		return 2
	}

	stopMetrics := setupMetrics(ctx, o.metricsBackend, ex.Name(), logger)
	defer stopMetrics()

	if o.explain {
		html, err := loader.Load(ctx, extracthtml.Input{URL: o.url, Stdin: stdin})
		if err != nil {
			fmt.Fprintf(stderr, "load html: %v\n", err)
			return 1
		}
		if err := extracthtml.ExplainListings(stdout, html, ex); err != nil {
			fmt.Fprintf(stderr, "explain: %v\n", err)
			return 1
		}
		return 0
	}

	var set extracthtml.RecordSet
	if o.dir != "" {
		set, err = extracthtml.ExtractDir(o.dir, ex)
	} else {
		var html string
		html, err = loader.Load(ctx, extracthtml.Input{URL: o.url, Stdin: stdin})
		if err != nil {
			fmt.Fprintf(stderr, "load html: %v\n", err)
			return 1
		}
		set, err = ex.ExtractHTML(html)
	}
	if err != nil {
		fmt.Fprintf(stderr, "extract: %v\n", err)
		return 1
	}

	if err := writeOutput(stdout, set, o); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}

	if o.preview > 0 {
		if err := recordio.RenderPreview(stderr, set, nil, o.preview); err != nil {
			fmt.Fprintf(stderr, "preview: %v\n", err)
		}
	}
	if o.summary {
		recordio.RenderSummary(stderr, recordio.Summarize(set))
	}

	if o.store != "" {
		if err := store(ctx, set, o, ex.Name(), stderr, logger); err != nil {
			fmt.Fprintf(stderr, "store: %v\n", err)
			return 1
		}
	}

	fmt.Fprintf(stderr, "saved %d records (candidates=%d rejected=%d skipped=%d)\n",
		len(set.Records), set.Candidates, set.Rejected, set.SkippedCount())
	return 0
}

var errUsage = errors.New("usage")

var outputFormats = map[string]bool{"": true, "json": true, "jsonl": true, "csv": true, "table": true}

// checkFlags rejects flag combinations before any input is read or output created.
func checkFlags(o options) error {
	if !outputFormats[strings.ToLower(o.format)] {
		return fmt.Errorf("unknown -format %q (want json, jsonl, csv or table)", o.format)
	}
	if o.dir != "" {
		switch {
		case o.url != "":
			return fmt.Errorf("use either -dir or -url, not both")
		case o.selector != "":
			return fmt.Errorf("-selector reads stdin or -url, not -dir")
		case o.explain:
			return fmt.Errorf("-explain reads stdin or -url, not -dir")
		}
	}
	return nil
}

func loadRuleSet(path, preset string) (*extracthtml.RuleSet, error) {
	switch {
	case path != "" && preset != "":
		return nil, fmt.Errorf("use either -rules or -preset, not both")
	case preset != "":
		return presets.Lookup(preset)
	case path != "":
		rs, err := extracthtml.LoadRuleFile(path)
		if err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
		return rs, nil
	}
	return nil, fmt.Errorf("missing -rules or -preset")
}

func writeOutput(stdout io.Writer, set extracthtml.RecordSet, o options) (err error) {
	w := stdout
	if o.out != "" {
		f, cerr := os.Create(o.out)
		if cerr != nil {
			return cerr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	cols := splitCSV(o.columns)
	switch strings.ToLower(o.format) {
	case "json", "":
		return recordio.WriteJSON(w, set, o.out != "")
	case "jsonl":
		return recordio.WriteJSONLines(w, set)
	case "csv":
		return recordio.WriteCSV(w, set, recordio.CSVOptions{Columns: cols})
	case "table":
		return recordio.RenderPreview(w, set, cols, 0)
	}
	return fmt.Errorf("%w: unknown -format %q", errUsage, o.format)
}

func store(ctx context.Context, set extracthtml.RecordSet, o options, rulesName string, stderr io.Writer, logger *zap.Logger) error {
	if o.dsn == "" {
		return fmt.Errorf("-store %s needs -dsn", o.store)
	}
	table := firstNonEmpty(o.table, strings.ReplaceAll(rulesName, "-", "_"), "listings")

	repo, err := storage.New(ctx, storage.Config{Kind: o.store, DSN: o.dsn})
	if err != nil {
		return err
	}
	defer repo.Close()

	l, err := sink.New(repo, sink.Options{Table: table}, logger)
	if err != nil {
		return err
	}
	res, err := l.Load(ctx, set)
	if err != nil {
		return err
	}
	fmt.Fprintf(stderr, "stored %d new rows in %s (%d duplicates)\n", res.Written, table, res.Duplicates)
	return nil
}

// setupMetrics installs the requested backend and returns its shutdown func.
func setupMetrics(ctx context.Context, backend, rulesName string, logger *zap.Logger) func() {
	switch backend {
	case "datadog":
		tags := append(datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")), "rules:"+rulesName)
		b, err := datadog.NewBackend(ctx, datadog.Options{JobName: "extract", Tags: tags})
		if err != nil {
			logger.Warn("metrics: failed to init datadog backend; using nop", zap.Error(err))
			return func() {}
		}
		logger.Debug("metrics: datadog enabled", zap.Strings("tags", tags))
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logger.Warn("metrics: datadog close/flush error", zap.Error(err))
			}
			metrics.SetBackend(nil)
		}
	case "", "none":
		return func() {}
	default:
		logger.Warn("metrics: unknown backend; metrics disabled", zap.String("backend", backend))
		return func() {}
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
