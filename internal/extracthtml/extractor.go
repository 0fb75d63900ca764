package extracthtml

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/emailparser"
	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/metrics"
)

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used for skipped and rejected listings.
func WithLogger(l *zap.Logger) Option {
	return func(ex *Extractor) {
		if l != nil {
			ex.logger = l
		}
	}
}

// WithBaseURL sets the base that "resolve" fields are resolved against.
func WithBaseURL(raw string) Option {
	return func(ex *Extractor) { ex.baseRaw = raw }
}

// WithAcceptFunc adds a caller predicate on top of the rule set's AcceptRule.
// Both must accept a listing for it to produce a record.
func WithAcceptFunc(fn func(*goquery.Selection) bool) Option {
	return func(ex *Extractor) { ex.acceptFn = fn }
}

// WithFatalOnListingError overrides RuleSet.FatalOnListingError.
func WithFatalOnListingError(fatal bool) Option {
	return func(ex *Extractor) { ex.fatal = &fatal }
}

// Extractor is a compiled rule set. It holds no per-run state and is safe
// for concurrent use on distinct documents.
type Extractor struct {
	name     string
	listing  cascadia.Selector
	accept   compiledAccept
	acceptFn func(*goquery.Selection) bool
	fields   []*compiledField
	schema   []Column
	names    []string
	logger   *zap.Logger
	baseRaw  string
	base     *url.URL
	fatal    *bool
	fatalDef bool
}

type candidate struct {
	raw  string
	self bool
	sel  cascadia.Selector
}

// find returns the candidate's matches inside listing.
func (c candidate) find(listing *goquery.Selection) *goquery.Selection {
	if c.self {
		return listing
	}
	return listing.FindMatcher(c.sel)
}

type compiledField struct {
	rule       FieldRule
	kind       string
	candidates []candidate
	steps      []step
}

type compiledAccept struct {
	anyOf  []cascadia.Selector
	allOf  []cascadia.Selector
	noneOf []cascadia.Selector
}

func (a compiledAccept) accepts(l *goquery.Selection) bool {
	has := func(sel cascadia.Selector) bool { return l.FindMatcher(sel).Length() > 0 }

	if len(a.anyOf) > 0 {
		found := false
		for _, sel := range a.anyOf {
			if has(sel) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, sel := range a.allOf {
		if !has(sel) {
			return false
		}
	}
	for _, sel := range a.noneOf {
		if has(sel) {
			return false
		}
	}
	return true
}

func compileSelectors(kind string, in []string) ([]cascadia.Selector, error) {
	out := make([]cascadia.Selector, 0, len(in))
	for _, s := range in {
		sel, err := cascadia.Compile(s)
		if err != nil {
			return nil, fmt.Errorf("accept %s selector %q: %w", kind, s, err)
		}
		out = append(out, sel)
	}
	return out, nil
}

// Compile validates rs and prepares it for extraction.
func Compile(rs RuleSet, opts ...Option) (*Extractor, error) {
	if len(rs.Fields) == 0 {
		return nil, ErrNoFields
	}

	ex := &Extractor{
		name:     rs.Name,
		logger:   zap.NewNop(),
		fatalDef: rs.FatalOnListingError,
	}
	for _, opt := range opts {
		opt(ex)
	}

	if strings.TrimSpace(ex.baseRaw) != "" {
		u, err := url.Parse(ex.baseRaw)
		if err != nil {
			return nil, fmt.Errorf("base url: %w", err)
		}
		ex.base = u
	}

	if s := strings.TrimSpace(rs.ListingSelector); s != "" {
		sel, err := cascadia.Compile(s)
		if err != nil {
			return nil, fmt.Errorf("listing selector %q: %w", s, err)
		}
		ex.listing = sel
	}

	var err error
	if ex.accept.anyOf, err = compileSelectors("any_of", rs.Accept.AnyOf); err != nil {
		return nil, err
	}
	if ex.accept.allOf, err = compileSelectors("all_of", rs.Accept.AllOf); err != nil {
		return nil, err
	}
	if ex.accept.noneOf, err = compileSelectors("none_of", rs.Accept.NoneOf); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(rs.Fields))
	for _, r := range rs.Fields {
		cf, err := ex.compileField(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("field %q declared twice", r.Name)
		}
		seen[r.Name] = struct{}{}

		ex.fields = append(ex.fields, cf)
		ex.names = append(ex.names, r.Name)
		ex.schema = append(ex.schema, Column{
			Name:    r.Name,
			Type:    cf.rule.Type,
			Clean:   r.Clean,
			Default: r.Default,
		})
	}
	return ex, nil
}

func (ex *Extractor) compileField(r FieldRule) (*compiledField, error) {
	if strings.TrimSpace(r.Name) == "" {
		return nil, errors.New("field with empty name")
	}

	kind := r.Extract
	if kind == "" {
		kind = ExtractText
	}
	switch kind {
	case ExtractText, ExtractHTML, ExtractClass, ExtractExists, ExtractRank, ExtractJSEmail, ExtractCFEmail:
	case ExtractAttr:
		if r.Attr == "" {
			return nil, fmt.Errorf("field %q: extract attr needs attr", r.Name)
		}
	default:
		return nil, fmt.Errorf("field %q: unknown extract %q", r.Name, r.Extract)
	}

	if r.Type == "" {
		switch {
		case r.All:
			r.Type = TypeList
		case kind == ExtractExists:
			r.Type = TypeBool
		case kind == ExtractRank:
			r.Type = TypeInt
		default:
			r.Type = TypeString
		}
	}
	switch r.Type {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeList:
	default:
		return nil, fmt.Errorf("field %q: unknown type %q", r.Name, r.Type)
	}

	if r.Clean != "" && r.Clean != CleanPhone {
		return nil, fmt.Errorf("field %q: unknown clean %q", r.Name, r.Clean)
	}
	if r.Index < 0 {
		return nil, fmt.Errorf("field %q: negative index", r.Name)
	}
	if r.All && len(r.Enum) > 0 {
		return nil, fmt.Errorf("field %q: enum cannot be combined with all", r.Name)
	}
	if kind != ExtractRank && len(r.Selectors) == 0 {
		return nil, fmt.Errorf("field %q: no selectors", r.Name)
	}

	cf := &compiledField{rule: r, kind: kind}
	for _, s := range r.Selectors {
		s = strings.TrimSpace(s)
		if s == SelfSelector {
			cf.candidates = append(cf.candidates, candidate{raw: s, self: true})
			continue
		}
		sel, err := cascadia.Compile(s)
		if err != nil {
			return nil, fmt.Errorf("field %q: selector %q: %w", r.Name, s, err)
		}
		cf.candidates = append(cf.candidates, candidate{raw: s, sel: sel})
	}

	re, err := compileOptionalRegex(r.Match, r.Name)
	if err != nil {
		return nil, err
	}
	cf.steps = buildSteps(r, re, ex.base)
	return cf, nil
}

// Name is the rule set name.
func (ex *Extractor) Name() string { return ex.name }

// Schema returns the output columns in field order.
func (ex *Extractor) Schema() []Column {
	return append([]Column(nil), ex.schema...)
}

func (ex *Extractor) fatalOnListingError() bool {
	if ex.fatal != nil {
		return *ex.fatal
	}
	return ex.fatalDef
}

// listings returns candidate listings in document order.
func (ex *Extractor) listings(doc *goquery.Document) *goquery.Selection {
	if ex.listing == nil {
		return doc.Selection
	}
	return doc.FindMatcher(ex.listing)
}

func (ex *Extractor) accepts(l *goquery.Selection) bool {
	if !ex.accept.accepts(l) {
		return false
	}
	return ex.acceptFn == nil || ex.acceptFn(l)
}

// ExtractHTML parses html and extracts records from it.
func (ex *Extractor) ExtractHTML(html string) (RecordSet, error) {
	return ex.ExtractReader(strings.NewReader(html))
}

// ExtractReader parses r as HTML and extracts records from it.
func (ex *Extractor) ExtractReader(r io.Reader) (RecordSet, error) {
	if r == nil {
		return RecordSet{}, ErrNilDocument
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return RecordSet{}, fmt.Errorf("parse html: %w", err)
	}
	return ex.Extract(doc)
}

// Extract produces one record per accepted listing of doc, in document order,
// then normalizes the whole set.
//
// Rejected listings contribute nothing. A listing whose processing fails is
// recorded in RecordSet.Skipped and extraction moves on, unless fatal mode is
// on, in which case the partial set is returned with the wrapped ListingError.
func (ex *Extractor) Extract(doc *goquery.Document) (RecordSet, error) {
	if doc == nil || doc.Selection == nil {
		return RecordSet{}, ErrNilDocument
	}
	start := time.Now()

	rs := RecordSet{Schema: ex.Schema(), Records: []Record{}}
	candidates := ex.listings(doc)
	rs.Candidates = candidates.Length()

	var fatalErr error
	candidates.EachWithBreak(func(i int, l *goquery.Selection) bool {
		rec, accepted, err := ex.processListing(i, len(rs.Records)+1, l)
		if err != nil {
			le := ListingError{Index: i, Err: err}
			rs.Skipped = append(rs.Skipped, le)
			ex.logger.Warn("skipping listing", zap.String("rules", ex.name), zap.Int("index", i), zap.Error(err))
			if ex.fatalOnListingError() {
				fatalErr = le
				return false
			}
			return true
		}
		if !accepted {
			rs.Rejected++
			ex.logger.Debug("listing rejected", zap.String("rules", ex.name), zap.Int("index", i))
			return true
		}
		rs.Records = append(rs.Records, rec)
		return true
	})

	Normalize(&rs)

	metrics.IncCounter("extract_listings_total", float64(len(rs.Records)), metrics.Labels{"outcome": "accepted"})
	metrics.IncCounter("extract_listings_total", float64(rs.Rejected), metrics.Labels{"outcome": "rejected"})
	metrics.IncCounter("extract_listings_total", float64(len(rs.Skipped)), metrics.Labels{"outcome": "skipped"})

	status := "ok"
	if fatalErr != nil {
		status = "error"
	}
	metrics.IncCounter("extract_runs_total", 1, metrics.Labels{"status": status})
	metrics.ObserveDuration("extract", status, start)

	if fatalErr != nil {
		return rs, fmt.Errorf("extract: %w", fatalErr)
	}
	return rs, nil
}

// processListing is the listing boundary: it runs the acceptance check and
// builds the record. Panics raised while walking the listing are returned as
// errors and never escape.
func (ex *Extractor) processListing(index, rank int, l *goquery.Selection) (rec Record, accepted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, accepted = Record{}, false
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if !ex.accepts(l) {
		return Record{}, false, nil
	}
	rec, err = ex.buildRecord(index, rank, l)
	return rec, err == nil, err
}

func (ex *Extractor) buildRecord(index, rank int, l *goquery.Selection) (Record, error) {
	rec := NewRecord(ex.names)
	for _, f := range ex.fields {
		v, ferr := f.resolve(l, index, rank)
		if ferr != nil {
			var te *TransformError
			if !errors.As(ferr, &te) {
				return Record{}, ferr
			}
			ex.logger.Debug("transform failed", zap.Int("index", index), zap.Error(ferr))
			v = f.defaultFor(index)
		}
		if f.rule.Required && isEmptyValue(v) {
			return Record{}, fmt.Errorf("%w: %s", ErrRequiredField, f.rule.Name)
		}
		rec.Values[f.rule.Name] = v
	}
	return rec, nil
}

// resolve walks the candidate chain; the first candidate yielding a value wins.
func (f *compiledField) resolve(l *goquery.Selection, index, rank int) (any, error) {
	if f.kind == ExtractRank {
		return rank, nil
	}

	for _, c := range f.candidates {
		matches := c.find(l)
		if matches.Length() == 0 {
			continue
		}

		if f.rule.All {
			var vals []string
			var firstErr error
			matches.Each(func(_ int, m *goquery.Selection) {
				raw := f.raw(m)
				if raw == "" {
					return
				}
				v, err := runSteps(f.steps, raw)
				if err != nil {
					if firstErr == nil {
						firstErr = &TransformError{Field: f.rule.Name, Value: raw, Err: err}
					}
					return
				}
				if v != "" {
					vals = append(vals, v)
				}
			})
			if len(vals) > 0 {
				return vals, nil
			}
			if firstErr != nil {
				return nil, firstErr
			}
			continue
		}

		if f.rule.Index >= matches.Length() {
			continue
		}
		raw := f.raw(matches.Eq(f.rule.Index))
		if raw == "" {
			continue
		}
		return f.finish(raw, index)
	}
	return f.defaultFor(index), nil
}

// raw reads the untransformed value of m for the field's extract kind.
func (f *compiledField) raw(m *goquery.Selection) string {
	switch f.kind {
	case ExtractText:
		return strings.TrimSpace(m.Text())
	case ExtractAttr:
		return strings.TrimSpace(m.AttrOr(f.rule.Attr, ""))
	case ExtractHTML:
		h, err := m.Html()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(h)
	case ExtractClass:
		return strings.TrimSpace(m.AttrOr("class", ""))
	case ExtractExists:
		return "true"
	case ExtractJSEmail:
		return emailparser.DecodeEmailFromScript(m.Text())
	case ExtractCFEmail:
		return cloudflareEmail(m)
	}
	return ""
}

func cloudflareEmail(m *goquery.Selection) string {
	if v, ok := m.Attr("data-cfemail"); ok {
		return emailparser.DecodeCloudflare(v)
	}
	href := m.AttrOr("href", "")
	if _, frag, ok := strings.Cut(href, "#"); ok {
		return emailparser.DecodeCloudflare(frag)
	}
	return emailparser.DecodeMailto(href)
}

// finish applies the transform chain and the enum table to a winning raw value.
func (f *compiledField) finish(raw string, index int) (any, error) {
	v, err := runSteps(f.steps, raw)
	if err != nil {
		return nil, &TransformError{Field: f.rule.Name, Value: raw, Err: err}
	}
	if v == "" {
		return f.defaultFor(index), nil
	}

	if len(f.rule.Enum) > 0 {
		tokens := []string{strings.TrimSpace(v)}
		if f.kind == ExtractClass {
			tokens = strings.Fields(v)
		}
		out, err := lookupEnum(f.rule.Enum, tokens)
		if err != nil {
			// An unmatched enum is the same as an absent element.
			return f.defaultFor(index), nil
		}
		return out, nil
	}

	if f.kind == ExtractExists {
		return true, nil
	}
	return v, nil
}

func (f *compiledField) defaultFor(index int) any {
	if s, ok := f.rule.Default.(string); ok {
		return strings.ReplaceAll(s, "{index}", strconv.Itoa(index))
	}
	return f.rule.Default
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	}
	return false
}

// ExtractDocument compiles rs and extracts doc in one call.
func ExtractDocument(doc *goquery.Document, rs RuleSet, opts ...Option) (RecordSet, error) {
	ex, err := Compile(rs, opts...)
	if err != nil {
		return RecordSet{}, err
	}
	return ex.Extract(doc)
}
