package extracthtml

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/metrics"
)

// Input describes where HTML should come from.
type Input struct {
	// URL, if provided, is fetched via HTTP GET.
	URL string

	// Stdin is used when URL is empty. If nil, stdin reads as empty.
	Stdin io.Reader
}

// Loader fetches or reads HTML with a consistent timeout policy.
type Loader struct {
	client  *http.Client
	timeout time.Duration
}

// NewLoader creates a Loader. If client is nil, http.DefaultClient is used.
func NewLoader(client *http.Client, timeout time.Duration) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{
		client:  client,
		timeout: timeout,
	}
}

// Load returns the HTML source for either stdin (when input.URL is empty)
// or a fetched URL, decoded to UTF-8.
//
// On non-2xx HTTP responses, Load returns an error that includes the status
// code and up to 4KB of the response body.
func (l *Loader) Load(ctx context.Context, input Input) (string, error) {
	if strings.TrimSpace(input.URL) == "" {
		if input.Stdin == nil {
			return "", nil
		}
		b, err := readUTF8(input.Stdin, "")
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return b, nil
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input.URL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "extract-html/1.0")

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		observeRequest("error", start, 0)
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		observeRequest(status, start, len(body))
		return "", fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	html, err := readUTF8(resp.Body, resp.Header.Get("Content-Type"))
	observeRequest(status, start, len(html))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return html, nil
}

func observeRequest(status string, start time.Time, n int) {
	labels := metrics.Labels{"status": status}
	metrics.IncCounter("http_requests_total", 1, labels)
	metrics.ObserveHistogram("http_request_duration_seconds", time.Since(start).Seconds(), labels)
	if n > 0 {
		metrics.ObserveHistogram("http_download_bytes", float64(n), labels)
	}
}

// readUTF8 decodes r using the charset named in contentType, a <meta> tag or
// a BOM found in the first 1KB, in that order of preference.
func readUTF8(r io.Reader, contentType string) (string, error) {
	br := bufio.NewReader(r)
	utf8Reader := transform.NewReader(br, determineEncoding(br, contentType).NewDecoder())
	b, err := io.ReadAll(utf8Reader)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func determineEncoding(r *bufio.Reader, contentType string) encoding.Encoding {
	// A short body peeks with io.EOF; the bytes that were read still count.
	head, err := r.Peek(1024)
	if err != nil && len(head) == 0 {
		return unicode.UTF8
	}
	e, _, _ := charset.DetermineEncoding(head, contentType)
	return e
}
