// Package textsource reads the texts that feed the word book. A source is a
// local file path or an http(s) URL. Gzip-compressed files are decompressed,
// tar archives (.tar, .tar.gz, .tgz) contribute the text of every member, and
// HTML documents are reduced to their readable text.
package textsource

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

// DefaultMaxSize limits how much text a single source may contribute.
const DefaultMaxSize = 10 * 1024 * 1024

// ErrTooLarge is returned when a source exceeds the loader's size limit.
var ErrTooLarge = errors.New("source exceeds size limit")

// Loader reads text sources.
type Loader struct {
	Client  *http.Client
	MaxSize int64
}

// NewLoader returns a Loader with a 30 second HTTP timeout and DefaultMaxSize.
func NewLoader() *Loader {
	return &Loader{
		Client:  &http.Client{Timeout: 30 * time.Second},
		MaxSize: DefaultMaxSize,
	}
}

// Load returns the text of src using a default Loader.
func Load(ctx context.Context, src string) (string, error) {
	return NewLoader().Load(ctx, src)
}

// Load returns the text of src. Invalid UTF-8 sequences are dropped.
func (l *Loader) Load(ctx context.Context, src string) (string, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return "", errors.New("empty source")
	}
	if u, err := url.Parse(src); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return l.fetch(ctx, u)
	}
	return l.readFile(src)
}

func (l *Loader) readFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	name := strings.ToLower(path)
	if strings.HasSuffix(name, ".tgz") {
		name = strings.TrimSuffix(name, ".tgz") + ".tar.gz"
	}
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
		name = strings.TrimSuffix(name, ".gz")
	}
	if strings.HasSuffix(name, ".tar") {
		return l.readArchive(r, path)
	}

	body, err := l.readLimited(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	abs, _ := filepath.Abs(path)
	return decode(body, name, &url.URL{Scheme: "file", Path: abs})
}

// decode turns a file body into text, extracting the article from HTML.
func decode(body []byte, name string, base *url.URL) (string, error) {
	ext := filepath.Ext(name)
	if ext == ".html" || ext == ".htm" || isHTML(body) {
		return extractArticle(body, base)
	}
	return toText(body), nil
}

func (l *Loader) fetch(ctx context.Context, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "autotext-loader")
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.8")

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %s", u, resp.Status)
	}
	if l.maxSize() > 0 && resp.ContentLength > l.maxSize() {
		return "", fmt.Errorf("fetch %s: content length %d: %w", u, resp.ContentLength, ErrTooLarge)
	}

	body, err := l.readLimited(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u, err)
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "html") || isHTML(body) {
		return extractArticle(body, u)
	}
	return toText(body), nil
}

func (l *Loader) maxSize() int64 {
	if l.MaxSize <= 0 {
		return DefaultMaxSize
	}
	return l.MaxSize
}

// readLimited reads r fully, failing with ErrTooLarge past the size limit.
// One byte beyond the limit is read so that a source of exactly MaxSize bytes
// is accepted.
func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	limit := l.maxSize()
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, ErrTooLarge
	}
	return body, nil
}

func isHTML(body []byte) bool {
	return strings.HasPrefix(http.DetectContentType(body), "text/html")
}

func extractArticle(body []byte, pageURL *url.URL) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract article: %w", err)
	}
	return article.TextContent, nil
}

func toText(body []byte) string {
	body = bytes.TrimPrefix(body, []byte("\uFEFF"))
	if utf8.Valid(body) {
		return string(body)
	}
	return strings.ToValidUTF8(string(body), "")
}
