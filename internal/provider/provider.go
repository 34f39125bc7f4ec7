package provider

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// QuerySource supplies query texts for probe requests.
// Implementations must be safe for concurrent use.
type QuerySource interface {
	// NextQuery returns the next query in deterministic round-robin order.
	NextQuery() string

	// Len returns the number of loaded queries.
	Len() int
}

// KeySource supplies API keys for probe requests. An empty string means the
// source is exhausted and the caller should stop issuing requests.
type KeySource interface {
	NextKey() string
}

// QueryProvider cycles through a pre-loaded list of queries.
// It is safe for concurrent access.
type QueryProvider struct {
	mu      sync.Mutex
	queries []string
	index   int
}

// NewQueryProvider creates a provider backed by a parameter file with one
// query per line. Blank lines are skipped. If the file is missing, unreadable
// or empty, the provider falls back to the default query.
func NewQueryProvider(path, defaultQuery string) *QueryProvider {
	queries := loadLines(path)
	if len(queries) == 0 {
		if path != "" {
			fmt.Fprintf(os.Stderr, "warning: parameter file %q is empty or unreadable, using default query\n", path)
		}
		queries = []string{defaultQuery}
	}
	return &QueryProvider{queries: queries}
}

// NextQuery returns the next query in round-robin order.
func (p *QueryProvider) NextQuery() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	query := p.queries[p.index]
	p.index = (p.index + 1) % len(p.queries)
	return query
}

// Len returns the number of loaded queries.
func (p *QueryProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queries)
}

// KeyProvider cycles through a pre-loaded list of API keys.
// It is safe for concurrent access.
type KeyProvider struct {
	mu    sync.Mutex
	keys  []string
	index int
}

// NewKeyProvider creates a provider backed by a key file with one key per
// line. If the file yields no keys the default key is used; with neither,
// NextKey returns the empty string and workers treat the source as exhausted.
func NewKeyProvider(path, defaultKey string) *KeyProvider {
	keys := loadLines(path)
	if len(keys) == 0 && path != "" {
		fmt.Fprintf(os.Stderr, "warning: API key file %q is empty or unreadable, falling back to default key\n", path)
	}
	if len(keys) == 0 && defaultKey != "" {
		keys = []string{defaultKey}
	}
	return &KeyProvider{keys: keys}
}

// NextKey returns the next key in round-robin order, or "" when no keys are
// available.
func (p *KeyProvider) NextKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return ""
	}
	key := p.keys[p.index]
	p.index = (p.index + 1) % len(p.keys)
	return key
}

func loadLines(path string) []string {
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if scanner.Err() != nil {
		return nil
	}
	return lines
}
