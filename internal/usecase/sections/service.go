// Package sections pulls predefined resume sections out of the default collection.
package sections

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/domain"
)

// MaxSectionRunes caps the combined text of one section.
const MaxSectionRunes = 2000

const truncatedSuffix = "... [content truncated]"

// ErrUnknownSection is returned by ExtractOne for names outside Names().
var ErrUnknownSection = errors.New("unknown section")

// section names, in extraction order.
const (
	Skills       = "skills"
	Experience   = "experience"
	Projects     = "projects"
	Education    = "education"
	Certificates = "certificates"
)

var names = []string{Skills, Experience, Projects, Education, Certificates}

var queries = map[string][]string{
	Skills:       {"List programming languages and technologies"},
	Experience:   {"What work experience is listed?"},
	Projects:     {"What projects are described?"},
	Education:    {"List degrees, universities, and academic qualifications"},
	Certificates: {"What certifications are listed?"},
}

// Names returns the known section names in extraction order.
func Names() []string { return append([]string(nil), names...) }

// fetcher is the consumer interface for batched context fetches (ISP).
type fetcher interface {
	Fetch(ctx context.Context, queries []string) ([]domain.Fragment, error)
}

// Extractor runs the section queries and condenses the hits into text.
type Extractor struct {
	fetcher fetcher
	logger  *zap.Logger
}

// New creates an Extractor.
func New(f fetcher, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{fetcher: f, logger: logger}
}

// Extract returns every section for the document whose source contains source.
// Fragments without a source are kept. A failing section is logged and maps to "".
func (e *Extractor) Extract(ctx context.Context, source string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		results, err := e.fetcher.Fetch(ctx, queries[name])
		if err != nil {
			e.logger.Error("Section extraction failed",
				zap.String("section", name),
				zap.String("source", source),
				zap.Error(err),
			)
			out[name] = ""
			continue
		}
		out[name] = combine(filter(results, source, true), name)
		e.logger.Info("Section extracted",
			zap.String("section", name),
			zap.String("source", source),
			zap.Int("chars", len(out[name])),
		)
	}
	return out
}

// ExtractOne returns a single section. Fragments without a source are dropped.
func (e *Extractor) ExtractOne(ctx context.Context, section, source string) (string, error) {
	qs, ok := queries[section]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSection, section)
	}
	results, err := e.fetcher.Fetch(ctx, qs)
	if err != nil {
		return "", err //nolint:wrapcheck // fetch errors propagate unchanged
	}
	return combine(filter(results, source, false), section), nil
}

func filter(results []domain.Fragment, source string, keepUnsourced bool) []domain.Fragment {
	out := make([]domain.Fragment, 0, len(results))
	for _, f := range results {
		src, ok := f.Source()
		if !ok {
			if keepUnsourced {
				out = append(out, f)
			}
			continue
		}
		if strings.Contains(src, source) {
			out = append(out, f)
		}
	}
	return out
}

func combine(results []domain.Fragment, section string) string {
	if len(results) == 0 {
		return fmt.Sprintf("No %s information found.", section)
	}

	seen := make(map[string]struct{}, len(results))
	pieces := make([]string, 0, len(results))
	for _, f := range results {
		content := strings.TrimSpace(f.Content)
		if content == "" {
			continue
		}
		if _, dup := seen[content]; dup {
			continue
		}
		seen[content] = struct{}{}
		pieces = append(pieces, content)
	}

	combined := strings.Join(pieces, "\n\n")
	if combined == "" {
		return fmt.Sprintf("No specific %s information found.", section)
	}
	if r := []rune(combined); len(r) > MaxSectionRunes {
		combined = string(r[:MaxSectionRunes]) + truncatedSuffix
	}
	return combined
}
