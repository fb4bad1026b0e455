package immunity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/octaviaken059/ouroboros-design-sub001/internal/logging"
)

// PatternFile is the YAML shape for user-supplied catalogs.
//
//	patterns:
//	  - type: prompt_injection
//	    base_confidence: 0.9
//	    mitigation: "..."
//	    description: "..."
//	    substrings: ["do anything now"]
//	    regexes: ['ignore .{0,20} guardrails']
type PatternFile struct {
	Patterns []PatternSpec `yaml:"patterns"`
}

// PatternSpec is one declarative pattern entry.
type PatternSpec struct {
	Type           AttackType `yaml:"type"`
	BaseConfidence float64    `yaml:"base_confidence"`
	Mitigation     string     `yaml:"mitigation"`
	Description    string     `yaml:"description"`
	Substrings     []string   `yaml:"substrings"`
	Regexes        []string   `yaml:"regexes"`
}

func (s PatternSpec) compile() (*AttackPattern, error) {
	if s.Type == "" {
		return nil, fmt.Errorf("pattern entry missing type")
	}
	if len(s.Substrings) == 0 && len(s.Regexes) == 0 {
		return nil, fmt.Errorf("pattern %q has no matchers", s.Type)
	}
	matchers := make([]Matcher, 0, len(s.Substrings)+len(s.Regexes))
	for _, sub := range s.Substrings {
		matchers = append(matchers, Substring(sub))
	}
	for _, expr := range s.Regexes {
		m, err := RegexChecked(expr)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: bad regex %q: %w", s.Type, expr, err)
		}
		matchers = append(matchers, m)
	}
	return &AttackPattern{
		Type:           s.Type,
		Matchers:       matchers,
		BaseConfidence: clamp01(s.BaseConfidence),
		Mitigation:     s.Mitigation,
		Description:    s.Description,
	}, nil
}

// LoadPatternsFile parses a YAML catalog and appends its patterns. A parse or
// compile failure leaves the current catalog untouched.
func (im *Immunity) LoadPatternsFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pattern file: %w", err)
	}

	var pf PatternFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return 0, fmt.Errorf("failed to parse pattern file: %w", err)
	}

	compiled := make([]*AttackPattern, 0, len(pf.Patterns))
	for _, spec := range pf.Patterns {
		p, err := spec.compile()
		if err != nil {
			return 0, err
		}
		compiled = append(compiled, p)
	}

	im.mu.Lock()
	for _, p := range compiled {
		im.catalog.add(p)
	}
	total := im.catalog.count
	im.mu.Unlock()

	logging.Immunity("loaded %d patterns from %s (%d total)", len(compiled), path, total)
	return len(compiled), nil
}

// WatchPatternsFile reloads the catalog when the file changes. The watcher
// runs until ctx is canceled. Reload failures keep the previous catalog and
// log a warning; the catalog only ever grows under a watcher, matching its
// never-sealed contract.
func (im *Immunity) WatchPatternsFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory: editors replace files on save, which drops a
	// watch placed on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		var lastReload time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				// Debounce rapid save sequences.
				if time.Since(lastReload) < 250*time.Millisecond {
					continue
				}
				lastReload = time.Now()
				if _, err := im.LoadPatternsFile(path); err != nil {
					logging.ImmunityWarn("pattern reload failed, keeping previous catalog: %v", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.ImmunityWarn("pattern watcher error: %v", err)
			}
		}
	}()

	logging.Immunity("watching pattern file: %s", path)
	return nil
}
