package extract

import "strings"

// Option applies a configuration option to the Extractor.
type Option func(*Extractor)

// WithContainerSelector overrides the CSS selector of the league container.
func WithContainerSelector(selector string) Option {
	return func(e *Extractor) {
		if strings.TrimSpace(selector) != "" {
			e.containerSelector = selector
		}
	}
}

// WithKeywords overrides the keyword set used by the adjacency strategy.
func WithKeywords(keywords ...string) Option {
	return func(e *Extractor) {
		if len(keywords) == 0 {
			return
		}
		e.keywords = make([]string, 0, len(keywords))
		for _, k := range keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				e.keywords = append(e.keywords, k)
			}
		}
	}
}
