// Package extract recovers an integer points value from a profile page.
//
// Strategies run in a fixed priority order and the first success wins:
//  1. emphasized text inside the league container
//  2. a "points"-labelled element inside the league container
//  3. "<number> points" anywhere in the page text
//  4. a number next to a keyword in parent or sibling text nodes
package extract

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Strategy names the heuristic that produced a value.
type Strategy string

// Strategies in priority order.
const (
	StrategyLeagueEmphasis  Strategy = "league_emphasis"
	StrategyLeagueLabel     Strategy = "league_label"
	StrategyPagePattern     Strategy = "page_pattern"
	StrategyKeywordAdjacent Strategy = "keyword_adjacent"
)

const defaultContainerSelector = ".profile-league"

var (
	numberRe       = regexp.MustCompile(`\d[\d,]*`)
	leadingRe      = regexp.MustCompile(`^\s*(\d[\d,]*)`)
	pagePointsRe   = regexp.MustCompile(`(?i)\b(\d[\d,]*)\s+points?\b`)
	defaultKeyword = []string{"score", "total", "point", "credit", "achievement"}
)

// Result is a recovered value and the strategy that found it.
type Result struct {
	Points   int
	Strategy Strategy
}

// Extractor applies the ordered strategies. It holds no mutable state and is
// safe for concurrent use.
type Extractor struct {
	containerSelector string
	keywords          []string
}

// New creates an Extractor with configuration options.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		containerSelector: defaultContainerSelector,
		keywords:          defaultKeyword,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the first value any strategy recovers, or ErrNotFound.
func (e *Extractor) Extract(raw []byte) (Result, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Result{}, ErrNotFound
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return Result{}, ErrNotFound
	}
	doc.Find("script, style, noscript").Remove()

	container := doc.Find(e.containerSelector).First()
	if container.Length() > 0 {
		if v, ok := leagueEmphasis(container); ok {
			return Result{Points: v, Strategy: StrategyLeagueEmphasis}, nil
		}
		if v, ok := leagueLabel(container); ok {
			return Result{Points: v, Strategy: StrategyLeagueLabel}, nil
		}
	}

	if len(doc.Nodes) == 0 {
		return Result{}, ErrNotFound
	}
	root := doc.Nodes[0]

	// Text nodes are joined with spaces so adjacent cells never merge into one number.
	if v, ok := pagePattern(nodeText(root)); ok {
		return Result{Points: v, Strategy: StrategyPagePattern}, nil
	}

	if v, ok := e.keywordAdjacent(root); ok {
		return Result{Points: v, Strategy: StrategyKeywordAdjacent}, nil
	}

	return Result{}, ErrNotFound
}

func leagueEmphasis(container *goquery.Selection) (int, bool) {
	var (
		value int
		found bool
	)
	container.Find("strong, b, em").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		m := leadingRe.FindStringSubmatch(s.Text())
		if m == nil {
			return true
		}
		value, found = parseNumber(m[1])
		return !found
	})
	return value, found
}

func leagueLabel(container *goquery.Selection) (int, bool) {
	var (
		value int
		found bool
	)
	container.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(ownText(s)), "point") {
			return true
		}
		if value, found = firstNumber(s.Text()); found {
			return false
		}
		s.Siblings().EachWithBreak(func(_ int, sib *goquery.Selection) bool {
			value, found = firstNumber(sib.Text())
			return !found
		})
		if !found {
			value, found = firstNumber(ownText(s.Parent()))
		}
		return !found
	})
	return value, found
}

func pagePattern(text string) (int, bool) {
	m := pagePointsRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return parseNumber(m[1])
}

// keywordAdjacent walks text nodes in document order and, for the first node
// carrying a keyword, looks for a number in its parent and then the parent's siblings.
func (e *Extractor) keywordAdjacent(root *html.Node) (int, bool) {
	var (
		value int
		found bool
		walk  func(n *html.Node)
	)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.TextNode && n.Parent != nil && e.hasKeyword(n.Data) {
			if value, found = firstNumber(nodeText(n.Parent)); found {
				return
			}
			for _, sib := range siblings(n.Parent) {
				if value, found = firstNumber(nodeText(sib)); found {
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return value, found
}

func (e *Extractor) hasKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range e.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// ownText returns the text of s's direct text children only.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return b.String()
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}

func siblings(n *html.Node) []*html.Node {
	var out []*html.Node
	if n.Parent == nil {
		return out
	}
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c != n && (c.Type == html.ElementNode || c.Type == html.TextNode) {
			out = append(out, c)
		}
	}
	return out
}

func firstNumber(text string) (int, bool) {
	m := numberRe.FindString(text)
	if m == "" {
		return 0, false
	}
	return parseNumber(m)
}

func parseNumber(s string) (int, bool) {
	v, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
