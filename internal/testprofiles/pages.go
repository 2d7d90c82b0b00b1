// Package testprofiles serves fake profile pages for tests and local demos.
package testprofiles

import (
	"fmt"
	"strconv"
)

// Variant selects the markup a profile page is rendered with. Each variant
// matches exactly one extraction strategy.
type Variant int

// Page variants.
const (
	VariantLeagueEmphasis Variant = iota
	VariantLeagueLabel
	VariantPagePattern
	VariantKeyword
	VariantNotFound
)

// String returns the variant name used by the stub flags.
func (v Variant) String() string {
	switch v {
	case VariantLeagueEmphasis:
		return "league"
	case VariantLeagueLabel:
		return "label"
	case VariantPagePattern:
		return "pattern"
	case VariantKeyword:
		return "keyword"
	case VariantNotFound:
		return "notfound"
	default:
		return "variant(" + strconv.Itoa(int(v)) + ")"
	}
}

const pageShell = `<!DOCTYPE html>
<html>
<head><title>%s | Public Profile</title>
<script>var points = 99999;</script>
<style>.profile-league { color: #333; }</style>
</head>
<body>
<header><nav><a href="/">Home</a></nav></header>
<main>
<h1 class="ql-display-small">%s</h1>
%s
</main>
<footer>Member since 2021</footer>
</body>
</html>`

// Page renders a profile page for name with points encoded per variant.
func Page(v Variant, name string, points int) string {
	return fmt.Sprintf(pageShell, name, name, body(v, points))
}

func body(v Variant, points int) string {
	formatted := withCommas(points)
	switch v {
	case VariantLeagueEmphasis:
		return `<div class="profile-league"><img src="/league.svg" alt=""><h2>Gold League</h2><strong>` +
			formatted + ` points</strong></div>`
	case VariantLeagueLabel:
		return `<div class="profile-league"><h2>Gold League</h2><div class="row"><span class="label">Points</span>` +
			`<span class="value">` + formatted + `</span></div></div>`
	case VariantPagePattern:
		return `<section class="summary"><p>Earned ` + formatted + ` points across all badges.</p></section>`
	case VariantKeyword:
		return `<table class="stats"><tr><td>Total score</td><td>` + formatted + `</td></tr></table>`
	default:
		return `<section class="summary"><p>This profile is private.</p></section>`
	}
}

// DualPage matches both the league emphasis strategy (leaguePoints) and the
// page pattern strategy (textPoints), with the pattern text appearing first.
func DualPage(name string, leaguePoints, textPoints int) string {
	content := `<p>Weekly goal: ` + withCommas(textPoints) + ` points</p>` +
		`<div class="profile-league"><strong>` + withCommas(leaguePoints) + ` points</strong></div>`
	return fmt.Sprintf(pageShell, name, name, content)
}

func withCommas(n int) string {
	s := strconv.Itoa(n)
	if n < 0 {
		return s
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return string(out)
}
