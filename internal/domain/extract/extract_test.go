package extract_test

import (
	"errors"
	"testing"

	"github.com/okian/pointsledger/internal/domain/extract"
	"github.com/okian/pointsledger/internal/testprofiles"
	. "github.com/smartystreets/goconvey/convey"
)

func TestExtractStrategies(t *testing.T) {
	Convey("Given the default extractor", t, func() {
		e := extract.New()

		cases := []struct {
			variant  testprofiles.Variant
			strategy extract.Strategy
		}{
			{testprofiles.VariantLeagueEmphasis, extract.StrategyLeagueEmphasis},
			{testprofiles.VariantLeagueLabel, extract.StrategyLeagueLabel},
			{testprofiles.VariantPagePattern, extract.StrategyPagePattern},
			{testprofiles.VariantKeyword, extract.StrategyKeywordAdjacent},
		}

		for _, tc := range cases {
			Convey("When the page uses the "+tc.variant.String()+" markup", func() {
				res, err := e.Extract([]byte(testprofiles.Page(tc.variant, "Ada Lovelace", 12450)))

				Convey("Then the matching strategy recovers the value", func() {
					So(err, ShouldBeNil)
					So(res.Points, ShouldEqual, 12450)
					So(res.Strategy, ShouldEqual, tc.strategy)
				})
			})
		}

		Convey("When the page carries no value", func() {
			_, err := e.Extract([]byte(testprofiles.Page(testprofiles.VariantNotFound, "Ada", 0)))

			Convey("Then it reports not found", func() {
				So(errors.Is(err, extract.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the page is empty", func() {
			_, err := e.Extract(nil)

			Convey("Then it reports not found", func() {
				So(errors.Is(err, extract.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the page is not HTML at all", func() {
			_, err := e.Extract([]byte("\x00\x01 binary garbage"))

			Convey("Then it reports not found", func() {
				So(errors.Is(err, extract.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestExtractPriority(t *testing.T) {
	Convey("Given a page matching the league and page pattern strategies", t, func() {
		page := testprofiles.DualPage("Grace", 870, 300)

		Convey("When extracting", func() {
			res, err := extract.New().Extract([]byte(page))

			Convey("Then the league container wins even though the pattern appears first", func() {
				So(err, ShouldBeNil)
				So(res.Points, ShouldEqual, 870)
				So(res.Strategy, ShouldEqual, extract.StrategyLeagueEmphasis)
			})
		})
	})

	Convey("Given a league container whose emphasis is not numeric", t, func() {
		page := `<html><body><div class="profile-league"><strong>Gold</strong>` +
			`<span>Points</span><span>1,020</span></div><p>5 points</p></body></html>`

		Convey("When extracting", func() {
			res, err := extract.New().Extract([]byte(page))

			Convey("Then the labelled sibling is used", func() {
				So(err, ShouldBeNil)
				So(res.Points, ShouldEqual, 1020)
				So(res.Strategy, ShouldEqual, extract.StrategyLeagueLabel)
			})
		})
	})

	Convey("Given minified markup with numbers in adjacent cells", t, func() {
		page := `<html><body><table><tr><td>Rank #</td><td>12</td><td>300 points</td></tr></table></body></html>`

		Convey("When extracting", func() {
			res, err := extract.New().Extract([]byte(page))

			Convey("Then the cells are not merged into one number", func() {
				So(err, ShouldBeNil)
				So(res.Strategy, ShouldEqual, extract.StrategyPagePattern)
				So(res.Points, ShouldEqual, 300)
			})
		})
	})

	Convey("Given points only inside a script block", t, func() {
		page := `<html><head><script>var total = "4000 points";</script></head><body><p>nothing</p></body></html>`

		Convey("When extracting", func() {
			_, err := extract.New().Extract([]byte(page))

			Convey("Then script text is ignored", func() {
				So(errors.Is(err, extract.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestExtractOptions(t *testing.T) {
	Convey("Given a custom container and keyword set", t, func() {
		e := extract.New(
			extract.WithContainerSelector("#league"),
			extract.WithKeywords("  Badges ", ""),
		)

		Convey("When the page uses the custom container", func() {
			res, err := e.Extract([]byte(`<div id="league"><b>77</b></div>`))

			Convey("Then the container strategy finds it", func() {
				So(err, ShouldBeNil)
				So(res.Points, ShouldEqual, 77)
			})
		})

		Convey("When only the custom keyword is present", func() {
			res, err := e.Extract([]byte(`<ul><li><span>badges</span><span>12</span></li></ul>`))

			Convey("Then the keyword strategy finds it", func() {
				So(err, ShouldBeNil)
				So(res.Points, ShouldEqual, 12)
				So(res.Strategy, ShouldEqual, extract.StrategyKeywordAdjacent)
			})
		})

		Convey("When only a default keyword is present", func() {
			_, err := e.Extract([]byte(`<ul><li><span>score</span><span>12</span></li></ul>`))

			Convey("Then it is no longer recognised", func() {
				So(errors.Is(err, extract.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}
