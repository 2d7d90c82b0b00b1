package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/pointsledger/internal/adapters/fetch"
	"github.com/okian/pointsledger/internal/domain/failure"
	"github.com/okian/pointsledger/internal/testprofiles"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFetcher(t *testing.T) {
	Convey("Given a fake profile site", t, func() {
		site := testprofiles.NewSite()
		site.Add("ada", testprofiles.Profile{Name: "Ada", Points: 1500, Variant: testprofiles.VariantLeagueEmphasis})
		srv := httptest.NewServer(site)
		defer srv.Close()

		f := fetch.New(fetch.WithDelayRange(0, 0), fetch.WithTimeout(500*time.Millisecond))
		ctx := context.Background()

		Convey("When fetching a known profile", func() {
			page, err := f.Fetch(ctx, testprofiles.URL(srv.URL, "ada"))

			Convey("Then the body is returned", func() {
				So(err, ShouldBeNil)
				So(page.Skipped, ShouldBeFalse)
				So(page.Status, ShouldEqual, http.StatusOK)
				So(string(page.Body), ShouldContainSubstring, "1,500 points")
				So(site.Hits("ada"), ShouldEqual, 1)
			})
		})

		Convey("When the reference is a placeholder", func() {
			page, err := f.Fetch(ctx, "INVALID_PROFILE_URL_Ada")

			Convey("Then nothing is requested and the page is skipped", func() {
				So(err, ShouldBeNil)
				So(page.Skipped, ShouldBeTrue)
				So(site.TotalHits(), ShouldEqual, 0)
			})
		})

		Convey("When the host answers with an error status", func() {
			site.FailTimes("ada", 1, http.StatusServiceUnavailable)
			_, err := f.Fetch(ctx, testprofiles.URL(srv.URL, "ada"))

			Convey("Then a status error is returned", func() {
				var status *failure.StatusError
				So(errors.As(err, &status), ShouldBeTrue)
				So(status.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(failure.Classify(err), ShouldEqual, failure.KindNetworkPermanent)
			})
		})

		Convey("When the host hangs past the timeout", func() {
			site.Hang("ada", 2*time.Second)
			_, err := f.Fetch(ctx, testprofiles.URL(srv.URL, "ada"))

			Convey("Then a timeout is returned", func() {
				So(errors.Is(err, failure.ErrTimeout), ShouldBeTrue)
			})
		})

		Convey("When the host is unreachable", func() {
			dead := httptest.NewServer(http.NotFoundHandler())
			url := dead.URL
			dead.Close()

			_, err := f.Fetch(ctx, url+"/profiles/x")

			Convey("Then a network error is returned", func() {
				So(errors.Is(err, failure.ErrNetwork), ShouldBeTrue)
				So(failure.Classify(err), ShouldEqual, failure.KindNetworkTransient)
			})
		})

		Convey("When the context ends during the jitter delay", func() {
			slow := fetch.New(fetch.WithDelayRange(time.Second, 2*time.Second))
			cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()

			_, err := slow.Fetch(cctx, testprofiles.URL(srv.URL, "ada"))

			Convey("Then it gives up without a request", func() {
				So(errors.Is(err, failure.ErrTimeout), ShouldBeTrue)
				So(site.Hits("ada"), ShouldEqual, 0)
			})
		})
	})
}

func TestFetcherHeaders(t *testing.T) {
	Convey("Given a server that records request headers", t, func() {
		var got http.Header
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Clone()
			_, _ = w.Write([]byte("<html></html>"))
		}))
		defer srv.Close()

		f := fetch.New(
			fetch.WithDelayRange(0, 0),
			fetch.WithUserAgent("points-test/1.0"),
			fetch.WithHeader("X-Trace", "abc"),
		)

		_, err := f.Fetch(context.Background(), srv.URL+"/p")

		Convey("Then browser-like and custom headers are sent", func() {
			So(err, ShouldBeNil)
			So(got.Get("User-Agent"), ShouldEqual, "points-test/1.0")
			So(got.Get("Accept-Language"), ShouldStartWith, "en-US")
			So(got.Get("X-Trace"), ShouldEqual, "abc")
		})
	})
}
