package failure_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/okian/pointsledger/internal/domain/extract"
	"github.com/okian/pointsledger/internal/domain/failure"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClassify(t *testing.T) {
	Convey("Given errors from every layer", t, func() {
		cases := []struct {
			name string
			err  error
			kind failure.Kind
		}{
			{"nil", nil, failure.KindNone},
			{"invalid profile", fmt.Errorf("resolve: %w", failure.ErrInvalidProfile), failure.KindInvalidProfile},
			{"timeout", fmt.Errorf("get: %w", failure.ErrTimeout), failure.KindNetworkTransient},
			{"network", failure.ErrNetwork, failure.KindNetworkTransient},
			{"deadline", context.DeadlineExceeded, failure.KindNetworkTransient},
			{"status", fmt.Errorf("get: %w", &failure.StatusError{Code: 503}), failure.KindNetworkPermanent},
			{"not found", extract.ErrNotFound, failure.KindParseNotFound},
			{"storage", failure.Storage("commit", errors.New("disk full")), failure.KindStorage},
			{"other", errors.New("boom"), failure.KindUnexpected},
		}

		for _, tc := range cases {
			Convey("Then "+tc.name+" is classified", func() {
				So(failure.Classify(tc.err), ShouldEqual, tc.kind)
			})
		}
	})

	Convey("Given the retry policy", t, func() {
		So(failure.KindNetworkTransient.Retryable(), ShouldBeTrue)
		So(failure.KindNetworkPermanent.Retryable(), ShouldBeTrue)
		So(failure.KindParseNotFound.Retryable(), ShouldBeFalse)
		So(failure.KindInvalidProfile.Retryable(), ShouldBeFalse)
		So(failure.Storage("noop", nil), ShouldBeNil)
	})

	Convey("Given a status error", t, func() {
		err := &failure.StatusError{Code: 404}
		So(err.Error(), ShouldContainSubstring, "404")
	})
}
