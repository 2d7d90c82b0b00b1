package model_test

import (
	"testing"

	model "github.com/okian/pointsledger/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestPlaceholderRef(t *testing.T) {
	convey.Convey("Given participant names", t, func() {
		convey.Convey("When building a placeholder", func() {
			ref := model.PlaceholderRef("  Ada   Lovelace ")

			convey.Convey("Then whitespace runs collapse to underscores", func() {
				convey.So(ref, convey.ShouldEqual, "INVALID_PROFILE_URL_Ada_Lovelace")
				convey.So(model.IsInvalidProfileRef(ref), convey.ShouldBeTrue)
			})
		})
	})
}

func TestIsInvalidProfileRef(t *testing.T) {
	convey.Convey("Given profile references", t, func() {
		cases := []struct {
			ref     string
			invalid bool
		}{
			{"", true},
			{"   ", true},
			{"INVALID_PROFILE_URL_Bob", true},
			{"not a url", true},
			{"ftp://example.com/u/1", true},
			{"/relative/path", true},
			{"https://", true},
			{"https://www.cloudskillsboost.google/public_profiles/abc", false},
			{"http://127.0.0.1:8080/profiles/1", false},
		}

		for _, tc := range cases {
			convey.Convey("Then "+tc.ref+" is classified", func() {
				convey.So(model.IsInvalidProfileRef(tc.ref), convey.ShouldEqual, tc.invalid)
			})
		}
	})
}

func TestDescriptorNormalize(t *testing.T) {
	convey.Convey("Given a descriptor with padding and no profile", t, func() {
		d := model.Descriptor{Name: " Grace Hopper ", Email: " grace@example.com "}

		convey.Convey("When normalized", func() {
			n := d.Normalize()

			convey.Convey("Then fields are trimmed and the placeholder is set", func() {
				convey.So(n.Name, convey.ShouldEqual, "Grace Hopper")
				convey.So(n.Email, convey.ShouldEqual, "grace@example.com")
				convey.So(n.ProfileRef, convey.ShouldEqual, "INVALID_PROFILE_URL_Grace_Hopper")
			})
		})

		convey.Convey("When the profile is present", func() {
			d.ProfileRef = " https://example.com/p/1 "
			n := d.Normalize()

			convey.Convey("Then it is kept", func() {
				convey.So(n.ProfileRef, convey.ShouldEqual, "https://example.com/p/1")
				p := model.Participant{ProfileRef: n.ProfileRef}
				convey.So(p.HasValidProfile(), convey.ShouldBeTrue)
			})
		})
	})
}
