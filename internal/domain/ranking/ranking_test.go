package ranking_test

import (
	"testing"

	"github.com/okian/arearisk/internal/domain/model"
	"github.com/okian/arearisk/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

func est(id string, mean float64) model.PosteriorEstimate {
	return model.PosteriorEstimate{AreaID: id, Mean: mean}
}

func ids(entries []ranking.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Estimate.AreaID
	}
	return out
}

func TestReporter(t *testing.T) {
	Convey("Given estimates with tied means", t, func() {
		r := ranking.New([]model.PosteriorEstimate{
			est("c", 0.002),
			est("a", 0.005),
			est("e", 0.001),
			est("b", 0.002),
			est("d", 0.005),
		})

		Convey("When selecting the top 3", func() {
			top, err := r.TopN(3)

			Convey("Then highest means come first with ties by area id", func() {
				So(err, ShouldBeNil)
				So(ids(top), ShouldResemble, []string{"a", "d", "b"})
				So(top[0].Rank, ShouldEqual, 1)
				So(top[1].Rank, ShouldEqual, 1)
				So(top[2].Rank, ShouldEqual, 2)
			})
		})

		Convey("When selecting the bottom 3", func() {
			bottom, err := r.BottomN(3)

			Convey("Then lowest means come first with ties by area id", func() {
				So(err, ShouldBeNil)
				So(ids(bottom), ShouldResemble, []string{"e", "b", "c"})
			})
		})

		Convey("When k exceeds the number of areas", func() {
			top, err := r.TopN(100)
			bottom, err2 := r.BottomN(100)

			Convey("Then all areas are returned", func() {
				So(err, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(len(top), ShouldEqual, 5)
				So(len(bottom), ShouldEqual, 5)
			})
		})

		Convey("When k is not positive", func() {
			_, err := r.TopN(0)
			_, err2 := r.BottomN(-1)

			Convey("Then ErrInvalidLimit is returned", func() {
				So(err, ShouldEqual, ranking.ErrInvalidLimit)
				So(err2, ShouldEqual, ranking.ErrInvalidLimit)
			})
		})

		Convey("When looking up a single area", func() {
			e, err := r.Rank("c")
			_, errMissing := r.Rank("zz")

			Convey("Then its dense rank is returned", func() {
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 2)
				So(e.Estimate.Mean, ShouldEqual, 0.002)
				So(errMissing, ShouldEqual, ranking.ErrNotFound)
				So(r.Count(), ShouldEqual, 5)
			})
		})

		Convey("When the caller mutates a returned slice", func() {
			top, _ := r.TopN(2)
			top[0].Estimate.AreaID = "mutated"
			again, _ := r.TopN(2)

			Convey("Then the reporter is unaffected", func() {
				So(again[0].Estimate.AreaID, ShouldEqual, "a")
			})
		})
	})

	Convey("Given the same estimates in a different input order", t, func() {
		a := ranking.New([]model.PosteriorEstimate{est("x", 1), est("y", 1), est("z", 2)})
		b := ranking.New([]model.PosteriorEstimate{est("y", 1), est("z", 2), est("x", 1)})

		Convey("Then the selections are identical", func() {
			ta, _ := a.TopN(3)
			tb, _ := b.TopN(3)
			So(ids(ta), ShouldResemble, ids(tb))
		})
	})

	Convey("Given no estimates", t, func() {
		r := ranking.New(nil)

		Convey("Then selections are empty", func() {
			top, err := r.TopN(5)
			So(err, ShouldBeNil)
			So(len(top), ShouldEqual, 0)
			So(r.Count(), ShouldEqual, 0)
		})
	})
}
