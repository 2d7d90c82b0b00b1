package job_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/pointsledger/internal/domain/job"
	"github.com/okian/pointsledger/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func people(n int) []model.Participant {
	ps := make([]model.Participant, n)
	for i := range ps {
		ps[i] = model.Participant{ID: int64(i + 1), Name: "p", ProfileRef: "https://example.com/p"}
	}
	return ps
}

func results(ps []model.Participant, status string) []job.Result {
	out := make([]job.Result, len(ps))
	for i, p := range ps {
		out[i] = job.Result{ParticipantID: p.ID, Points: int(p.ID), Status: status, Attempts: 1}
	}
	return out
}

func TestPartition(t *testing.T) {
	Convey("Given 12 participants and batch size 5", t, func() {
		batches := job.Partition(people(12), 5)

		Convey("Then they split into 5, 5 and 2", func() {
			So(len(batches), ShouldEqual, 3)
			So(len(batches[0]), ShouldEqual, 5)
			So(len(batches[1]), ShouldEqual, 5)
			So(len(batches[2]), ShouldEqual, 2)
			So(batches[2][1].ID, ShouldEqual, 12)
		})
	})

	Convey("Given no participants", t, func() {
		So(job.Partition(nil, 5), ShouldBeEmpty)
	})

	Convey("Given a non-positive batch size", t, func() {
		So(len(job.Partition(people(3), 0)), ShouldEqual, 3)
	})
}

func TestJobLifecycle(t *testing.T) {
	Convey("Given a new upload job", t, func() {
		now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		j := job.New("acct", "roster.csv", job.KindUpload, now)

		So(j.ID, ShouldNotBeEmpty)
		So(j.Status, ShouldEqual, job.StatusPending)

		Convey("When it walks the happy path", func() {
			So(j.MarkValidated(now), ShouldBeNil)
			So(j.MarkParsed(people(12), 5, now), ShouldBeNil)
			So(j.Status, ShouldEqual, job.StatusParsed)
			So(len(j.Batches), ShouldEqual, 3)

			for i := 0; i < 3; i++ {
				So(j.CanContinue(), ShouldBeTrue)
				batch, err := j.BeginBatch(now)
				So(err, ShouldBeNil)
				So(j.Status, ShouldEqual, job.StatusScraping)
				So(j.CompleteBatch(results(batch, job.StatusSuccessLabel), false, nil, now), ShouldBeNil)
			}

			Convey("Then every participant has a result and the job can complete", func() {
				So(j.CanContinue(), ShouldBeFalse)
				So(j.Done(), ShouldBeTrue)
				So(len(j.Results), ShouldEqual, 12)
				So(j.Progress().Percent, ShouldEqual, 100)

				report := job.BuildReport(j.ID, nil, nil, time.Second, now)
				So(j.MarkCompleted(report, now), ShouldBeNil)
				So(j.Status, ShouldEqual, job.StatusCompleted)
				So(j.Report, ShouldEqual, report)
			})

			Convey("Then another batch cannot start", func() {
				_, err := j.BeginBatch(now)
				So(errors.Is(err, job.ErrNoPendingBatch), ShouldBeTrue)
			})
		})

		Convey("When a middle batch fails", func() {
			_ = j.MarkValidated(now)
			_ = j.MarkParsed(people(12), 5, now)

			b1, _ := j.BeginBatch(now)
			_ = j.CompleteBatch(results(b1, job.StatusSuccessLabel), false, nil, now)
			b2, _ := j.BeginBatch(now)
			_ = j.CompleteBatch(results(b2, job.StatusErrorLabel), true, []string{"p6: timeout"}, now)

			Convey("Then the job continues and keeps earlier results", func() {
				So(j.CanContinue(), ShouldBeTrue)
				So(j.Batches[1].Status, ShouldEqual, job.BatchFailed)
				So(j.Warnings, ShouldContain, "p6: timeout")

				b3, err := j.BeginBatch(now)
				So(err, ShouldBeNil)
				So(j.CompleteBatch(results(b3, job.StatusSuccessLabel), false, nil, now), ShouldBeNil)
				So(len(j.Results), ShouldEqual, 12)
				So(j.Results[1].Status, ShouldEqual, job.StatusSuccessLabel)
				So(j.Results[7].Status, ShouldEqual, job.StatusErrorLabel)
				So(j.Results[12].Status, ShouldEqual, job.StatusSuccessLabel)
			})
		})

		Convey("When it fails during scraping", func() {
			_ = j.MarkValidated(now)
			_ = j.MarkParsed(people(6), 5, now)
			b1, _ := j.BeginBatch(now)
			_ = j.CompleteBatch(results(b1, job.StatusSuccessLabel), false, nil, now)
			_, _ = j.BeginBatch(now)

			So(j.Fail("storage unavailable", now), ShouldBeNil)

			Convey("Then committed progress is retained and the job is terminal", func() {
				So(j.Status, ShouldEqual, job.StatusFailed)
				So(j.FailureReason, ShouldEqual, "storage unavailable")
				So(j.Batches[1].Status, ShouldEqual, job.BatchFailed)
				So(len(j.Results), ShouldEqual, 5)
				So(j.Terminal(), ShouldBeTrue)
				So(errors.Is(j.Fail("again", now), job.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("When transitions are attempted out of order", func() {
			So(errors.Is(j.MarkParsed(people(1), 5, now), job.ErrInvalidTransition), ShouldBeTrue)
			_, err := j.BeginBatch(now)
			So(errors.Is(err, job.ErrInvalidTransition), ShouldBeTrue)
			So(errors.Is(j.CompleteBatch(nil, false, nil, now), job.ErrInvalidTransition), ShouldBeTrue)

			_ = j.MarkValidated(now)
			_ = j.MarkParsed(people(3), 5, now)
			So(errors.Is(j.MarkCompleted(nil, now), job.ErrInvalidTransition), ShouldBeTrue)
			So(errors.Is(j.MarkValidated(now), job.ErrInvalidTransition), ShouldBeTrue)
		})

		Convey("When the job has no participants", func() {
			_ = j.MarkValidated(now)
			_ = j.MarkParsed(nil, 5, now)

			Convey("Then it can complete straight from parsed", func() {
				So(j.CanContinue(), ShouldBeFalse)
				So(j.MarkCompleted(job.BuildReport(j.ID, nil, nil, 0, now), now), ShouldBeNil)
			})
		})
	})
}

func TestJobPersistence(t *testing.T) {
	Convey("Given a job mid-scrape", t, func() {
		now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		j := job.New("acct", "roster.csv", job.KindRefresh, now)
		_ = j.MarkValidated(now)
		_ = j.MarkParsed(people(7), 5, now)
		b, _ := j.BeginBatch(now)
		_ = j.CompleteBatch(results(b, job.StatusSuccessLabel), false, nil, now)

		Convey("When it round-trips through JSON", func() {
			raw, err := json.Marshal(j)
			So(err, ShouldBeNil)

			var back job.Job
			So(json.Unmarshal(raw, &back), ShouldBeNil)

			Convey("Then it resumes at the same batch", func() {
				So(back.BatchIndex, ShouldEqual, 1)
				So(back.Results[3].Points, ShouldEqual, 3)
				next, err := back.BeginBatch(now)
				So(err, ShouldBeNil)
				So(len(next), ShouldEqual, 2)
				So(next[0].ID, ShouldEqual, 6)
			})
		})
	})
}

func TestReport(t *testing.T) {
	Convey("Given entries with known and unknown deltas", t, func() {
		now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		entries := []job.ReportEntry{
			{Name: "b", ResolvedPoints: 40, WeeklyDelta: job.DeltaOf(15), Status: job.StatusSuccessLabel},
			{Name: "a", ResolvedPoints: 90, WeeklyDelta: job.Delta{}, Status: job.StatusSuccessLabel},
			{Name: "c", ResolvedPoints: 0, WeeklyDelta: job.DeltaOf(0), Status: job.StatusErrorLabel},
			{Name: "d", ResolvedPoints: 40, WeeklyDelta: job.DeltaOf(-2), Status: job.StatusSuccessLabel},
		}

		r := job.BuildReport("job-1", entries, []string{"w"}, 1500*time.Millisecond, now)

		Convey("Then entries are sorted by points descending", func() {
			names := []string{}
			for _, e := range r.Entries {
				names = append(names, e.Name)
			}
			So(names, ShouldResemble, []string{"a", "b", "d", "c"})
		})

		Convey("Then the summary counts statuses", func() {
			So(r.Summary.TotalParticipants, ShouldEqual, 4)
			So(r.Summary.Succeeded, ShouldEqual, 3)
			So(r.Summary.SuccessRatePercent, ShouldEqual, 75)
			So(r.Summary.ProcessingTimeSeconds, ShouldEqual, 1.5)
		})

		Convey("Then deltas marshal as numbers or the first-upload marker", func() {
			raw, err := json.Marshal(r.Entries)
			So(err, ShouldBeNil)
			So(string(raw), ShouldContainSubstring, `"weeklyDelta":"N/A (first upload)"`)
			So(string(raw), ShouldContainSubstring, `"weeklyDelta":15`)

			var back []job.ReportEntry
			So(json.Unmarshal(raw, &back), ShouldBeNil)
			So(back[0].WeeklyDelta.Known(), ShouldBeFalse)
			So(*back[1].WeeklyDelta.Value, ShouldEqual, 15)
			So(back[0].WeeklyDelta.String(), ShouldEqual, job.FirstUploadDelta)
		})

		Convey("Then an unknown delta string is rejected", func() {
			var d job.Delta
			So(d.UnmarshalJSON([]byte(`"soon"`)), ShouldNotBeNil)
		})
	})
}
