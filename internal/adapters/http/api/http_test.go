package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pointsledger/internal/adapters/http/api"
	"github.com/okian/pointsledger/internal/adapters/mq/worker"
	"github.com/okian/pointsledger/internal/adapters/repository"
	service "github.com/okian/pointsledger/internal/app"
	"github.com/okian/pointsledger/internal/domain/failure"
	"github.com/okian/pointsledger/internal/domain/model"
	"github.com/okian/pointsledger/internal/domain/resolve"
	"github.com/okian/pointsledger/pkg/logger"
)

// stubRunner resolves every fetchable participant to 100 points.
type stubRunner struct{}

func (stubRunner) RunBatch(_ context.Context, ps []model.Participant, progress worker.ProgressFunc) worker.BatchResult {
	res := worker.BatchResult{Outcomes: make([]resolve.Outcome, len(ps)), Status: worker.BatchCompleted}
	for i, p := range ps {
		if p.HasValidProfile() {
			res.Outcomes[i] = resolve.Outcome{ParticipantID: p.ID, Points: 100, Status: resolve.StatusSuccess, Attempts: 1}
			res.Succeeded++
		} else {
			res.Outcomes[i] = resolve.Fallback(p.ID, 0, failure.KindInvalidProfile, 0, nil)
			res.Failed++
		}
		if progress != nil {
			progress(i+1, len(ps))
		}
	}
	return res
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	st, err := repository.Open(context.Background(), repository.SQLite, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc := service.New(st, stubRunner{}, service.WithBatchSize(2), service.WithLogger(logger.Nop()))
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, contentType, body, account string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if account != "" {
		req.Header.Set(api.AccountHeader, account)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

const uploadJSON = `{"source":"week1.json","participants":[
	{"name":"Ada","profileRef":"https://profiles.test/ada"},
	{"name":"Bob","profileRef":"https://profiles.test/bob"},
	{"name":"Cy"}
]}`

func TestJobsEndpoints(t *testing.T) {
	Convey("Given the API", t, func() {
		mux := newTestMux(t)

		Convey("When a JSON upload is posted", func() {
			w := do(mux, http.MethodPost, "/jobs", "application/json", uploadJSON, "acme")
			body := decode(w)
			id, _ := body["id"].(string)

			Convey("Then a parsed job is created", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(w.Header().Get("Location"), ShouldEqual, "/jobs/"+id)
				So(body["status"], ShouldEqual, "parsed")
				So(body["batches"], ShouldHaveLength, 2)
			})

			Convey("Then the owner can read it", func() {
				g := do(mux, http.MethodGet, "/jobs/"+id, "", "", "acme")
				So(g.Code, ShouldEqual, http.StatusOK)
				So(decode(g)["source"], ShouldEqual, "week1.json")
			})

			Convey("Then another account cannot see it", func() {
				g := do(mux, http.MethodGet, "/jobs/"+id, "", "", "globex")
				So(g.Code, ShouldEqual, http.StatusNotFound)
			})

			Convey("Then finalizing early conflicts", func() {
				f := do(mux, http.MethodPost, "/jobs/"+id+"/finalize", "", "", "acme")
				So(f.Code, ShouldEqual, http.StatusConflict)
			})

			Convey("Then batches can be stepped through and finalized", func() {
				So(do(mux, http.MethodPost, "/jobs/"+id+"/next", "", "", "acme").Code, ShouldEqual, http.StatusOK)
				n := do(mux, http.MethodPost, "/jobs/"+id+"/next", "", "", "acme")
				So(n.Code, ShouldEqual, http.StatusOK)
				So(decode(n)["progress"].(map[string]any)["percent"], ShouldEqual, 100)

				extra := do(mux, http.MethodPost, "/jobs/"+id+"/next", "", "", "acme")
				So(extra.Code, ShouldEqual, http.StatusConflict)
				So(decode(extra)["code"], ShouldEqual, "no_pending_batch")

				f := do(mux, http.MethodPost, "/jobs/"+id+"/finalize", "", "", "acme")
				So(f.Code, ShouldEqual, http.StatusOK)
				report := decode(f)
				entries := report["entries"].([]any)
				So(entries, ShouldHaveLength, 3)
				So(entries[0].(map[string]any)["weeklyDelta"], ShouldEqual, "N/A (first upload)")
				So(report["summary"].(map[string]any)["succeeded"], ShouldEqual, 2)
			})
		})

		Convey("When a CSV upload asks to run", func() {
			csv := "Name,profile,mail\nAda,https://profiles.test/ada,ada@test\nBob,,\n"
			w := do(mux, http.MethodPost, "/jobs?run=true&source=team.csv", "text/csv; charset=utf-8", csv, "")

			Convey("Then the job comes back completed with its report", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["job"].(map[string]any)["status"], ShouldEqual, "completed")
				So(body["job"].(map[string]any)["account"], ShouldEqual, api.DefaultAccount)
				So(body["report"].(map[string]any)["entries"], ShouldHaveLength, 2)
			})
		})

		Convey("When uploads are malformed", func() {
			cases := []struct {
				name        string
				contentType string
				body        string
				status      int
			}{
				{"csv without profile column", "text/csv", "Name\nAda\n", http.StatusBadRequest},
				{"csv with an empty name", "text/csv", "Name,profile\n,x\n", http.StatusBadRequest},
				{"broken json", "application/json", "{", http.StatusBadRequest},
				{"json with an empty name", "application/json", `{"participants":[{"name":""}]}`, http.StatusBadRequest},
				{"csv with only a header", "text/csv", "Name,profile,mail\n", http.StatusBadRequest},
				{"json without participants", "application/json", `{"participants":[]}`, http.StatusBadRequest},
				{"xml", "application/xml", "<x/>", http.StatusUnsupportedMediaType},
			}
			for _, tc := range cases {
				Convey("Then "+tc.name+" is rejected", func() {
					w := do(mux, http.MethodPost, "/jobs", tc.contentType, tc.body, "acme")
					So(w.Code, ShouldEqual, tc.status)
				})
			}
		})

		Convey("When an unknown job is requested", func() {
			w := do(mux, http.MethodGet, "/jobs/nope", "", "", "acme")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decode(w)["code"], ShouldEqual, "not_found")
			})
		})
	})
}

func TestRefreshAndParticipants(t *testing.T) {
	Convey("Given the API with no data", t, func() {
		mux := newTestMux(t)

		Convey("Then a refresh is allowed but has nothing to do", func() {
			n := do(mux, http.MethodGet, "/refresh/next", "", "", "acme")
			So(n.Code, ShouldEqual, http.StatusOK)
			So(decode(n)["canRefresh"], ShouldBeTrue)

			r := do(mux, http.MethodPost, "/refresh", "", "", "acme")
			So(r.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("When an upload has been run", func() {
			w := do(mux, http.MethodPost, "/jobs?run=1", "application/json", uploadJSON, "acme")
			So(w.Code, ShouldEqual, http.StatusOK)

			Convey("Then a refresh is blocked by the cooldown", func() {
				r := do(mux, http.MethodPost, "/refresh", "", "", "acme")
				So(r.Code, ShouldEqual, http.StatusConflict)
				So(decode(r)["code"], ShouldEqual, "cooldown_active")
				So(r.Header().Get("Retry-After"), ShouldNotBeEmpty)

				n := decode(do(mux, http.MethodGet, "/refresh/next", "", "", "acme"))
				So(n["canRefresh"], ShouldBeFalse)
				So(n["timeRemaining"], ShouldStartWith, "6d 23h")
			})

			Convey("Then standings and history are listed", func() {
				p := do(mux, http.MethodGet, "/participants", "", "", "acme")
				So(p.Code, ShouldEqual, http.StatusOK)
				list := decode(p)["participants"].([]any)
				So(list, ShouldHaveLength, 3)

				first := list[0].(map[string]any)
				id := int64(first["id"].(float64))
				h := do(mux, http.MethodGet, "/participants/"+jsonInt(id)+"/history", "", "", "acme")
				So(h.Code, ShouldEqual, http.StatusOK)
				So(decode(h)["records"], ShouldHaveLength, 1)

				other := do(mux, http.MethodGet, "/participants/"+jsonInt(id)+"/history", "", "", "globex")
				So(other.Code, ShouldEqual, http.StatusNotFound)
			})

			Convey("Then a malformed participant id is a bad request", func() {
				h := do(mux, http.MethodGet, "/participants/abc/history", "", "", "acme")
				So(h.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestStatsAndHealth(t *testing.T) {
	Convey("Given the API", t, func() {
		mux := newTestMux(t)

		Convey("Then stats are served as JSON", func() {
			w := do(mux, http.MethodGet, "/stats", "", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w), ShouldContainKey, "participants")
		})

		Convey("Then healthz exposes Prometheus metrics", func() {
			do(mux, http.MethodGet, "/stats", "", "", "")
			w := do(mux, http.MethodGet, "/healthz", "", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "points_ledger_http_requests_total")
		})

		Convey("Then requests are counted under the status actually sent", func() {
			do(mux, http.MethodGet, "/jobs/missing", "", "", "acme")
			w := do(mux, http.MethodGet, "/healthz", "", "", "")
			So(w.Body.String(), ShouldContainSubstring, `endpoint="jobs_get",method="GET",status_code="404"`)
		})

		Convey("Then wrong methods are refused by the router", func() {
			w := do(mux, http.MethodDelete, "/jobs", "", "", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given operation-tagged errors", t, func() {
		Convey("Then wrapping nil stays nil", func() {
			So(api.Wrap("op", nil), ShouldBeNil)
		})

		Convey("Then kinds are derived from service errors", func() {
			err := api.Wrap("api.get_job", service.ErrJobNotFound)
			So(errors.Is(err, api.ErrNotFound), ShouldBeTrue)
			So(errors.Is(err, service.ErrJobNotFound), ShouldBeTrue)
			So(err.Error(), ShouldStartWith, "api.get_job: not found")

			So(errors.Is(api.Wrap("x", service.ErrCooldownActive), api.ErrConflict), ShouldBeTrue)
			So(errors.Is(api.Wrap("x", errors.New("boom")), api.ErrInternal), ShouldBeTrue)
		})

		Convey("Then explicit kinds are kept", func() {
			err := api.WrapKind("x", api.ErrBadRequest, errors.New("eof"))
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(api.NewKind("x", api.ErrConflict).Error(), ShouldEqual, "x: conflict")
		})
	})
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
