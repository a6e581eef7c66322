package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/biotica/internal/adapters/repository"
	service "github.com/okian/biotica/internal/app"
	"github.com/okian/biotica/internal/domain/ibr"
	"github.com/okian/biotica/internal/domain/model"
	"github.com/okian/biotica/internal/domain/stats"
	"github.com/okian/biotica/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func startService(opts ...service.Option) *service.Service {
	svc := service.New(append([]service.Option{
		service.WithWorkerCount(2),
		service.WithQueueSize(100),
		service.WithDedupeSize(100),
	}, opts...)...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

type recorder struct {
	ch chan model.Measurement
}

func (r *recorder) Publish(_ context.Context, m model.Measurement) { r.ch <- m }

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()

		Convey("Then reads fail before Start", func() {
			_, err := svc.TopN(context.Background(), 1)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Submit(context.Background(), model.Submission{Parameters: ibr.Parameters{ibr.VCA: 0.5}})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("When started and stopped", func() {
			ctx := context.Background()
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it reports stopped and a second Stop is a no-op", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(svc.Stop(ctx), ShouldBeNil)
			})
		})
	})
}

func TestService_Compute(t *testing.T) {
	Convey("Given a started service with a publisher", t, func() {
		pub := &recorder{ch: make(chan model.Measurement, 4)}
		svc := startService(service.WithPublisher(pub))
		defer svc.Stop(context.Background())
		ctx := context.Background()
		params := ibr.Parameters{ibr.VCA: 0.9, ibr.MDI: 0.85}

		Convey("When computing without a measurement id", func() {
			m, err := svc.Compute(ctx, "", "", params, time.Time{})

			Convey("Then the result is returned but not stored", func() {
				So(err, ShouldBeNil)
				So(m.Result.Score, ShouldAlmostEqual, ibr.Compute(params).Score, 1e-12)
				So(m.TS.IsZero(), ShouldBeFalse)
				So(svc.GetStats()["totalSites"], ShouldEqual, 0)
			})
		})

		Convey("When computing with a measurement id and no site", func() {
			m, err := svc.Compute(ctx, "m-1", "", params, time.Time{})
			So(err, ShouldBeNil)

			Convey("Then it is stored under the id as site and published", func() {
				So(m.SiteID, ShouldEqual, "m-1")
				got, err := svc.Measurement(ctx, "m-1")
				So(err, ShouldBeNil)
				So(got.Result.Classification, ShouldEqual, m.Result.Classification)
				e, err := svc.Rank(ctx, "m-1")
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 1)
				So((<-pub.ch).ID, ShouldEqual, "m-1")
			})
		})

		Convey("When a parameter is out of range", func() {
			_, err := svc.Compute(ctx, "m-2", "", ibr.Parameters{ibr.VCA: 1.5}, time.Time{})

			Convey("Then an invalid parameter error names it", func() {
				var ipe *ibr.InvalidParameterError
				So(errors.As(err, &ipe), ShouldBeTrue)
				So(ipe.Messages[0], ShouldContainSubstring, "VCA")
				_, err = svc.Measurement(ctx, "m-2")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a back-dated measurement follows a current one", func() {
			_, err := svc.Compute(ctx, "now", "plot-t", ibr.Parameters{ibr.VCA: 0.4}, time.Time{})
			So(err, ShouldBeNil)
			old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
			m, err := svc.Compute(ctx, "old", "plot-t", ibr.Parameters{ibr.VCA: 0.95}, old)
			So(err, ShouldBeNil)

			Convey("Then it keeps its timestamp and does not replace the latest", func() {
				So(m.TS.Equal(old), ShouldBeTrue)
				got, err := svc.Measurement(ctx, "old")
				So(err, ShouldBeNil)
				So(got.TS.Equal(old), ShouldBeTrue)
				e, err := svc.Rank(ctx, "plot-t")
				So(err, ShouldBeNil)
				So(e.MeasurementID, ShouldEqual, "now")
			})
		})
	})
}

func TestService_Submit(t *testing.T) {
	Convey("Given a started service", t, func() {
		pub := &recorder{ch: make(chan model.Measurement, 16)}
		svc := startService(service.WithPublisher(pub))
		defer svc.Stop(context.Background())
		ctx := context.Background()

		Convey("When a submission is accepted", func() {
			r, err := svc.Submit(ctx, model.Submission{ID: "m-1", SiteID: "plot", Parameters: ibr.Parameters{ibr.VCA: 0.7}})
			So(err, ShouldBeNil)
			So(r.Status, ShouldEqual, model.StatusAccepted)

			Convey("Then a worker scores and stores it", func() {
				select {
				case m := <-pub.ch:
					So(m.ID, ShouldEqual, "m-1")
					So(m.Result.Score, ShouldAlmostEqual, 0.7, 1e-12)
				case <-time.After(2 * time.Second):
					So("timeout", ShouldBeEmpty)
				}
				e, err := svc.Rank(ctx, "plot")
				So(err, ShouldBeNil)
				So(e.MeasurementID, ShouldEqual, "m-1")
			})

			Convey("Then resubmitting the id is a duplicate", func() {
				r, err := svc.Submit(ctx, model.Submission{ID: "m-1", Parameters: ibr.Parameters{ibr.VCA: 0.7}})
				So(err, ShouldBeNil)
				So(r.Duplicate, ShouldBeTrue)
				So(r.Status, ShouldEqual, model.StatusDuplicate)
			})
		})

		Convey("When the submission has no id", func() {
			r, err := svc.Submit(ctx, model.Submission{Parameters: ibr.Parameters{ibr.MDI: 0.4}})

			Convey("Then one is generated and used as the site", func() {
				So(err, ShouldBeNil)
				So(r.MeasurementID, ShouldNotBeEmpty)
				So(r.SiteID, ShouldEqual, r.MeasurementID)
			})
		})

		Convey("When the submission is invalid", func() {
			_, err := svc.Submit(ctx, model.Submission{ID: "bad", Parameters: ibr.Parameters{ibr.VCA: -0.1}})

			Convey("Then it is rejected synchronously", func() {
				So(errors.Is(err, ibr.ErrInvalidParameter), ShouldBeTrue)
			})
		})
	})

	Convey("Given a service whose queue is full", t, func() {
		svc := service.New(service.WithWorkerCount(1), service.WithQueueSize(1))
		ctx, cancel := context.WithCancel(context.Background())
		So(svc.Start(ctx), ShouldBeNil)
		// Stop the workers so nothing drains the queue.
		cancel()
		defer svc.Stop(context.Background())
		time.Sleep(20 * time.Millisecond)

		Convey("When submitting past capacity", func() {
			var backpressure error
			for i := 0; i < 5 && backpressure == nil; i++ {
				_, backpressure = svc.Submit(context.Background(), model.Submission{
					ID:         "m-" + string(rune('a'+i)),
					Parameters: ibr.Parameters{ibr.VCA: 0.5},
				})
			}

			Convey("Then ErrBackpressure is returned and the id can be retried", func() {
				So(errors.Is(backpressure, service.ErrBackpressure), ShouldBeTrue)
			})
		})
	})
}

func TestService_HistoryAndSummary(t *testing.T) {
	Convey("Given a site with a long score history", t, func() {
		svc := startService(service.WithTippingWindow(5))
		defer svc.Stop(context.Background())
		ctx := context.Background()

		for i := 0; i < 12; i++ {
			v := 0.5 + 0.02*float64(i%3)
			_, err := svc.Compute(ctx, "m-"+string(rune('a'+i)), "plot", ibr.Parameters{ibr.VCA: v}, time.Time{})
			So(err, ShouldBeNil)
		}
		_, err := svc.Compute(ctx, "other", "plot-2", ibr.Parameters{ibr.VCA: 0.95}, time.Time{})
		So(err, ShouldBeNil)

		Convey("Then history lists them oldest first with a tipping-point check", func() {
			h, err := svc.History(ctx, "plot", 0, 0)
			So(err, ShouldBeNil)
			So(len(h.Measurements), ShouldEqual, 12)
			So(h.Measurements[0].ID, ShouldEqual, "m-a")
			So(h.Tipping, ShouldNotBeNil)
			So(h.Tipping.Window, ShouldEqual, 5)
		})

		Convey("Then a short history skips the check", func() {
			h, err := svc.History(ctx, "plot", 3, 0)
			So(err, ShouldBeNil)
			So(len(h.Scores), ShouldEqual, 3)
			So(h.Tipping, ShouldBeNil)
		})

		Convey("Then an unknown site is not found", func() {
			_, err := svc.History(ctx, "nowhere", 0, 0)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Then the summary covers the latest result of each site", func() {
			sum, err := svc.Summary(ctx)
			So(err, ShouldBeNil)
			So(sum.N, ShouldEqual, 2)
			So(sum.ClassificationCounts[ibr.Pristine], ShouldEqual, 1)
		})
	})
}

func TestService_Diagnostics(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := startService()
		defer svc.Stop(context.Background())
		ctx := context.Background()

		table, err := stats.NewTable(
			[]string{"VCA", "MDI", "ibr"},
			[][]float64{
				{0.2, 0.4, 0.6, 0.8, 0.5, 0.3},
				{0.9, 0.1, 0.5, 0.3, 0.7, 0.2},
				{0.31, 0.25, 0.49, 0.52, 0.55, 0.22},
			},
		)
		So(err, ShouldBeNil)

		Convey("Then describe and correlate run", func() {
			So(len(svc.Describe(ctx, table)), ShouldEqual, 3)
			cm, err := svc.Correlate(ctx, table, stats.Pearson)
			So(err, ShouldBeNil)
			So(len(cm.Columns), ShouldEqual, 3)
		})

		Convey("Then Bayesian weights use canonical priors", func() {
			est, err := svc.EstimateWeights(ctx, table, "ibr", stats.Bayes)
			So(err, ShouldBeNil)
			So(est.PosteriorSD, ShouldContainKey, "VCA")
			priors := service.CanonicalPriors()
			So(priors["VCA"].Mean, ShouldAlmostEqual, 0.20, 1e-12)
		})

		Convey("Then the tipping-point check uses the default window when none is given", func() {
			_, err := svc.DetectTippingPoint(ctx, []float64{1, 2, 3}, 0, true)
			So(errors.Is(err, stats.ErrInsufficientData), ShouldBeTrue)
		})

		Convey("Then sensitivity sweeps one or all parameters", func() {
			base := ibr.Parameters{ibr.VCA: 0.8, ibr.MDI: 0.6}
			one, err := svc.Sensitivity(ctx, base, ibr.VCA, 5)
			So(err, ShouldBeNil)
			So(len(one), ShouldEqual, 1)
			all, err := svc.Sensitivity(ctx, base, "", 5)
			So(err, ShouldBeNil)
			So(len(all), ShouldEqual, len(ibr.Codes()))
			_, err = svc.Sensitivity(ctx, base, "XYZ", 5)
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})
	})
}
