package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/okian/biotica/internal/adapters/http/ws"
	"github.com/okian/biotica/internal/adapters/repository"
	app "github.com/okian/biotica/internal/app"
	"github.com/okian/biotica/internal/config"
	"github.com/okian/biotica/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestNewMux(t *testing.T) {
	convey.Convey("Given a started service and its mux", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)
		ctx := context.Background()
		cfg := config.New(ctx)

		svc := app.New(app.WithWorkerCount(2), app.WithQueueSize(16))
		hub := ws.New(ws.LeaderboardFunc(func(ctx context.Context, n int) ([]repository.Entry, error) {
			return svc.TopN(ctx, n)
		}))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		mux := newMux(ctx, cfg, svc, hub)
		get := func(path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			return w
		}

		convey.Convey("Then every surface is routed", func() {
			convey.So(get("/healthz").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/openapi.json").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/api-docs").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/docs/").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/dashboard").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/leaderboard").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/rank/nowhere").Code, convey.ShouldEqual, http.StatusNotFound)
		})

		convey.Convey("And a computed measurement shows up on the leaderboard", func() {
			body := `{"measurement_id":"m-1","site_id":"plot-1","parameters":{"VCA":0.9,"MDI":0.9}}`
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ibr", strings.NewReader(body)))
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)

			lb := get("/leaderboard")
			convey.So(lb.Body.String(), convey.ShouldContainSubstring, `"site_id":"plot-1"`)
		})

		convey.Convey("And the websocket route needs an upgrade", func() {
			convey.So(get("/ws").Code, convey.ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given the server entrypoint", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)

		convey.Convey("When the configuration is invalid", func() {
			_ = os.Setenv("BIOTICA_TIPPING_WINDOW", "1")
			defer func() { _ = os.Unsetenv("BIOTICA_TIPPING_WINDOW") }()

			err := run(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "tipping_window")
		})

		convey.Convey("When the context is cancelled it shuts down cleanly", func() {
			_ = os.Setenv("BIOTICA_ADDR", "127.0.0.1:0")
			defer func() { _ = os.Unsetenv("BIOTICA_ADDR") }()

			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()
			convey.So(run(ctx), convey.ShouldBeNil)
		})
	})
}

func TestApplyLogLevel(t *testing.T) {
	convey.Convey("Given the global logger", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)
		ctx := context.Background()

		applyLogLevel(ctx, "debug")
		convey.So(logger.Level(), convey.ShouldEqual, slog.LevelDebug)

		applyLogLevel(ctx, "shouting")
		convey.So(logger.Level(), convey.ShouldEqual, slog.LevelInfo)
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background metrics updaters", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)

		convey.Convey("System metrics update without panicking", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Service metrics update for a stopped service", func() {
			svc := app.New()
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("The updaters return when the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				startServiceMetricsUpdater(ctx, app.New())
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("metrics updaters did not stop")
			}
		})
	})
}
