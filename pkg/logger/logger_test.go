package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given a logger writing text to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithOutput(&buf)), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging at info level", func() {
			Get().Info(ctx, "computed", String("class", "FUNCTIONAL"), Float64("ibr", 0.83))

			Convey("Then the message and fields are written", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "msg=computed")
				So(out, ShouldContainSubstring, "class=FUNCTIONAL")
				So(out, ShouldContainSubstring, "ibr=0.83")
			})

			Convey("And the call site is recorded", func() {
				So(buf.String(), ShouldContainSubstring, "logger_test.go:")
			})
		})

		Convey("When logging below the active level", func() {
			Get().Debug(ctx, "hidden")

			Convey("Then nothing is written", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the level is lowered", func() {
			So(SetLevelString("debug"), ShouldBeNil)
			Get().Debug(ctx, "visible")

			Convey("Then debug messages appear", func() {
				So(buf.String(), ShouldContainSubstring, "msg=visible")
				So(Level(), ShouldEqual, slog.LevelDebug)
			})
		})

		Convey("When using a named logger with bound fields", func() {
			Named("worker").With(Int("id", 3)).Warn(ctx, "slow", Error(errors.New("boom")))

			Convey("Then the component and bound fields are included", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "component=worker")
				So(out, ShouldContainSubstring, "id=3")
				So(out, ShouldContainSubstring, "error=boom")
			})
		})
	})
}

func TestLoggerJSON(t *testing.T) {
	Convey("Given a JSON logger without source", t, func() {
		var buf bytes.Buffer
		So(Init(WithOutput(&buf), WithJSON(true), WithSource(false)), ShouldBeNil)

		Get().Error(context.Background(), "failed", String("op", "store.put"))

		Convey("Then a single JSON line is written", func() {
			line := strings.TrimSpace(buf.String())
			So(line, ShouldStartWith, "{")
			So(line, ShouldContainSubstring, `"op":"store.put"`)
			So(line, ShouldNotContainSubstring, `"source"`)
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given the level parser", t, func() {
		So(Init(WithOutput(&bytes.Buffer{})), ShouldBeNil)

		Convey("Then known names are accepted", func() {
			for _, lvl := range []string{"debug", "INFO", " warn ", "warning", "error", ""} {
				So(SetLevelString(lvl), ShouldBeNil)
			}
		})

		Convey("Then unknown names are rejected", func() {
			So(SetLevelString("verbose"), ShouldNotBeNil)
		})
	})
}
