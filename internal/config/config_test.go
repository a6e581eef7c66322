package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/okian/biotica/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.StoreDriver, convey.ShouldEqual, "memory")
			convey.So(cfg.TippingWindow, convey.ShouldEqual, 24)
			convey.So(cfg.RidgeNoiseSD, convey.ShouldEqual, 0.05)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("A tipping window below three is rejected", func() {
			cfg.TippingWindow = 2
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "tipping_window")
		})

		convey.Convey("An unknown store driver is rejected", func() {
			cfg.StoreDriver = "redis"
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("A SQL driver needs a DSN", func() {
			cfg.StoreDriver = "sqlite"
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			cfg.StoreDSN = "file:biotica.db"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Non-positive noise is rejected", func() {
			cfg.RidgeNoiseSD = 0
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})
	})
}
