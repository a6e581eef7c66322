package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/biotica/internal/domain/ibr"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMeasurement(t *testing.T) {
	Convey("Given a scored measurement", t, func() {
		params := ibr.Parameters{ibr.VCA: 0.9, ibr.MDI: 0.8}
		m := Measurement{
			ID:         "m-1",
			SiteID:     "AMZ_0042",
			Parameters: params,
			Result:     ibr.Compute(params),
			TS:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		}

		Convey("Then Score mirrors the result", func() {
			So(m.Score(), ShouldEqual, m.Result.Score)
		})

		Convey("Then it encodes with wire field names", func() {
			b, err := json.Marshal(m)
			So(err, ShouldBeNil)
			var raw map[string]any
			So(json.Unmarshal(b, &raw), ShouldBeNil)
			So(raw["measurement_id"], ShouldEqual, "m-1")
			So(raw["site_id"], ShouldEqual, "AMZ_0042")
			So(raw["timestamp"], ShouldEqual, "2026-03-01T12:00:00Z")
			result := raw["result"].(map[string]any)
			So(result["classification"], ShouldEqual, "FUNCTIONAL")
		})
	})
}
