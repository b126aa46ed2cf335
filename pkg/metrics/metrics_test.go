package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithRegistry(registry))

			Convey("Then it should register its collectors", func() {
				So(manager, ShouldNotBeNil)
				manager.analystsCreated.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithPrefix("x"),
				WithRunBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithRegistry(registry),
			)

			Convey("Then metric names should carry namespace, subsystem and prefix", func() {
				manager.analystsCreated.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_x_analysts_created_total")
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording evaluations", func() {
			before := testutil.ToFloat64(globalManager.evaluations.WithLabelValues("BUY", "CORRECT"))
			RecordEvaluation("BUY", "CORRECT", 2.16)

			Convey("Then the outcome counter should grow by one", func() {
				after := testutil.ToFloat64(globalManager.evaluations.WithLabelValues("BUY", "CORRECT"))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When recording the remaining series", func() {
			So(func() {
				RecordRecommendation("SELL")
				RecordAnalystCreated()
				RecordEvaluationError("price_unavailable")
				RecordEvaluatorRun("ok", 150*time.Millisecond)
				UpdatePending(4)
				AddLanesInFlight(1)
				AddLanesInFlight(-1)
				RecordOracleLatency("http", 12)
				RecordOracleError("timeout")
				RecordOracleCache("hit")
				RecordConsensus("HOLD")
				RecordTxConflict()
				RecordHTTPRequest("consensus", "GET", "200")
				RecordHTTPRequestDuration("consensus", "GET", "200", 1.5)
				RecordHTTPError("consensus", "GET", "not_found", "medium")
			}, ShouldNotPanic)

			Convey("Then gauges should hold the last value", func() {
				So(testutil.ToFloat64(globalManager.pendingGauge), ShouldEqual, 4)
			})
		})

		Convey("When recording is switched off", func() {
			SetEnabled(false)
			Reset(func() { SetEnabled(true) })

			before := testutil.ToFloat64(globalManager.evaluations.WithLabelValues("SELL", "NEUTRAL"))
			RecordEvaluation("SELL", "NEUTRAL", 0.1)
			UpdatePending(99)

			Convey("Then recorders leave the collectors untouched", func() {
				So(Enabled(), ShouldBeFalse)
				after := testutil.ToFloat64(globalManager.evaluations.WithLabelValues("SELL", "NEUTRAL"))
				So(after, ShouldEqual, before)
				So(testutil.ToFloat64(globalManager.pendingGauge), ShouldNotEqual, 99)
			})

			Convey("Then switching it back on resumes recording", func() {
				SetEnabled(true)
				RecordEvaluation("SELL", "NEUTRAL", 0.1)
				after := testutil.ToFloat64(globalManager.evaluations.WithLabelValues("SELL", "NEUTRAL"))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("Then the registry should be exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
