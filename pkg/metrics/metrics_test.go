package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("league"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then every metric is registered there", func() {
				So(manager, ShouldNotBeNil)
				manager.matchConflicts.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				So(families[0].GetName(), ShouldStartWith, "test_league_")
			})
		})

		Convey("When two managers share a registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording league metrics", func() {
			before := testutil.ToFloat64(globalManager.matchesCreated.WithLabelValues("COMPETITIVE"))
			RecordMatchCreated("COMPETITIVE")
			RecordMatchConflict()
			RecordNoOpponent()
			RecordMatchmakingDuration(0.01)
			RecordTransition("PROPOSED", "ACCEPTED")
			RecordFinalization("FRIENDLY", true)
			UpdateTeamsByStatus("AVAILABLE", 4)
			UpdateMatchesByStatus("PROPOSED", 2)

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(globalManager.matchesCreated.WithLabelValues("COMPETITIVE")), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.teamsByStatus.WithLabelValues("AVAILABLE")), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.finalizations.WithLabelValues("FRIENDLY", "true")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording sweep metrics", func() {
			before := testutil.ToFloat64(globalManager.sweepItems.WithLabelValues("auto_confirm", "applied"))
			RecordSweepRun("auto_confirm", "ok", 0.2)
			RecordSweepItems("auto_confirm", "applied", 3)
			RecordSweepItems("auto_confirm", "applied", 0)

			Convey("Then only positive counts are added", func() {
				So(testutil.ToFloat64(globalManager.sweepItems.WithLabelValues("auto_confirm", "applied")), ShouldEqual, before+3)
			})
		})

		Convey("When recording transport and delivery metrics", func() {
			So(func() {
				RecordNotificationEnqueued()
				RecordNotificationPublished()
				RecordNotificationDuplicate()
				RecordNotificationFailed("publish")
				UpdateWSConnections(1)
				UpdateQueueSize(3)
				UpdateQueueCapacity(10)
				RecordQueueEnqueueError()
				UpdateWorkerCount(2)
				RecordWorkerProcessingLatency(0.001)
				RecordRepositoryTx("memory", "commit", 0.001)
				RecordRepositoryQueryLatency("memory", "list_teams", 0.001)
				RecordHTTPRequest("/v1/matches/find", "POST", "200")
				RecordHTTPRequestDuration("/v1/matches/find", "POST", "200", 0.02)
				RecordErrorByComponent("app", "conflict")
			}, ShouldNotPanic)
			So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the package registry", t, func() {
		RecordMatchConflict()
		families, err := GetRegistry().Gather()
		So(err, ShouldBeNil)

		names := make([]string, 0, len(families))
		for _, f := range families {
			names = append(names, f.GetName())
		}
		So(names, ShouldContain, "padel_league_match_conflicts_total")
	})
}
