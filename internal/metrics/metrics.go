package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbook_reservations_created_total",
		Help: "Total number of reservations successfully created.",
	})

	ReservationsReplacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbook_reservations_replaced_total",
		Help: "Total number of reservations superseded by a replacement.",
	})

	ReservationsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbook_reservations_cancelled_total",
		Help: "Total number of reservations cancelled.",
	})

	PickupsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbook_pickups_recorded_total",
		Help: "Total number of pickups recorded.",
	})

	ReturnsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbook_returns_recorded_total",
		Help: "Total number of returns recorded.",
	})

	BookingConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbook_booking_conflicts_total",
		Help: "Total number of create/replace requests rejected because of overlapping reservations.",
	})

	LockTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbook_lock_timeouts_total",
		Help: "Total number of per-car lock acquisitions that timed out.",
	})

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carbook_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	ActiveReservationCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "carbook_active_reservation_cache_items",
		Help: "Current number of items in the active reservation cache.",
	})
)
