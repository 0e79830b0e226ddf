package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	attendanceWritesTotal *prometheus.CounterVec
	bulkRecordsTotal      *prometheus.CounterVec
	requestLatencySeconds *prometheus.HistogramVec
	requestsTotal         *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		attendanceWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_writes_total",
			Help: "Attendance write attempts partitioned by actor role, conflict scope and outcome.",
		}, []string{"role", "scope", "outcome"})

		bulkRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_bulk_records_total",
			Help: "Per-record outcomes of bulk attendance submissions.",
		}, []string{"outcome"})

		requestLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		prometheus.MustRegister(attendanceWritesTotal, bulkRecordsTotal, requestLatencySeconds, requestsTotal)
	})
}

// AttendanceWrites exposes the counter for attendance write outcomes.
func AttendanceWrites() *prometheus.CounterVec {
	RegisterMetrics()
	return attendanceWritesTotal
}

// BulkRecords exposes the counter for bulk per-record outcomes.
func BulkRecords() *prometheus.CounterVec {
	RegisterMetrics()
	return bulkRecordsTotal
}

// RequestLatency exposes the latency histogram for API requests.
func RequestLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return requestLatencySeconds
}

// Requests exposes the counter for served requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}
