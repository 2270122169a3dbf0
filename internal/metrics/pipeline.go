package metrics

import "time"

// GeocodeFinished records the result of one reverse-geocoding lookup.
func GeocodeFinished(status string) {
	GeocodeRequests.WithLabelValues(status).Inc()
}

// DeliveryAttempted records one send attempt against a backend.
func DeliveryAttempted(backend string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	DeliveriesTotal.WithLabelValues(backend, status).Inc()
}

// ReportFinished records the terminal status of a submission.
func ReportFinished(status string, duration time.Duration) {
	ReportsTotal.WithLabelValues(status).Inc()
	PipelineDuration.Observe(duration.Seconds())
}

// EventPublished records the result of publishing an outcome event.
func EventPublished(err error) {
	if err != nil {
		EventsPublished.WithLabelValues("failed").Inc()
		return
	}
	EventsPublished.WithLabelValues("ok").Inc()
}
