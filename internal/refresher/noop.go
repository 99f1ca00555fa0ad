package refresher

// NoOpRefresher is used when background refresh is disabled. Jobs are
// dropped and reported as such.
type NoOpRefresher struct{}

// Enqueue drops the job and reports false.
func (NoOpRefresher) Enqueue(job Job) bool {
	return false
}

// RefresherMetrics always returns zero values.
func (NoOpRefresher) RefresherMetrics() (enqueued, dropped, refreshed, errors int64) {
	return 0, 0, 0, 0
}

// Close does nothing and returns nil.
func (NoOpRefresher) Close() error {
	return nil
}
