package logger

// LogRequest logs HTTP request information at the level matching its status
func LogRequest(method, url string, statusCode int, durationMs float64) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": durationMs,
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		GetLogger().DebugWithFields("HTTP request completed", fields)
	case statusCode >= 400 && statusCode < 500:
		GetLogger().WarnWithFields("HTTP request client error", fields)
	case statusCode >= 500:
		GetLogger().ErrorWithFields("HTTP request server error", fields)
	default:
		GetLogger().InfoWithFields("HTTP request finished", fields)
	}
}

// LogCache logs cache lookups
func LogCache(key string, hit bool) {
	GetLogger().DebugWithFields("cache lookup", map[string]interface{}{
		"key": key,
		"hit": hit,
	})
}

// LogItemFailure logs a work item that exhausted its retry budget
func LogItemFailure(phase, item string, attempts int, err error) {
	fields := map[string]interface{}{
		"phase":    phase,
		"item":     item,
		"attempts": attempts,
	}
	GetLogger().WithFields(fields).WithError(err).Error("item failed after retries")
}
