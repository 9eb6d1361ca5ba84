// Package retry provides a bounded-attempt retry executor with pluggable
// backoff strategies. The harvester uses ConstantBackoff: a flat fixed delay
// that does not grow between attempts.
package retry
