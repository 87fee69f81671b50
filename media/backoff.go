package media

import (
	"math"
	"time"
)

// maxErrorSleep caps the backoff between failed reads.
const maxErrorSleep = 2 * time.Second

// sleepTimeFromErrorCount backs off exponentially with consecutive read errors.
func sleepTimeFromErrorCount(errCount int) time.Duration {
	expBackoff := math.Pow(6.0, float64(errCount)) * float64(time.Millisecond)
	if expBackoff >= float64(maxErrorSleep) {
		return maxErrorSleep
	}
	return time.Duration(expBackoff)
}
