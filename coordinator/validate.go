package coordinator

import (
	"fmt"
	"regexp"

	"github.com/runledger/runledger/domain"
)

var metricNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9./_\-]{0,255}$`)
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

const reservedMetricPrefix = "_mlrun."

const (
	maxParamValueBytes = 4 * 1024
	maxTagValueBytes   = 1024
)

// validMetricName reports whether name is acceptable for LogMetrics.
func validMetricName(name string) bool {
	if !metricNamePattern.MatchString(name) {
		return false
	}
	return len(name) < len(reservedMetricPrefix) || name[:len(reservedMetricPrefix)] != reservedMetricPrefix
}

// validID checks the shared run-id/batch-id character-set and length cap.
func validID(id string) bool {
	return idPattern.MatchString(id)
}

// checkHardLimits enforces the request-level caps of §6 that reject with
// invalid_argument rather than degrade with a warning.
func checkHardLimits(runID, batchID string, pointCount int, serializedBytes int, maxPoints, maxBytes int) error {
	if !validID(runID) {
		return fmt.Errorf("%w: run_id must match [A-Za-z0-9_-]{1,64}", domain.ErrInvalidArgument)
	}
	if !validID(batchID) {
		return fmt.Errorf("%w: batch_id must match [A-Za-z0-9_-]{1,64}", domain.ErrInvalidArgument)
	}
	if pointCount > maxPoints {
		return fmt.Errorf("%w: batch of %d points exceeds the %d point cap", domain.ErrInvalidArgument, pointCount, maxPoints)
	}
	if serializedBytes > maxBytes {
		return fmt.Errorf("%w: batch of %d bytes exceeds the %d byte cap", domain.ErrInvalidArgument, serializedBytes, maxBytes)
	}
	return nil
}
