package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operation reference prefixes. The webhook reconciler uses them to tell a
// deposit confirmation apart from a withdrawal confirmation.
const (
	DepositReferencePrefix    = "DEP_"
	WithdrawalReferencePrefix = "WTH_"
)

// newOperationReference builds a reference that is unique per call: prefix,
// nanosecond timestamp, and a fresh random suffix so rapid calls for the
// same account never collide.
func newOperationReference(prefix string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%s%d_%s", prefix, time.Now().UnixNano(), suffix[:12])
}
