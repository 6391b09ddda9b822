package executor

import (
	"context"
	"errors"
	"strings"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

// Classified reasons for submission and confirmation errors.
const (
	ReasonInsufficientFunds   = "insufficient funds"
	ReasonNonceConflict       = "nonce conflict"
	ReasonUnderpriced         = "replacement transaction underpriced"
	ReasonExecutionReverted   = "execution reverted"
	ReasonConfirmationTimeout = "confirmation timeout"
	ReasonSubmissionFailed    = "submission failed"
)

var classifiers = []struct {
	needle string
	reason string
}{
	{"insufficient funds", ReasonInsufficientFunds},
	{"nonce too low", ReasonNonceConflict},
	{"already known", ReasonNonceConflict},
	{"replacement transaction underpriced", ReasonUnderpriced},
	{"execution reverted", ReasonExecutionReverted},
	{"context deadline exceeded", ReasonConfirmationTimeout},
}

// Classify maps an RPC error to a short operator-facing reason.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonConfirmationTimeout
	}
	if errors.Is(err, domain.ErrReverted) {
		return ReasonReverted
	}
	msg := strings.ToLower(err.Error())
	for _, c := range classifiers {
		if strings.Contains(msg, c.needle) {
			return c.reason
		}
	}
	if len(msg) > 120 {
		msg = msg[:120]
	}
	return ReasonSubmissionFailed + ": " + msg
}
