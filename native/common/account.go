package common

import (
	"strings"

	sdkmath "cosmossdk.io/math"

	stakeerrors "stakegov/core/errors"
)

const maxAccountLength = 128

// NormalizeAccount trims the supplied account identifier and rejects blank or
// oversized values. Address formats are owned by the ledger; the engine only
// treats accounts as opaque keys.
func NormalizeAccount(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", stakeerrors.InvalidArgument("account must not be empty")
	}
	if len(trimmed) > maxAccountLength {
		return "", stakeerrors.InvalidArgument("account exceeds %d characters", maxAccountLength)
	}
	if strings.ContainsAny(trimmed, " \t\r\n*:") {
		return "", stakeerrors.InvalidArgument("account %q contains reserved characters", trimmed)
	}
	return trimmed, nil
}

// RequirePositive rejects nil, zero or negative amounts.
func RequirePositive(field string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return stakeerrors.InvalidArgument("%s must be positive", field)
	}
	return nil
}

// ZeroIfNil returns zero for an uninitialised amount.
func ZeroIfNil(amount sdkmath.Int) sdkmath.Int {
	if amount.IsNil() {
		return sdkmath.ZeroInt()
	}
	return amount
}
