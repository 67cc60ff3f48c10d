package transfers

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrEmptyAddressData             = errors.New("empty address data")
	ErrInvalidTransactionsProvided  = errors.New("invalid transactions provided")
	ErrEmptyBundleProvided          = errors.New("empty bundle provided")
	ErrEmptyBundlesProvided         = errors.New("empty bundles provided")
	ErrInvalidBundlesProvided       = errors.New("invalid bundles provided")
	ErrInclusionStatesSizeMismatch  = errors.New("inclusion states size mismatch")
	ErrPromotionsLimitReached       = errors.New("promotions limit reached")
	ErrPowFunctionUndefined         = errors.New("proof-of-work function undefined")
	ErrDigestFunctionUndefined      = errors.New("digest function undefined")
	ErrLedgerUndefined              = errors.New("ledger undefined")
	ErrCodecUndefined               = errors.New("codec undefined")
	ErrTransactionIsInconsistent    = errors.New("transaction is inconsistent")
	ErrBundleNoLongerFunded         = errors.New("bundle no longer funded")
	ErrDetectedInputWithZeroBalance = errors.New("detected input with zero balance")
	ErrInvalidTransfer              = errors.New("invalid transfer")
	ErrAlreadySpentFromAddresses    = errors.New("already spent from addresses")
	ErrInvalidBundle                = errors.New("invalid bundle")
	ErrBundleNoLongerValid          = errors.New("bundle no longer valid")
	ErrFundsAtSpentAddresses        = errors.New("funds at spent addresses")
	ErrKeyReuse                     = errors.New("key reuse")
)

var fatalTransactionErrors = []error{
	ErrBundleNoLongerFunded,
	ErrDetectedInputWithZeroBalance,
	ErrInvalidTransfer,
	ErrTransactionIsInconsistent,
	ErrAlreadySpentFromAddresses,
	ErrInvalidBundle,
	ErrBundleNoLongerValid,
	ErrFundsAtSpentAddresses,
	ErrKeyReuse,
}

// IsFatalTransactionError tells whether retrying the transaction can not help
func IsFatalTransactionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, fatal := range fatalTransactionErrors {
		if errors.Is(err, fatal) || strings.Contains(msg, fatal.Error()) {
			return true
		}
	}
	return false
}

// IsTransactionInconsistent matches both the local sentinel and the node's wording
func IsTransactionInconsistent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransactionIsInconsistent) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, ErrTransactionIsInconsistent.Error()) ||
		strings.Contains(msg, "inconsistent subtangle")
}
