package farm

import (
	"errors"

	nativecommon "yetifarm/native/common"
)

var (
	errNilState   = errors.New("farm engine: state not configured")
	errNilGateway = errors.New("farm engine: asset gateway not configured")
	errNilClock   = errors.New("farm engine: clock not configured")

	// ErrInvalidAccount reports an operation on the zero address or on the
	// farm's own custody account.
	ErrInvalidAccount = errors.New("farm engine: account required")
	// ErrInvalidAmount reports a zero, negative or out-of-range quantity.
	ErrInvalidAmount = errors.New("farm engine: amount must be positive")
	// ErrInsufficientBalance reports a withdrawal above the staked balance.
	ErrInsufficientBalance = errors.New("farm engine: insufficient staked balance")
	// ErrInvalidDuration reports a zero-length or overflowing reward period.
	ErrInvalidDuration = errors.New("farm engine: reward duration must be positive")
	// ErrInsufficientFunding reports a reward rate the farm's reward balance
	// cannot back for the full period.
	ErrInsufficientFunding = errors.New("farm engine: provided reward too high")
	// ErrAssetTransferFailed wraps every failure reported by an asset gateway.
	ErrAssetTransferFailed = errors.New("farm engine: asset transfer failed")
	// ErrReentrant reports a mutation attempted while another is in flight.
	ErrReentrant = nativecommon.ErrReentrant
	// ErrModulePaused reports a mutation attempted while the farm is paused.
	ErrModulePaused = nativecommon.ErrModulePaused
)
