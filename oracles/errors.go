package oracles

import "errors"

var (
	// ErrNotEligible indicates the caller doesn't hold the role or
	// relationship the call requires.
	ErrNotEligible = errors.New("not eligible")
	// ErrAlreadyRegistered indicates the address already holds a role.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrAlreadyVoted indicates the verifier already voted in the round.
	ErrAlreadyVoted = errors.New("already voted")
	// ErrAlreadyClaimed indicates the re-encryption job is taken or done.
	ErrAlreadyClaimed = errors.New("already claimed")
	// ErrAlreadyFinalized indicates the vote or job was already finalized.
	ErrAlreadyFinalized = errors.New("already finalized")
	// ErrAlreadySettled indicates the round reward was already distributed.
	ErrAlreadySettled = errors.New("already settled")
	// ErrWindowClosed indicates the time window for the call has passed.
	ErrWindowClosed = errors.New("window closed")
	// ErrWindowNotYetClosed indicates the call must wait for a window to end.
	ErrWindowNotYetClosed = errors.New("window not yet closed")
	// ErrTooEarly indicates the minimum work time hasn't elapsed.
	ErrTooEarly = errors.New("too early")
	// ErrPreconditionNotMet indicates a cross-component ordering violation.
	ErrPreconditionNotMet = errors.New("precondition not met")
	// ErrInsufficientFunds indicates the attached value or balance is too low.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidIndex indicates the vote index doesn't exist or isn't the caller's.
	ErrInvalidIndex = errors.New("invalid index")
	// ErrNotClaimant indicates the caller isn't the holder of the job.
	ErrNotClaimant = errors.New("not claimant")
	// ErrNotFound indicates the record doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument indicates malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Kinds lists every sentinel error with its taxonomy name.
var Kinds = []struct {
	Name string
	Err  error
}{
	{"NotEligible", ErrNotEligible},
	{"AlreadyRegistered", ErrAlreadyRegistered},
	{"AlreadyVoted", ErrAlreadyVoted},
	{"AlreadyClaimed", ErrAlreadyClaimed},
	{"AlreadyFinalized", ErrAlreadyFinalized},
	{"AlreadySettled", ErrAlreadySettled},
	{"WindowClosed", ErrWindowClosed},
	{"WindowNotYetClosed", ErrWindowNotYetClosed},
	{"TooEarly", ErrTooEarly},
	{"PreconditionNotMet", ErrPreconditionNotMet},
	{"InsufficientFunds", ErrInsufficientFunds},
	{"InvalidIndex", ErrInvalidIndex},
	{"NotClaimant", ErrNotClaimant},
	{"NotFound", ErrNotFound},
	{"InvalidArgument", ErrInvalidArgument},
}

// Kind returns the taxonomy name of err, or an empty string if err
// isn't a rejection of the call.
func Kind(err error) string {
	for _, k := range Kinds {
		if errors.Is(err, k.Err) {
			return k.Name
		}
	}
	return ""
}

// KindErr returns the sentinel error for a taxonomy name, or nil.
func KindErr(name string) error {
	for _, k := range Kinds {
		if k.Name == name {
			return k.Err
		}
	}
	return nil
}
