package enum

import "strings"

// Disposition is the policy action a receiver applied to a row of messages.
type Disposition string

const (
	DispositionNone       Disposition = "none"
	DispositionQuarantine Disposition = "quarantine"
	DispositionReject     Disposition = "reject"
	DispositionUnknown    Disposition = "unknown"
)

func (t Disposition) String() string {
	return string(t)
}

// GetDisposition maps a raw schema value onto the known vocabulary. Anything
// outside it comes back as DispositionUnknown so one odd row never aborts a
// report.
func GetDisposition(s string) Disposition {
	switch v := Disposition(strings.ToLower(strings.TrimSpace(s))); v {
	case DispositionNone, DispositionQuarantine, DispositionReject:
		return v
	default:
		return DispositionUnknown
	}
}

// AuthResult covers both the policy-evaluated outcome (pass/fail) and the
// wider raw auth_results vocabulary of the aggregate schema.
type AuthResult string

const (
	AuthResultNone      AuthResult = "none"
	AuthResultNeutral   AuthResult = "neutral"
	AuthResultPass      AuthResult = "pass"
	AuthResultFail      AuthResult = "fail"
	AuthResultSoftFail  AuthResult = "softfail"
	AuthResultPolicy    AuthResult = "policy"
	AuthResultTempError AuthResult = "temperror"
	AuthResultPermError AuthResult = "permerror"
	AuthResultUnknown   AuthResult = "unknown"
)

func (t AuthResult) String() string {
	return string(t)
}

func GetAuthResult(s string) AuthResult {
	switch v := AuthResult(strings.ToLower(strings.TrimSpace(s))); v {
	case AuthResultNone, AuthResultNeutral, AuthResultPass, AuthResultFail,
		AuthResultSoftFail, AuthResultPolicy, AuthResultTempError, AuthResultPermError:
		return v
	default:
		return AuthResultUnknown
	}
}
