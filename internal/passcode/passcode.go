// Package passcode derives time-based one-time passcodes for the Duo
// passcode factor.
package passcode

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the TOTP time-step in seconds used by Duo.
	Period = 30
	// Digits is the passcode length Duo expects.
	Digits = 6
)

// Generate computes the 6-digit passcode for the base32-encoded shared
// secret at the given instant. The same (secret, time-step) pair always
// yields the same code.
func Generate(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    Period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}
