package credential

import (
	"time"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TFA codes are six digit SHA1 TOTP codes over 30 second steps. One step of
// drift either way is accepted.
var tfaOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// VerifyTfaCode checks code against secret at now
func VerifyTfaCode(secret, code string, now time.Time) bool {
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now, tfaOpts)
	return err == nil && ok
}

// TfaCode returns the code valid for secret at now
func TfaCode(secret string, now time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, now, tfaOpts)
	if err != nil {
		return "", errx.Wrap(err, "failed to generate TFA code", errx.TypeInternal)
	}
	return code, nil
}

// TfaEnrollment is a freshly generated secret and its provisioning URI
type TfaEnrollment struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

// NewTfaSecret generates a secret for account (usually the user's email)
func NewTfaSecret(issuer, account string) (TfaEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      uint(tfaOpts.Period),
		Digits:      tfaOpts.Digits,
		Algorithm:   tfaOpts.Algorithm,
	})
	if err != nil {
		return TfaEnrollment{}, errx.Wrap(err, "failed to generate TFA secret", errx.TypeInternal)
	}
	return TfaEnrollment{Secret: key.Secret(), URI: key.URL()}, nil
}
