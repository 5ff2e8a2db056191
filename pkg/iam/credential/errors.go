package credential

import (
	"net/http"

	"github.com/Abraxas-365/keystone/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("CREDENTIAL")

var (
	CodeWeakPassword = ErrRegistry.Register("WEAK_PASSWORD", errx.TypeValidation, http.StatusBadRequest, "Password does not meet the password policy")
)

func ErrWeakPassword() *errx.Error { return ErrRegistry.New(CodeWeakPassword) }
