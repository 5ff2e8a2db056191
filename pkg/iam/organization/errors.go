package organization

import (
	"net/http"

	"github.com/Abraxas-365/keystone/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("ORGANIZATION")

var (
	CodeAccountNotFound  = ErrRegistry.Register("ACCOUNT_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Account not found")
	CodeInvalidRole      = ErrRegistry.Register("INVALID_ROLE", errx.TypeValidation, http.StatusBadRequest, "Role is not valid")
	CodeAdminOnly        = ErrRegistry.Register("ADMIN_ONLY", errx.TypeForbidden, http.StatusForbidden, "Only ADMIN can create another ADMIN")
	CodeCannotBanAdmin   = ErrRegistry.Register("CANNOT_BAN_ADMIN", errx.TypeForbidden, http.StatusForbidden, "Organization admins cannot ban other organization admins")
	CodeCannotBanSelf    = ErrRegistry.Register("CANNOT_BAN_SELF", errx.TypeBusiness, http.StatusBadRequest, "Users cannot ban themselves")
	CodeLastOrganization = ErrRegistry.Register("LAST_ORGANIZATION", errx.TypeBusiness, http.StatusBadRequest, "User must belong to at least one organization")
	CodeInvalidInput     = ErrRegistry.Register("INVALID_INPUT", errx.TypeValidation, http.StatusBadRequest, "Invalid input")
	CodeSystemReserved   = ErrRegistry.Register("SYSTEM_RESERVED", errx.TypeValidation, http.StatusBadRequest, "The SYSTEM organization cannot be modified")
)

func ErrAccountNotFound() *errx.Error  { return ErrRegistry.New(CodeAccountNotFound) }
func ErrInvalidRole() *errx.Error      { return ErrRegistry.New(CodeInvalidRole) }
func ErrAdminOnly() *errx.Error        { return ErrRegistry.New(CodeAdminOnly) }
func ErrCannotBanAdmin() *errx.Error   { return ErrRegistry.New(CodeCannotBanAdmin) }
func ErrCannotBanSelf() *errx.Error    { return ErrRegistry.New(CodeCannotBanSelf) }
func ErrLastOrganization() *errx.Error { return ErrRegistry.New(CodeLastOrganization) }
func ErrSystemReserved() *errx.Error   { return ErrRegistry.New(CodeSystemReserved) }

func ErrInvalidInput(message string) *errx.Error {
	return ErrRegistry.NewWithMessage(CodeInvalidInput, message)
}
