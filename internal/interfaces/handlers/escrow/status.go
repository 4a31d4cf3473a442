package escrow

import (
	"errors"

	escrowsvc "title-escrow/internal/application/escrow"
	"title-escrow/internal/application/funds"
	"title-escrow/internal/application/registry"

	"github.com/gofiber/fiber/v2"
)

// statusMap resolves specific causes first; kindStatus is the fallback per error class.
var statusMap = []struct {
	err  error
	code int
}{
	{escrowsvc.ErrListingNotFound, fiber.StatusNotFound},
	{escrowsvc.ErrAlreadyListed, fiber.StatusConflict},
	{escrowsvc.ErrListingClosed, fiber.StatusConflict},
	{registry.ErrAssetNotFound, fiber.StatusNotFound},
	{registry.ErrNotOwner, fiber.StatusUnprocessableEntity},
	{registry.ErrNotApproved, fiber.StatusUnprocessableEntity},
	{funds.ErrInsufficientFunds, fiber.StatusUnprocessableEntity},
	{funds.ErrInvalidAmount, fiber.StatusUnprocessableEntity},
}

var kindStatus = map[escrowsvc.Kind]int{
	escrowsvc.KindAuthorization: fiber.StatusForbidden,
	escrowsvc.KindPrecondition:  fiber.StatusUnprocessableEntity,
	escrowsvc.KindCollaborator:  fiber.StatusInternalServerError,
	escrowsvc.KindBusy:          fiber.StatusLocked,
}

func statusFor(err error) int {
	for _, s := range statusMap {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	if code, ok := kindStatus[escrowsvc.KindOf(err)]; ok {
		return code
	}
	return fiber.StatusInternalServerError
}
