package middleware

import (
	"title-escrow/internal/domain"
	"title-escrow/internal/pkg/response"
	"title-escrow/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

// ActorHeader carries the caller identity, set by the authenticating gateway in front of us.
const ActorHeader = "X-Actor-Id"

const actorLocal = "actor"

// Actor stores the normalized caller identity (possibly empty) in Locals.
func Actor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(actorLocal, domain.NewIdentity(c.Get(ActorHeader)))
		return c.Next()
	}
}

// RequireActor rejects requests without a well-formed caller identity with 401.
//
// The header is trusted as is: it must be set by an authenticating gateway that strips any
// client-supplied value. Anyone who can reach the service directly can act as any role.
func RequireActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := GetActor(c)
		if actor.IsZero() {
			actor = domain.NewIdentity(c.Get(ActorHeader))
			c.Locals(actorLocal, actor)
		}
		if actor.IsZero() {
			return response.Unauthorized(c, "Missing "+ActorHeader+" header")
		}
		if !validation.IsValidIdentity(actor.String()) {
			return response.Unauthorized(c, "Invalid "+ActorHeader+" header")
		}
		return c.Next()
	}
}

// GetActor returns the caller identity ("" when unknown).
func GetActor(c *fiber.Ctx) domain.Identity {
	if id, ok := c.Locals(actorLocal).(domain.Identity); ok {
		return id
	}
	return ""
}
