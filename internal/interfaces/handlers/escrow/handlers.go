package escrow

import (
	"errors"
	"strconv"

	escrowsvc "title-escrow/internal/application/escrow"
	"title-escrow/internal/application/funds"
	"title-escrow/internal/application/registry"
	"title-escrow/internal/domain"
	"title-escrow/internal/middleware"
	"title-escrow/internal/pkg/response"
	"title-escrow/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Handlers exposes the escrow ledger plus the registry and funds collaborators it drives.
type Handlers struct {
	Ledger   *escrowsvc.Ledger
	Registry *registry.Service
	Funds    *funds.Service
}

type listingView struct {
	*domain.Listing
	Status    string          `json:"status"`
	Approvals map[string]bool `json:"approvals"`
}

// GET /api/v1/escrow/roles
func (h *Handlers) Roles(c *fiber.Ctx) error {
	return response.Success(c, "Roles fetched successfully", h.Ledger.Roles(), nil)
}

// GET /api/v1/escrow/balance: aggregate custodial balance of all open listings
func (h *Handlers) Balance(c *fiber.Ctx) error {
	bal, err := h.Ledger.Balance(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Balance fetched successfully", fiber.Map{"balance": bal}, nil)
}

// POST /api/v1/escrow/listings (201)
func (h *Handlers) List(c *fiber.Ctx) error {
	var body struct {
		AssetID       *uint64        `json:"asset_id"`
		Buyer         string         `json:"buyer"`
		PurchasePrice *domain.Amount `json:"purchase_price"`
		EscrowAmount  *domain.Amount `json:"escrow_amount"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if body.AssetID == nil || body.Buyer == "" || body.PurchasePrice == nil || body.EscrowAmount == nil {
		return response.BadRequest(c, "asset_id, buyer, purchase_price and escrow_amount are required")
	}

	buyer := domain.NewIdentity(body.Buyer)
	if !validation.IsValidIdentity(buyer.String()) {
		return response.BadRequest(c, "Invalid buyer")
	}

	err := h.Ledger.List(c.UserContext(), middleware.GetActor(c), *body.AssetID, buyer, *body.PurchasePrice, *body.EscrowAmount)
	if err != nil {
		return writeError(c, err)
	}
	view, err := h.view(c, *body.AssetID)
	if err != nil {
		return writeError(c, err)
	}
	return response.SuccessCreated(c, "Listing created successfully", view, nil)
}

// GET /api/v1/escrow/listings/:asset_id
func (h *Handlers) GetListing(c *fiber.Ctx) error {
	assetID, err := assetIDParam(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	view, err := h.view(c, assetID)
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Listing fetched successfully", view, nil)
}

// POST /api/v1/escrow/listings/:asset_id/deposit {amount}
func (h *Handlers) Deposit(c *fiber.Ctx) error {
	assetID, err := assetIDParam(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	var body struct {
		Amount *domain.Amount `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil || body.Amount == nil {
		return response.BadRequest(c, "amount is required")
	}
	return h.transition(c, assetID, "Deposit recorded", func() error {
		return h.Ledger.DepositEarnest(c.UserContext(), middleware.GetActor(c), assetID, *body.Amount)
	})
}

// POST /api/v1/escrow/listings/:asset_id/inspection {passed}
func (h *Handlers) Inspection(c *fiber.Ctx) error {
	assetID, err := assetIDParam(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	var body struct {
		Passed *bool `json:"passed"`
	}
	if err := c.BodyParser(&body); err != nil || body.Passed == nil {
		return response.BadRequest(c, "passed is required")
	}
	return h.transition(c, assetID, "Inspection status updated", func() error {
		return h.Ledger.UpdateInspectionStatus(c.UserContext(), middleware.GetActor(c), assetID, *body.Passed)
	})
}

// POST /api/v1/escrow/listings/:asset_id/approve
func (h *Handlers) Approve(c *fiber.Ctx) error {
	assetID, err := assetIDParam(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	return h.transition(c, assetID, "Sale approved", func() error {
		return h.Ledger.ApproveSale(c.UserContext(), middleware.GetActor(c), assetID)
	})
}

// GET /api/v1/escrow/listings/:asset_id/approvals/:identity
func (h *Handlers) GetApproval(c *fiber.Ctx) error {
	assetID, err := assetIDParam(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	id := domain.NewIdentity(c.Params("identity"))
	approved, err := h.Ledger.Approval(c.UserContext(), assetID, id)
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Approval fetched successfully", fiber.Map{"asset_id": assetID, "identity": id, "approved": approved}, nil)
}

// POST /api/v1/escrow/listings/:asset_id/finalize
func (h *Handlers) Finalize(c *fiber.Ctx) error {
	assetID, err := assetIDParam(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	return h.transition(c, assetID, "Sale finalized", func() error {
		return h.Ledger.FinalizeSale(c.UserContext(), middleware.GetActor(c), assetID)
	})
}

// POST /api/v1/escrow/listings/:asset_id/cancel
func (h *Handlers) Cancel(c *fiber.Ctx) error {
	assetID, err := assetIDParam(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	return h.transition(c, assetID, "Sale cancelled", func() error {
		return h.Ledger.CancelSale(c.UserContext(), middleware.GetActor(c), assetID)
	})
}

// GET /api/v1/escrow/listings/:asset_id/events
func (h *Handlers) Events(c *fiber.Ctx) error {
	assetID, err := assetIDParam(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	events, err := h.Ledger.Events(c.UserContext(), assetID)
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Listing events fetched successfully", events, fiber.Map{"count": len(events)})
}

// GET /api/v1/assets/:asset_id/owner
func (h *Handlers) AssetOwner(c *fiber.Ctx) error {
	assetID, err := assetIDParam(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	owner, err := h.Registry.OwnerOf(c.UserContext(), assetID)
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Owner fetched successfully", fiber.Map{"asset_id": assetID, "owner": owner}, nil)
}

// POST /api/v1/assets/:asset_id/approve {operator}: the caller, as owner, grants transfer rights
func (h *Handlers) ApproveOperator(c *fiber.Ctx) error {
	assetID, err := assetIDParam(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	var body struct {
		Operator string `json:"operator"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	operator := domain.NewIdentity(body.Operator)
	if err := h.Registry.Approve(c.UserContext(), assetID, middleware.GetActor(c), operator); err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Operator approved", fiber.Map{"asset_id": assetID, "approved": operator}, nil)
}

// GET /api/v1/accounts/:identity/balance
func (h *Handlers) AccountBalance(c *fiber.Ctx) error {
	id := domain.NewIdentity(c.Params("identity"))
	if id.IsZero() {
		return response.BadRequest(c, "identity is required")
	}
	bal, err := h.Funds.Balance(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, "Balance fetched successfully", fiber.Map{"identity": id, "balance": bal}, nil)
}

// transition runs op and answers with the listing as it stands afterwards.
func (h *Handlers) transition(c *fiber.Ctx, assetID uint64, message string, op func() error) error {
	if err := op(); err != nil {
		return writeError(c, err)
	}
	view, err := h.view(c, assetID)
	if err != nil {
		return writeError(c, err)
	}
	return response.Success(c, message, view, nil)
}

func (h *Handlers) view(c *fiber.Ctx, assetID uint64) (*listingView, error) {
	ctx := c.UserContext()
	listing, err := h.Ledger.Listing(ctx, assetID)
	if err != nil {
		return nil, err
	}
	approvals := make(map[string]bool, 3)
	for _, id := range []domain.Identity{listing.Buyer, listing.Seller, h.Ledger.Lender()} {
		ok, err := h.Ledger.Approval(ctx, assetID, id)
		if err != nil {
			return nil, err
		}
		approvals[id.String()] = ok
	}
	return &listingView{Listing: listing, Status: listing.Status(), Approvals: approvals}, nil
}

func assetIDParam(c *fiber.Ctx) (uint64, error) {
	raw := c.Params("asset_id")
	if raw == "" {
		return 0, errors.New("asset_id is required")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("Invalid asset_id format")
	}
	return id, nil
}

// writeError maps ledger and collaborator errors to the standard error response.
func writeError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("trace_id", middleware.GetTraceID(c)).Str("path", c.Path()).Msg("escrow request failed")
		return response.ErrorKind(c, "Internal Server Error", code, escrowsvc.KindOf(err).String(), nil)
	}
	kind := ""
	if k := escrowsvc.KindOf(err); k != escrowsvc.KindUnknown {
		kind = k.String()
	}
	return response.ErrorKind(c, err.Error(), code, kind, nil)
}

// Mount registers the escrow, asset and account routes under /api/v1. Mutating routes require
// the X-Actor-Id header.
func (h *Handlers) Mount(r fiber.Router) {
	auth := middleware.RequireActor()

	eg := r.Group("/api/v1/escrow")
	eg.Get("/roles", h.Roles)
	eg.Get("/balance", h.Balance)
	eg.Post("/listings", auth, h.List)
	eg.Get("/listings/:asset_id", h.GetListing)
	eg.Post("/listings/:asset_id/deposit", auth, h.Deposit)
	eg.Post("/listings/:asset_id/inspection", auth, h.Inspection)
	eg.Post("/listings/:asset_id/approve", auth, h.Approve)
	eg.Get("/listings/:asset_id/approvals/:identity", h.GetApproval)
	eg.Post("/listings/:asset_id/finalize", auth, h.Finalize)
	eg.Post("/listings/:asset_id/cancel", auth, h.Cancel)
	eg.Get("/listings/:asset_id/events", h.Events)

	ag := r.Group("/api/v1/assets")
	ag.Get("/:asset_id/owner", h.AssetOwner)
	ag.Post("/:asset_id/approve", auth, h.ApproveOperator)

	r.Get("/api/v1/accounts/:identity/balance", h.AccountBalance)
}
