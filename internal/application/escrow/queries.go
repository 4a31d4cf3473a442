package escrow

import (
	"context"
	"errors"

	"title-escrow/internal/domain"
)

// Read accessors. None of them take the listing lock: each reads one committed snapshot.

func (l *Ledger) Roles() Roles               { return l.roles }
func (l *Ledger) Seller() domain.Identity    { return l.roles.Seller }
func (l *Ledger) Inspector() domain.Identity { return l.roles.Inspector }
func (l *Ledger) Lender() domain.Identity    { return l.roles.Lender }
func (l *Ledger) Custodian() domain.Identity { return l.roles.Custodian }
func (l *Ledger) Registry() domain.Identity  { return l.roles.Registry }

// Listing returns the full record for assetID.
func (l *Ledger) Listing(ctx context.Context, assetID uint64) (*domain.Listing, error) {
	return l.loadForOp(ctx, "listing", assetID)
}

// IsListed is false for unknown assets.
func (l *Ledger) IsListed(ctx context.Context, assetID uint64) (bool, error) {
	listing, err := l.load(ctx, assetID)
	if errors.Is(err, ErrListingNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return listing.Active(), nil
}

func (l *Ledger) Buyer(ctx context.Context, assetID uint64) (domain.Identity, error) {
	listing, err := l.Listing(ctx, assetID)
	if err != nil {
		return "", err
	}
	return listing.Buyer, nil
}

func (l *Ledger) PurchasePrice(ctx context.Context, assetID uint64) (domain.Amount, error) {
	listing, err := l.Listing(ctx, assetID)
	if err != nil {
		return domain.Amount{}, err
	}
	return listing.PurchasePrice, nil
}

func (l *Ledger) EscrowAmount(ctx context.Context, assetID uint64) (domain.Amount, error) {
	listing, err := l.Listing(ctx, assetID)
	if err != nil {
		return domain.Amount{}, err
	}
	return listing.EscrowAmount, nil
}

// DepositedBalance is the per-listing custodial balance.
func (l *Ledger) DepositedBalance(ctx context.Context, assetID uint64) (domain.Amount, error) {
	listing, err := l.Listing(ctx, assetID)
	if err != nil {
		return domain.Amount{}, err
	}
	return listing.DepositedBalance, nil
}

// InspectionPassed is false for unknown assets.
func (l *Ledger) InspectionPassed(ctx context.Context, assetID uint64) (bool, error) {
	listing, err := l.load(ctx, assetID)
	if errors.Is(err, ErrListingNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return listing.InspectionPassed, nil
}

// Approval reports whether id approved the sale of assetID.
func (l *Ledger) Approval(ctx context.Context, assetID uint64, id domain.Identity) (bool, error) {
	approved, err := l.approvals(ctx, l.db, assetID, id)
	if err != nil {
		return false, err
	}
	return approved[id], nil
}

// Balance is the aggregate custodial balance across all listings.
func (l *Ledger) Balance(ctx context.Context) (domain.Amount, error) {
	var balances []domain.Amount
	if err := l.db.WithContext(ctx).Model(&domain.Listing{}).Where("is_listed = ?", true).Pluck("deposited_balance", &balances).Error; err != nil {
		return domain.Amount{}, err
	}
	return domain.SumAmounts(balances...)
}

// Events returns the audit trail of assetID in commit order.
func (l *Ledger) Events(ctx context.Context, assetID uint64) ([]domain.ListingEvent, error) {
	var events []domain.ListingEvent
	if err := l.db.WithContext(ctx).Where("asset_id = ?", assetID).Order("seq ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
