package funds

import (
	"context"
	"errors"

	"title-escrow/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrSameAccount       = errors.New("source and destination accounts are the same")
)

// Service moves value between account balances. Custody is the account that holds funds on
// behalf of open listings; every movement in or out of it is attributed to an asset.
type Service struct {
	DB      *gorm.DB
	Custody domain.Identity
}

// Collect moves amount from payer into custody, attributed to assetID.
func (s *Service) Collect(ctx context.Context, assetID uint64, payer domain.Identity, amount domain.Amount) error {
	return s.move(ctx, domain.TransferCollect, assetID, payer, s.Custody, amount)
}

// Pay moves amount from custody to recipient, attributed to assetID.
func (s *Service) Pay(ctx context.Context, assetID uint64, to domain.Identity, amount domain.Amount) error {
	return s.move(ctx, domain.TransferPay, assetID, s.Custody, to, amount)
}

// Credit funds an account from outside the system (bank wire, on-ramp).
func (s *Service) Credit(ctx context.Context, to domain.Identity, amount domain.Amount) error {
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := lockAccount(tx, to)
		if err != nil {
			return err
		}
		next, err := acc.Balance.Add(amount)
		if err != nil {
			return err
		}
		if err := tx.Model(&domain.Account{}).Where("identity = ?", to).Update("balance", next).Error; err != nil {
			return err
		}
		return tx.Create(&domain.FundsTransfer{Kind: domain.TransferCredit, ToID: to, Amount: amount}).Error
	})
}

// Balance returns the spendable balance of id (zero for unknown accounts).
func (s *Service) Balance(ctx context.Context, id domain.Identity) (domain.Amount, error) {
	var acc domain.Account
	err := s.DB.WithContext(ctx).Where("identity = ?", id).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Amount{}, nil
	}
	if err != nil {
		return domain.Amount{}, err
	}
	return acc.Balance, nil
}

func (s *Service) move(ctx context.Context, kind string, assetID uint64, from, to domain.Identity, amount domain.Amount) error {
	if amount.IsZero() {
		return ErrInvalidAmount
	}
	if from == to {
		return ErrSameAccount
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		src, dst, err := lockPair(tx, from, to)
		if err != nil {
			return err
		}
		if src.Balance.Cmp(amount) < 0 {
			return ErrInsufficientFunds
		}
		srcNext, err := src.Balance.Sub(amount)
		if err != nil {
			return err
		}
		dstNext, err := dst.Balance.Add(amount)
		if err != nil {
			return err
		}
		if err := tx.Model(&domain.Account{}).Where("identity = ?", from).Update("balance", srcNext).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Account{}).Where("identity = ?", to).Update("balance", dstNext).Error; err != nil {
			return err
		}

		fromID := from
		return tx.Create(&domain.FundsTransfer{
			Kind:    kind,
			AssetID: &assetID,
			FromID:  &fromID,
			ToID:    to,
			Amount:  amount,
		}).Error
	})
}

// lockPair locks both accounts in identity order so that opposite moves between the same two
// accounts (a collect and a refund) never wait on each other's rows.
func lockPair(tx *gorm.DB, from, to domain.Identity) (src, dst *domain.Account, err error) {
	first, second := from, to
	if second < first {
		first, second = second, first
	}
	a, err := lockAccount(tx, first)
	if err != nil {
		return nil, nil, err
	}
	b, err := lockAccount(tx, second)
	if err != nil {
		return nil, nil, err
	}
	if first == from {
		return a, b, nil
	}
	return b, a, nil
}

// lockAccount loads (creating if missing) the account row with a row lock where supported.
func lockAccount(tx *gorm.DB, id domain.Identity) (*domain.Account, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.Account{Identity: id}).Error; err != nil {
		return nil, err
	}
	var acc domain.Account
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("identity = ?", id).First(&acc).Error; err != nil {
		return nil, err
	}
	return &acc, nil
}
