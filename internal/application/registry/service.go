package registry

import (
	"context"
	"errors"

	"title-escrow/internal/domain"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrNotOwner      = errors.New("transfer from address that is not the owner")
	ErrNotApproved   = errors.New("caller is not owner nor approved")
)

// Service is the GORM-backed ownership registry. It acts on behalf of a single Operator (the
// escrow custodian): the operator may move assets it owns, or assets whose owner approved it.
type Service struct {
	DB       *gorm.DB
	Operator domain.Identity
}

// OwnerOf returns the current owner of assetID.
func (s *Service) OwnerOf(ctx context.Context, assetID uint64) (domain.Identity, error) {
	var asset domain.Asset
	if err := s.DB.WithContext(ctx).Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrAssetNotFound
		}
		return "", err
	}
	return asset.Owner, nil
}

// Approve lets owner grant operator the right to transfer assetID. Passing an empty operator
// revokes the approval.
func (s *Service) Approve(ctx context.Context, assetID uint64, owner, operator domain.Identity) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var asset domain.Asset
		if err := tx.Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAssetNotFound
			}
			return err
		}
		if asset.Owner != owner {
			return ErrNotOwner
		}
		return tx.Model(&domain.Asset{}).Where("asset_id = ?", assetID).Update("approved", operator).Error
	})
}

// TransferOwnership moves assetID from -> to. Fails with ErrNotOwner if from does not own the
// asset and ErrNotApproved if the operator may not move it.
func (s *Service) TransferOwnership(ctx context.Context, assetID uint64, from, to domain.Identity) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var asset domain.Asset
		if err := tx.Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAssetNotFound
			}
			return err
		}
		if asset.Owner != from {
			return ErrNotOwner
		}
		if from != s.Operator && asset.Approved != s.Operator {
			return ErrNotApproved
		}
		res := tx.Model(&domain.Asset{}).
			Where("asset_id = ? AND owner = ?", assetID, from).
			Updates(map[string]interface{}{
				"owner":             to,
				"approved":          domain.Identity(""),
				"previous_owner":    from,
				"previous_approved": asset.Approved,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotOwner
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Debug().Uint64("asset_id", assetID).Str("from", from.String()).Str("to", to.String()).Msg("asset ownership transferred")
	return nil
}

// RevertTransfer undoes the last TransferOwnership(assetID, from, to), restoring the owner and
// the approval it cleared. It succeeds only while to still owns the asset and received it from
// from. It needs no approval from to.
func (s *Service) RevertTransfer(ctx context.Context, assetID uint64, from, to domain.Identity) error {
	res := s.DB.WithContext(ctx).Model(&domain.Asset{}).
		Where("asset_id = ? AND owner = ? AND previous_owner = ?", assetID, to, from).
		Updates(map[string]interface{}{
			"owner":             from,
			"approved":          gorm.Expr("previous_approved"),
			"previous_owner":    domain.Identity(""),
			"previous_approved": domain.Identity(""),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotOwner
	}
	log.Debug().Uint64("asset_id", assetID).Str("from", to.String()).Str("to", from.String()).Msg("asset transfer reverted")
	return nil
}
