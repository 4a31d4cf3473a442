package registry

import (
	"context"
	"testing"

	"title-escrow/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	seller  = domain.Identity("seller")
	buyer   = domain.Identity("buyer")
	escrowO = domain.Identity("escrow")
)

func setupRegistry(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Asset{}))
	require.NoError(t, db.Create(&domain.Asset{AssetID: 1, Owner: seller}).Error)
	return &Service{DB: db, Operator: escrowO}, db
}

func TestOwnerOf(t *testing.T) {
	s, _ := setupRegistry(t)
	owner, err := s.OwnerOf(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, seller, owner)

	_, err = s.OwnerOf(context.Background(), 99)
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestTransferOwnership_RequiresApproval(t *testing.T) {
	s, _ := setupRegistry(t)
	ctx := context.Background()

	err := s.TransferOwnership(ctx, 1, seller, escrowO)
	assert.ErrorIs(t, err, ErrNotApproved)

	require.NoError(t, s.Approve(ctx, 1, seller, escrowO))
	require.NoError(t, s.TransferOwnership(ctx, 1, seller, escrowO))

	owner, err := s.OwnerOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, escrowO, owner)
}

func TestTransferOwnership_NotOwner(t *testing.T) {
	s, _ := setupRegistry(t)
	err := s.TransferOwnership(context.Background(), 1, buyer, escrowO)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestTransferOwnership_OperatorOwnedAndApprovalCleared(t *testing.T) {
	s, db := setupRegistry(t)
	ctx := context.Background()
	require.NoError(t, s.Approve(ctx, 1, seller, escrowO))
	require.NoError(t, s.TransferOwnership(ctx, 1, seller, escrowO))

	// operator moves what it owns without any approval
	require.NoError(t, s.TransferOwnership(ctx, 1, escrowO, buyer))

	var asset domain.Asset
	require.NoError(t, db.First(&asset, "asset_id = ?", 1).Error)
	assert.Equal(t, buyer, asset.Owner)
	assert.Equal(t, domain.Identity(""), asset.Approved)

	// the new owner has not approved the operator
	assert.ErrorIs(t, s.TransferOwnership(ctx, 1, buyer, seller), ErrNotApproved)
}

func TestApprove_OnlyOwner(t *testing.T) {
	s, _ := setupRegistry(t)
	err := s.Approve(context.Background(), 1, buyer, escrowO)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.ErrorIs(t, s.Approve(context.Background(), 2, seller, escrowO), ErrAssetNotFound)
}

func TestRevertTransfer(t *testing.T) {
	s, _ := setupRegistry(t)
	ctx := context.Background()
	require.NoError(t, s.Approve(ctx, 1, seller, escrowO))
	require.NoError(t, s.TransferOwnership(ctx, 1, seller, escrowO))
	require.NoError(t, s.TransferOwnership(ctx, 1, escrowO, buyer))

	// only the last hop can be reverted
	assert.ErrorIs(t, s.RevertTransfer(ctx, 1, seller, escrowO), ErrNotOwner)

	require.NoError(t, s.RevertTransfer(ctx, 1, escrowO, buyer))
	owner, err := s.OwnerOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, escrowO, owner)

	// a revert is not itself revertible
	assert.ErrorIs(t, s.RevertTransfer(ctx, 1, escrowO, buyer), ErrNotOwner)
}

func TestRevertTransfer_RestoresApproval(t *testing.T) {
	s, db := setupRegistry(t)
	ctx := context.Background()
	require.NoError(t, s.Approve(ctx, 1, seller, escrowO))
	require.NoError(t, s.TransferOwnership(ctx, 1, seller, escrowO))

	var asset domain.Asset
	require.NoError(t, db.First(&asset, "asset_id = ?", 1).Error)
	assert.True(t, asset.Approved.IsZero())

	require.NoError(t, s.RevertTransfer(ctx, 1, seller, escrowO))
	require.NoError(t, db.First(&asset, "asset_id = ?", 1).Error)
	assert.Equal(t, seller, asset.Owner)
	assert.Equal(t, escrowO, asset.Approved)
	assert.True(t, asset.PreviousApproved.IsZero())

	// the restored grant is usable again
	require.NoError(t, s.TransferOwnership(ctx, 1, seller, escrowO))
}
