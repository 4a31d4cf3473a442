package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"title-escrow/internal/domain"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AssetRegistry is the external ownership registry. The ledger's custodian is the registry operator.
type AssetRegistry interface {
	OwnerOf(ctx context.Context, assetID uint64) (domain.Identity, error)
	TransferOwnership(ctx context.Context, assetID uint64, from, to domain.Identity) error
	// RevertTransfer undoes the last TransferOwnership(assetID, from, to).
	RevertTransfer(ctx context.Context, assetID uint64, from, to domain.Identity) error
}

// FundsSource is the deposit/payout channel. Collect pulls value from a payer into custody and
// Pay sends value out of custody; each either fully succeeds or fails with no effect.
type FundsSource interface {
	Collect(ctx context.Context, assetID uint64, payer domain.Identity, amount domain.Amount) error
	Pay(ctx context.Context, assetID uint64, to domain.Identity, amount domain.Amount) error
}

// Publisher receives committed listing events (NATS in production).
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// Observer records transition outcomes (Prometheus in production).
type Observer interface {
	ObserveTransition(op, outcome string, d time.Duration)
}

// Roles are the deployment-wide parties. Buyers are per listing. Registry names the asset
// registry the listed titles live in; it is descriptive only.
type Roles struct {
	Seller    domain.Identity `json:"seller"`
	Inspector domain.Identity `json:"inspector"`
	Lender    domain.Identity `json:"lender"`
	Custodian domain.Identity `json:"custodian"`
	Registry  domain.Identity `json:"registry,omitempty"`
}

// Validate requires every role and a custodian distinct from the parties.
func (r Roles) Validate() error {
	switch {
	case r.Seller.IsZero():
		return errors.New("seller role is required")
	case r.Inspector.IsZero():
		return errors.New("inspector role is required")
	case r.Lender.IsZero():
		return errors.New("lender role is required")
	case r.Custodian.IsZero():
		return errors.New("custodian identity is required")
	case r.Custodian == r.Seller || r.Custodian == r.Inspector || r.Custodian == r.Lender:
		return errors.New("custodian must differ from seller, inspector and lender")
	}
	return nil
}

// Ledger is the escrow state machine. One instance per deployment; every transition on a given
// asset is serialized by the Locker and either commits all of its effects or none.
type Ledger struct {
	db        *gorm.DB
	roles     Roles
	registry  AssetRegistry
	funds     FundsSource
	locker    Locker
	publisher Publisher
	observer  Observer
	nowFn     func() time.Time
}

// NewLedger builds a ledger with an in-process locker and no publisher/observer.
func NewLedger(db *gorm.DB, roles Roles, registry AssetRegistry, funds FundsSource) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("escrow: db is required")
	}
	if registry == nil || funds == nil {
		return nil, errors.New("escrow: asset registry and funds source are required")
	}
	if err := roles.Validate(); err != nil {
		return nil, fmt.Errorf("escrow: %w", err)
	}
	return &Ledger{
		db:       db,
		roles:    roles,
		registry: registry,
		funds:    funds,
		locker:   NewLocalLocker(DefaultLockWait),
		nowFn:    time.Now,
	}, nil
}

// SetLocker replaces the per-listing lock (e.g. a RedisLocker for multi-instance deployments).
func (l *Ledger) SetLocker(locker Locker) {
	if locker == nil {
		locker = NewLocalLocker(DefaultLockWait)
	}
	l.locker = locker
}

func (l *Ledger) SetPublisher(p Publisher) { l.publisher = p }

func (l *Ledger) SetObserver(o Observer) { l.observer = o }

// SetNowFunc overrides the clock used for event payload timestamps.
func (l *Ledger) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	l.nowFn = now
}

// List takes custody of assetID from the seller and opens its listing.
func (l *Ledger) List(ctx context.Context, caller domain.Identity, assetID uint64, buyer domain.Identity, purchasePrice, escrowAmount domain.Amount) (err error) {
	const op = "list"
	defer l.observe(op, time.Now(), &err)

	if caller != l.roles.Seller {
		return authErr(op, ErrUnauthorized)
	}
	if buyer.IsZero() || buyer == l.roles.Seller || buyer == l.roles.Custodian {
		return preconditionErr(op, fmt.Errorf("%w: invalid buyer", ErrInvalidTerms))
	}
	if purchasePrice.IsZero() {
		return preconditionErr(op, fmt.Errorf("%w: purchase price must be positive", ErrInvalidTerms))
	}
	if escrowAmount.Cmp(purchasePrice) > 0 {
		return preconditionErr(op, fmt.Errorf("%w: escrow amount exceeds purchase price", ErrInvalidTerms))
	}

	unlock, err := l.lock(ctx, op, assetID)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := l.load(ctx, assetID); err == nil {
		return preconditionErr(op, ErrAlreadyListed)
	} else if !errors.Is(err, ErrListingNotFound) {
		return fmt.Errorf("escrow %s: %w", op, err)
	}

	listing := &domain.Listing{
		AssetID:       assetID,
		Seller:        l.roles.Seller,
		Buyer:         buyer,
		PurchasePrice: purchasePrice,
		EscrowAmount:  escrowAmount,
		IsListed:      true,
	}
	payload := map[string]interface{}{
		"buyer":          buyer,
		"purchase_price": purchasePrice,
		"escrow_amount":  escrowAmount,
	}

	s := newSettlement(op, assetID)
	s.add("take custody",
		func(ctx context.Context) error {
			return l.registry.TransferOwnership(ctx, assetID, l.roles.Seller, l.roles.Custodian)
		},
		func(ctx context.Context) error {
			return l.registry.RevertTransfer(ctx, assetID, l.roles.Seller, l.roles.Custodian)
		})

	var event *domain.ListingEvent
	err = s.run(ctx, func(ctx context.Context) error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(listing).Error; err != nil {
				return err
			}
			var err error
			event, err = l.appendEvent(tx, assetID, domain.EventListed, caller, payload)
			return err
		})
	})
	if err != nil {
		return classify(op, err)
	}
	l.committed(ctx, op, caller, event)
	return nil
}

// DepositEarnest collects amount from the listing's buyer into custody.
func (l *Ledger) DepositEarnest(ctx context.Context, caller domain.Identity, assetID uint64, amount domain.Amount) (err error) {
	const op = "depositEarnest"
	defer l.observe(op, time.Now(), &err)

	unlock, err := l.lock(ctx, op, assetID)
	if err != nil {
		return err
	}
	defer unlock()

	listing, err := l.loadForOp(ctx, op, assetID)
	if err != nil {
		return err
	}
	if caller != listing.Buyer {
		return authErr(op, ErrUnauthorized)
	}
	if !listing.Active() {
		return preconditionErr(op, ErrListingClosed)
	}
	if amount.IsZero() {
		return preconditionErr(op, fmt.Errorf("%w: deposit must be positive", ErrInvalidAmount))
	}
	next, err := listing.DepositedBalance.Add(amount)
	if err != nil {
		return preconditionErr(op, fmt.Errorf("%w: %v", ErrInvalidAmount, err))
	}

	s := newSettlement(op, assetID)
	s.add("collect deposit",
		func(ctx context.Context) error { return l.funds.Collect(ctx, assetID, listing.Buyer, amount) },
		func(ctx context.Context) error { return l.funds.Pay(ctx, assetID, listing.Buyer, amount) })

	var event *domain.ListingEvent
	err = s.run(ctx, func(ctx context.Context) error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := l.save(tx, listing, map[string]interface{}{"deposited_balance": next}); err != nil {
				return err
			}
			var err error
			event, err = l.appendEvent(tx, assetID, domain.EventDeposited, caller, map[string]interface{}{
				"amount":            amount,
				"deposited_balance": next,
			})
			return err
		})
	})
	if err != nil {
		return classify(op, err)
	}
	l.committed(ctx, op, caller, event)
	return nil
}

// UpdateInspectionStatus records the inspector's verdict. The last write wins, so a pass can be
// withdrawn while the listing is active.
func (l *Ledger) UpdateInspectionStatus(ctx context.Context, caller domain.Identity, assetID uint64, passed bool) (err error) {
	const op = "updateInspectionStatus"
	defer l.observe(op, time.Now(), &err)

	if caller != l.roles.Inspector {
		return authErr(op, ErrUnauthorized)
	}
	unlock, err := l.lock(ctx, op, assetID)
	if err != nil {
		return err
	}
	defer unlock()

	listing, err := l.loadForOp(ctx, op, assetID)
	if err != nil {
		return err
	}
	if !listing.Active() {
		return preconditionErr(op, ErrListingClosed)
	}

	var event *domain.ListingEvent
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := l.save(tx, listing, map[string]interface{}{"inspection_passed": passed}); err != nil {
			return err
		}
		var err error
		event, err = l.appendEvent(tx, assetID, domain.EventInspected, caller, map[string]interface{}{"passed": passed})
		return err
	})
	if err != nil {
		return classify(op, err)
	}
	l.committed(ctx, op, caller, event)
	return nil
}

// ApproveSale records the caller's approval. Anyone may approve; only buyer, seller and lender
// approvals gate finalization. Approving twice is a no-op.
func (l *Ledger) ApproveSale(ctx context.Context, caller domain.Identity, assetID uint64) (err error) {
	const op = "approveSale"
	defer l.observe(op, time.Now(), &err)

	if caller.IsZero() {
		return authErr(op, ErrUnauthorized)
	}
	unlock, err := l.lock(ctx, op, assetID)
	if err != nil {
		return err
	}
	defer unlock()

	listing, err := l.loadForOp(ctx, op, assetID)
	if err != nil {
		return err
	}
	if !listing.Active() {
		return preconditionErr(op, ErrListingClosed)
	}
	approved, err := l.approvals(ctx, l.db, assetID, caller)
	if err != nil {
		return fmt.Errorf("escrow %s: %w", op, err)
	}
	if approved[caller] {
		return nil
	}

	var event *domain.ListingEvent
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.ListingApproval{AssetID: assetID, Identity: caller}).Error; err != nil {
			return err
		}
		if err := l.save(tx, listing, map[string]interface{}{}); err != nil {
			return err
		}
		var err error
		event, err = l.appendEvent(tx, assetID, domain.EventApproved, caller, map[string]interface{}{"identity": caller})
		return err
	})
	if err != nil {
		return classify(op, err)
	}
	l.committed(ctx, op, caller, event)
	return nil
}

// FinalizeSale settles the listing: the asset goes to the buyer and the whole deposited balance
// to the seller. Only the seller or the lender may finalize.
func (l *Ledger) FinalizeSale(ctx context.Context, caller domain.Identity, assetID uint64) (err error) {
	const op = "finalizeSale"
	defer l.observe(op, time.Now(), &err)

	if !l.canSettle(caller) {
		return authErr(op, ErrUnauthorized)
	}
	unlock, err := l.lock(ctx, op, assetID)
	if err != nil {
		return err
	}
	defer unlock()

	listing, err := l.loadForOp(ctx, op, assetID)
	if err != nil {
		return err
	}
	if err := l.checkFinalizeGate(ctx, op, listing); err != nil {
		return err
	}

	payout := listing.DepositedBalance
	s := newSettlement(op, assetID)
	s.add("deliver asset",
		func(ctx context.Context) error {
			return l.registry.TransferOwnership(ctx, assetID, l.roles.Custodian, listing.Buyer)
		},
		func(ctx context.Context) error {
			return l.registry.RevertTransfer(ctx, assetID, l.roles.Custodian, listing.Buyer)
		})
	s.add("pay seller",
		func(ctx context.Context) error { return l.funds.Pay(ctx, assetID, listing.Seller, payout) },
		func(ctx context.Context) error { return l.funds.Collect(ctx, assetID, listing.Seller, payout) })

	var event *domain.ListingEvent
	err = s.run(ctx, func(ctx context.Context) error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := l.settle(tx, listing, "finalized", listing.Seller, payout); err != nil {
				return err
			}
			var err error
			event, err = l.appendEvent(tx, assetID, domain.EventFinalized, caller, map[string]interface{}{
				"buyer":  listing.Buyer,
				"seller": listing.Seller,
				"payout": payout,
			})
			return err
		})
	})
	if err != nil {
		return classify(op, err)
	}
	l.committed(ctx, op, caller, event)
	return nil
}

// CancelSale aborts an active listing. The asset returns to the seller; the deposit goes to the
// seller if inspection had passed (the buyer forfeits) and back to the buyer otherwise.
func (l *Ledger) CancelSale(ctx context.Context, caller domain.Identity, assetID uint64) (err error) {
	const op = "cancelSale"
	defer l.observe(op, time.Now(), &err)

	if !l.canSettle(caller) {
		return authErr(op, ErrUnauthorized)
	}
	unlock, err := l.lock(ctx, op, assetID)
	if err != nil {
		return err
	}
	defer unlock()

	listing, err := l.loadForOp(ctx, op, assetID)
	if err != nil {
		return err
	}
	if !listing.Active() {
		return preconditionErr(op, ErrListingClosed)
	}

	recipient := listing.Buyer
	if listing.InspectionPassed {
		recipient = listing.Seller
	}
	refund := listing.DepositedBalance

	s := newSettlement(op, assetID)
	s.add("return asset",
		func(ctx context.Context) error {
			return l.registry.TransferOwnership(ctx, assetID, l.roles.Custodian, listing.Seller)
		},
		func(ctx context.Context) error {
			return l.registry.RevertTransfer(ctx, assetID, l.roles.Custodian, listing.Seller)
		})
	if !refund.IsZero() {
		s.add("release deposit",
			func(ctx context.Context) error { return l.funds.Pay(ctx, assetID, recipient, refund) },
			func(ctx context.Context) error { return l.funds.Collect(ctx, assetID, recipient, refund) })
	}

	var event *domain.ListingEvent
	err = s.run(ctx, func(ctx context.Context) error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := l.settle(tx, listing, "cancelled", recipient, refund); err != nil {
				return err
			}
			var err error
			event, err = l.appendEvent(tx, assetID, domain.EventCancelled, caller, map[string]interface{}{
				"recipient":         recipient,
				"amount":            refund,
				"inspection_passed": listing.InspectionPassed,
			})
			return err
		})
	})
	if err != nil {
		return classify(op, err)
	}
	l.committed(ctx, op, caller, event)
	return nil
}

func (l *Ledger) canSettle(caller domain.Identity) bool {
	return !caller.IsZero() && (caller == l.roles.Seller || caller == l.roles.Lender)
}

func (l *Ledger) checkFinalizeGate(ctx context.Context, op string, listing *domain.Listing) error {
	if !listing.Active() {
		return preconditionErr(op, ErrListingClosed)
	}
	if !listing.InspectionPassed {
		return preconditionErr(op, ErrInspectionNotPassed)
	}
	required := []domain.Identity{listing.Buyer, listing.Seller, l.roles.Lender}
	approved, err := l.approvals(ctx, l.db, listing.AssetID, required...)
	if err != nil {
		return fmt.Errorf("escrow %s: %w", op, err)
	}
	var missing []string
	for _, id := range required {
		if !approved[id] {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return preconditionErr(op, fmt.Errorf("%w: missing %s", ErrApprovalMissing, strings.Join(missing, ", ")))
	}
	if listing.DepositedBalance.Cmp(listing.PurchasePrice) < 0 {
		return preconditionErr(op, fmt.Errorf("%w: have %s, need %s", ErrInsufficientDeposit, listing.DepositedBalance, listing.PurchasePrice))
	}
	return nil
}

func (l *Ledger) lock(ctx context.Context, op string, assetID uint64) (func(), error) {
	unlock, err := l.locker.Lock(ctx, assetID)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			return nil, busyErr(op, err)
		}
		return nil, fmt.Errorf("escrow %s: %w", op, err)
	}
	return unlock, nil
}

func (l *Ledger) load(ctx context.Context, assetID uint64) (*domain.Listing, error) {
	var listing domain.Listing
	if err := l.db.WithContext(ctx).Where("asset_id = ?", assetID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

func (l *Ledger) loadForOp(ctx context.Context, op string, assetID uint64) (*domain.Listing, error) {
	listing, err := l.load(ctx, assetID)
	if errors.Is(err, ErrListingNotFound) {
		return nil, preconditionErr(op, err)
	}
	if err != nil {
		return nil, fmt.Errorf("escrow %s: %w", op, err)
	}
	return listing, nil
}

// save applies updates guarded by the listing version and bumps it.
func (l *Ledger) save(tx *gorm.DB, listing *domain.Listing, updates map[string]interface{}) error {
	updates["version"] = listing.Version + 1
	res := tx.Model(&domain.Listing{}).
		Where("asset_id = ? AND version = ?", listing.AssetID, listing.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}
	listing.Version++
	return nil
}

// settle moves the listing to a terminal state and zeroes its deposited balance.
func (l *Ledger) settle(tx *gorm.DB, listing *domain.Listing, terminal string, to domain.Identity, amount domain.Amount) error {
	return l.save(tx, listing, map[string]interface{}{
		"is_listed":         false,
		terminal:            true,
		"deposited_balance": domain.Amount{},
		"settled_to":        to,
		"settled_amount":    amount,
	})
}

func (l *Ledger) approvals(ctx context.Context, db *gorm.DB, assetID uint64, ids ...domain.Identity) (map[domain.Identity]bool, error) {
	var rows []domain.ListingApproval
	if err := db.WithContext(ctx).Where("asset_id = ? AND identity IN ?", assetID, ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[domain.Identity]bool, len(rows))
	for _, r := range rows {
		out[r.Identity] = true
	}
	return out, nil
}

func (l *Ledger) appendEvent(tx *gorm.DB, assetID uint64, eventType string, actor domain.Identity, data map[string]interface{}) (*domain.ListingEvent, error) {
	var seq int64
	if err := tx.Model(&domain.ListingEvent{}).Where("asset_id = ?", assetID).Count(&seq).Error; err != nil {
		return nil, err
	}
	data["at"] = l.nowFn().UTC()
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	event := &domain.ListingEvent{
		AssetID:   assetID,
		Seq:       seq + 1,
		EventType: eventType,
		Actor:     actor,
		EventData: datatypes.JSON(raw),
	}
	if err := tx.Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

func (l *Ledger) committed(ctx context.Context, op string, actor domain.Identity, event *domain.ListingEvent) {
	log.Info().Str("op", op).Uint64("asset_id", event.AssetID).Str("actor", actor.String()).Int64("seq", event.Seq).Msg("escrow transition committed")
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(ctx, EventSubject(event.EventType), event); err != nil {
		log.Warn().Err(err).Str("op", op).Uint64("asset_id", event.AssetID).Msg("publish listing event")
	}
}

func (l *Ledger) observe(op string, start time.Time, errp *error) {
	if l.observer == nil {
		return
	}
	outcome := "ok"
	if *errp != nil {
		outcome = KindOf(*errp).String()
	}
	l.observer.ObserveTransition(op, outcome, time.Since(start))
}

// classify turns commit-path failures into ledger errors.
func classify(op string, err error) error {
	if KindOf(err) != KindUnknown {
		return err
	}
	if errors.Is(err, ErrConcurrentUpdate) {
		return busyErr(op, err)
	}
	return fmt.Errorf("escrow %s: %w", op, err)
}

// EventSubject is the messaging subject a listing event is published on.
func EventSubject(eventType string) string {
	return "escrow.listing." + strings.ToLower(eventType)
}
