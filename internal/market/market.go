// Package market builds the kiosk transactions that publish a model for
// sale and buy a listed one.
package market

import (
	"fmt"

	"imaigine-lab/internal/contracts"
	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/ptb"
)

// Builder encodes marketplace calls against one deployment.
type Builder struct {
	pkg contracts.Package
}

// NewBuilder creates a marketplace builder.
func NewBuilder(pkg contracts.Package) *Builder {
	return &Builder{pkg: pkg}
}

// BuildPublishTx lists modelID at price MIST. With a nil cap a new kiosk
// is created in the same transaction and both the kiosk and its cap are
// transferred to owner:
//
//	kiosk, cap = imaigine::new_kiosk(platform)
//	model::publish_model(model)
//	imaigine::publish_model(model, price, kiosk, cap)
//	TransferObjects([kiosk, cap], owner)
func (b *Builder) BuildPublishTx(owner, modelID string, price uint64, kc *domain.KioskCap) (*ptb.Transaction, error) {
	if _, err := ptb.ParseAddress(owner); err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	if _, err := ptb.ParseAddress(modelID); err != nil {
		return nil, fmt.Errorf("model id: %w", err)
	}
	if price == 0 {
		return nil, fmt.Errorf("%w: zero listing price", domain.ErrInvalidInput)
	}

	tx := ptb.NewBuilder()
	var kiosk, ownerCap ptb.Argument
	if kc == nil {
		kiosk, ownerCap = b.pkg.NewKiosk(tx)
	} else {
		if _, err := ptb.ParseAddress(kc.ID); err != nil {
			return nil, fmt.Errorf("kiosk cap: %w", err)
		}
		if _, err := ptb.ParseAddress(kc.KioskID); err != nil {
			return nil, fmt.Errorf("kiosk: %w", err)
		}
		kiosk, ownerCap = tx.Object(kc.KioskID), tx.Object(kc.ID)
	}

	model := tx.Object(modelID)
	b.pkg.MarkPublished(tx, model)
	b.pkg.ListModel(tx, model, price, kiosk, ownerCap)

	if kc == nil {
		tx.TransferObjects([]ptb.Argument{kiosk, ownerCap}, tx.PureAddress(owner))
	}
	return tx.Build()
}

// BuildBuyTx pays listing.Price from gas and moves modelID to buyer:
//
//	coin  = SplitCoins(gas, [price])
//	model = imaigine::buy_model(id, kiosk, coin, policy)
//	model::set_owner(model, buyer)
//	TransferObjects([model], buyer)
func (b *Builder) BuildBuyTx(buyer string, listing *domain.Listing, modelID string) (*ptb.Transaction, error) {
	if listing == nil {
		return nil, fmt.Errorf("%w: model is not listed", domain.ErrInvalidInput)
	}
	if listing.Price == 0 {
		return nil, fmt.Errorf("%w: zero listing price", domain.ErrInvalidInput)
	}
	if _, err := ptb.ParseAddress(buyer); err != nil {
		return nil, fmt.Errorf("buyer: %w", err)
	}
	if _, err := ptb.ParseAddress(modelID); err != nil {
		return nil, fmt.Errorf("model id: %w", err)
	}
	if _, err := ptb.ParseAddress(listing.KioskID); err != nil {
		return nil, fmt.Errorf("kiosk: %w", err)
	}

	tx := ptb.NewBuilder()
	payment := tx.SplitCoins(tx.Gas(), tx.PureU64(listing.Price))[0]
	model := b.pkg.BuyModel(tx, modelID, tx.Object(listing.KioskID), payment)
	b.pkg.SetOwner(tx, model, buyer)
	tx.TransferObjects([]ptb.Argument{model}, tx.PureAddress(buyer))
	return tx.Build()
}
