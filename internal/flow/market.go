package flow

import (
	"context"
	"fmt"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/ptb"
	"imaigine-lab/internal/sui"
)

// Publish lists a model owned by owner at price MIST. The first kiosk the
// owner holds is reused; without one a kiosk is created in the same
// transaction.
func (s *Service) Publish(ctx context.Context, owner, modelID string, price uint64) (*sui.ExecuteResult, error) {
	owner, err := normalAddress("owner", owner)
	if err != nil {
		return nil, err
	}
	model, err := s.opts.Assets.GetAsset(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if model.Kind != domain.AssetKindModel {
		return nil, fmt.Errorf("%w: %s is not a model", domain.ErrInvalidInput, model.ID)
	}
	if current, err := ptb.NormalizeAddress(model.Owner); err != nil || current != owner {
		return nil, fmt.Errorf("%w: model %s belongs to %s", domain.ErrInvalidInput, model.ID, model.Owner)
	}
	if s.opts.Wallet == nil {
		return nil, ErrNoWallet
	}

	caps, err := s.opts.Kiosks.OwnedKioskCaps(ctx, owner)
	if err != nil {
		return nil, err
	}
	var kc *domain.KioskCap
	if len(caps) > 0 {
		kc = &caps[0]
	}

	tx, err := s.opts.Market.BuildPublishTx(owner, model.ID, price, kc)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "publishing model", "model_id", model.ID, "price_mist", price, "new_kiosk", kc == nil)
	return s.execute(ctx, FlowPublish, tx)
}

// Buy pays the live listing price of modelID and transfers it to buyer.
func (s *Service) Buy(ctx context.Context, buyer, modelID string) (*sui.ExecuteResult, error) {
	buyer, err := normalAddress("buyer", buyer)
	if err != nil {
		return nil, err
	}
	listing, err := s.opts.Kiosks.GetListing(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, fmt.Errorf("%w: model %s is not listed", domain.ErrInvalidInput, modelID)
	}
	if s.opts.Wallet == nil {
		return nil, ErrNoWallet
	}

	tx, err := s.opts.Market.BuildBuyTx(buyer, listing, modelID)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "buying model", "model_id", modelID, "kiosk_id", listing.KioskID, "price_mist", listing.Price)
	return s.execute(ctx, FlowBuy, tx)
}
