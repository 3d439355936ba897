// Package contracts names the deployed Move entry points and encodes their
// arguments. Argument order and types here are the on-chain ABI.
package contracts

import (
	"fmt"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/ptb"
)

// Modules of the deployed package.
const (
	ModuleModel    = "model"
	ModuleImage    = "image"
	ModuleImaigine = "imaigine"
)

// Framework types.
const (
	KioskOwnerCapType = "0x2::kiosk::KioskOwnerCap"
	itemListedType    = "0x2::kiosk::ItemListed"
)

// Package identifies a deployment: the package id, the shared platform
// object and the transfer policy for models.
type Package struct {
	Address        string `koanf:"address"`
	Platform       string `koanf:"platform"`
	TransferPolicy string `koanf:"transfer_policy"`
}

// Testnet is the current testnet deployment.
func Testnet() Package {
	return Package{
		Address:        "0x30437ee81d0c7d8db4988fd151d6b4eda6d2b05493402b4bcceb0bd4100bdfb5",
		Platform:       "0xfe012b862e5dda1693d04b572111e753b7aa1312e07724997866f4eac5c911ca",
		TransferPolicy: "0x36d8d3fcddff30c1c565f7f8c896654292a934ac65a16989b34add008bb5fa15",
	}
}

// Validate checks that every id parses as an address.
func (p Package) Validate() error {
	for name, id := range map[string]string{
		"address":         p.Address,
		"platform":        p.Platform,
		"transfer_policy": p.TransferPolicy,
	} {
		if _, err := ptb.ParseAddress(id); err != nil {
			return fmt.Errorf("package %s: %w", name, err)
		}
	}
	return nil
}

func (p Package) target(module, function string) string {
	return fmt.Sprintf("%s::%s::%s", p.Address, module, function)
}

// ModelType is the full Move type of model records.
func (p Package) ModelType() string {
	return fmt.Sprintf("%s::%s::Model", p.Address, ModuleModel)
}

// ImageType is the full Move type of generated image records.
func (p Package) ImageType() string {
	return fmt.Sprintf("%s::%s::Image", p.Address, ModuleImage)
}

// ItemListedEventType is the kiosk event emitted when a model is listed.
func (p Package) ItemListedEventType() string {
	return fmt.Sprintf("%s<%s>", itemListedType, p.ModelType())
}

// RecordType returns the Move type for an asset kind.
func (p Package) RecordType(kind domain.AssetKind) string {
	if kind == domain.AssetKindImage {
		return p.ImageType()
	}
	return p.ModelType()
}

// CreateModel calls model::create(weights_url, trigger_word, images).
// images is a vector<vector<String>> with one inner vector, empty when
// there is no example image.
func (p Package) CreateModel(b *ptb.Builder, weightsURL, triggerWord string, exampleImages []string) ptb.Argument {
	inner := make([]string, len(exampleImages))
	copy(inner, exampleImages)
	return b.MoveCall(p.target(ModuleModel, "create"), nil,
		b.PureString(weightsURL),
		b.PureString(triggerWord),
		b.PureVectorVectorString([][]string{inner}),
	)
}

// CreateImage calls image::create(prompt, url, model_id).
func (p Package) CreateImage(b *ptb.Builder, prompt, url, modelID string) ptb.Argument {
	return b.MoveCall(p.target(ModuleImage, "create"), nil,
		b.PureString(prompt),
		b.PureString(url),
		b.PureAddress(modelID),
	)
}

// NewKiosk calls imaigine::new_kiosk(platform) and returns the kiosk and
// its owner cap.
func (p Package) NewKiosk(b *ptb.Builder) (kiosk, ownerCap ptb.Argument) {
	res := b.MoveCall(p.target(ModuleImaigine, "new_kiosk"), nil, b.Object(p.Platform))
	return res.Nested(0), res.Nested(1)
}

// MarkPublished calls model::publish_model(model).
func (p Package) MarkPublished(b *ptb.Builder, model ptb.Argument) {
	b.MoveCall(p.target(ModuleModel, "publish_model"), nil, model)
}

// ListModel calls imaigine::publish_model(model, price, kiosk, cap).
func (p Package) ListModel(b *ptb.Builder, model ptb.Argument, price uint64, kiosk, ownerCap ptb.Argument) {
	b.MoveCall(p.target(ModuleImaigine, "publish_model"), nil,
		model,
		b.PureU64(price),
		kiosk,
		ownerCap,
	)
}

// BuyModel calls imaigine::buy_model(id, kiosk, payment, policy) and
// returns the purchased model.
func (p Package) BuyModel(b *ptb.Builder, modelID string, kiosk, payment ptb.Argument) ptb.Argument {
	return b.MoveCall(p.target(ModuleImaigine, "buy_model"), nil,
		b.PureAddress(modelID),
		kiosk,
		payment,
		b.Object(p.TransferPolicy),
	)
}

// SetOwner calls model::set_owner(model, owner).
func (p Package) SetOwner(b *ptb.Builder, model ptb.Argument, owner string) {
	b.MoveCall(p.target(ModuleModel, "set_owner"), nil, model, b.PureAddress(owner))
}
