package domain

// AssetKind distinguishes the on-chain record types minted by the platform.
type AssetKind string

const (
	AssetKindModel AssetKind = "MODEL"
	AssetKindImage AssetKind = "IMAGE"
)

// ModelType classifies a fine-tuned model.
type ModelType string

const (
	ModelTypePeople ModelType = "people"
	ModelTypeStyle  ModelType = "style"
	ModelTypeOther  ModelType = "other"
)

// IsValid checks if the model type is a valid value.
func (t ModelType) IsValid() bool {
	return t == ModelTypePeople || t == ModelTypeStyle || t == ModelTypeOther
}

// Asset is the domain view of an on-chain Model or GeneratedImage record.
// The client never mutates it; it is re-read after every on-chain change.
type Asset struct {
	ID    string
	Kind  AssetKind
	Owner string

	// PayloadRef is the weights URL for models and the image URL for images.
	PayloadRef string

	// Model metadata.
	TriggerWord string
	ModelType   *ModelType // optional on-chain
	ImageURLs   []string   // example images, may be empty

	// Image metadata.
	Prompt  string
	ModelID string

	Listing *Listing // set only when the asset is listed in a kiosk
}

// Listing is a kiosk listing of a model.
type Listing struct {
	KioskID string
	Price   uint64 // MIST
}

// KioskCap is a kiosk owner capability held by a wallet.
type KioskCap struct {
	ID      string
	KioskID string
}
