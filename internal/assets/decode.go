package assets

import (
	"encoding/json"
	"strings"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/ptb"
	"imaigine-lab/internal/sui"
)

// Record names used in DecodeError.
const (
	recordModel    = "model"
	recordImage    = "image"
	recordKioskCap = "kiosk_cap"
	recordListing  = "listing"
)

// record wraps the Move fields of one object for typed access.
type record struct {
	name   string
	id     string
	fields map[string]json.RawMessage
}

func newRecord(name string, obj *sui.Object) record {
	return record{name: name, id: obj.ObjectID, fields: obj.Fields}
}

func (r record) fail(field, reason string) error {
	return &domain.DecodeError{Record: r.name, ID: r.id, Field: field, Reason: reason}
}

func (r record) raw(field string) (json.RawMessage, bool) {
	v, ok := r.fields[field]
	if !ok || len(v) == 0 || string(v) == "null" {
		return nil, false
	}
	return v, true
}

// requiredString reads a non-empty string field.
func (r record) requiredString(field string) (string, error) {
	v, ok := r.raw(field)
	if !ok {
		return "", r.fail(field, "missing")
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", r.fail(field, "not a string")
	}
	if s == "" {
		return "", r.fail(field, "empty")
	}
	return s, nil
}

// requiredAddress reads an address or ID field and normalizes it.
func (r record) requiredAddress(field string) (string, error) {
	s, err := r.requiredString(field)
	if err != nil {
		return "", err
	}
	addr, err := ptb.NormalizeAddress(s)
	if err != nil {
		return "", r.fail(field, "not an address")
	}
	return addr, nil
}

// optionalString returns "" when the field is absent or not a string.
func (r record) optionalString(field string) string {
	v, ok := r.raw(field)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

// stringList flattens a string, vector<String> or vector<vector<String>>
// field. Absent or malformed values yield nil.
func (r record) stringList(field string) []string {
	v, ok := r.raw(field)
	if !ok {
		return nil
	}
	var one string
	if json.Unmarshal(v, &one) == nil {
		if one == "" {
			return nil
		}
		return []string{one}
	}
	var flat []string
	if json.Unmarshal(v, &flat) == nil {
		return nonEmpty(flat)
	}
	var nested [][]string
	if json.Unmarshal(v, &nested) == nil {
		var out []string
		for _, inner := range nested {
			out = append(out, inner...)
		}
		return nonEmpty(out)
	}
	return nil
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// decodeModel maps a model::Model object. weights_link, trigger_word and
// owner are required; model_type and image_url are optional.
func decodeModel(obj *sui.Object) (*domain.Asset, error) {
	r := newRecord(recordModel, obj)
	id, err := objectID(r, obj)
	if err != nil {
		return nil, err
	}
	weights, err := r.requiredString("weights_link")
	if err != nil {
		return nil, err
	}
	trigger, err := r.requiredString("trigger_word")
	if err != nil {
		return nil, err
	}
	owner, err := r.requiredAddress("owner")
	if err != nil {
		return nil, err
	}

	asset := &domain.Asset{
		ID:          id,
		Kind:        domain.AssetKindModel,
		Owner:       owner,
		PayloadRef:  weights,
		TriggerWord: trigger,
		ImageURLs:   r.stringList("image_url"),
	}
	if mt := domain.ModelType(strings.ToLower(r.optionalString("model_type"))); mt.IsValid() {
		asset.ModelType = &mt
	}
	return asset, nil
}

// decodeImage maps an image::Image object. The owner falls back to the
// object's address owner when the record carries none.
func decodeImage(obj *sui.Object) (*domain.Asset, error) {
	r := newRecord(recordImage, obj)
	id, err := objectID(r, obj)
	if err != nil {
		return nil, err
	}
	prompt, err := r.requiredString("prompt")
	if err != nil {
		return nil, err
	}
	url, err := r.requiredString("url")
	if err != nil {
		return nil, err
	}
	modelID, err := r.requiredAddress("model_id")
	if err != nil {
		return nil, err
	}

	owner := obj.Owner.Address
	if _, ok := r.raw("owner"); ok {
		if owner, err = r.requiredAddress("owner"); err != nil {
			return nil, err
		}
	}
	if owner == "" {
		return nil, r.fail("owner", "missing")
	}
	if owner, err = ptb.NormalizeAddress(owner); err != nil {
		return nil, r.fail("owner", "not an address")
	}

	return &domain.Asset{
		ID:         id,
		Kind:       domain.AssetKindImage,
		Owner:      owner,
		PayloadRef: url,
		Prompt:     prompt,
		ModelID:    modelID,
	}, nil
}

// decodeKioskCap maps a 0x2::kiosk::KioskOwnerCap object.
func decodeKioskCap(obj *sui.Object) (*domain.KioskCap, error) {
	r := newRecord(recordKioskCap, obj)
	id, err := objectID(r, obj)
	if err != nil {
		return nil, err
	}
	kiosk, err := r.requiredAddress("for")
	if err != nil {
		return nil, err
	}
	return &domain.KioskCap{ID: id, KioskID: kiosk}, nil
}

// decodeListingPrice reads the u64 value of a kiosk Listing dynamic field.
func decodeListingPrice(obj *sui.Object) (uint64, error) {
	r := newRecord(recordListing, obj)
	v, ok := r.raw("value")
	if !ok {
		return 0, r.fail("value", "missing")
	}
	var price sui.U64
	if err := json.Unmarshal(v, &price); err != nil {
		return 0, r.fail("value", "not a u64")
	}
	return uint64(price), nil
}

func objectID(r record, obj *sui.Object) (string, error) {
	if obj.ObjectID == "" {
		return "", r.fail("id", "missing")
	}
	id, err := ptb.NormalizeAddress(obj.ObjectID)
	if err != nil {
		return "", r.fail("id", "not an address")
	}
	return id, nil
}

// itemListed is the parsed JSON of 0x2::kiosk::ItemListed<T>.
type itemListed struct {
	Kiosk string  `json:"kiosk"`
	ID    string  `json:"id"`
	Price sui.U64 `json:"price"`
}

func decodeItemListed(ev sui.Event) (itemListed, error) {
	var out itemListed
	if err := json.Unmarshal(ev.ParsedJSON, &out); err != nil {
		return out, &domain.DecodeError{Record: "item_listed", ID: ev.ID.TxDigest, Field: "parsedJson", Reason: err.Error()}
	}
	var err error
	if out.Kiosk, err = ptb.NormalizeAddress(out.Kiosk); err != nil {
		return out, &domain.DecodeError{Record: "item_listed", ID: ev.ID.TxDigest, Field: "kiosk", Reason: "not an address"}
	}
	if out.ID, err = ptb.NormalizeAddress(out.ID); err != nil {
		return out, &domain.DecodeError{Record: "item_listed", ID: ev.ID.TxDigest, Field: "id", Reason: "not an address"}
	}
	return out, nil
}
