package api

import "imaigine-lab/internal/domain"

type jobView struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	Status        string  `json:"status"`
	Progress      int     `json:"progress"`
	QueuePosition *int    `json:"queue_position,omitempty"`
	Error         string  `json:"error,omitempty"`
	Owner         string  `json:"owner,omitempty"`
	App           string  `json:"app,omitempty"`
	ModelType     string  `json:"model_type,omitempty"`
	TriggerWord   string  `json:"trigger_word,omitempty"`
	ModelID       string  `json:"model_id,omitempty"`
	Prompt        string  `json:"prompt,omitempty"`
	MintDigest    *string `json:"mint_digest,omitempty"`
	Live          bool    `json:"live"`
	CreatedAt     int64   `json:"created_at,omitempty"`
	UpdatedAt     int64   `json:"updated_at,omitempty"`
}

func newJobView(h *domain.JobHandle) jobView {
	v := jobView{
		ID:          h.ID,
		Kind:        h.Kind.String(),
		Status:      h.Status.String(),
		Progress:    h.Progress,
		Owner:       h.Owner,
		App:         h.App,
		TriggerWord: h.TriggerWord,
		ModelID:     h.ModelID,
		Prompt:      h.Prompt,
		MintDigest:  h.MintDigest,
		CreatedAt:   h.CreatedAt,
		UpdatedAt:   h.UpdatedAt,
	}
	if h.ModelType != nil {
		v.ModelType = string(*h.ModelType)
	}
	return v
}

// applyLive overlays the tracker state, which is never behind the store.
func (v *jobView) applyLive(j domain.Job) {
	v.ID = j.ID
	v.Kind = j.Kind.String()
	v.Status = j.Status.String()
	v.Progress = j.Progress
	v.QueuePosition = j.QueuePosition
	v.Error = j.Error
	v.Live = true
	if !j.UpdatedAt.IsZero() {
		v.UpdatedAt = j.UpdatedAt.UnixMilli()
	}
}

type listingView struct {
	KioskID   string `json:"kiosk_id"`
	PriceMist uint64 `json:"price_mist"`
}

type assetView struct {
	ID          string       `json:"id"`
	Kind        string       `json:"kind"`
	Owner       string       `json:"owner"`
	PayloadRef  string       `json:"payload_ref"`
	TriggerWord string       `json:"trigger_word,omitempty"`
	ModelType   string       `json:"model_type,omitempty"`
	ImageURLs   []string     `json:"image_urls,omitempty"`
	Prompt      string       `json:"prompt,omitempty"`
	ModelID     string       `json:"model_id,omitempty"`
	Listing     *listingView `json:"listing,omitempty"`
}

func newAssetView(a domain.Asset) assetView {
	v := assetView{
		ID:          a.ID,
		Kind:        string(a.Kind),
		Owner:       a.Owner,
		PayloadRef:  a.PayloadRef,
		TriggerWord: a.TriggerWord,
		ImageURLs:   a.ImageURLs,
		Prompt:      a.Prompt,
		ModelID:     a.ModelID,
	}
	if a.ModelType != nil {
		v.ModelType = string(*a.ModelType)
	}
	if a.Listing != nil {
		v.Listing = &listingView{KioskID: a.Listing.KioskID, PriceMist: a.Listing.Price}
	}
	return v
}

func newAssetViews(list []domain.Asset) []assetView {
	out := make([]assetView, 0, len(list))
	for _, a := range list {
		out = append(out, newAssetView(a))
	}
	return out
}
