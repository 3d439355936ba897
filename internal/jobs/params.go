package jobs

import (
	"fmt"

	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/pricing"
)

// Params describes one remote job request.
type Params interface {
	Kind() domain.JobKind
	App() string
	// Input returns the request body. payloadURL is empty for jobs without
	// an uploaded payload.
	Input(payloadURL string) (any, error)
}

// TrainingParams configures a fine-tuning job.
type TrainingParams struct {
	TriggerWord    string
	ModelType      domain.ModelType
	CreateMasks    bool
	IterMultiplier float64
}

// TrainingInput is the request body of a training job.
type TrainingInput struct {
	ImagesDataURL  string  `json:"images_data_url"`
	CreateMasks    bool    `json:"create_masks"`
	IterMultiplier float64 `json:"iter_multiplier"`
	TriggerWord    string  `json:"trigger_word"`
	IsStyle        bool    `json:"is_style"`
}

// NewTrainingParams returns training params with a fresh trigger word.
func NewTrainingParams(modelType domain.ModelType) TrainingParams {
	return TrainingParams{
		TriggerWord:    NewTriggerWord(),
		ModelType:      modelType,
		CreateMasks:    true,
		IterMultiplier: 1,
	}
}

func (TrainingParams) Kind() domain.JobKind { return domain.JobKindTraining }

func (TrainingParams) App() string { return TrainingApp }

func (p TrainingParams) Input(payloadURL string) (any, error) {
	if payloadURL == "" {
		return nil, fmt.Errorf("training: missing images url: %w", domain.ErrInvalidInput)
	}
	if p.TriggerWord == "" {
		return nil, fmt.Errorf("training: missing trigger word: %w", domain.ErrInvalidInput)
	}
	if !p.ModelType.IsValid() {
		return nil, fmt.Errorf("training: model type %q: %w", p.ModelType, domain.ErrInvalidInput)
	}
	mult := p.IterMultiplier
	if mult <= 0 {
		mult = 1
	}
	return TrainingInput{
		ImagesDataURL:  payloadURL,
		CreateMasks:    p.CreateMasks,
		IterMultiplier: mult,
		TriggerWord:    p.TriggerWord,
		IsStyle:        p.ModelType == domain.ModelTypeStyle,
	}, nil
}

// GenerationParams configures an image generation job.
type GenerationParams struct {
	Prompt    string
	LoraURL   string
	ImageSize pricing.ImageSize
	Scale     float64
	ModelID   string
}

// Lora references LoRA weights applied during generation.
type Lora struct {
	Path  string  `json:"path"`
	Scale float64 `json:"scale"`
}

// GenerationInput is the request body of a generation job.
type GenerationInput struct {
	Prompt    string            `json:"prompt"`
	ImageSize pricing.ImageSize `json:"image_size"`
	Loras     []Lora            `json:"loras"`
	SyncMode  bool              `json:"sync_mode"`
}

func (GenerationParams) Kind() domain.JobKind { return domain.JobKindGeneration }

func (GenerationParams) App() string { return GenerationApp }

func (p GenerationParams) Input(string) (any, error) {
	if p.Prompt == "" {
		return nil, fmt.Errorf("generation: empty prompt: %w", domain.ErrInvalidInput)
	}
	if p.LoraURL == "" {
		return nil, fmt.Errorf("generation: missing lora url: %w", domain.ErrInvalidInput)
	}
	size := p.ImageSize
	if size == "" {
		size = pricing.SizeSquare
	}
	if _, _, ok := size.Resolution(); !ok {
		return nil, fmt.Errorf("generation: image size %q: %w", size, domain.ErrInvalidInput)
	}
	scale := p.Scale
	if scale <= 0 {
		scale = 1
	}
	return GenerationInput{
		Prompt:    p.Prompt,
		ImageSize: size,
		Loras:     []Lora{{Path: p.LoraURL, Scale: scale}},
		SyncMode:  true,
	}, nil
}
