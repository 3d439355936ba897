package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"imaigine-lab/internal/domain"
)

// ImageSize is a named output resolution preset of the generation backend.
type ImageSize string

const (
	SizeSquare        ImageSize = "square"
	SizeSquareHD      ImageSize = "square_hd"
	SizePortrait4x3   ImageSize = "portrait_4_3"
	SizePortrait16x9  ImageSize = "portrait_16_9"
	SizeLandscape4x3  ImageSize = "landscape_4_3"
	SizeLandscape16x9 ImageSize = "landscape_16_9"
)

var resolutions = map[ImageSize][2]int64{
	SizeSquare:        {512, 512},
	SizeSquareHD:      {1024, 1024},
	SizePortrait4x3:   {768, 1024},
	SizePortrait16x9:  {576, 1024},
	SizeLandscape4x3:  {1024, 768},
	SizeLandscape16x9: {1024, 576},
}

// Resolution returns width and height of the preset.
func (s ImageSize) Resolution() (int64, int64, bool) {
	r, ok := resolutions[s]
	return r[0], r[1], ok
}

// Megapixels returns width*height/1e6 for the preset.
func Megapixels(size ImageSize) (decimal.Decimal, error) {
	w, h, ok := size.Resolution()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown image size %q", domain.ErrInvalidInput, size)
	}
	return decimal.NewFromInt(w * h).Div(decimal.NewFromInt(1_000_000)), nil
}

// Prices holds the platform's fixed USD prices.
type Prices struct {
	FineTuneUSD          decimal.Decimal // flat price of one fine-tuning job
	GeneratePerMegapixel decimal.Decimal // USD per generated megapixel
	FeePercent           decimal.Decimal // share of every payment routed to the vault
}

// DefaultPrices returns the production price list.
func DefaultPrices() Prices {
	return Prices{
		FineTuneUSD:          decimal.NewFromInt(5),
		GeneratePerMegapixel: decimal.RequireFromString("0.045"),
		FeePercent:           decimal.NewFromInt(5),
	}
}

// FineTune computes the payment for one fine-tuning job.
func (c *Calculator) FineTune(p Prices, rate decimal.Decimal) (domain.FeeBreakdown, error) {
	return c.ComputeFee(p.FineTuneUSD, decimal.NewFromInt(1), p.FeePercent, rate)
}

// Generate computes the payment for generating one image of the given size.
func (c *Calculator) Generate(p Prices, size ImageSize, rate decimal.Decimal) (domain.FeeBreakdown, error) {
	mp, err := Megapixels(size)
	if err != nil {
		return domain.FeeBreakdown{}, err
	}
	return c.ComputeFee(p.GeneratePerMegapixel, mp, p.FeePercent, rate)
}
