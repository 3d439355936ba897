// Package main is the wallet-side command line: it pays for and submits
// jobs, follows them, mints the results and trades models on the kiosk
// marketplace. Results are printed to stdout as JSON, logs go to stderr.
//
// Usage:
//
//	imaigine [-config file] <command> [flags]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"imaigine-lab/internal/app"
	"imaigine-lab/internal/assets"
	"imaigine-lab/internal/config"
	"imaigine-lab/internal/domain"
	"imaigine-lab/internal/flow"
	"imaigine-lab/internal/jobs"
	"imaigine-lab/internal/logging"
	"imaigine-lab/internal/mint"
	"imaigine-lab/internal/pricing"
	"imaigine-lab/internal/sui"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app.App, args []string) (any, error)
}

var commands = map[string]command{
	"finetune": {"pay for and submit a fine-tune job", runFineTune},
	"generate": {"pay for and submit an image generation job", runGenerate},
	"track":    {"follow a stored job and optionally mint it", runTrack},
	"assets":   {"list models or images owned by an address", runAssets},
	"listings": {"list models for sale", runListings},
	"publish":  {"list an owned model for sale", runPublish},
	"buy":      {"buy a listed model", runBuy},
}

func main() {
	configPath := flag.String("config", os.Getenv("IMAIGINE_CONFIG"), "Path to a yaml config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.NewJSON(os.Stderr, cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info(ctx, "interrupted", "signal", sig.String())
		cancel()
	}()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}

	out, err := cmd.run(ctx, a, flag.Args()[1:])
	a.Close()
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(2)
	}
	if out != nil {
		printJSON(out)
	}
	if err != nil {
		log.Error(ctx, flag.Arg(0)+" failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: imaigine [-config file] <command> [flags]")
	fmt.Fprintln(os.Stderr, "\ncommands:")
	for _, name := range []string{"finetune", "generate", "track", "assets", "listings", "publish", "buy"} {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(os.Stderr, "\nflags:")
	flag.PrintDefaults()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
	}
}

func runFineTune(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := flag.NewFlagSet("finetune", flag.ContinueOnError)
	modelType := fs.String("type", string(domain.ModelTypeStyle), "Model type: people, style or other")
	images := fs.String("images", "", "Comma separated training image files (required)")
	wait := fs.Bool("wait", false, "Follow the job until it finishes")
	mintResult := fs.Bool("mint", false, "Mint the trained model, implies -wait")
	example := fs.Bool("example", false, "Render an example image and mint the model with it, implies -mint")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	wallet, err := a.RequireWallet()
	if err != nil {
		return nil, err
	}
	files, err := readImages(*images)
	if err != nil {
		return nil, err
	}
	h, err := a.Flow.FineTune(ctx, flow.FineTuneRequest{
		Payer:     wallet.Address(),
		Images:    files,
		ModelType: domain.ModelType(strings.ToLower(*modelType)),
	})
	if err != nil {
		return nil, err
	}
	return follow(ctx, a, h, steps{wait: *wait || *mintResult || *example, mint: *mintResult || *example, example: *example})
}

func runGenerate(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	modelID := fs.String("model", "", "Model object id (required)")
	prompt := fs.String("prompt", "", "Prompt; the model trigger word is prepended (required)")
	size := fs.String("size", string(pricing.SizeSquareHD), "Image size preset, e.g. square, square_hd, landscape_16_9")
	wait := fs.Bool("wait", false, "Follow the job until it finishes")
	mintResult := fs.Bool("mint", false, "Mint the generated image, implies -wait")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	wallet, err := a.RequireWallet()
	if err != nil {
		return nil, err
	}
	h, err := a.Flow.Generate(ctx, flow.GenerateRequest{
		Payer:     wallet.Address(),
		ModelID:   *modelID,
		Prompt:    *prompt,
		ImageSize: pricing.ImageSize(*size),
	})
	if err != nil {
		return nil, err
	}
	return follow(ctx, a, h, steps{wait: *wait || *mintResult, mint: *mintResult})
}

func runTrack(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := flag.NewFlagSet("track", flag.ContinueOnError)
	jobID := fs.String("job", "", "Job id (required)")
	mintResult := fs.Bool("mint", false, "Mint the result once the job is done")
	example := fs.Bool("example", false, "Render an example image for a trained model and mint with it, implies -mint")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *jobID == "" {
		return nil, fmt.Errorf("%w: -job is required", domain.ErrInvalidInput)
	}
	if *mintResult || *example {
		if _, err := a.RequireWallet(); err != nil {
			return nil, err
		}
	}

	h, err := a.Stores.Handles.GetByID(ctx, *jobID)
	if err != nil {
		return nil, err
	}
	if *example && h.Kind != domain.JobKindTraining {
		return nil, fmt.Errorf("%w: -example needs a training job", domain.ErrInvalidInput)
	}
	return follow(ctx, a, *h, steps{wait: true, mint: *mintResult || *example, example: *example})
}

func runAssets(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := flag.NewFlagSet("assets", flag.ContinueOnError)
	owner := fs.String("owner", "", "Owner address, defaults to the configured wallet")
	kind := fs.String("kind", "model", "Record kind: model or image")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	address := *owner
	if address == "" {
		wallet, err := a.RequireWallet()
		if err != nil {
			return nil, fmt.Errorf("-owner or a wallet is required: %w", err)
		}
		address = wallet.Address()
	}
	k := domain.AssetKind(strings.ToUpper(*kind))
	if k != domain.AssetKindModel && k != domain.AssetKindImage {
		return nil, fmt.Errorf("%w: kind must be model or image", domain.ErrInvalidInput)
	}

	list, err := a.Assets.ListAssets(ctx, assets.OwnedBy(address, k))
	if err != nil {
		return nil, err
	}
	return newAssetOutputs(list), nil
}

func runListings(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := flag.NewFlagSet("listings", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	list, err := a.Assets.ListAssets(ctx, assets.Listed())
	if err != nil {
		return nil, err
	}
	return newAssetOutputs(list), nil
}

func runPublish(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	modelID := fs.String("model", "", "Model object id (required)")
	price := fs.Uint64("price", 0, "Listing price in MIST (required)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	wallet, err := a.RequireWallet()
	if err != nil {
		return nil, err
	}
	res, err := a.Flow.Publish(ctx, wallet.Address(), *modelID, *price)
	if err != nil {
		return nil, err
	}
	return newTxOutput(res), nil
}

func runBuy(ctx context.Context, a *app.App, args []string) (any, error) {
	fs := flag.NewFlagSet("buy", flag.ContinueOnError)
	modelID := fs.String("model", "", "Model object id (required)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	wallet, err := a.RequireWallet()
	if err != nil {
		return nil, err
	}
	res, err := a.Flow.Buy(ctx, wallet.Address(), *modelID)
	if err != nil {
		return nil, err
	}
	return newTxOutput(res), nil
}

// steps selects what follow does after submission.
type steps struct {
	wait    bool
	mint    bool
	example bool // render an example image first, training jobs only
}

// follow optionally tracks h to the end and mints the result. The
// returned output always carries the job, even when a later step fails.
func follow(ctx context.Context, a *app.App, h domain.JobHandle, do steps) (any, error) {
	out := jobOutput{ID: h.ID, Kind: h.Kind.String(), Status: h.Status.String(), Progress: h.Progress, TriggerWord: h.TriggerWord}
	if h.MintDigest != nil {
		out.MintDigest = *h.MintDigest
	}
	if !do.wait {
		return out, nil
	}

	t, err := a.Flow.Track(ctx, h)
	if err != nil {
		return out, err
	}
	defer t.Detach()
	unsubscribe := t.Subscribe(func(j domain.Job) {
		a.Log.Info(ctx, "job update", "job_id", j.ID, "status", j.Status.String(), "progress", j.Progress)
	})
	defer unsubscribe()

	job, err := t.Wait(ctx)
	out.Status, out.Progress, out.Error = job.Status.String(), job.Progress, job.Error
	if err != nil || !do.mint {
		return out, err
	}

	var meta mint.Metadata
	if do.example {
		url, err := a.Flow.ExampleImage(ctx, h, t, flow.ExampleRequest{})
		if err != nil {
			return out, err
		}
		out.ExampleImage = url
		meta.ExampleImages = []string{url}
	}
	res, err := a.Flow.Mint(ctx, h, t, meta)
	if err != nil {
		return out, err
	}
	out.MintDigest = res.Digest
	return out, nil
}

func readImages(list string) ([]jobs.File, error) {
	var files []jobs.File
	for _, path := range strings.Split(list, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		files = append(files, jobs.File{Name: filepath.Base(path), Data: data})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: -images is required", domain.ErrInvalidInput)
	}
	return files, nil
}

type jobOutput struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	TriggerWord  string `json:"trigger_word,omitempty"`
	Error        string `json:"error,omitempty"`
	ExampleImage string `json:"example_image,omitempty"`
	MintDigest   string `json:"mint_digest,omitempty"`
}

type txOutput struct {
	Digest string `json:"digest"`
	Status string `json:"status"`
}

func newTxOutput(res *sui.ExecuteResult) txOutput {
	return txOutput{Digest: res.Digest, Status: res.Status}
}

type assetOutput struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Owner       string   `json:"owner"`
	PayloadRef  string   `json:"payload_ref"`
	TriggerWord string   `json:"trigger_word,omitempty"`
	ImageURLs   []string `json:"image_urls,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	ModelID     string   `json:"model_id,omitempty"`
	KioskID     string   `json:"kiosk_id,omitempty"`
	PriceMist   uint64   `json:"price_mist,omitempty"`
}

func newAssetOutputs(list []domain.Asset) []assetOutput {
	out := make([]assetOutput, 0, len(list))
	for _, a := range list {
		o := assetOutput{
			ID:          a.ID,
			Kind:        string(a.Kind),
			Owner:       a.Owner,
			PayloadRef:  a.PayloadRef,
			TriggerWord: a.TriggerWord,
			ImageURLs:   a.ImageURLs,
			Prompt:      a.Prompt,
			ModelID:     a.ModelID,
		}
		if a.Listing != nil {
			o.KioskID, o.PriceMist = a.Listing.KioskID, a.Listing.Price
		}
		out = append(out, o)
	}
	return out
}
