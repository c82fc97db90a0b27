package generation

import (
	"context"
	"errors"
)

// Model identifiers on the hosted inference queue.
const (
	modelStyleTransfer = "fal-ai/flux-pro/kontext"
	modelComposite     = "fal-ai/flux-pro/kontext/max/multi"
	modelUpscale       = "fal-ai/clarity-upscaler"
)

// Generation instructions. These are tuned against the queue models above;
// change them together with the model identifiers.
const (
	styleTransferInstruction = "keep likeness and hairstyle the same, change pose and style to mona lisa"
	compositeInstruction     = "Incorporate the pet into the painting of the woman. She is holding it in her lap. Keep the painting style and background identical."
	upscaleInstruction       = "masterpiece, best quality, highres"
)

// ErrNoOutput is returned when the provider completes without producing an image.
var ErrNoOutput = errors.New("generation: provider returned no output image")

// Result is the outcome of one generation invocation.
type Result struct {
	RequestID string
	ImageURL  string
}

// StyleTransferInput renders the customer photo as a mona lisa style portrait.
type StyleTransferInput struct {
	PortraitURL string
	// PromptTweak appends operator guidance when regenerating, empty otherwise.
	PromptTweak string
}

// CompositeInput places the pet into the styled portrait.
type CompositeInput struct {
	BasePortraitURL string
	PetURL          string
	PromptTweak     string
}

// UpscaleInput produces the print-resolution file from the approved preview.
type UpscaleInput struct {
	ImageURL string
	Factor   int
}

// Provider runs the image generation pipeline steps on a hosted model queue.
type Provider interface {
	StyleTransfer(ctx context.Context, input StyleTransferInput) (Result, error)
	ComposePet(ctx context.Context, input CompositeInput) (Result, error)
	Upscale(ctx context.Context, input UpscaleInput) (Result, error)
}
