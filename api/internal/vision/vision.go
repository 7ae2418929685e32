// Package vision sends a normalized cover image to a hosted multimodal model
// and returns its free-text completion.
package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"

	"comic-vault/api/internal/imaging"
	"comic-vault/api/internal/metrics"
)

// ExtractionPrompt is sent verbatim with every image.
const ExtractionPrompt = `You are a comic book expert. Analyze this comic cover and extract:

- Title
- Issue Number
- Publisher
- Publication Year
- Variant (if any)
- Key Characters appearing
- Key events or story arc
- Artist / Writer (if visible on cover)
- Notable markings or features

If unsure, give your best guess.
Return JSON ONLY.`

var ErrEmptyCompletion = errors.New("empty completion")

// Request is one text+image prompt.
type Request struct {
	Prompt string
	Image  imaging.Encoded
}

// Engine is a single hosted model endpoint.
type Engine interface {
	Name() string
	GetModel() string
	Complete(ctx context.Context, req Request) (string, error)
}

type Engines struct {
	OpenAI Engine
	Gemini Engine
}

func (e *Engines) GetEngine(name string) (Engine, error) {
	var eng Engine
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gpt", "openai":
		eng = e.OpenAI
	case "gemini":
		eng = e.Gemini
	default:
		return nil, fmt.Errorf("unknown vision provider %q; use 'openai' or 'gemini'", name)
	}
	if eng == nil {
		return nil, fmt.Errorf("vision provider %q is not wired", name)
	}
	return eng, nil
}

// Client encodes images and makes exactly one engine call per Describe.
type Client struct {
	engine   Engine
	optimize *imaging.OptimizeOptions
}

type Option func(*Client)

// WithOptimize sends a bounded JPEG instead of the default lossless PNG.
func WithOptimize(opt imaging.OptimizeOptions) Option {
	return func(c *Client) { c.optimize = &opt }
}

func NewClient(engine Engine, opts ...Option) *Client {
	c := &Client{engine: engine}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) encode(n *imaging.Normalized) (imaging.Encoded, error) {
	if c.optimize != nil {
		return imaging.OptimizeForAPI(n, *c.optimize)
	}
	return imaging.EncodePNG(n)
}

// Describe returns the model's raw answer for the cover. No retries.
func (c *Client) Describe(ctx context.Context, n *imaging.Normalized) (string, error) {
	enc, err := c.encode(n)
	if err != nil {
		return "", err
	}

	name := c.engine.Name()
	start := time.Now()
	text, err := c.engine.Complete(ctx, Request{Prompt: ExtractionPrompt, Image: enc})
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("%s: %w", name, ErrEmptyCompletion)
	}
	elapsed := time.Since(start)
	metrics.VisionRequestDurationSeconds.WithLabelValues(name, metrics.Result(err)).Observe(elapsed.Seconds())

	entry := log.WithFields(log.Fields{
		"engine":   name,
		"model":    c.engine.GetModel(),
		"mime":     enc.MIME,
		"bytes":    len(enc.Data),
		"duration": elapsed.String(),
	})
	if err != nil {
		entry.WithError(err).Warn("vision call failed")
		// engines prefix their own errors
		return "", err
	}
	entry.Debug("vision call done")
	return text, nil
}
