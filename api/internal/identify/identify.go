// Package identify runs one cover image through normalization, the vision
// model and the result parser.
package identify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"

	"comic-vault/api/internal/imaging"
	"comic-vault/api/internal/metadata"
	"comic-vault/api/internal/metrics"
)

type Kind string

const (
	KindDecode   Kind = "decode"
	KindFormat   Kind = "format"
	KindUpstream Kind = "upstream"
	KindParse    Kind = "parse"
)

// Error tags a pipeline failure with the stage that produced it.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind, or "" when err did not come from Identify.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// Describer is the vision client seen from the pipeline.
type Describer interface {
	Describe(ctx context.Context, n *imaging.Normalized) (string, error)
}

type Service struct {
	vision         Describer
	parse          metadata.Parser
	allowedFormats []string
	maxPixels      int
}

type Option func(*Service)

// WithParser replaces the default strict parser.
func WithParser(p metadata.Parser) Option {
	return func(s *Service) {
		if p != nil {
			s.parse = p
		}
	}
}

// WithAllowedFormats rejects decoded images whose container is not listed.
// An empty list accepts anything Load can decode.
func WithAllowedFormats(formats []string) Option {
	return func(s *Service) { s.allowedFormats = formats }
}

// WithMaxPixels overrides imaging.DefaultMaxPixels.
func WithMaxPixels(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPixels = n
		}
	}
}

func New(v Describer, opts ...Option) *Service {
	s := &Service{vision: v, parse: metadata.Parse, maxPixels: imaging.DefaultMaxPixels}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Identify returns the metadata record for a cover. The first failing stage
// aborts the rest: a decode error never reaches the model and an upstream
// error never reaches the parser.
func (s *Service) Identify(ctx context.Context, data []byte) (rec metadata.Record, err error) {
	start := time.Now()
	metrics.ImageBytes.Observe(float64(len(data)))
	defer func() {
		result := "ok"
		if err != nil {
			result = string(KindOf(err))
		}
		metrics.IdentifyRequestsTotal.WithLabelValues(result).Inc()
		log.WithFields(log.Fields{
			"result":   result,
			"bytes":    len(data),
			"duration": time.Since(start).String(),
		}).Debug("identify finished")
	}()

	n, err := imaging.LoadLimited(data, s.maxPixels)
	if err != nil {
		return nil, &Error{Kind: KindDecode, Err: err}
	}
	if len(s.allowedFormats) > 0 && !imaging.ValidateFormat(n.Format, s.allowedFormats) {
		return nil, &Error{Kind: KindFormat, Err: fmt.Errorf("unsupported image format %q", n.Format)}
	}

	text, err := s.vision.Describe(ctx, n)
	if err != nil {
		return nil, &Error{Kind: KindUpstream, Err: err}
	}

	res := s.parse(text)
	if !res.OK() {
		return nil, &Error{Kind: KindParse, Err: res.Err}
	}
	return res.Record, nil
}
