// Package provider builds the configured vision engine.
package provider

import (
	"github.com/apex/log"

	"comic-vault/api/internal/config"
	"comic-vault/api/internal/imaging"
	"comic-vault/api/internal/vision"
	"comic-vault/api/internal/vision/gemini"
	"comic-vault/api/internal/vision/openai"
)

// NewEngine returns the engine named by VISION_PROVIDER. A missing API key is
// not an error here; the engine fails on its first call instead.
func NewEngine(cfg *config.Config) (vision.Engine, error) {
	engines := &vision.Engines{
		OpenAI: openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel).WithBaseURL(cfg.OpenAIBaseURL),
		Gemini: gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel),
	}
	eng, err := engines.GetEngine(cfg.VisionProvider)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"engine": eng.Name(),
		"model":  eng.GetModel(),
	}).Info("vision engine selected")
	return eng, nil
}

// NewClient wraps the engine with the upload encoding chosen in config.
func NewClient(cfg *config.Config, eng vision.Engine) *vision.Client {
	if !cfg.OptimizeUploads {
		return vision.NewClient(eng)
	}
	return vision.NewClient(eng, vision.WithOptimize(optimizeOptions(cfg)))
}

func optimizeOptions(cfg *config.Config) imaging.OptimizeOptions {
	opt := imaging.DefaultOptimizeOptions()
	if cfg.ImageMaxSize > 0 {
		opt.MaxWidth, opt.MaxHeight = cfg.ImageMaxSize, cfg.ImageMaxSize
	}
	if cfg.ImageQuality > 0 && cfg.ImageQuality <= 100 {
		opt.Quality = cfg.ImageQuality
	}
	return opt
}
