package external

import (
	"context"
	"fmt"

	"github.com/watchmen-go/kernel/logger"
)

// Build creates the writers of cfg and registers them.
func Build(ctx context.Context, cfg Config, log *logger.Logger) (*Registry, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("external: %w", err)
	}
	reg := NewRegistry()
	for _, wc := range cfg.Writers {
		w, err := newWriter(ctx, wc, log)
		if err != nil {
			return nil, fmt.Errorf("external writer %s: %w", wc.ID, err)
		}
		reg.Register(w)
		log.Info("external writer registered", logger.Fields("writer", wc.ID, "type", wc.Type))
	}
	return reg, nil
}

func newWriter(ctx context.Context, cfg WriterConfig, log *logger.Logger) (Writer, error) {
	switch cfg.Type {
	case TypeHTTP:
		return NewHTTPWriter(cfg, log)
	case TypeLocal:
		store, err := NewLocalStore(cfg.BasePath)
		if err != nil {
			return nil, err
		}
		return NewObjectWriter(cfg.ID, store, cfg.Prefix), nil
	case TypeS3:
		store, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewObjectWriter(cfg.ID, store, cfg.Prefix), nil
	}
	return nil, fmt.Errorf("unsupported writer type %q", cfg.Type)
}
