package cli

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tmoreaux/detectlab/internal/config"
	"github.com/tmoreaux/detectlab/internal/eventlog"
	"github.com/tmoreaux/detectlab/internal/llm"
	"github.com/tmoreaux/detectlab/internal/posts"
	"github.com/tmoreaux/detectlab/internal/session"
	"github.com/tmoreaux/detectlab/internal/store"
)

// app bundles the assembled components behind the commands.
type app struct {
	Store      store.Store
	Events     *eventlog.Logger
	Controller *session.Controller
	Corpus     *posts.Corpus
}

func (a *app) Close() {
	if err := a.Store.Close(); err != nil {
		zap.L().Warn("failed to close store", zap.Error(err))
	}
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.NewSQLite(cfg.Path)
	default:
		return nil, eris.Errorf("unknown store driver: %s (supported: memory, sqlite)", cfg.Driver)
	}
}

func newApp(cfg *config.Config) (*app, error) {
	st, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewCachedProviderFromConfig(llm.Config{
		Provider:   cfg.LLM.Provider,
		Model:      cfg.LLM.Model,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Timeout:    cfg.LLM.Timeout(),
		RatePerSec: cfg.LLM.RatePerSec,
		MaxTokens:  cfg.LLM.MaxTokens,
	}, cfg.LLM.CacheTTL())
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var corpus *posts.Corpus
	if cfg.Posts.Path != "" {
		corpus, err = posts.Load(cfg.Posts.Path)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		zap.L().Info("loaded post corpus",
			zap.String("path", cfg.Posts.Path),
			zap.Int("posts", len(corpus.Posts)),
		)
	}

	events := eventlog.New(st, nil)
	controller := session.New(st, provider, events, corpus)

	return &app{
		Store:      st,
		Events:     events,
		Controller: controller,
		Corpus:     corpus,
	}, nil
}
