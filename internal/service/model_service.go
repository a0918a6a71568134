package service

import (
	"context"
	"strings"

	"veritasai-be/internal/dto"
	"veritasai-be/pkg/llm"
)

// ProviderRegistry is satisfied by *factory.Registry.
type ProviderRegistry interface {
	Names() []string
	Resolve(name string) (llm.ProviderConfig, error)
	Provider(ctx context.Context, name string) (llm.Provider, error)
}

type IModelService interface {
	ListProviders(ctx context.Context) ([]*dto.ProviderResponse, error)
	ListModels(ctx context.Context, provider string) ([]*dto.ModelResponse, error)
}

type modelService struct {
	registry        ProviderRegistry
	defaultProvider string
}

func NewModelService(registry ProviderRegistry, defaultProvider string) IModelService {
	return &modelService{registry: registry, defaultProvider: defaultProvider}
}

func (s *modelService) ListProviders(ctx context.Context) ([]*dto.ProviderResponse, error) {
	names := s.registry.Names()
	res := make([]*dto.ProviderResponse, 0, len(names))
	for _, name := range names {
		cfg, err := s.registry.Resolve(name)
		if err != nil {
			return nil, err
		}
		res = append(res, &dto.ProviderResponse{
			Name:               cfg.Name,
			ChatModel:          cfg.ChatModel,
			EmbeddingModel:     cfg.EmbeddingModel,
			Dimension:          cfg.Dimension,
			SupportsEmbeddings: cfg.SupportsEmbedding(),
		})
	}
	return res, nil
}

// ListModels asks the provider for its models. An empty name means the
// configured chat provider.
func (s *modelService) ListModels(ctx context.Context, provider string) ([]*dto.ModelResponse, error) {
	if strings.TrimSpace(provider) == "" {
		provider = s.defaultProvider
	}
	p, err := s.registry.Provider(ctx, provider)
	if err != nil {
		return nil, err
	}
	models, err := p.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ModelResponse, len(models))
	for i, m := range models {
		res[i] = &dto.ModelResponse{
			Id:           m.ID,
			Name:         m.Name,
			Provider:     m.Provider,
			Capabilities: m.Capabilities,
			Size:         m.Size,
		}
	}
	return res, nil
}
