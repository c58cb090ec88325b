package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
)

// DatasourceAdapterFactory creates samplers from the registry.
type DatasourceAdapterFactory interface {
	// NewDocumentSampler creates a sampler for the given datasource type.
	NewDocumentSampler(ctx context.Context, dsType string, config map[string]any) (DocumentSampler, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []DatasourceAdapterInfo
}

type registryFactory struct {
	logger *zap.Logger
}

// NewDatasourceAdapterFactory returns a factory that uses the global registry.
func NewDatasourceAdapterFactory(logger *zap.Logger) DatasourceAdapterFactory {
	return &registryFactory{
		logger: logger,
	}
}

func (f *registryFactory) NewDocumentSampler(ctx context.Context, dsType string, config map[string]any) (DocumentSampler, error) {
	factory := GetFactory(dsType)
	if factory == nil {
		return nil, fmt.Errorf("%w: %s (not compiled in)", apperrors.ErrUnsupportedDatasource, dsType)
	}
	return factory(ctx, config, f.logger.Named(dsType))
}

func (f *registryFactory) ListTypes() []DatasourceAdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements DatasourceAdapterFactory at compile time.
var _ DatasourceAdapterFactory = (*registryFactory)(nil)
