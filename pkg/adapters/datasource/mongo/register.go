//go:build mongodb || all_adapters

package mongo

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "mongodb",
			DisplayName: "MongoDB",
			Description: "Sample collections of MongoDB 5+, Atlas, DocumentDB",
		},
		Factory: func(ctx context.Context, config map[string]any, logger *zap.Logger) (datasource.DocumentSampler, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg, logger)
		},
	})
}
