package bigquery

import (
	"context"

	"github.com/maccman/opentrack-sub000/pkg/config"
	"github.com/maccman/opentrack-sub000/pkg/destinations"
	"github.com/maccman/opentrack-sub000/pkg/retry"
	"github.com/maccman/opentrack-sub000/pkg/warehouse"
)

func init() {
	destinations.Register(Name, func(cfg *config.Config) (destinations.Destination, error) {
		if !cfg.BigQuery.Enabled {
			return nil, nil
		}

		store, err := warehouse.NewBigQueryStore(context.Background(),
			cfg.BigQuery.ProjectID,
			cfg.BigQuery.Location,
			cfg.BigQuery.CredentialsFile)
		if err != nil {
			return nil, err
		}

		policy := retry.NewPolicy(cfg.Retry.MaxAttempts, cfg.Retry.InitialDelay, cfg.Retry.MaxDelay)
		return New(cfg.BigQuery.Dataset, store, policy), nil
	})
}
