package webhook

import (
	"github.com/maccman/opentrack-sub000/pkg/clients"
	"github.com/maccman/opentrack-sub000/pkg/config"
	"github.com/maccman/opentrack-sub000/pkg/destinations"
	"github.com/maccman/opentrack-sub000/pkg/logger"
	"github.com/maccman/opentrack-sub000/pkg/retry"
)

func init() {
	destinations.Register(Name, func(cfg *config.Config) (destinations.Destination, error) {
		if !cfg.Webhook.Enabled {
			return nil, nil
		}

		client := clients.NewHTTPClient(clients.DefaultHTTPConfig(), logger.Get())
		policy := retry.NewPolicy(cfg.Retry.MaxAttempts, cfg.Retry.InitialDelay, cfg.Retry.MaxDelay)
		return New(cfg.Webhook.URL, cfg.Webhook.SharedSecret, client, policy), nil
	})
}
