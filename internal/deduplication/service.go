package deduplication

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/e-CODEX/connector-sub004/internal/config"
	"github.com/e-CODEX/connector-sub004/internal/logger"
)

// Service tracks received ebMS message ids per domain so the same gateway
// message is accepted only once within the awareness window.
type Service struct {
	client      *redis.Client
	ttl         time.Duration
	denyOnError bool
	logger      logger.Logger
}

func NewService(client *redis.Client, cfg config.DeduplicationConfig, log logger.Logger) *Service {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Service{
		client:      client,
		ttl:         ttl,
		denyOnError: cfg.OnRedisError == "deny",
		logger:      log,
	}
}

// IsDuplicate atomically claims the (domain, ebms id) pair. The first caller
// gets false, every later caller inside the TTL gets true. On a redis outage
// the configured policy decides: allow risks a duplicate delivery, deny risks
// dropping a first arrival.
func (s *Service) IsDuplicate(ctx context.Context, domainID, ebmsMessageID string) (bool, error) {
	key := fmt.Sprintf("dedup:%s:%s", domainID, ebmsMessageID)

	claimed, err := s.client.SetNX(ctx, key, 1, s.ttl).Result()
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Deduplication check failed",
			"domain_id", domainID,
			"ebms_message_id", ebmsMessageID,
			"error", err,
			"policy", s.policy(),
		)
		return s.denyOnError, nil
	}

	return !claimed, nil
}

func (s *Service) policy() string {
	if s.denyOnError {
		return "deny"
	}
	return "allow"
}
