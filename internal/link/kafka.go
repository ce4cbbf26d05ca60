package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	"github.com/e-CODEX/connector-sub004/internal/transport"
	"github.com/e-CODEX/connector-sub004/pkg/circuitbreaker"
	pkgerrors "github.com/e-CODEX/connector-sub004/pkg/errors"
	"github.com/e-CODEX/connector-sub004/pkg/logging"
	"github.com/e-CODEX/connector-sub004/pkg/metrics"
	"github.com/e-CODEX/connector-sub004/pkg/retry"
	"github.com/e-CODEX/connector-sub004/pkg/tracing"
)

const (
	kafkaImplName     = "kafka"
	kafkaBatchTimeout = 100 * time.Millisecond
	kafkaWriteTimeout = 10 * time.Second
	kafkaPullWindow   = 5 * time.Second
)

// KafkaPlugin moves connector messages over Kafka topics. Each partner maps
// to a submit topic and, for pulling partners, a pull topic with a consumer
// group.
type KafkaPlugin struct {
	tracker     *transport.Tracker
	inbound     InboundHandler
	retryPolicy retry.Policy
	logger      logger.Logger
}

func NewKafkaPlugin(tracker *transport.Tracker, inbound InboundHandler, retryPolicy retry.Policy, log logger.Logger) *KafkaPlugin {
	return &KafkaPlugin{
		tracker:     tracker,
		inbound:     inbound,
		retryPolicy: retryPolicy,
		logger:      log,
	}
}

func (p *KafkaPlugin) Name() string { return kafkaImplName }

func (p *KafkaPlugin) CanHandle(impl string) bool { return impl == kafkaImplName }

func (p *KafkaPlugin) StartConfiguration(_ context.Context, cfg Configuration) (ActiveLink, error) {
	brokersProp := cfg.Properties["brokers"]
	if brokersProp == "" {
		return nil, pkgerrors.ErrConfiguration.
			WithMessage(fmt.Sprintf("kafka configuration %q declares no brokers", cfg.Name))
	}

	brokers := strings.Split(brokersProp, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}

	p.logger.Infow("Kafka link configuration started",
		"configuration", cfg.Name,
		"brokers", brokers,
	)

	return &kafkaLink{plugin: p, cfg: cfg, brokers: brokers}, nil
}

type kafkaLink struct {
	plugin  *KafkaPlugin
	cfg     Configuration
	brokers []string
}

func (l *kafkaLink) Configuration() Configuration { return l.cfg }

func (l *kafkaLink) EnableLinkPartner(_ context.Context, partner Partner) (ActivePartner, error) {
	submitTopic := partner.Properties["submit_topic"]
	if partner.SendMode == ModePush && submitTopic == "" {
		return nil, pkgerrors.ErrConfiguration.
			WithMessage(fmt.Sprintf("kafka partner %q has PUSH send mode but no submit_topic", partner.Name))
	}

	pullTopic := partner.Properties["pull_topic"]
	if partner.ReceiveMode == ModePull && pullTopic == "" {
		return nil, pkgerrors.ErrConfiguration.
			WithMessage(fmt.Sprintf("kafka partner %q has PULL receive mode but no pull_topic", partner.Name))
	}

	kp := &kafkaPartner{
		link:    l,
		partner: partner,
		breaker: circuitbreaker.NewWrapper(circuitbreaker.DefaultConfig("link-" + partner.Name)),
	}

	if submitTopic != "" {
		kp.writer = &kafka.Writer{
			Addr:         kafka.TCP(l.brokers...),
			Topic:        submitTopic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: kafkaBatchTimeout,
			WriteTimeout: kafkaWriteTimeout,
			Async:        false,
		}
	}

	if pullTopic != "" {
		groupID := partner.Properties["group_id"]
		if groupID == "" {
			groupID = "connector-" + partner.Name
		}
		kp.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  l.brokers,
			GroupID:  groupID,
			Topic:    pullTopic,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		})
	}

	return kp, nil
}

func (l *kafkaLink) Shutdown(_ context.Context) error {
	// Connections live on the partners; nothing shared to release.
	return nil
}

type kafkaPartner struct {
	link    *kafkaLink
	partner Partner
	writer  *kafka.Writer
	reader  *kafka.Reader
	breaker *circuitbreaker.Wrapper
}

func (p *kafkaPartner) Partner() Partner { return p.partner }

func (p *kafkaPartner) SubmitToLink(ctx context.Context, msg *message.Message) error {
	if p.writer == nil {
		return pkgerrors.ErrConfiguration.
			WithMessage(fmt.Sprintf("partner %q accepts no submissions", p.partner.Name))
	}

	plugin := p.link.plugin

	step, err := plugin.tracker.BeginAttempt(ctx, msg.ConnectorMessageID, p.partner.Name, "")
	if err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	transportSystemMessageID := uuid.New().String()
	headers := tracing.InjectTraceContext(ctx, []kafka.Header{
		{Key: "transport-message-id", Value: []byte(transportSystemMessageID)},
	})

	_, err = p.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, p.writer.WriteMessages(ctx, kafka.Message{
			Key:     []byte(msg.ConnectorMessageID),
			Value:   body,
			Headers: headers,
			Time:    time.Now(),
		})
	})
	p.breaker.RecordRequest(err == nil)

	if err != nil {
		if obsErr := plugin.tracker.ObserveStatus(ctx, step, transport.StatusFailed, err.Error()); obsErr != nil {
			plugin.logger.ErrorwCtx(ctx, "Failed to record transport failure",
				"link_partner", p.partner.Name,
				"error", obsErr,
			)
		}
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	if idErr := plugin.tracker.AssignMessageIDs(ctx, step, transportSystemMessageID, ""); idErr != nil {
		plugin.logger.ErrorwCtx(ctx, "Failed to record transport message id",
			"link_partner", p.partner.Name,
			"error", idErr,
		)
	}

	return plugin.tracker.ObserveStatus(ctx, step, transport.StatusAccepted, "")
}

// PullFromLink drains the partner's pull topic for one scheduling window.
// Each fetched message runs through the inbound handler with retry; only
// handled messages are committed.
func (p *kafkaPartner) PullFromLink(ctx context.Context) error {
	if p.reader == nil {
		return pkgerrors.ErrConfiguration.
			WithMessage(fmt.Sprintf("partner %q has no pull topic", p.partner.Name))
	}

	plugin := p.link.plugin

	windowCtx, cancel := context.WithTimeout(ctx, kafkaPullWindow)
	defer cancel()

	for {
		m, err := p.reader.FetchMessage(windowCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || windowCtx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch kafka message: %w", err)
		}

		var msg message.Message
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			plugin.logger.ErrorwCtx(ctx, "Failed to unmarshal pulled message",
				"link_partner", p.partner.Name,
				"error", err,
			)
			_ = p.reader.CommitMessages(ctx, m)
			continue
		}

		msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "link.pull", m.Headers)
		msgCtx = logging.WithMessageID(msgCtx, msg.ConnectorMessageID)

		err = retry.RetryWithCallback(msgCtx, plugin.retryPolicy, func() error {
			return plugin.inbound.HandleInbound(msgCtx, &msg)
		}, func(attempt int, err error, nextDelay time.Duration) {
			metrics.RetryAttemptsTotal.WithLabelValues("link-pull", p.partner.Name).Inc()
			plugin.logger.WarnwCtx(msgCtx, "Retrying inbound message",
				"attempt", attempt,
				"next_delay", nextDelay,
				"error", err,
				"link_partner", p.partner.Name,
			)
		})
		span.End()

		if err != nil {
			plugin.logger.ErrorwCtx(msgCtx, "Failed to process pulled message after retries",
				"link_partner", p.partner.Name,
				"error", err,
			)
			// Committed regardless; the connector records the failure on the
			// message rather than blocking the partition.
		}

		if err := p.reader.CommitMessages(ctx, m); err != nil {
			plugin.logger.ErrorwCtx(msgCtx, "Failed to commit pulled message",
				"link_partner", p.partner.Name,
				"error", err,
			)
		}
	}
}

func (p *kafkaPartner) Shutdown(_ context.Context) error {
	var errs []error
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.reader != nil {
		if err := p.reader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
