package tasks

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// CheckBrokers dials each broker until one answers or timeout elapses.
// Adapted from the teacher's CheckBrokers; used by cmd/ startup to fail
// fast when the broker list is misconfigured.
func CheckBrokers(ctx context.Context, brokers []string, timeout time.Duration) error {
	if len(brokers) == 0 {
		return fmt.Errorf("tasks: no brokers provided")
	}

	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		for _, b := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", b)
			if err == nil {
				_ = conn.Close()
				return nil
			}
			lastErr = err
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("tasks: failed to reach any broker within %s: %w", timeout, lastErr)
}

// EnsureTopics creates each topic in configs if it doesn't already exist.
func EnsureTopics(ctx context.Context, brokers []string, configs []kafka.TopicConfig) error {
	if len(brokers) == 0 {
		return fmt.Errorf("tasks: no brokers provided")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("tasks: dial broker %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("tasks: get controller: %w", err)
	}
	controllerAddr := net.JoinHostPort(controller.Host, fmt.Sprint(controller.Port))

	ctrlConn, err := kafka.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return fmt.Errorf("tasks: dial controller %s: %w", controllerAddr, err)
	}
	defer ctrlConn.Close()

	for _, cfg := range configs {
		parts, err := ctrlConn.ReadPartitions(cfg.Topic)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("topic", cfg.Topic).Msg("read partitions failed, attempting create")
		}
		if len(parts) > 0 {
			continue
		}
		if err := ctrlConn.CreateTopics(cfg); err != nil {
			return fmt.Errorf("tasks: create topic %s: %w", cfg.Topic, err)
		}
		log.Ctx(ctx).Info().Str("topic", cfg.Topic).Msg("created topic")
	}
	return nil
}
