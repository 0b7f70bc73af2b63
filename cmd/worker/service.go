package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/logger"
)

const (
	heartbeatInterval = 30 * time.Second
	pingTimeout       = 5 * time.Second
)

type pinger interface {
	Ping(context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger               *logger.Logger
	DB                   pinger
	Redis                pinger
	PubSub               pinger
	NotificationConsumer consumer
	InstanceID           string
}

type dependency struct {
	name string
	pinger
}

// Service runs the notification consumer once its backing stores answer.
type Service struct {
	logg       *logger.Logger
	deps       []dependency
	consumer   consumer
	instanceID string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.NotificationConsumer == nil {
		return nil, errors.New("notification consumer is required")
	}
	deps := []dependency{
		{"database", params.DB},
		{"redis", params.Redis},
		{"pubsub", params.PubSub},
	}
	for _, d := range deps {
		if d.pinger == nil {
			return nil, fmt.Errorf("%s client is required", d.name)
		}
	}
	return &Service{
		logg:       params.Logger,
		deps:       deps,
		consumer:   params.NotificationConsumer,
		instanceID: params.InstanceID,
	}, nil
}

func (s *Service) ready(ctx context.Context) error {
	for _, d := range s.deps {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := d.Ping(pingCtx)
		cancel()
		if err != nil {
			err = fmt.Errorf("%s ping failed: %w", d.name, err)
			s.logg.Error(ctx, "worker.dependency_down", err)
			return err
		}
	}
	s.logg.Info(ctx, "worker.ready")
	return nil
}

// Run blocks until the consumer exits. On cancellation it waits for the
// consumer to finish its in-flight messages before returning.
func (s *Service) Run(ctx context.Context) error {
	ctx = s.logg.WithField(ctx, "instance", s.instanceID)
	if err := s.ready(ctx); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- s.consumer.Run(ctx) }()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-heartbeat.C:
			s.logg.Debug(ctx, "worker.heartbeat")
		case err := <-done:
			if ctx.Err() != nil {
				s.logg.Info(ctx, "worker.drained")
				return ctx.Err()
			}
			if err == nil {
				err = errors.New("notification consumer returned")
			}
			s.logg.Error(ctx, "worker.consumer_stopped", err)
			return err
		}
	}
}
