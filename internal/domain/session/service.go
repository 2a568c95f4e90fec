package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webtty/backend/internal/domain/command"
	"github.com/GriffinCanCode/webtty/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webtty/backend/internal/providers/terminal"
	"github.com/GriffinCanCode/webtty/backend/internal/shared/id"
)

// Config holds per-session settings.
type Config struct {
	Bridge BridgeConfig
	// PromptTimeout bounds the interactive username prompt.
	PromptTimeout time.Duration
}

// DefaultConfig returns production session settings.
func DefaultConfig() Config {
	return Config{
		Bridge:        DefaultBridgeConfig(),
		PromptTimeout: 2 * time.Minute,
	}
}

// Service runs one session per accepted connection.
type Service struct {
	resolver *command.Resolver
	spawner  terminal.Spawner
	registry *Registry
	logger   *logging.Logger
	metrics  Metrics
	cfg      Config
}

// NewService wires the resolver, spawner and registry together.
func NewService(resolver *command.Resolver, spawner terminal.Spawner, registry *Registry, logger *logging.Logger, metrics Metrics, cfg Config) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if cfg.PromptTimeout <= 0 {
		cfg.PromptTimeout = DefaultConfig().PromptTimeout
	}
	return &Service{
		resolver: resolver,
		spawner:  spawner,
		registry: registry,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// Registry returns the connection registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Serve runs a session for one connection until it is fully torn down.
// Errors are contained to this session: they are logged, reported to the
// client and returned for the caller's information only.
func (s *Service) Serve(ctx context.Context, t Transport, req command.Request) error {
	connID := id.NewConnectionID().String()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()
	e := s.registry.add(connID, req.RemoteAddr, cancel)
	defer s.registry.remove(connID)

	log := s.logger.ForConnection(connID, req.RemoteAddr)
	log.Info("Connection accepted", zap.Int64("active", s.registry.Count()))

	spec, size, err := s.resolve(ctx, t, req, log)
	if err != nil {
		reason := s.reject(t, err, log)
		s.metrics.RecordSessionEnd(reason.String(), time.Since(started).Seconds())
		return err
	}
	log.Debug("Command generated", zap.Stringer("cmd", spec), zap.Bool("ssh", spec.SSH))

	proc, err := s.spawner.Spawn(ctx, spec, size)
	if err != nil {
		log.Error("Failed to spawn terminal", zap.String("path", spec.Path()), zap.Error(err))
		s.metrics.RecordSpawnError()
		s.fail(t, ReasonSpawn)
		s.metrics.RecordSessionEnd(ReasonSpawn.String(), time.Since(started).Seconds())
		return err
	}
	log.Info("Process spawned", zap.Int("pid", proc.Pid()), zap.Stringer("size", size.OrDefault()))

	b := NewBridge(connID, t, proc, log, s.metrics, s.cfg.Bridge)
	e.attach(b, spec.Path(), spec.SSH)

	res, err := b.Run(ctx)
	fields := []zap.Field{
		zap.Stringer("reason", res.Reason),
		zap.Duration("duration", time.Since(started)),
	}
	if res.Exit != nil {
		fields = append(fields, zap.Stringer("exit", res.Exit))
	}
	if err != nil {
		log.Info("Session closed with error", append(fields, zap.Error(err))...)
	} else {
		log.Info("Session closed", fields...)
	}
	s.metrics.RecordSessionEnd(res.Reason.String(), time.Since(started).Seconds())
	return err
}

// resolve computes the command spec, prompting for a username when the
// policy leaves it open.
func (s *Service) resolve(ctx context.Context, t Transport, req command.Request, log *logging.Logger) (command.Spec, terminal.Geometry, error) {
	spec, err := s.resolver.Resolve(req)
	if !errors.Is(err, command.ErrUserRequired) {
		return spec, terminal.Geometry{}, err
	}

	log.Debug("Prompting for ssh user", zap.String("host", spec.Target))
	pr, err := PromptUser(ctx, t, spec.Target, s.cfg.PromptTimeout)
	if err != nil {
		return command.Spec{}, pr.Size, err
	}

	spec, err = s.resolver.Resolve(req.WithPromptedUser(pr.User))
	return spec, pr.Size, err
}

// reject reports a session that never started and closes the transport.
func (s *Service) reject(t Transport, err error, log *logging.Logger) CloseReason {
	var pv *command.PolicyViolation
	switch {
	case errors.As(err, &pv):
		log.Warn("Policy violation", zap.String("field", pv.Field), zap.String("reason", pv.Reason))
		s.metrics.RecordPolicyViolation(pv.Field)
		s.notify(t, Notice{Type: NoticeError, Message: pv.Error()})
		_ = t.Close(ReasonPolicy, pv.Error())
		return ReasonPolicy
	case errors.Is(err, ErrDisconnected), errors.Is(err, context.Canceled):
		log.Info("Disconnected before session start", zap.Error(err))
		_ = t.Close(ReasonDisconnect, "")
		return ReasonDisconnect
	default:
		log.Info("Session not started", zap.Error(err))
		s.notify(t, Notice{Type: NoticeError, Message: err.Error()})
		_ = t.Close(ReasonPolicy, err.Error())
		return ReasonPolicy
	}
}

func (s *Service) fail(t Transport, reason CloseReason) {
	s.notify(t, Notice{Type: NoticeError, Message: reason.Message()})
	_ = t.Close(reason, reason.Message())
}

func (s *Service) notify(t Transport, n Notice) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Bridge.withDefaults().NotifyTimeout)
	defer cancel()
	_ = t.Notify(ctx, n)
}
