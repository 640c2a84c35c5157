package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"casebridge/internal/broker"
	"casebridge/internal/config"
	"casebridge/internal/constants"
	"casebridge/internal/crm"
	"casebridge/internal/logger"
	"casebridge/internal/submission"
	"casebridge/pkg/bootstrap"
	"casebridge/pkg/circuitbreaker"
	"casebridge/pkg/health"
	"casebridge/pkg/metrics"
	"casebridge/pkg/middleware"
	"casebridge/pkg/ratelimit"
	"casebridge/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	crmClient      *crm.Client
	breaker        *circuitbreaker.Wrapper
	handler        *submission.Handler
	subscriber     *broker.Subscriber
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base: bootstrap.NewBase(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.RegisterBrokerMetrics()
	metrics.RegisterSubmissionMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initCRM(); err != nil {
		return fmt.Errorf("failed to initialize CRM client: %w", err)
	}

	a.handler = submission.NewHandler(submission.NewService(a.crmClient, a.Logger), a.Logger)

	if err := a.InitBroker(ctx); err != nil {
		return err
	}

	a.initSubscriber(ctx)
	a.initHTTPServer()

	return nil
}

func (a *App) initCRM() error {
	acquirer, err := crm.NewMSALAcquirer(a.Config.CRM)
	if err != nil {
		return err
	}
	tokens := crm.NewTokenManager(acquirer, a.Logger)

	opts := []crm.Option{
		crm.WithRateLimiter(ratelimit.New(a.Config.CRM.RateLimit)),
	}

	if a.Config.CircuitBreaker.Enabled {
		cbConfig := circuitbreaker.FromSettings("crm", a.Config.CircuitBreaker)
		// Client errors do not count against the breaker.
		cbConfig.IsSuccessful = func(err error) bool {
			return err == nil || crm.IsClientError(err)
		}
		cbConfig.OnStateChange = func(name string, from, to gobreaker.State) {
			a.Logger.WarnwCtx(context.Background(), "Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		}
		a.breaker = circuitbreaker.NewWrapper(cbConfig)
		opts = append(opts, crm.WithCircuitBreaker(a.breaker))
	}

	a.crmClient = crm.NewClient(a.Config.CRM, tokens, a.Logger, opts...)
	return nil
}

// initSubscriber leaves the service running without a subscriber when the
// subscription cannot be opened; readiness reports it.
func (a *App) initSubscriber(ctx context.Context) {
	receiver, err := a.Subscribe(ctx)
	if err != nil {
		a.Logger.ErrorwCtx(ctx, "Failed to subscribe to queue",
			"queue", broker.QueueName(a.Config.Broker),
			"error", err,
		)
		return
	}

	a.subscriber = broker.NewSubscriber(
		receiver,
		broker.QueueName(a.Config.Broker),
		a.handler,
		a.crmClient,
		a.Config.Subscriber,
		a.Logger,
	)
}

func (a *App) initHTTPServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))

	var runner health.Runner
	if a.subscriber != nil {
		runner = a.subscriber
	}
	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewSubscriberChecker(runner))
	if a.breaker != nil {
		healthRegistry.Register(health.NewBreakerChecker(a.breaker))
	}

	router.GET("/healthy", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": health.StatusHealthy})
	})

	router.GET("/healthz", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if a.subscriber != nil {
		g.Go(func() error {
			return a.subscriber.Run(gCtx)
		})
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down submission service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown error: %w", err))
			}
		}

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
