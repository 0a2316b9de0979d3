package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	executor        Executor
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	Executor        Executor
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("messaging", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("messaging"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}

	finalConfig, err := builder.resolveConfig(context.Background())
	if err != nil {
		return nil, err
	}

	executor := builder.executor
	if executor == nil && builder.executorFactory != nil {
		executor, err = builder.executorFactory(finalConfig, logger)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}
	if executor == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: executor is required"))
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		executor:        executor,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		Executor:        s.executor,
	}
}

type validatable interface {
	Validate() error
}

// call executes req and decodes the JSON response into out when out is not nil.
// Decoding and rule failures on the response surface as validation errors.
func (s *Service) call(ctx context.Context, operation string, req ExecuteRequest, out validatable) error {
	if s == nil || s.executor == nil {
		return s.mapError(errNilService)
	}
	result, err := s.executor.Execute(ctx, req)
	if err != nil {
		return s.mapError(err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(normalizeBody(result.Body), out); err != nil {
		return s.mapError(ResponseValidationError(operation, err))
	}
	if err := out.Validate(); err != nil {
		return s.mapError(ResponseValidationError(operation, err))
	}
	return nil
}

func normalizeBody(body json.RawMessage) []byte {
	if len(strings.TrimSpace(string(body))) == 0 {
		return []byte("null")
	}
	return body
}

func resourcePath(operation, collection, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", NewValidationError(operation+": invalid request", goerrors.FieldError{
			Field:   "id",
			Message: "cannot be blank",
		})
	}
	return collection + "/" + url.PathEscape(id), nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return MapError(err)
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
