package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type containerBuilder struct {
	runtimeConfig      Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	configProvider     ConfigProvider
	optionsResolver    OptionsResolver
	registry           Registry
	authorizer         Authorizer
	transactionManager TransactionManager
	invoker            BusinessInvoker
	invocationRecorder InvocationRecorder
	policies           map[TransactionAttribute]TransactionPolicy
}

type Option func(*containerBuilder)

func WithLogger(logger Logger) Option {
	return func(b *containerBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *containerBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *containerBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *containerBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *containerBuilder) {
		b.optionsResolver = resolver
	}
}

// WithRegistry replaces the built-in DeploymentRegistry. Deploy and Undeploy
// require the registry to implement DeploymentWriter.
func WithRegistry(registry Registry) Option {
	return func(b *containerBuilder) {
		b.registry = registry
	}
}

func WithAuthorizer(authorizer Authorizer) Option {
	return func(b *containerBuilder) {
		b.authorizer = authorizer
	}
}

func WithTransactionManager(manager TransactionManager) Option {
	return func(b *containerBuilder) {
		b.transactionManager = manager
	}
}

func WithInvoker(invoker BusinessInvoker) Option {
	return func(b *containerBuilder) {
		b.invoker = invoker
	}
}

func WithInvocationRecorder(recorder InvocationRecorder) Option {
	return func(b *containerBuilder) {
		b.invocationRecorder = recorder
	}
}

// WithTransactionPolicy overrides the policy used for one attribute.
func WithTransactionPolicy(policy TransactionPolicy) Option {
	return func(b *containerBuilder) {
		if policy == nil {
			return
		}
		if b.policies == nil {
			b.policies = map[TransactionAttribute]TransactionPolicy{}
		}
		b.policies[policy.Attribute()] = policy
	}
}

func defaultContainerBuilder(runtime Config) containerBuilder {
	loggerProvider, logger := glog.Resolve("container", nil, nil)
	return containerBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticConfigLoader serves a fixed raw config map.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap keeps zero values out of non-default layers so they do
// not mask lower-priority scopes.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ContainerID) != "" {
		layer["container_id"] = cfg.ContainerID
	}

	pool := map[string]any{}
	if includeZero || cfg.Pool.MinSize > 0 {
		pool["min_size"] = cfg.Pool.MinSize
	}
	if includeZero || cfg.Pool.MaxSize > 0 {
		pool["max_size"] = cfg.Pool.MaxSize
	}
	if includeZero || cfg.Pool.AcquireTimeout > 0 {
		pool["acquire_timeout"] = cfg.Pool.AcquireTimeout
	}
	if includeZero || strings.TrimSpace(string(cfg.Pool.Exhausted)) != "" {
		pool["exhausted"] = string(cfg.Pool.Exhausted)
	}
	if len(pool) > 0 {
		layer["pool"] = pool
	}

	if includeZero || strings.TrimSpace(string(cfg.Transaction.DefaultAttribute)) != "" {
		layer["transaction"] = map[string]any{
			"default_attribute": string(cfg.Transaction.DefaultAttribute),
		}
	}
	if includeZero || cfg.Audit.Enabled {
		layer["audit"] = map[string]any{
			"enabled": cfg.Audit.Enabled,
		}
	}
	return layer
}
