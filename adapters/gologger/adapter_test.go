package gologger

import (
	"context"
	"testing"

	"github.com/goliatone/go-container/core"
	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	provider := &capturingProvider{logger: &capturingLogger{id: "provider"}}

	_, resolved := Resolve("", provider, loggerOnly)
	if got := resolved.(*capturingLogger); got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}
	if provider.lastName != DefaultName {
		t.Fatalf("expected default name %q, got %q", DefaultName, provider.lastName)
	}

	resolvedProvider, resolved := Resolve("accounts", nil, loggerOnly)
	if got := resolved.(*capturingLogger); got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	if _, resolved = Resolve("accounts", nil, nil); resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestContainerOptions_InstallResolvedLogger(t *testing.T) {
	logger := &capturingLogger{id: "container"}
	container, err := core.NewContainer(core.DefaultConfig(), ContainerOptions("", nil, logger)...)
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	defer container.Close()

	if container.Dependencies().LoggerProvider == nil {
		t.Fatalf("expected container logger provider")
	}

	if _, err := container.Deploy(context.Background(), core.DeploymentSpec{
		ID:      "echo",
		Factory: func(context.Context) (any, error) { return &struct{}{}, nil },
		Methods: []core.MethodSpec{{
			Name:   "ping",
			Handle: core.Handler0(func(context.Context, *struct{}) (string, error) { return "pong", nil }),
		}},
	}); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if _, err := container.Invoke(context.Background(), core.InvokeRequest{
		ComponentID: "echo",
		Method:      core.BusinessMethod("ping"),
	}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if logger.lastInfo.msg != "invoke succeeded" {
		t.Fatalf("expected invocation log through resolved logger, got %q", logger.lastInfo.msg)
	}
}

func TestComponentLogger_UsesQualifiedName(t *testing.T) {
	provider := &capturingProvider{logger: &capturingLogger{id: "provider"}}
	ComponentLogger(provider, "accounts")
	if provider.lastName != "container.accounts" {
		t.Fatalf("expected qualified logger name, got %q", provider.lastName)
	}
	if ComponentLogger(nil, "accounts") == nil {
		t.Fatalf("expected nop logger without provider")
	}
}

func TestGoJobBridgeCompatibility(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	_, _, jobProvider, jobLogger := ResolveForJob("container", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job bridges")
	}

	jobProvider.GetLogger("container").Info("queued invoke", "component_id", "accounts")
	captured := providerLogger.lastInfo
	if captured.msg != "queued invoke" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if captured.args[0] != "component_id" || captured.args[1] != "accounts" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger   *capturingLogger
	lastName string
}

func (p *capturingProvider) GetLogger(name string) glog.Logger {
	p.lastName = name
	if p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{msg: msg, args: append([]any(nil), args...)}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
