// Package demo holds the example operations and task the opshost binary
// serves out of the box.
package demo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/morezero/operations-host/pkg/hooks"
	"github.com/morezero/operations-host/pkg/manifest"
	"github.com/morezero/operations-host/pkg/registry"
	"github.com/morezero/operations-host/pkg/reqctx"
	"github.com/morezero/operations-host/pkg/scheduler"
)

// MaxRepeat bounds Repeat.
const MaxRepeat = 100

// HeartbeatInterval is the heartbeat schedule unless the manifest overrides it.
const HeartbeatInterval = 30 * time.Second

// Operations is the demo operation source, registered at the root path.
type Operations struct{}

// Params implements registry.ParamDeclarer.
func (Operations) Params() registry.ParamTable {
	return registry.ParamTable{
		"Echo":   {registry.P("text")},
		"Add":    {registry.P("a"), registry.P("b").Default(0)},
		"Repeat": {registry.P("text"), registry.P("times").Default(2)},
		"Sum":    {registry.P("values")},
	}
}

func (Operations) SayHi() string { return "Hello from opshost!" }

func (Operations) Echo(text string) string { return text }

func (Operations) Add(a, b int64) int64 { return a + b }

// Repeat returns text times times.
func (Operations) Repeat(text string, times int) ([]string, error) {
	if times < 0 || times > MaxRepeat {
		return nil, fmt.Errorf("times must be between 0 and %d", MaxRepeat)
	}
	out := make([]string, times)
	for i := range out {
		out[i] = text
	}
	return out, nil
}

func (Operations) Sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func (Operations) Now() time.Time { return time.Now().UTC() }

// Identity describes the caller of WhoAmI.
type Identity struct {
	Subject       string `json:"subject,omitempty" yaml:"subject,omitempty"`
	CorrelationID string `json:"correlationId" yaml:"correlationId"`
	RemoteAddr    string `json:"remoteAddr,omitempty" yaml:"remoteAddr,omitempty"`
	Authenticated bool   `json:"authenticated" yaml:"authenticated"`
}

// WhoAmI reports the caller as seen by the hooks.
func (Operations) WhoAmI(rc *reqctx.RequestContext) Identity {
	id := Identity{CorrelationID: rc.CorrelationID, RemoteAddr: rc.RemoteAddr}
	if sub, ok := rc.Env(hooks.EnvSubject); ok {
		id.Subject, _ = sub.(string)
	}
	_, id.Authenticated = rc.Env(hooks.EnvClaims)
	return id
}

// Greet is registered inline under a route template.
func Greet(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name is empty")
	}
	return "Hello, " + name + "!", nil
}

// Registrar is the part of the host demo registration needs.
type Registrar interface {
	RegisterType(source any, routePrefix string, opts ...registry.Option) ([]*registry.OperationSignature, error)
	RegisterFunc(path string, fn any, params ...registry.ParamDecl) (*registry.OperationSignature, error)
}

// Register adds the demo operations to r.
func Register(r Registrar) error {
	if _, err := r.RegisterType(Operations{}, "/"); err != nil {
		return err
	}
	if _, err := r.RegisterFunc("greet/{name}", Greet, registry.P("name")); err != nil {
		return err
	}
	return nil
}

// Tasks returns the demo tasks with their default schedules.
func Tasks(started time.Time) []manifest.Task {
	return []manifest.Task{
		{Name: "heartbeat", Interval: HeartbeatInterval, Action: Heartbeat(started)},
	}
}

// Heartbeat reports process uptime on every tick.
func Heartbeat(started time.Time) scheduler.Action {
	return func() (string, error) {
		return "up " + time.Since(started).Truncate(time.Second).String(), nil
	}
}
