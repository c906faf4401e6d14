package mock

import (
	"context"
	"testing"

	"github.com/opst/trackfab/pkg/gateway"
)

func New(t *testing.T) *mockGateway {
	return &mockGateway{t: t}
}

type mockGateway struct {
	t    *testing.T
	Impl struct {
		Ready  func(ctx context.Context) error
		Push   func(ctx context.Context, m gateway.RunMetrics) error
		Verify func(ctx context.Context, m gateway.RunMetrics) error
	}
	Calls struct {
		Ready  int
		Push   []gateway.RunMetrics
		Verify []gateway.RunMetrics
	}
}

var _ gateway.Gateway = &mockGateway{}

func (m *mockGateway) Ready(ctx context.Context) error {
	m.t.Helper()
	m.Calls.Ready += 1
	if m.Impl.Ready == nil {
		m.t.Fatal("Ready is not ready to be called")
	}
	return m.Impl.Ready(ctx)
}

func (m *mockGateway) Push(ctx context.Context, rm gateway.RunMetrics) error {
	m.t.Helper()
	m.Calls.Push = append(m.Calls.Push, rm)
	if m.Impl.Push == nil {
		m.t.Fatal("Push is not ready to be called")
	}
	return m.Impl.Push(ctx, rm)
}

func (m *mockGateway) Verify(ctx context.Context, rm gateway.RunMetrics) error {
	m.t.Helper()
	m.Calls.Verify = append(m.Calls.Verify, rm)
	if m.Impl.Verify == nil {
		m.t.Fatal("Verify is not ready to be called")
	}
	return m.Impl.Verify(ctx, rm)
}
