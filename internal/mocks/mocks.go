// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/linkrunner/internal/pipeline"
	"github.com/xkilldash9x/linkrunner/internal/session"
)

// -- Launcher Mock --

// MockLauncher mocks pipeline.Launcher.
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, headless bool, state *session.State) (pipeline.Browser, error) {
	args := m.Called(ctx, headless, state)
	b, _ := args.Get(0).(pipeline.Browser)
	return b, args.Error(1)
}

// -- Browser Mock --

// MockBrowser mocks pipeline.Browser.
type MockBrowser struct {
	mock.Mock
}

func (m *MockBrowser) Page() pipeline.Page {
	args := m.Called()
	p, _ := args.Get(0).(pipeline.Page)
	return p
}

func (m *MockBrowser) StorageState(ctx context.Context) (*session.State, error) {
	args := m.Called(ctx)
	st, _ := args.Get(0).(*session.State)
	return st, args.Error(1)
}

func (m *MockBrowser) Headless() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockBrowser) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Prompter Mock --

// MockPrompter mocks pipeline.Prompter.
type MockPrompter struct {
	mock.Mock
}

func (m *MockPrompter) Prompt(ctx context.Context, message string) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

var (
	_ pipeline.Launcher = (*MockLauncher)(nil)
	_ pipeline.Browser  = (*MockBrowser)(nil)
	_ pipeline.Prompter = (*MockPrompter)(nil)
)
