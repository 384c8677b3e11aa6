// VN Tracker
// Copyright (c) 2025 The VN Tracker Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of VN Tracker.
//
// VN Tracker is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// VN Tracker is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with VN Tracker.  If not, see <http://www.gnu.org/licenses/>.

// Package mocks provides testify mocks for the platform integrations.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/vnclub/vntracker/pkg/config"
	"github.com/vnclub/vntracker/pkg/idle"
	"github.com/vnclub/vntracker/pkg/platforms"
	"github.com/vnclub/vntracker/pkg/procwatch"
)

// MockPlatform is a mock implementation of platforms.Platform.
type MockPlatform struct {
	mock.Mock
}

func NewMockPlatform() *MockPlatform {
	return &MockPlatform{}
}

// SetupBasicMock configures the mock with typical default values for a
// platform with no processes and no idle source.
func (m *MockPlatform) SetupBasicMock() {
	m.On("ID").Return("mock-platform").Maybe()
	m.On("Settings").Return(platforms.Settings{}).Maybe()
	m.On("StartPre", mock.AnythingOfType("*config.Instance")).Return(nil).Maybe()
	m.On("Stop").Return(nil).Maybe()
	m.On("ProcessLister").Return(procwatch.Lister(procwatch.ListerFunc(
		func(context.Context) ([]procwatch.ProcessInfo, error) { return nil, nil },
	))).Maybe()
	m.On("IdleSource").Return(nil, idle.ErrUnsupported).Maybe()
}

func (m *MockPlatform) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockPlatform) StartPre(cfg *config.Instance) error {
	args := m.Called(cfg)
	return args.Error(0) //nolint:wrapcheck // mock passthrough
}

func (m *MockPlatform) Stop() error {
	args := m.Called()
	return args.Error(0) //nolint:wrapcheck // mock passthrough
}

func (m *MockPlatform) Settings() platforms.Settings {
	args := m.Called()
	if settings, ok := args.Get(0).(platforms.Settings); ok {
		return settings
	}
	return platforms.Settings{}
}

func (m *MockPlatform) ProcessLister() procwatch.Lister {
	args := m.Called()
	if l, ok := args.Get(0).(procwatch.Lister); ok {
		return l
	}
	return nil
}

func (m *MockPlatform) IdleSource() (idle.Source, error) {
	args := m.Called()
	src, _ := args.Get(0).(idle.Source)
	return src, args.Error(1) //nolint:wrapcheck // mock passthrough
}

// MockIdleSource is a mock implementation of idle.Source.
type MockIdleSource struct {
	mock.Mock
}

func (m *MockIdleSource) IdleDuration(ctx context.Context) (time.Duration, error) {
	args := m.Called(ctx)
	d, _ := args.Get(0).(time.Duration)
	return d, args.Error(1) //nolint:wrapcheck // mock passthrough
}
