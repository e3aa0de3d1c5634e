// Code generated manually. DO NOT EDIT.

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/williamokano/s3backend/pkg/hlc"
	"github.com/williamokano/s3backend/pkg/keyexpr"
	"github.com/williamokano/s3backend/pkg/storage"
)

// MockStorage is a mock implementation of the storage.Storage interface
type MockStorage struct {
	mock.Mock
}

// Name provides a mock function with given fields:
func (m *MockStorage) Name() string {
	ret := m.Called()

	var r0 string
	if rf, ok := ret.Get(0).(func() string); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(string)
	}

	return r0
}

// AdminStatus provides a mock function with given fields:
func (m *MockStorage) AdminStatus() map[string]any {
	ret := m.Called()

	var r0 map[string]any
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(map[string]any)
	}

	return r0
}

// Get provides a mock function with given fields: ctx, key, parameters
func (m *MockStorage) Get(ctx context.Context, key keyexpr.KeyExpr, parameters string) ([]storage.StoredData, error) {
	ret := m.Called(ctx, key, parameters)

	var r0 []storage.StoredData
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, keyexpr.KeyExpr, string) ([]storage.StoredData, error)); ok {
		return rf(ctx, key, parameters)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]storage.StoredData)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Put provides a mock function with given fields: ctx, key, value, ts
func (m *MockStorage) Put(ctx context.Context, key keyexpr.KeyExpr, value storage.Value, ts hlc.Timestamp) (storage.InsertionResult, error) {
	ret := m.Called(ctx, key, value, ts)

	if rf, ok := ret.Get(0).(func(context.Context, keyexpr.KeyExpr, storage.Value, hlc.Timestamp) (storage.InsertionResult, error)); ok {
		return rf(ctx, key, value, ts)
	}

	return ret.Get(0).(storage.InsertionResult), ret.Error(1)
}

// Delete provides a mock function with given fields: ctx, key, ts
func (m *MockStorage) Delete(ctx context.Context, key keyexpr.KeyExpr, ts hlc.Timestamp) (storage.InsertionResult, error) {
	ret := m.Called(ctx, key, ts)

	if rf, ok := ret.Get(0).(func(context.Context, keyexpr.KeyExpr, hlc.Timestamp) (storage.InsertionResult, error)); ok {
		return rf(ctx, key, ts)
	}

	return ret.Get(0).(storage.InsertionResult), ret.Error(1)
}

// GetAllEntries provides a mock function with given fields: ctx
func (m *MockStorage) GetAllEntries(ctx context.Context) ([]storage.Entry, error) {
	ret := m.Called(ctx)

	var r0 []storage.Entry
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]storage.Entry)
	}

	return r0, ret.Error(1)
}

// Close provides a mock function with given fields: ctx
func (m *MockStorage) Close(ctx context.Context) error {
	ret := m.Called(ctx)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context) error); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockStorage creates a new instance of MockStorage
func NewMockStorage(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStorage {
	mock_1 := &MockStorage{}
	mock_1.Mock.Test(t)

	t.Cleanup(func() { mock_1.AssertExpectations(t) })

	return mock_1
}
