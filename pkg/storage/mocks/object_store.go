// Code generated manually. DO NOT EDIT.

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/williamokano/s3backend/pkg/storage"
)

// MockObjectStore is a mock implementation of the storage.ObjectStore interface
type MockObjectStore struct {
	mock.Mock
}

// Head provides a mock function with given fields: ctx, key
func (m *MockObjectStore) Head(ctx context.Context, key string) (*storage.Object, error) {
	ret := m.Called(ctx, key)

	var r0 *storage.Object
	if rf, ok := ret.Get(0).(func(context.Context, string) (*storage.Object, error)); ok {
		return rf(ctx, key)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*storage.Object)
	}

	return r0, ret.Error(1)
}

// Read provides a mock function with given fields: ctx, key
func (m *MockObjectStore) Read(ctx context.Context, key string) (*storage.Object, error) {
	ret := m.Called(ctx, key)

	var r0 *storage.Object
	if rf, ok := ret.Get(0).(func(context.Context, string) (*storage.Object, error)); ok {
		return rf(ctx, key)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*storage.Object)
	}

	return r0, ret.Error(1)
}

// Write provides a mock function with given fields: ctx, obj, cond
func (m *MockObjectStore) Write(ctx context.Context, obj *storage.Object, cond storage.Condition) error {
	ret := m.Called(ctx, obj, cond)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, *storage.Object, storage.Condition) error); ok {
		r0 = rf(ctx, obj, cond)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// Remove provides a mock function with given fields: ctx, key, cond
func (m *MockObjectStore) Remove(ctx context.Context, key string, cond storage.Condition) error {
	ret := m.Called(ctx, key, cond)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, storage.Condition) error); ok {
		r0 = rf(ctx, key, cond)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// Keys provides a mock function with given fields: ctx
func (m *MockObjectStore) Keys(ctx context.Context) ([]string, error) {
	ret := m.Called(ctx)

	var r0 []string
	if rf, ok := ret.Get(0).(func(context.Context) ([]string, error)); ok {
		return rf(ctx)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]string)
	}

	return r0, ret.Error(1)
}

// Close provides a mock function with given fields: ctx
func (m *MockObjectStore) Close(ctx context.Context) error {
	ret := m.Called(ctx)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context) error); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockObjectStore creates a new instance of MockObjectStore
func NewMockObjectStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockObjectStore {
	mock_1 := &MockObjectStore{}
	mock_1.Mock.Test(t)

	t.Cleanup(func() { mock_1.AssertExpectations(t) })

	return mock_1
}
