package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jimyag/vcp/internal/vcp/entity"
	"github.com/jimyag/vcp/pkg/apierror"
)

// mockOrchestrator 测试用的 Orchestrator 实现
type mockOrchestrator struct {
	mock.Mock
}

func (m *mockOrchestrator) Bless(ctx context.Context, sourceID string) (*entity.Instance, error) {
	args := m.Called(ctx, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Instance), args.Error(1)
}

func (m *mockOrchestrator) Launch(ctx context.Context, blessedID, target string, params map[string]string) (*entity.Instance, error) {
	args := m.Called(ctx, blessedID, target, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Instance), args.Error(1)
}

func (m *mockOrchestrator) Migrate(ctx context.Context, instanceID, dest string) error {
	args := m.Called(ctx, instanceID, dest)
	return args.Error(0)
}

func (m *mockOrchestrator) Discard(ctx context.Context, instanceID string) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

func (m *mockOrchestrator) ListLaunched(ctx context.Context, blessedID string) ([]*entity.Instance, error) {
	args := m.Called(ctx, blessedID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Instance), args.Error(1)
}

func (m *mockOrchestrator) ListBlessed(ctx context.Context, sourceID string) ([]*entity.Instance, error) {
	args := m.Called(ctx, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Instance), args.Error(1)
}

func (m *mockOrchestrator) Describe(ctx context.Context, instanceID string) (*entity.Instance, map[string]string, error) {
	args := m.Called(ctx, instanceID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*entity.Instance), args.Get(1).(map[string]string), args.Error(2)
}

func newTestAPI(t *testing.T) (*API, *mockOrchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	orch := &mockOrchestrator{}
	api, err := New(":0", orch, nil)
	require.NoError(t, err)
	return api, orch
}

func doRequest(api *API, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)
	return w
}

func TestNew(t *testing.T) {
	gin.SetMode(gin.TestMode)
	api, err := New(":7780", &mockOrchestrator{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, api.engine)
	assert.Equal(t, ":7780", api.server.Addr)

	routePaths := make(map[string]bool)
	for _, route := range api.engine.Routes() {
		routePaths[route.Path] = true
	}
	assert.True(t, routePaths["/api/instances/bless"])
	assert.True(t, routePaths["/api/instances/launch"])
	assert.True(t, routePaths["/api/instances/migrate"])
	assert.True(t, routePaths["/api/instances/discard"])
	assert.True(t, routePaths["/api/instances/describe"])
	assert.True(t, routePaths["/api/instances/list_launched"])
	assert.True(t, routePaths["/api/instances/list_blessed"])
}

func TestBlessInstanceHandler(t *testing.T) {
	api, orch := newTestAPI(t)
	orch.On("Bless", mock.Anything, "i-1").
		Return(&entity.Instance{ID: "i-2", VMState: entity.VMStateBlessed}, nil)

	w := doRequest(api, "/api/instances/bless", entity.BlessInstanceRequest{InstanceID: "i-1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp entity.BlessInstanceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "i-2", resp.Instance.ID)
	assert.Equal(t, entity.VMStateBlessed, resp.Instance.VMState)
}

func TestLaunchInstanceHandlerNotFound(t *testing.T) {
	api, orch := newTestAPI(t)
	orch.On("Launch", mock.Anything, "i-missing", "", map[string]string(nil)).
		Return(nil, apierror.WrapError(apierror.ErrInstanceNotFound, "instance i-missing not found", nil))

	w := doRequest(api, "/api/instances/launch", entity.LaunchInstanceRequest{InstanceID: "i-missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMigrateInstanceHandler(t *testing.T) {
	api, orch := newTestAPI(t)
	orch.On("Migrate", mock.Anything, "i-1", "node-2").Return(nil)

	w := doRequest(api, "/api/instances/migrate", entity.MigrateInstanceRequest{InstanceID: "i-1", Dest: "node-2"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	orch.AssertExpectations(t)
}

func TestDiscardInstanceHandlerConflict(t *testing.T) {
	api, orch := newTestAPI(t)
	orch.On("Discard", mock.Anything, "i-1").
		Return(apierror.WrapError(apierror.ErrIncorrectInstanceState, "instance i-1 is not blessed", nil))

	w := doRequest(api, "/api/instances/discard", entity.DiscardInstanceRequest{InstanceID: "i-1"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDescribeInstanceHandler(t *testing.T) {
	api, orch := newTestAPI(t)
	orch.On("Describe", mock.Anything, "i-1").
		Return(&entity.Instance{ID: "i-1", VMState: entity.VMStateActive},
			map[string]string{entity.TagImages: "r1"}, nil)

	w := doRequest(api, "/api/instances/describe", entity.DescribeInstanceRequest{InstanceID: "i-1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp entity.DescribeInstanceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "r1", resp.Metadata[entity.TagImages])
}

func TestListLaunchedInstancesHandler(t *testing.T) {
	api, orch := newTestAPI(t)
	orch.On("ListLaunched", mock.Anything, "i-bless").
		Return([]*entity.Instance{
			{ID: "i-2", VMState: entity.VMStateActive},
			{ID: "i-3", VMState: entity.VMStateActive},
		}, nil)

	w := doRequest(api, "/api/instances/list_launched", entity.ListLaunchedInstancesRequest{InstanceID: "i-bless"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp entity.ListLaunchedInstancesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Instances, 2)
	assert.Equal(t, "i-2", resp.Instances[0].ID)
	assert.Equal(t, "i-3", resp.Instances[1].ID)
}

func TestListBlessedInstancesHandlerNotFound(t *testing.T) {
	api, orch := newTestAPI(t)
	orch.On("ListBlessed", mock.Anything, "i-missing").
		Return(nil, apierror.WrapError(apierror.ErrInstanceNotFound, "instance i-missing not found", nil))

	w := doRequest(api, "/api/instances/list_blessed", entity.ListBlessedInstancesRequest{InstanceID: "i-missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestIDEcho(t *testing.T) {
	api, orch := newTestAPI(t)
	orch.On("Describe", mock.Anything, "i-1").Return(nil, nil, errors.New("boom"))

	raw, _ := json.Marshal(entity.DescribeInstanceRequest{InstanceID: "i-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/instances/describe", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAPIName(t *testing.T) {
	api, _ := newTestAPI(t)
	assert.Equal(t, "VCP API", api.Name())
}
