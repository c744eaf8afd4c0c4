package bus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestQueueFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, "vcp.node-1", QueueFor(TopicVCP, "node-1"))
	require.Equal(t, "network.node-2", QueueFor(TopicNetwork, "node-2"))
}

func TestSplitQueue(t *testing.T) {
	t.Parallel()

	topic, host, err := splitQueue("compute.node-1")
	require.NoError(t, err)
	require.Equal(t, "compute", topic)
	require.Equal(t, "node-1", host)

	_, _, err = splitQueue("no-dot")
	require.Error(t, err)

	_, _, err = splitQueue(".node-1")
	require.Error(t, err)
}

func newTestServer(t *testing.T, d *Dispatcher) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/rpc/:topic", d.GinHandler())
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestHTTPBusCall(t *testing.T) {
	t.Parallel()

	type launchArgs struct {
		InstanceID string `json:"instance_id"`
	}
	type launchReply struct {
		Host string `json:"host"`
	}

	d := NewDispatcher()
	d.Register(TopicVCP, "launch_instance", func(_ context.Context, raw json.RawMessage) (any, error) {
		var args launchArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		require.Equal(t, "i-100", args.InstanceID)
		return launchReply{Host: "node-1"}, nil
	})

	b := NewHTTPBus(map[string]string{"node-1": newTestServer(t, d)})

	var reply launchReply
	err := b.Call(context.Background(), QueueFor(TopicVCP, "node-1"), "launch_instance",
		launchArgs{InstanceID: "i-100"}, &reply)
	require.NoError(t, err)
	require.Equal(t, "node-1", reply.Host)
}

func TestHTTPBusCallHandlerError(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	d.Register(TopicCompute, "pre_live_migration", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("shared storage unavailable")
	})

	b := NewHTTPBus(map[string]string{"node-2": newTestServer(t, d)})

	err := b.Call(context.Background(), QueueFor(TopicCompute, "node-2"), "pre_live_migration", nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "shared storage unavailable")
}

func TestHTTPBusCallUnknownMethod(t *testing.T) {
	t.Parallel()

	b := NewHTTPBus(map[string]string{"node-1": newTestServer(t, NewDispatcher())})

	err := b.Call(context.Background(), QueueFor(TopicVCP, "node-1"), "launch_instance", nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no handler")
}

func TestHTTPBusCallUnknownHost(t *testing.T) {
	t.Parallel()

	b := NewHTTPBus(map[string]string{})
	err := b.Call(context.Background(), "vcp.nowhere", "launch_instance", nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown host")
}
