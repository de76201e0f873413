package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	testCases := []struct {
		name       string
		statusCode int
		want       bool
	}{
		{"Valid credentials", http.StatusOK, true},
		{"Rejected", http.StatusUnauthorized, false},
		{"Server error counts as rejection", http.StatusInternalServerError, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/login", r.URL.Path)
				assert.Equal(t, http.MethodPost, r.Method)
				w.WriteHeader(tc.statusCode)
			}))
			defer srv.Close()

			client := NewClient(srv.URL, srv.URL)
			ok, err := client.Login(context.Background(), "alice", "s3cr3t")
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestLoginTransportError(t *testing.T) {
	// 指向已關閉的伺服器
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL, srv.URL)
	_, err := client.Login(context.Background(), "alice", "s3cr3t")
	assert.Error(t, err)
}

func TestLoginContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Login(ctx, "alice", "s3cr3t")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestListTunnels(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want int
	}{
		{"tunnels key", `{"tunnels":[{"name":"mc","node":"tw1"},{"name":"web","node":"tw2"}]}`, 2},
		{"data key", `{"data":[{"name":"mc","node":"tw1"}]}`, 1},
		{"empty", `{}`, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/list_tunnels", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, srv.URL)
			tunnels, err := client.ListTunnels(context.Background(), "alice", "s3cr3t")
			require.NoError(t, err)
			assert.Len(t, tunnels, tc.want)
		})
	}
}

func TestListTunnelsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.URL)
	_, err := client.ListTunnels(context.Background(), "alice", "s3cr3t")
	assert.Error(t, err)
}

func TestCheckTunnel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/check_tunnel", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"online","info":{"latency":"12ms"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.URL)
	status, err := client.CheckTunnel(context.Background(), "alice", "s3cr3t", "mc", "tcp", "tw1")
	require.NoError(t, err)
	assert.True(t, status.Online())
	assert.NotEmpty(t, status.Info)
}

func TestGetNodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/nodes.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"nodes":[{"name":"tw1","ip":"203.0.113.10","availablePorts":[25565,25566]}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.URL)
	nodes, err := client.GetNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "tw1", nodes[0].Name)
	assert.Equal(t, []int{25565, 25566}, nodes[0].AvailablePorts)
}

func TestGetFrpcINI(t *testing.T) {
	const ini = "[common]\nserver_addr = 1.2.3.4\n[mc]\nlocal_port = 25565\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get_frpc_ini", r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("username"))
		assert.Equal(t, "tw1", r.URL.Query().Get("nodeName"))
		w.Write([]byte(ini))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.URL)
	content, err := client.GetFrpcINI(context.Background(), "alice", "s3cr3t", "tw1")
	require.NoError(t, err)
	assert.Equal(t, ini, content)

	configs, err := client.TunnelConfigs(context.Background(), "alice", "s3cr3t", "tw1")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "mc", configs[0].Name)
}

func TestMonitorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"result": {
				"tw1": [{"is_online":1,"client_counts":3,"cur_conns":10,"tcp_count":8,"udp_count":2,"total_traffic_in":1048576,"total_traffic_out":2097152}],
				"tw2": []
			},
			"stats": {"version": {"0.63.0": 3}}
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.URL)
	report, err := client.MonitorStatus(context.Background())
	require.NoError(t, err)

	require.Contains(t, report.Result, "tw1")
	require.Len(t, report.Result["tw1"], 1)
	m := report.Result["tw1"][0]
	assert.Equal(t, 1, m.IsOnline)
	assert.Equal(t, 3, m.ClientCounts)
	assert.Equal(t, int64(1048576), m.TotalTrafficIn)
	assert.Equal(t, 3, report.Stats.Version["0.63.0"])
}
