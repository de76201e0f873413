package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"frp-bot/internal/platform/logger"
)

// Tunnel 隧道基本資訊（/list_tunnels 回傳）
type Tunnel struct {
	Name     string `json:"name"`
	Node     string `json:"node"`
	Protocol string `json:"protocol"`
}

// TunnelStatus 隧道狀態（/check_tunnel 回傳）
type TunnelStatus struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Info    json.RawMessage `json:"info,omitempty"`
}

// Online 隧道是否在線
func (s TunnelStatus) Online() bool {
	return s.Status == "online"
}

// Node 節點資訊（/nodes.json 回傳）
type Node struct {
	Name           string `json:"name"`
	IP             string `json:"ip"`
	AvailablePorts []int  `json:"availablePorts"`
}

// NodeMetrics 單一節點的監控數據
type NodeMetrics struct {
	IsOnline        int   `json:"is_online"`
	ClientCounts    int   `json:"client_counts"`
	CurConns        int   `json:"cur_conns"`
	TCPCount        int   `json:"tcp_count"`
	UDPCount        int   `json:"udp_count"`
	TotalTrafficIn  int64 `json:"total_traffic_in"`
	TotalTrafficOut int64 `json:"total_traffic_out"`
}

// MonitorReport 監控 API 的完整回應
type MonitorReport struct {
	Result map[string][]NodeMetrics `json:"result"`
	Stats  struct {
		Version map[string]int `json:"version"`
	} `json:"stats"`
}

// Client TaiwanFRP API 客戶端。
// 服務以 HTTP 狀態碼和 JSON/文本回應溝通；所有方法都接受 context，
// 超時由調用方透過 context 控制。
type Client struct {
	baseURL    string
	monitorURL string
	httpClient *http.Client
}

// NewClient 創建 API 客戶端
func NewClient(baseURL, monitorURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		monitorURL: monitorURL,
		httpClient: &http.Client{},
	}
}

// credentialBody 帶帳密的請求本文
type credentialBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login 驗證帳密。
// 200 表示有效；其他狀態碼表示遠端明確拒絕 (false, nil)；
// 網路層失敗（含 context 超時）返回錯誤。
func (c *Client) Login(ctx context.Context, username, password string) (bool, error) {
	resp, err := c.postJSON(ctx, c.baseURL+"/login", credentialBody{Username: username, Password: password})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	logger.Warning(ctx, fmt.Sprintf("登入失敗: HTTP %d - %s", resp.StatusCode, string(body)))
	return false, nil
}

// ListTunnels 獲取用戶的隧道列表。
// 回應的陣列欄位可能叫 tunnels 或 data，兩者都接受。
func (c *Client) ListTunnels(ctx context.Context, username, password string) ([]Tunnel, error) {
	resp, err := c.postJSON(ctx, c.baseURL+"/list_tunnels", credentialBody{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("獲取隧道列表失敗: HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Tunnels []Tunnel `json:"tunnels"`
		Data    []Tunnel `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("解析隧道列表失敗: %w", err)
	}

	if len(payload.Tunnels) > 0 {
		return payload.Tunnels, nil
	}
	return payload.Data, nil
}

// CheckTunnel 檢查特定隧道的狀態
func (c *Client) CheckTunnel(ctx context.Context, username, password, tunnelName, protocol, nodeName string) (*TunnelStatus, error) {
	body := struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		TunnelName string `json:"tunnelName"`
		Protocol   string `json:"protocol"`
		NodeName   string `json:"nodeName"`
	}{username, password, tunnelName, protocol, nodeName}

	resp, err := c.postJSON(ctx, c.baseURL+"/check_tunnel", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("檢查隧道失敗: HTTP %d", resp.StatusCode)
	}

	var status TunnelStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("解析隧道狀態失敗: %w", err)
	}
	return &status, nil
}

// GetNodes 獲取可用節點列表（不需要認證）
func (c *Client) GetNodes(ctx context.Context) ([]Node, error) {
	resp, err := c.get(ctx, c.baseURL+"/nodes.json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("獲取節點列表失敗: HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Nodes []Node `json:"nodes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("解析節點列表失敗: %w", err)
	}
	return payload.Nodes, nil
}

// GetFrpcINI 獲取指定節點的 frpc.ini 配置內容
func (c *Client) GetFrpcINI(ctx context.Context, username, password, nodeName string) (string, error) {
	u, err := url.Parse(c.baseURL + "/get_frpc_ini")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("username", username)
	q.Set("password", password)
	q.Set("nodeName", nodeName)
	u.RawQuery = q.Encode()

	resp, err := c.get(ctx, u.String())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("獲取 frpc.ini 失敗: HTTP %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("讀取 frpc.ini 失敗: %w", err)
	}
	return string(content), nil
}

// TunnelConfigs 獲取並解析指定節點的隧道詳細配置
func (c *Client) TunnelConfigs(ctx context.Context, username, password, nodeName string) ([]TunnelConfig, error) {
	content, err := c.GetFrpcINI(ctx, username, password, nodeName)
	if err != nil {
		return nil, err
	}
	return ParseFrpcINI(content), nil
}

// MonitorStatus 獲取各節點的詳細監控數據（客戶端數、連接數、流量）
func (c *Client) MonitorStatus(ctx context.Context) (*MonitorReport, error) {
	resp, err := c.get(ctx, c.monitorURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("獲取監控數據失敗: HTTP %d", resp.StatusCode)
	}

	var report MonitorReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("解析監控數據失敗: %w", err)
	}
	return &report, nil
}

func (c *Client) postJSON(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.httpClient.Do(req)
}
