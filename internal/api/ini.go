package api

import "strings"

// TunnelConfig frpc.ini 中一個隧道區段的配置
type TunnelConfig struct {
	Name       string
	Type       string
	LocalIP    string
	LocalPort  string
	RemotePort string
	Protocol   string
}

// ParseFrpcINI 解析 frpc.ini 內容，提取隧道配置。
// 區段格式為 [tunnel_name] 或 [tunnel_name,udp]（後綴去掉），
// [common] 區段跳過；支持 ';' 和 '#' 註釋。
func ParseFrpcINI(content string) []TunnelConfig {
	var tunnels []TunnelConfig
	index := map[string]int{} // 名稱 -> tunnels 下標
	current := -1

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		// 跳過空行和註釋
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.SplitN(line[1:len(line)-1], ",", 2)[0]
			if strings.EqualFold(name, "common") {
				current = -1
				continue
			}
			i, ok := index[name]
			if !ok {
				tunnels = append(tunnels, TunnelConfig{Name: name, Type: "tcp"})
				i = len(tunnels) - 1
				index[name] = i
			}
			current = i
			continue
		}

		if current < 0 || !strings.Contains(line, "=") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "type":
			tunnels[current].Type = value
		case "local_ip":
			tunnels[current].LocalIP = value
		case "local_port":
			tunnels[current].LocalPort = value
		case "remote_port":
			tunnels[current].RemotePort = value
		case "protocol":
			tunnels[current].Protocol = value
		}
	}

	return tunnels
}
