package utils

import "net"

// GetLocalIP 返回第一个非回环 IPv4 地址，用作 Kafka client.id 后缀；取不到时返回 "unknown"
func GetLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "unknown"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "unknown"
}
