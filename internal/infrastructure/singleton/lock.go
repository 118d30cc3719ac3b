// Package singleton 通过独占 HTTP 端口保证单实例运行
package singleton

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

const (
	// HealthCheckTimeout 健康检查超时时间
	HealthCheckTimeout = 2 * time.Second
	// InstanceHeader 健康检查响应头，用于识别同类实例
	InstanceHeader = "X-Ragcore-Instance"
)

// ErrUnhealthyInstance 端口被占用且占用方不是健康的实例
var ErrUnhealthyInstance = errors.New("port in use but health check failed")

// CheckAndLock 尝试独占端口
// 已有实例运行时返回 nil listener 和 nil error，调用方应退出
func CheckAndLock(port string) (net.Listener, error) {
	listener, err := net.Listen("tcp", port)
	if err == nil {
		return listener, nil
	}

	if isAddrInUse(err) {
		if isInstanceRunning(port) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnhealthyInstance, port)
	}

	return nil, fmt.Errorf("failed to listen on %s: %w", port, err)
}

// isAddrInUse 检查错误是否是地址已在使用
func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	// Windows: WSAEADDRINUSE
	var errno syscall.Errno
	if errors.As(err, &errno) && errno == 10048 {
		return true
	}
	return strings.Contains(err.Error(), "address already in use")
}

// healthURL 构建本机健康检查地址
func healthURL(port string) string {
	host, p, err := net.SplitHostPort(port)
	if err != nil {
		p = strings.TrimPrefix(port, ":")
		host = ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, p) + "/health"
}

// isInstanceRunning 占用方是否为本服务的实例
// 依赖降级时 /health 返回 503，仍视为实例在运行
func isInstanceRunning(port string) bool {
	client := &http.Client{Timeout: HealthCheckTimeout}

	resp, err := client.Get(healthURL(port))
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true
	case http.StatusServiceUnavailable:
		return resp.Header.Get(InstanceHeader) != ""
	default:
		return false
	}
}
