// Package discovery 通过 mDNS 在局域网内广播查询服务
package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/log"
)

// 服务类型与域
const (
	ServiceType = "_ragcore._tcp"
	Domain      = "local."
)

// Version 广播的服务版本
var Version = "dev"

// ServiceInfo mDNS 服务信息
type ServiceInfo struct {
	InstanceName string
	Port         int
	TxtRecords   map[string]string
}

// TxtList 按 key 排序的 TXT 记录
func (s ServiceInfo) TxtList() []string {
	keys := make([]string, 0, len(s.TxtRecords))
	for k := range s.TxtRecords {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]string, 0, len(keys))
	for _, k := range keys {
		records = append(records, fmt.Sprintf("%s=%s", k, s.TxtRecords[k]))
	}
	return records
}

// BuildServiceInfo 构建服务信息
func BuildServiceInfo(instanceName string, port int, providers []string) ServiceInfo {
	return ServiceInfo{
		InstanceName: instanceName,
		Port:         port,
		TxtRecords: map[string]string{
			"version":   Version,
			"providers": strings.Join(providers, ","),
			"api":       "/api/v1",
		},
	}
}

// Advertiser mDNS 服务广播器
type Advertiser struct {
	mu      sync.Mutex
	enabled bool
	server  *zeroconf.Server
	info    *ServiceInfo
	logger  *slog.Logger
}

// NewAdvertiser 创建广播器，未启用时 Start 为空操作
func NewAdvertiser(cfg *config.DiscoveryConfig) *Advertiser {
	return &Advertiser{
		enabled: cfg != nil && cfg.Enabled,
		logger:  log.NewModuleLogger("discovery", "advertiser"),
	}
}

// Start 开始广播
func (a *Advertiser) Start(info ServiceInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.enabled {
		return nil
	}
	if a.server != nil {
		return fmt.Errorf("advertiser is already running")
	}
	if info.Port <= 0 {
		return fmt.Errorf("invalid port %d", info.Port)
	}

	interfaces, err := lanInterfaces()
	if err != nil {
		return err
	}

	var ips []string
	var ifaces []net.Interface
	for _, iface := range interfaces {
		ips = append(ips, iface.Addresses...)
		ifaces = append(ifaces, iface.Iface)
	}
	if len(ips) == 0 {
		return fmt.Errorf("no available IP addresses")
	}

	server, err := zeroconf.RegisterProxy(
		info.InstanceName,
		ServiceType,
		Domain,
		info.Port,
		info.InstanceName,
		ips,
		info.TxtList(),
		ifaces,
	)
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	a.server = server
	a.info = &info

	a.logger.Info("mDNS advertiser started",
		"instance", info.InstanceName,
		"port", info.Port,
		"ips", ips,
	)
	return nil
}

// Stop 停止广播
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	a.info = nil
	a.logger.Info("mDNS advertiser stopped")
}

// IsRunning 是否正在广播
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// Info 当前广播的服务信息
func (a *Advertiser) Info() *ServiceInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.info == nil {
		return nil
	}
	c := *a.info
	return &c
}
