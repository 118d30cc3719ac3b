package discovery

import (
	"fmt"
	"net"
	"sort"
	"strings"
)

// 虚拟网卡名称前缀
var virtualInterfacePrefixes = []string{
	"vmnet",
	"vboxnet",
	"veth",
	"docker",
	"br-",
	"virbr",
	"lxc",
	"cni",
	"flannel",
	"tun",
	"tap",
	"utun",
	"awdl",
	"llw",
}

// lanInterface 可用于广播的网卡
type lanInterface struct {
	Iface     net.Interface
	Addresses []string
	IsVirtual bool
}

// lanInterfaces 列出局域网网卡，物理网卡在前
func lanInterfaces() ([]lanInterface, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get interfaces: %w", err)
	}

	var result []lanInterface
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		var ipv4 []string
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil && isValidLANAddress(ip4) {
				ipv4 = append(ipv4, ip4.String())
			}
		}

		if len(ipv4) > 0 {
			result = append(result, lanInterface{
				Iface:     iface,
				Addresses: ipv4,
				IsVirtual: isVirtualInterface(iface.Name),
			})
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].IsVirtual != result[j].IsVirtual {
			return !result[i].IsVirtual
		}
		return result[i].Iface.Name < result[j].Iface.Name
	})

	return result, nil
}

// isValidLANAddress 私有地址段且非链路本地
func isValidLANAddress(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil || ip4.IsLoopback() {
		return false
	}
	if ip4[0] == 169 && ip4[1] == 254 {
		return false
	}
	return ip4.IsPrivate()
}

func isVirtualInterface(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
