package discovery

import (
	"net"
	"testing"

	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
)

func TestBuildServiceInfo(t *testing.T) {
	info := BuildServiceInfo("ragcore-dev", 19980, []string{"openai", "ollama"})

	assert.Equal(t, "ragcore-dev", info.InstanceName)
	assert.Equal(t, 19980, info.Port)
	assert.Equal(t, []string{
		"api=/api/v1",
		"providers=openai,ollama",
		"version=" + Version,
	}, info.TxtList())
}

func TestAdvertiser_DisabledIsNoop(t *testing.T) {
	a := NewAdvertiser(&config.DiscoveryConfig{Enabled: false})

	assert.NoError(t, a.Start(BuildServiceInfo("x", 19980, nil)))
	assert.False(t, a.IsRunning())
	assert.Nil(t, a.Info())
	a.Stop()
}

func TestAdvertiser_RejectsInvalidPort(t *testing.T) {
	a := NewAdvertiser(&config.DiscoveryConfig{Enabled: true})

	err := a.Start(BuildServiceInfo("x", 0, nil))
	assert.Error(t, err)
	assert.False(t, a.IsRunning())
}

func TestIsValidLANAddress(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"192.168.1.10", true},
		{"10.0.0.5", true},
		{"172.16.4.1", true},
		{"127.0.0.1", false},
		{"169.254.10.1", false},
		{"8.8.8.8", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, isValidLANAddress(net.ParseIP(tt.ip)))
		})
	}
}

func TestIsVirtualInterface(t *testing.T) {
	assert.True(t, isVirtualInterface("docker0"))
	assert.True(t, isVirtualInterface("vEthernet0"))
	assert.True(t, isVirtualInterface("br-1234"))
	assert.False(t, isVirtualInterface("en0"))
	assert.False(t, isVirtualInterface("eth0"))
}
