package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlClient represents the YAML structure of a client config file.
type yamlClient struct {
	AddrList       []string `yaml:"addr_list"`
	RequestTimeout string   `yaml:"request_timeout"`
}

// yamlServer represents the YAML structure of a server config file.
type yamlServer struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoadClientFile loads client configuration from a YAML file.
// Unset fields keep their defaults.
func LoadClientFile(path string) (Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Client{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var y yamlClient
	if err := yaml.Unmarshal(data, &y); err != nil {
		return Client{}, fmt.Errorf("YAML parse error: %w", err)
	}

	c := DefaultClient()

	if len(y.AddrList) > 0 {
		addrs := make([]string, 0, len(y.AddrList))
		for _, a := range y.AddrList {
			addr, err := normalizeAddr(a)
			if err != nil {
				return Client{}, fmt.Errorf("addr_list: %w", err)
			}
			addrs = append(addrs, addr)
		}
		c.AddrList = addrs
	}

	if y.RequestTimeout != "" {
		d, err := time.ParseDuration(y.RequestTimeout)
		if err != nil {
			return Client{}, fmt.Errorf("request_timeout: %w", err)
		}
		if d <= 0 {
			return Client{}, fmt.Errorf("request_timeout: must be positive")
		}
		c.RequestTimeout = d
	}

	return c, nil
}

// LoadServerFile loads server configuration from a YAML file.
func LoadServerFile(path string) (Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Server{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var y yamlServer
	if err := yaml.Unmarshal(data, &y); err != nil {
		return Server{}, fmt.Errorf("YAML parse error: %w", err)
	}

	s := DefaultServer()

	if y.Address != "" {
		s.Address = y.Address
	}
	if y.Port != 0 {
		if y.Port < 0 || y.Port > 65535 {
			return Server{}, fmt.Errorf("port %d out of range", y.Port)
		}
		s.Port = y.Port
	}

	return s, nil
}
