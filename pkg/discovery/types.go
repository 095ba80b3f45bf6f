package discovery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Service type and domain for PV server advertisement.
const (
	// ServiceType is the mDNS service type for PV servers.
	ServiceType = "_pva._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// MaxInstanceNameLen is the DNS-SD instance name limit.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	// TXTKeyVersion carries the server's protocol version string.
	TXTKeyVersion = "ver"

	// TXTKeyPVCount carries the number of PV names the server exposes.
	TXTKeyPVCount = "pvs"
)

// ErrNotFound indicates no matching service was discovered.
var ErrNotFound = errors.New("service not found")

// ServerInfo describes a PV server to advertise.
type ServerInfo struct {
	// Name is the DNS-SD instance name. Truncated to the DNS-SD limit.
	Name string

	// Port is the server's TCP port.
	Port uint16

	// Version is the protocol version string.
	Version string

	// PVCount is the number of PV names served.
	PVCount int
}

// ServerService is a discovered PV server.
type ServerService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	Version      string
	PVCount      int
}

// AddrList renders the discovered addresses as "host:port" endpoints
// suitable for a client address list.
func (s *ServerService) AddrList() []string {
	out := make([]string, 0, len(s.Addresses))
	for _, addr := range s.Addresses {
		if strings.Contains(addr, ":") {
			// IPv6 literal
			out = append(out, fmt.Sprintf("[%s]:%d", addr, s.Port))
		} else {
			out = append(out, fmt.Sprintf("%s:%d", addr, s.Port))
		}
	}
	return out
}

// TXTRecordMap holds parsed TXT key/value pairs.
type TXTRecordMap map[string]string

// EncodeServerTXT builds the TXT records for a server advertisement.
func EncodeServerTXT(info *ServerInfo) TXTRecordMap {
	txt := TXTRecordMap{}
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}
	txt[TXTKeyPVCount] = strconv.Itoa(info.PVCount)
	return txt
}

// DecodeServerTXT parses server TXT records. Unknown keys are ignored;
// a malformed PV count is an error.
func DecodeServerTXT(txt TXTRecordMap) (*ServerInfo, error) {
	info := &ServerInfo{
		Version: txt[TXTKeyVersion],
	}
	if v, ok := txt[TXTKeyPVCount]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid %s record: %q", TXTKeyPVCount, v)
		}
		info.PVCount = n
	}
	return info, nil
}

// TXTRecordsToStrings renders the map as "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	out := make([]string, 0, len(txt))
	for k, v := range txt {
		out = append(out, k+"="+v)
	}
	return out
}

// StringsToTXTRecords parses "key=value" strings. Entries without "="
// are treated as boolean-present keys with an empty value.
func StringsToTXTRecords(records []string) TXTRecordMap {
	txt := make(TXTRecordMap, len(records))
	for _, rec := range records {
		k, v, found := strings.Cut(rec, "=")
		if !found {
			txt[rec] = ""
			continue
		}
		txt[k] = v
	}
	return txt
}
