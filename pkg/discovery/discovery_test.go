package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerTXTRoundTrip(t *testing.T) {
	info := &ServerInfo{
		Name:    "ioc-1",
		Port:    5075,
		Version: "1",
		PVCount: 12,
	}

	txt := EncodeServerTXT(info)
	assert.Equal(t, "1", txt[TXTKeyVersion])
	assert.Equal(t, "12", txt[TXTKeyPVCount])

	decoded, err := DecodeServerTXT(txt)
	require.NoError(t, err)
	assert.Equal(t, "1", decoded.Version)
	assert.Equal(t, 12, decoded.PVCount)
}

func TestEncodeServerTXTOmitsEmptyVersion(t *testing.T) {
	txt := EncodeServerTXT(&ServerInfo{PVCount: 3})

	_, ok := txt[TXTKeyVersion]
	assert.False(t, ok)
	assert.Equal(t, "3", txt[TXTKeyPVCount])
}

func TestDecodeServerTXT(t *testing.T) {
	tests := []struct {
		name    string
		txt     TXTRecordMap
		want    ServerInfo
		wantErr bool
	}{
		{
			name: "complete",
			txt:  TXTRecordMap{"ver": "2", "pvs": "7"},
			want: ServerInfo{Version: "2", PVCount: 7},
		},
		{
			name: "missing pv count defaults to zero",
			txt:  TXTRecordMap{"ver": "1"},
			want: ServerInfo{Version: "1"},
		},
		{
			name: "unknown keys ignored",
			txt:  TXTRecordMap{"pvs": "1", "extra": "x"},
			want: ServerInfo{PVCount: 1},
		},
		{
			name:    "malformed pv count",
			txt:     TXTRecordMap{"pvs": "many"},
			wantErr: true,
		},
		{
			name:    "negative pv count",
			txt:     TXTRecordMap{"pvs": "-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := DecodeServerTXT(tt.txt)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *info)
		})
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"ver=1", "pvs=4", "flag", "eq=a=b"})

	assert.Equal(t, "1", txt["ver"])
	assert.Equal(t, "4", txt["pvs"])
	assert.Equal(t, "", txt["flag"])
	assert.Equal(t, "a=b", txt["eq"])
}

func TestTXTRecordsToStrings(t *testing.T) {
	records := TXTRecordsToStrings(TXTRecordMap{"ver": "1", "pvs": "4"})

	assert.Len(t, records, 2)
	assert.Contains(t, records, "ver=1")
	assert.Contains(t, records, "pvs=4")
}

func TestAddrList(t *testing.T) {
	svc := &ServerService{
		Port:      5075,
		Addresses: []string{"192.168.1.10", "fe80::1"},
	}

	assert.Equal(t, []string{"192.168.1.10:5075", "[fe80::1]:5075"}, svc.AddrList())
}

func TestMergeAddresses(t *testing.T) {
	merged := mergeAddresses(
		[]string{"10.0.0.1", "10.0.0.2"},
		[]string{"10.0.0.2", "10.0.0.3"},
	)

	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, merged)

	// Merging into an empty list keeps the incoming addresses.
	assert.Equal(t, []string{"10.0.0.1"}, mergeAddresses(nil, []string{"10.0.0.1"}))
}

func TestRemoveAddresses(t *testing.T) {
	kept := removeAddresses(
		[]string{"10.0.0.1", "10.0.0.2", "10.0.0.3"},
		[]string{"10.0.0.2"},
	)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.3"}, kept)

	assert.Empty(t, removeAddresses([]string{"10.0.0.1"}, []string{"10.0.0.1"}))
	assert.Equal(t, []string{"10.0.0.1"}, removeAddresses([]string{"10.0.0.1"}, nil))
}
