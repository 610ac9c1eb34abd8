package central

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Local talks to the ZeroTier service running on this host.
type Local struct {
	baseURL   string
	authtoken string
	client    *http.Client
}

// NewLocal returns a Local for the service at baseURL authenticated with the contents of
// authtoken.secret. An empty baseURL uses DefaultLocalURL.
func NewLocal(baseURL, authtoken string, timeout time.Duration) *Local {
	if len(baseURL) == 0 {
		baseURL = DefaultLocalURL
	}
	return &Local{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authtoken: authtoken,
		client:    &http.Client{Timeout: timeout},
	}
}

type localNetworkJSON struct {
	ID                string   `json:"id"`
	Status            string   `json:"status"`
	AssignedAddresses []string `json:"assignedAddresses"`
}

// ListenAddresses returns the addresses assigned to this host on network. Duplicate
// addresses are removed but order is otherwise preserved.
func (t *Local) ListenAddresses(ctx context.Context, network string) ([]Listen, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/network/"+network, nil)
	if err != nil {
		return nil, fmt.Errorf("local: %w", err)
	}
	req.Header.Set("X-ZT1-Auth", t.authtoken)
	req.Header.Set("User-Agent", userAgent)

	body, err := doRequest(t.client, req)
	if err != nil {
		return nil, fmt.Errorf("local: %w", err)
	}

	var wire localNetworkJSON
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("local: parse network %s: %w", network, err)
	}

	return ParseListen(wire.AssignedAddresses)
}

// ParseListen converts "ip/prefix" strings into Listen addresses.
func ParseListen(cidrs []string) (ret []Listen, err error) {
	seen := make(map[string]bool)
	for _, s := range cidrs {
		ip, subnet, err := net.ParseCIDR(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("assigned address: %w", err)
		}
		if ip4 := ip.To4(); ip4 != nil {
			ip = ip4
		}
		if seen[ip.String()] {
			continue
		}
		seen[ip.String()] = true
		ret = append(ret, Listen{IP: ip, Subnet: subnet})
	}

	return
}

// DefaultAuthtokenPath returns where the ZeroTier service normally keeps its
// authtoken.secret on this platform.
func DefaultAuthtokenPath() string {
	switch runtime.GOOS {
	case "darwin":
		return "/Library/Application Support/ZeroTier/One/authtoken.secret"
	case "windows":
		return `C:\ProgramData\ZeroTier\One\authtoken.secret`
	case "freebsd", "openbsd", "netbsd":
		return "/var/db/zerotier-one/authtoken.secret"
	}

	return filepath.Join("/var/lib/zerotier-one", "authtoken.secret")
}

// ReadSecret returns the trimmed contents of path. An empty file is an error.
func ReadSecret(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s := strings.TrimSpace(string(b))
	if len(s) == 0 {
		return "", fmt.Errorf("%s is empty", path)
	}

	return s, nil
}
