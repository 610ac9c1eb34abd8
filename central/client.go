package central

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zerotier/zeronsd/dnsutil"
	"github.com/zerotier/zeronsd/pregen"
)

const (
	DefaultCentralURL = "https://my.zerotier.com/api"
	DefaultLocalURL   = "http://localhost:9993"
	DefaultTimeout    = 10 * time.Second

	maxBody = 16 * 1024 * 1024
)

var userAgent = "zeronsd/" + pregen.Version

// Client talks to the Central API using a bearer token.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient returns a Client for the Central API at baseURL. An empty baseURL uses
// DefaultCentralURL.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if len(baseURL) == 0 {
		baseURL = DefaultCentralURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// Wire formats. Only the fields zeronsd uses are decoded.

type memberJSON struct {
	NodeID string `json:"nodeId"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
	Config struct {
		IPAssignments []string `json:"ipAssignments"`
	} `json:"config"`
}

type dnsJSON struct {
	Domain  string   `json:"domain"`
	Servers []string `json:"servers"`
}

type networkUpdateJSON struct {
	Config struct {
		DNS dnsJSON `json:"dns"`
	} `json:"config"`
}

// Members fetches the member list of network. Any transport error, non-2xx status or
// undecodable body is an error.
func (t *Client) Members(ctx context.Context, network string) ([]Member, error) {
	path := "/network/" + network + "/member"
	body, err := t.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var wire []memberJSON
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("central: parse %s: %w", path, err)
	}

	members := make([]Member, 0, len(wire))
	for _, m := range wire {
		if len(m.NodeID) == 0 {
			continue
		}
		members = append(members, Member{
			ID:        strings.ToLower(m.NodeID),
			Name:      m.Name,
			Online:    m.Online,
			Addresses: m.Config.IPAssignments,
		})
	}

	return members, nil
}

// SetDNS sets the DNS domain and name servers of network so members learn of zeronsd.
func (t *Client) SetDNS(ctx context.Context, network, domain string, servers []string) error {
	var update networkUpdateJSON
	update.Config.DNS.Domain = dnsutil.ChompCanonicalName(domain)
	update.Config.DNS.Servers = servers
	b, err := json.Marshal(&update)
	if err != nil {
		return err
	}
	_, err = t.do(ctx, http.MethodPost, "/network/"+network, b)

	return err
}

func (t *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("central: %w", err)
	}
	req.Header.Set("Authorization", "bearer "+t.token)
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return doRequest(t.client, req)
}

// doRequest issues req and returns the body of a 2xx response.
func doRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: HTTP %d: %s", req.Method, req.URL.Path,
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}
