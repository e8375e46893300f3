//  Copyright 2020-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

/*
Package gcagent implements backend.Backend on top of gocbcore agents, one
agent per bucket plus a bucketless agent for the query service. Range
scans go through gocb, which owns the per-partition scan streams.
*/
package gcagent

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchbase/cbauth"
	"github.com/couchbase/gocbcore/v10"
	"github.com/couchbase/gocbcore/v10/connstr"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/logging"
)

const (
	_CONNECTTIMEOUT   = 10000 * time.Millisecond
	_KVCONNECTTIMEOUT = 7000 * time.Millisecond
	_KVTIMEOUT        = 2500 * time.Millisecond
	_kVPOOLSIZE       = 8
	_MAXQUEUESIZE     = 32 * 1024
	_USERAGENT        = "kvsdk"
)

// MemcachedAuthProvider fetches credentials from ns_server, for
// processes running as a Couchbase service.
type MemcachedAuthProvider struct {
}

func (auth *MemcachedAuthProvider) Credentials(req gocbcore.AuthCredsRequest) (
	[]gocbcore.UserPassPair, error) {
	endpoint := req.Endpoint

	// get rid of the http:// or https:// prefix from the endpoint
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
	username, password, err := cbauth.GetMemcachedServiceAuth(endpoint)
	if err != nil {
		return []gocbcore.UserPassPair{{}}, err
	}

	return []gocbcore.UserPassPair{{
		Username: username,
		Password: password,
	}}, nil
}

func (auth *MemcachedAuthProvider) SupportsNonTLS() bool {
	return true
}

func (auth *MemcachedAuthProvider) SupportsTLS() bool {
	return true
}

func (auth *MemcachedAuthProvider) Certificate(req gocbcore.AuthCertRequest) (*tls.Certificate, error) {
	return nil, nil
}

type Config struct {
	ConnStr  string
	Username string
	Password string

	// ServiceAuth takes credentials from cbauth instead of Username and
	// Password.
	ServiceAuth bool

	// CertFile is a PEM file with the root CAs for couchbases://.
	CertFile string

	KVPoolSize       int
	ConnectTimeout   time.Duration
	KVConnectTimeout time.Duration
	KVTimeout        time.Duration
}

func (c *Config) setDefaults() {
	if c.KVPoolSize <= 0 {
		c.KVPoolSize = _kVPOOLSIZE
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = _CONNECTTIMEOUT
	}
	if c.KVConnectTimeout <= 0 {
		c.KVConnectTimeout = _KVCONNECTTIMEOUT
	}
	if c.KVTimeout <= 0 {
		c.KVTimeout = _KVTIMEOUT
	}
}

var _ backend.Backend = (*Client)(nil)

type Client struct {
	config  Config
	spec    connstr.ConnSpec
	rootCAs *x509.CertPool
	mutex   sync.RWMutex
	agents  map[string]*AgentProvider
	scans   *scanProvider
	closed  atomic.Bool

	// held for writing between ForkPrepare and ForkParent/ForkChild
	gate    sync.RWMutex
	forkMu  sync.Mutex
	forking bool
}

// NewClient validates the connection string and loads the root CAs.
// Agents are created on first use of a bucket.
func NewClient(config Config) (rv *Client, err error) {
	config.setDefaults()
	rv = &Client{config: config, agents: make(map[string]*AgentProvider)}
	if rv.spec, err = connstr.Parse(config.ConnStr); err != nil {
		return nil, errors.NewInvalidArgument("connection string %q: %v", config.ConnStr, err)
	}
	if len(rv.spec.Addresses) == 0 {
		return nil, errors.NewInvalidArgument("connection string %q has no hosts", config.ConnStr)
	}
	if config.CertFile != "" {
		if err = rv.InitTLS(config.CertFile); err != nil {
			return nil, err
		}
	}
	rv.scans = newScanProvider(rv)
	logging.Infof("gcagent: client for %s (%d hosts, pool size %d)", rv.spec.Scheme, len(rv.spec.Addresses), config.KVPoolSize)
	return rv, nil
}

func (c *Client) authProvider() gocbcore.AuthProvider {
	if c.config.ServiceAuth {
		return &MemcachedAuthProvider{}
	}
	return &gocbcore.PasswordAuthProvider{
		Username: c.config.Username,
		Password: c.config.Password,
	}
}

func (c *Client) agentConfig(bucketName string) (*gocbcore.AgentConfig, error) {
	config := &gocbcore.AgentConfig{
		BucketName: bucketName,
		UserAgent:  _USERAGENT,
		SecurityConfig: gocbcore.SecurityConfig{
			Auth:              c.authProvider(),
			TLSRootCAProvider: c.TLSRootCAs,
		},
		KVConfig: gocbcore.KVConfig{
			ConnectTimeout: c.config.KVConnectTimeout,
			PoolSize:       c.config.KVPoolSize,
			MaxQueueSize:   _MAXQUEUESIZE,
		},
		IoConfig: gocbcore.IoConfig{
			UseCollections:         true,
			UseMutationTokens:      true,
			UseDurations:           true,
			UseOutOfOrderResponses: true,
		},
		CompressionConfig: gocbcore.CompressionConfig{
			Enabled: true,
		},
		DefaultRetryStrategy: gocbcore.NewBestEffortRetryStrategy(nil),
	}

	if err := config.FromConnStr(c.spec.String()); err != nil {
		return nil, errors.NewInvalidArgument("connection string %q: %v", c.config.ConnStr, err)
	}
	return config, nil
}

// provider returns the agent provider of a bucket, creating the agent
// when none is open. The empty name is the bucketless agent.
func (c *Client) provider(bucketName string) (*AgentProvider, error) {
	c.mutex.RLock()
	ap, ok := c.agents[bucketName]
	c.mutex.RUnlock()
	if ok {
		return ap, nil
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if ap, ok = c.agents[bucketName]; ok {
		return ap, nil
	}
	ap = &AgentProvider{client: c, bucketName: bucketName}
	if err := ap.CreateOrRefreshAgent(); err != nil {
		return nil, err
	}
	c.agents[bucketName] = ap
	return ap, nil
}

// with the KV engine encrypted.
func (c *Client) InitTLS(certFile string) error {
	serverCert, err := os.ReadFile(certFile)
	if err != nil {
		return errors.NewInvalidArgument("certificate file %s: %v", certFile, err)
	}
	CA_Pool := x509.NewCertPool()
	if !CA_Pool.AppendCertsFromPEM(serverCert) {
		return errors.NewInvalidArgument("certificate file %s has no PEM certificates", certFile)
	}
	c.mutex.Lock()
	c.rootCAs = CA_Pool
	agents := c.agentList()
	c.mutex.Unlock()
	for _, ap := range agents {
		if err := ap.Refresh(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) TLSRootCAs() *x509.CertPool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.rootCAs
}

// requires c.mutex
func (c *Client) agentList() []*AgentProvider {
	rv := make([]*AgentProvider, 0, len(c.agents))
	for _, ap := range c.agents {
		rv = append(rv, ap)
	}
	return rv
}

// closeAgents drops every agent; the next operation reconnects.
func (c *Client) closeAgents() {
	c.mutex.Lock()
	agents := c.agentList()
	c.agents = make(map[string]*AgentProvider)
	c.mutex.Unlock()
	for _, ap := range agents {
		if err := ap.Close(); err != nil {
			logging.Warnf("gcagent: closing agent for bucket %q: %v", ap.bucketName, err)
		}
	}
	c.scans.close()
}

// enter admits an operation. Operations started during a fork window
// wait for it to end.
func (c *Client) enter() (func(), error) {
	if c.closed.Load() {
		return nil, errors.NewKVError(errors.E_SERVICE_NOT_AVAILABLE, "client is closed")
	}
	c.gate.RLock()
	return c.gate.RUnlock, nil
}

// NotifyFork closes every connection before the fork. Both processes
// reconnect lazily afterwards, so sockets are never shared.
func (c *Client) NotifyFork(event backend.ForkEvent) error {
	c.forkMu.Lock()
	defer c.forkMu.Unlock()
	switch event {
	case backend.ForkPrepare:
		if c.forking {
			return errors.NewInvalidArgument("fork already in progress")
		}
		c.gate.Lock()
		c.forking = true
		c.closeAgents()
	case backend.ForkParent, backend.ForkChild:
		if !c.forking {
			return errors.NewInvalidArgument("fork %s without prepare", event)
		}
		c.forking = false
		c.gate.Unlock()
	default:
		return errors.NewInvalidArgument("unknown fork event %d", int(event))
	}
	logging.Debugf("gcagent: fork %s", event)
	return nil
}

func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.closeAgents()
	c.mutex.Lock()
	c.rootCAs = nil
	c.mutex.Unlock()
	logging.Infof("gcagent: client closed")
	return nil
}

type AgentProvider struct {
	client     *Client
	bucketName string
	provider   *gocbcore.Agent
	mutex      sync.RWMutex
}

func (ap *AgentProvider) CreateOrRefreshAgent() error {
	config, err := ap.client.agentConfig(ap.bucketName)
	if err != nil {
		return err
	}
	agent, err := gocbcore.CreateAgent(config)
	if err != nil {
		return mapError(err, ap.bucketName)
	}

	ch := make(chan error, 1)
	_, err = agent.WaitUntilReady(time.Now().Add(ap.client.config.ConnectTimeout),
		gocbcore.WaitUntilReadyOptions{}, func(_ *gocbcore.WaitUntilReadyResult, err error) {
			ch <- err
		})
	if err == nil {
		err = <-ch
	}
	if err != nil {
		agent.Close()
		if errors.Is(err, gocbcore.ErrTimeout) {
			return errors.NewKVError(errors.E_SERVICE_NOT_AVAILABLE, "cluster not ready: "+err.Error())
		}
		return mapError(err, ap.bucketName)
	}

	ap.mutex.Lock()
	old := ap.provider
	ap.provider = agent
	ap.mutex.Unlock()
	if old != nil {
		old.Close()
	}
	logging.Debugf("gcagent: agent ready for bucket %q", ap.bucketName)
	return nil
}

func (ap *AgentProvider) Refresh() error {
	return ap.CreateOrRefreshAgent()
}

func (ap *AgentProvider) Agent() *gocbcore.Agent {
	ap.mutex.RLock()
	defer ap.mutex.RUnlock()
	return ap.provider
}

func (ap *AgentProvider) Close() error {
	ap.mutex.Lock()
	agent := ap.provider
	ap.provider = nil
	ap.mutex.Unlock()
	if agent == nil {
		return nil
	}
	return agent.Close()
}

// Deadline is d, or n KV timeouts from now when d is unset.
func (ap *AgentProvider) Deadline(d time.Time, n int) time.Time {
	if d.IsZero() {
		return time.Now().Add(time.Duration(n) * ap.client.config.KVTimeout)
	}
	return d
}
