package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/EmilyShepherd/k8s-watch-go/pkg/token"
)

const (
	serviceAccountToken  = "/var/run/secrets/kubernetes.io/serviceaccount/token"
	serviceAccountCACert = "/var/run/secrets/kubernetes.io/serviceaccount/ca.crt"
)

// Interface is the minimal kubernetes client surface the watch machinery
// needs: the ability to send an authenticated request and the location of
// the API server.
type Interface interface {
	// Do sends an HTTP request to the API server.
	Do(req *http.Request) (*http.Response, error)
	// APIServerURL returns the API server URL.
	APIServerURL() string
}

type Client struct {
	HttpClient   *http.Client
	apiServerURL string

	token token.TokenProvider
}

type ClientOption func(c *clientOptions)

type clientOptions struct {
	readTimeout time.Duration
}

// WithReadTimeout sets a per-read deadline on the underlying connection.
// A watch body read which exceeds it fails with a timeout error, which
// the watcher reports as a no-data pull rather than a dead session.
//
// The default is no deadline: a quiet watch blocks until the server
// sends the next event.
func WithReadTimeout(d time.Duration) ClientOption {
	return func(c *clientOptions) {
		c.readTimeout = d
	}
}

// NewInCluster creates a Client if it is inside Kubernetes.
func NewInCluster(opts ...ClientOption) (*Client, error) {
	host, port := os.Getenv("KUBERNETES_SERVICE_HOST"), os.Getenv("KUBERNETES_SERVICE_PORT")
	if len(host) == 0 || len(port) == 0 {
		return nil, fmt.Errorf("unable to load in-cluster configuration, KUBERNETES_SERVICE_HOST and KUBERNETES_SERVICE_PORT must be defined")
	}
	tp, err := token.NewFileToken(serviceAccountToken)
	if err != nil {
		return nil, err
	}
	ca, err := os.ReadFile(serviceAccountCACert)
	if err != nil {
		return nil, err
	}

	return NewClient("https://"+net.JoinHostPort(host, port), tp, ca, opts...)
}

func NewClient(host string, tp token.TokenProvider, ca []byte, opts ...ClientOption) (*Client, error) {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	certPool := x509.NewCertPool()
	certPool.AppendCertsFromPEM(ca)
	transport := &http.Transport{TLSClientConfig: &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    certPool,
	}}

	if o.readTimeout > 0 {
		dialer := &net.Dialer{}
		timeout := o.readTimeout
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: conn, timeout: timeout}, nil
		}
	}

	return &Client{
		apiServerURL: host,
		token:        tp,
		HttpClient: &http.Client{
			Transport: transport,
			// The request as a whole must never time out - watch
			// responses hang for as long as the connection is healthy.
			Timeout: time.Nanosecond * 0,
		},
	}, nil
}

func (kc *Client) Do(req *http.Request) (*http.Response, error) {
	if token := kc.token.Token(); len(token) > 0 {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return kc.HttpClient.Do(req)
}

func (kc *Client) APIServerURL() string {
	return kc.apiServerURL
}

// deadlineConn arms a fresh read deadline before every Read so that an
// idle watch stream surfaces a timeout instead of blocking forever.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}
