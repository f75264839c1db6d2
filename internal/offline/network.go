package offline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/gastos/internal/metrics"
	"github.com/hitoshi/gastos/internal/security"
)

// forwardedHeaders は上流へ引き継ぐリクエストヘッダー。
var forwardedHeaders = []string{"Accept", "Accept-Language", "User-Agent", "If-None-Match", "If-Modified-Since"}

// hopByHopHeaders はレスポンスから取り除くヘッダー。
var hopByHopHeaders = []string{"Connection", "Keep-Alive", "Transfer-Encoding", "Upgrade", "Content-Length"}

// HTTPNetwork はアプリシェルの上流オリジンへリクエストを転送するNetwork。
// 絶対URLの第三者アセットはSSRF防止付きクライアントで取得する。
type HTTPNetwork struct {
	upstream *url.URL
	client   *http.Client
	external *http.Client
	guard    security.SSRFGuardService
	maxSize  int64
	metrics  metrics.MetricsCollector
}

// NetworkOption はHTTPNetworkの生成オプション。
type NetworkOption func(*HTTPNetwork)

// WithUpstreamClient は上流オリジン用のHTTPクライアントを差し替える。
func WithUpstreamClient(c *http.Client) NetworkOption {
	return func(n *HTTPNetwork) { n.client = c }
}

// WithExternalClient は第三者アセット用のHTTPクライアントを差し替える。
func WithExternalClient(c *http.Client) NetworkOption {
	return func(n *HTTPNetwork) { n.external = c }
}

// WithNetworkMetrics はステータスコードとレイテンシを記録するコレクターを設定する。
func WithNetworkMetrics(m metrics.MetricsCollector) NetworkOption {
	return func(n *HTTPNetwork) { n.metrics = m }
}

// NewHTTPNetwork はHTTPNetworkを生成する。guardがnilの場合は第三者URLの事前検証を行わない。
func NewHTTPNetwork(
	upstreamURL string,
	timeout time.Duration,
	maxSize int64,
	guard security.SSRFGuardService,
	opts ...NetworkOption,
) (*HTTPNetwork, error) {
	upstream, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("upstream URL must be absolute: %q", upstreamURL)
	}

	n := &HTTPNetwork{
		upstream: upstream,
		client:   &http.Client{Timeout: timeout},
		guard:    guard,
		maxSize:  maxSize,
		metrics:  metrics.Nop{},
	}
	if guard != nil {
		n.external = guard.NewSafeClient(timeout, maxSize)
	} else {
		n.external = &http.Client{Timeout: timeout}
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Fetch はリクエストを転送する。HTTPエラーステータスはエラーにせずそのまま返す。
func (n *HTTPNetwork) Fetch(ctx context.Context, req *Request) (*Response, error) {
	target, client, err := n.route(req.Key)
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for _, h := range forwardedHeaders {
		if v := req.Header.Get(h); v != "" {
			httpReq.Header.Set(h, v)
		}
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	n.metrics.RecordNetworkLatency(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()
	n.metrics.RecordHTTPStatus(resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, n.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", target, err)
	}
	if int64(len(body)) > n.maxSize {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", target, n.maxSize)
	}

	header := resp.Header.Clone()
	for _, h := range hopByHopHeaders {
		header.Del(h)
	}
	return &Response{Status: resp.StatusCode, Header: header, Body: body}, nil
}

// route はキーから転送先URLと使用するクライアントを決める。
func (n *HTTPNetwork) route(key string) (string, *http.Client, error) {
	if isAbsolute(key) {
		if n.guard != nil {
			if err := n.guard.ValidateURL(key); err != nil {
				return "", nil, fmt.Errorf("blocked third-party resource: %w", err)
			}
		}
		return key, n.external, nil
	}

	ref, err := url.Parse(key)
	if err != nil {
		return "", nil, fmt.Errorf("invalid request key %q: %w", key, err)
	}
	return n.upstream.ResolveReference(ref).String(), n.client, nil
}

// compile-time interface check
var _ Network = (*HTTPNetwork)(nil)
