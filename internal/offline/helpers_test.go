package offline

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"golang.org/x/net/html"
)

var errUnreachable = errors.New("network unreachable")

// fakeNetwork はキーごとの固定レスポンスを返すNetwork。
type fakeNetwork struct {
	mu        sync.Mutex
	responses map[string]*Response
	failing   map[string]bool
	offline   bool
	calls     []string
}

func newFakeNetwork(bodies map[string]string) *fakeNetwork {
	n := &fakeNetwork{responses: map[string]*Response{}, failing: map[string]bool{}}
	for key, body := range bodies {
		n.responses[key] = &Response{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": []string{"text/plain"}},
			Body:   []byte(body),
		}
	}
	return n
}

func (n *fakeNetwork) setOffline(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = v
}

func (n *fakeNetwork) fail(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failing[key] = true
}

func (n *fakeNetwork) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func (n *fakeNetwork) Fetch(ctx context.Context, req *Request) (*Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, req.Key)
	if n.offline || n.failing[req.Key] {
		return nil, errUnreachable
	}
	if resp, ok := n.responses[req.Key]; ok {
		return resp.Clone(), nil
	}
	return &Response{Status: http.StatusNotFound, Header: http.Header{}, Body: []byte("not found")}, nil
}

// recordingClients は送信されたメッセージを記録するClients。
// targetsには宛先ユーザーを記録し、全体送信は空文字にする。
type recordingClients struct {
	mu       sync.Mutex
	messages []ClientMessage
	targets  []string
	claimed  []string
}

func (c *recordingClients) Broadcast(ctx context.Context, msg ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	c.targets = append(c.targets, "")
	return nil
}

func (c *recordingClients) Notify(ctx context.Context, userID string, msg ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	c.targets = append(c.targets, userID)
	return nil
}

func (c *recordingClients) Claim(version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claimed = append(c.claimed, version)
}

// replyRecorder はReplyPortへの返信を記録する。
type replyRecorder struct {
	replies []any
}

func (r *replyRecorder) PostMessage(v any) error {
	r.replies = append(r.replies, v)
	return nil
}

// pageTitle はHTML文書の<title>を取り出す。
func pageTitle(t *testing.T, body []byte) string {
	t.Helper()
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to parse HTML: %v", err)
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}
