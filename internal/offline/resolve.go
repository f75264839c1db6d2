package offline

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
)

// OfflineTitle はオフラインページの<title>。
const OfflineTitle = "Gastos Mensuales - Offline"

//go:embed offline.html
var offlinePage []byte

// Source はレスポンスの取得元。
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
	SourceOffline Source = "offline"
)

// OfflinePage はキャッシュにもネットワークにも無いドキュメント要求に返す固定ページ。
func OfflinePage() *Response {
	return &Response{
		Status: http.StatusOK,
		Header: http.Header{
			"Content-Type":  []string{"text/html; charset=utf-8"},
			"Cache-Control": []string{"no-store"},
		},
		Body: append([]byte(nil), offlinePage...),
	}
}

// Resolve はキャッシュ優先・ネットワークフォールバックでリクエストを解決する。
//
//  1. cacheにキーが存在すれば、そのレスポンスを鮮度確認なしでそのまま返す。
//  2. 無ければnetworkへ転送し、成功したレスポンスをキャッシュに書き戻さずに返す。
//  3. ネットワークが失敗し宛先がドキュメントなら、オフラインページを返す。
//     それ以外の宛先ではネットワークのエラーを返す。
//
// cacheがnilの場合やキャッシュの参照に失敗した場合はミスとして扱う。
// キャッシュを参照するのはGETリクエストのみ。
func Resolve(ctx context.Context, req *Request, cache Cache, network Network) (*Response, Source, error) {
	var matchErr error
	if cache != nil && isGet(req) {
		resp, err := cache.Match(ctx, req.Key)
		if err == nil && resp != nil {
			return resp, SourceCache, nil
		}
		matchErr = err
	}

	resp, err := network.Fetch(ctx, req)
	if err == nil {
		return resp, SourceNetwork, nil
	}

	if req.Destination == DestinationDocument {
		return OfflinePage(), SourceOffline, nil
	}
	return nil, SourceNetwork, fmt.Errorf("network request for %s failed: %w", req.Key, errors.Join(err, matchErr))
}

func isGet(req *Request) bool {
	return req.Method == "" || req.Method == http.MethodGet
}
