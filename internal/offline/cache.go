// Package offline はアプリシェルをバージョン付きキャッシュから配信するワーカーを提供する。
//
// Workerはインストール時にマニフェストのリソースをキャッシュコレクションへ投入し、
// 有効化後はキャッシュ優先・ネットワークフォールバックでリクエストを解決する。
// ネットワークにも失敗したドキュメント要求には固定のオフラインページを返す。
package offline

import (
	"bytes"
	"context"
	"net/http"
)

// Destination はリクエストの宛先種別（Sec-Fetch-Destの値）。
type Destination string

const (
	DestinationDocument Destination = "document"
	DestinationScript   Destination = "script"
	DestinationStyle    Destination = "style"
	DestinationImage    Destination = "image"
	DestinationManifest Destination = "manifest"
	DestinationEmpty    Destination = ""
)

// Request はWorkerが解決するリクエスト。
// Keyは同一オリジンならパス（クエリを含む）、第三者アセットなら絶対URL。
type Request struct {
	Key         string
	Method      string
	Destination Destination
	Header      http.Header
}

// Response はキャッシュまたはネットワークから得たレスポンス。
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK はステータスが2xxかを返す。
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Clone はヘッダーと本文を複製したレスポンスを返す。
func (r *Response) Clone() *Response {
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   bytes.Clone(r.Body),
	}
}

// Write はレスポンスをhttp.ResponseWriterへ書き出す。
func (r *Response) Write(w http.ResponseWriter) error {
	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.Status)
	_, err := w.Write(r.Body)
	return err
}

// Entry はキャッシュに投入する1件のリクエストキーとレスポンスの組。
type Entry struct {
	Key      string
	Response *Response
}

// Cache は1つの名前付きキャッシュコレクション。
type Cache interface {
	// Match はキーに一致するレスポンスを返す。存在しない場合はnilを返す。
	Match(ctx context.Context, key string) (*Response, error)
	// Put は1件のエントリを保存する。
	Put(ctx context.Context, key string, resp *Response) error
	// AddAll は全エントリを保存する。1件でも失敗した場合は何も保存しない。
	AddAll(ctx context.Context, entries []Entry) error
}

// CacheStorage は名前付きキャッシュコレクションの集合。
type CacheStorage interface {
	// Open は指定名のコレクションを返す。存在しない場合は作成する。
	Open(ctx context.Context, name string) (Cache, error)
	// Has は指定名のコレクションが存在するかを返す。
	Has(ctx context.Context, name string) (bool, error)
	// Keys は全コレクション名を作成順に返す。
	Keys(ctx context.Context) ([]string, error)
	// Delete はコレクションを削除する。存在した場合はtrueを返す。
	Delete(ctx context.Context, name string) (bool, error)
}

// Network はネットワークへの転送を行う。
// HTTPエラーステータスも成功したレスポンスとして返し、接続失敗等のみをエラーとする。
type Network interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}
