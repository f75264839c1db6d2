package offline

import (
	"log/slog"
	"net/http"
	"strings"
)

// RequestFromHTTP はHTTPリクエストをWorkerのRequestに変換する。
// 宛先はSec-Fetch-Destヘッダーを優先し、無ければAcceptにtext/htmlを含む場合をドキュメントとみなす。
func RequestFromHTTP(r *http.Request) *Request {
	dest := Destination(r.Header.Get("Sec-Fetch-Dest"))
	if dest == DestinationEmpty && strings.Contains(r.Header.Get("Accept"), "text/html") {
		dest = DestinationDocument
	}
	return &Request{
		Key:         r.URL.RequestURI(),
		Method:      r.Method,
		Destination: dest,
		Header:      r.Header,
	}
}

// Handler はアプリシェルのリクエストをWorker経由で配信するハンドラーを返す。
// ネットワーク失敗がそのまま伝播した場合は502を返す。
func Handler(worker *Worker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, err := worker.Fetch(r.Context(), RequestFromHTTP(r))
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
			return
		}
		if err := resp.Write(w); err != nil {
			slog.Debug("failed to write shell response",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
		}
	})
}
