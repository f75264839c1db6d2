package offline

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultVersion は既定のキャッシュコレクション名。
const DefaultVersion = "gastos-mensuales-v1"

// Manifest はインストール時にキャッシュへ投入するリソースの一覧。
// Versionがそのままカレントのコレクション名になる。
type Manifest struct {
	Version   string   `yaml:"version"`
	Resources []string `yaml:"resources"`
}

// DefaultManifest はアプリシェルと宣言済みの第三者スクリプトからなる既定のマニフェストを返す。
func DefaultManifest() Manifest {
	return Manifest{
		Version: DefaultVersion,
		Resources: []string{
			"/",
			"/index.html",
			"/app.js",
			"/manifest.webmanifest",
			"https://cdn.tailwindcss.com",
		},
	}
}

// LoadManifest はYAMLファイルからマニフェストを読み込む。
// versionが省略されている場合はfallbackVersionを使う。
func LoadManifest(path, fallbackVersion string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read cache manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse cache manifest %s: %w", path, err)
	}
	if m.Version == "" {
		m.Version = fallbackVersion
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("invalid cache manifest %s: %w", path, err)
	}
	return m, nil
}

// Validate はバージョンとリソースの形式を検証する。
// リソースは"/"で始まる同一オリジンのパスか、http(s)の絶対URLでなければならない。
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.Version) == "" {
		return errors.New("version is empty")
	}
	if len(m.Resources) == 0 {
		return errors.New("no resources")
	}
	seen := make(map[string]bool, len(m.Resources))
	for _, res := range m.Resources {
		if seen[res] {
			return fmt.Errorf("duplicate resource: %s", res)
		}
		seen[res] = true

		if strings.HasPrefix(res, "/") && !strings.HasPrefix(res, "//") {
			continue
		}
		u, err := url.Parse(res)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("resource must be an absolute path or http(s) URL: %q", res)
		}
	}
	return nil
}

// ThirdParty はマニフェスト中の絶対URLのリソースを返す。
func (m Manifest) ThirdParty() []string {
	var out []string
	for _, res := range m.Resources {
		if isAbsolute(res) {
			out = append(out, res)
		}
	}
	return out
}

func isAbsolute(key string) bool {
	return strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://")
}
