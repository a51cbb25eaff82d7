// Package security はユーザー入力の無害化を提供する。
//
// イベントの説明文はゲストにも公開されるため、保存前にbluemondayの
// 許可リストポリシーでサニタイズする。
package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はイベント説明文のサニタイズ機能のインターフェース。
type ContentSanitizerService interface {
	// Sanitize は詳細説明のHTMLをサニタイズする。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, pre, code, strong, em）のみを残す。
	// aタグのhrefはhttpsのみ許可し、target="_blank"とrel="noopener noreferrer"を付与する。
	Sanitize(rawHTML string) string

	// PlainText はタグをすべて除去したテキストを返す。イベント名や短い説明に使う。
	// 戻り値はHTMLではないため実体参照は元の文字に戻す。
	PlainText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフなので共有してよい。
type contentSanitizer struct {
	rich   *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		rich:   p,
		strict: bluemonday.StrictPolicy(),
	}
}

// Sanitize は詳細説明のHTMLをサニタイズする。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return strings.TrimSpace(s.rich.Sanitize(rawHTML))
}

// PlainText はタグを除去したテキストを返す。
func (s *contentSanitizer) PlainText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(raw)))
}
