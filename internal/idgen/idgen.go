// Package idgen はユーザーとイベントの識別子を生成する。
package idgen

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator はULIDを生成する。
// 同一ミリ秒内でも単調増加し、複数goroutineから安全に呼び出せる。
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// New はcrypto/randをエントロピー源とするGeneratorを生成する。
func New() *Generator {
	return NewWithEntropy(rand.Reader, time.Now)
}

// NewWithEntropy はエントロピー源と時計を指定してGeneratorを生成する。
func NewWithEntropy(r io.Reader, now func() time.Time) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(r, 0),
		now:     now,
	}
}

// NewID は新しい識別子を返す。
func (g *Generator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// Valid は文字列が正しい識別子の形式かどうかを返す。
func Valid(id string) bool {
	_, err := ulid.ParseStrict(strings.ToUpper(id))
	return err == nil
}
