// ABOUTME: Lex entry points: the pure Lex function and a memoizing Lexer for repeated renders
// ABOUTME: Memo entries are keyed by content hash so unchanged messages are never re-lexed

package markdown

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/mauromedda/pi-chat-stream/internal/lru"
)

// DefaultMemoSize is the number of lexed documents a Lexer retains.
const DefaultMemoSize = 256

// Lex tokenizes src. It never fails: malformed syntax becomes text.
// Source(Lex(src)) == src for every input.
func Lex(src string) []*Token {
	return lexBlocks(src, 0)
}

// Lexer memoizes Lex results. Returned token trees are shared between
// callers and must not be mutated.
type Lexer struct {
	memo *lru.Cache[string, []*Token]
}

// NewLexer returns a Lexer retaining up to size results.
func NewLexer(size int) *Lexer {
	if size <= 0 {
		size = DefaultMemoSize
	}
	return &Lexer{memo: lru.New[string, []*Token](size)}
}

// Lex returns the tokens for src, reusing a cached result for identical
// content.
func (l *Lexer) Lex(src string) []*Token {
	return l.lex(contentKey(src), src)
}

// LexMessage is Lex scoped to one message id, so an edited message does not
// evict the entry of another message with the same content.
func (l *Lexer) LexMessage(id, src string) []*Token {
	return l.lex(id+"/"+contentKey(src), src)
}

// Len reports the number of memoized results.
func (l *Lexer) Len() int {
	return l.memo.Len()
}

func (l *Lexer) lex(key, src string) []*Token {
	if toks, ok := l.memo.Get(key); ok {
		return toks
	}
	toks := Lex(src)
	l.memo.Put(key, toks)
	return toks
}

// contentKey mirrors the sha256 cache key used for rendered markdown views.
func contentKey(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:16])
}
