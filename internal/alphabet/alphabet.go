// Package alphabet maps protein residues to token ids. The vocabulary is
// fixed per model and carried in the GGUF tokenizer metadata; sequences
// are encoded one residue per token with CLS prepended and EOS appended.
package alphabet

import (
	"fmt"
	"strings"

	"protex/internal/gguf"
)

const (
	clsToken  = "<cls>"
	padToken  = "<pad>"
	eosToken  = "<eos>"
	unkToken  = "<unk>"
	maskToken = "<mask>"
)

// Alphabet is a fixed residue-level vocabulary with special tokens.
type Alphabet struct {
	tokens []string
	lookup map[string]int

	CLS  int
	PAD  int
	EOS  int
	UNK  int
	Mask int
}

// Default returns the standard 33-token protein alphabet used by the
// esm2 family of checkpoints.
func Default() *Alphabet {
	tokens := []string{clsToken, padToken, eosToken, unkToken}
	for _, r := range "LAGVSERTIDPKQNFYMHWCXBUZO.-" {
		tokens = append(tokens, string(r))
	}
	tokens = append(tokens, "<null_1>", maskToken)
	a, err := New(tokens)
	if err != nil {
		panic(err)
	}
	return a
}

// New builds an alphabet from an explicit token list. The list must
// contain the cls, pad, eos, and unk specials.
func New(tokens []string) (*Alphabet, error) {
	a := &Alphabet{
		tokens: tokens,
		lookup: make(map[string]int, len(tokens)),
		Mask:   -1,
	}
	a.CLS, a.PAD, a.EOS, a.UNK = -1, -1, -1, -1
	for i, tok := range tokens {
		if _, dup := a.lookup[tok]; dup {
			return nil, fmt.Errorf("alphabet: duplicate token %q", tok)
		}
		a.lookup[tok] = i
		switch tok {
		case clsToken:
			a.CLS = i
		case padToken:
			a.PAD = i
		case eosToken:
			a.EOS = i
		case unkToken:
			a.UNK = i
		case maskToken:
			a.Mask = i
		}
	}
	for name, id := range map[string]int{clsToken: a.CLS, padToken: a.PAD, eosToken: a.EOS, unkToken: a.UNK} {
		if id < 0 {
			return nil, fmt.Errorf("alphabet: missing special token %s", name)
		}
	}
	return a, nil
}

// FromGGUF loads the vocabulary from tokenizer metadata. Special token
// ids present in the metadata override the token-name lookup.
func FromGGUF(f *gguf.File) (*Alphabet, error) {
	tokens, ok := gguf.GetArray[string](f.KV, "tokenizer.ggml.tokens")
	if !ok || len(tokens) == 0 {
		return nil, fmt.Errorf("alphabet: missing tokenizer.ggml.tokens")
	}
	a, err := New(tokens)
	if err != nil {
		return nil, err
	}
	if v, ok := gguf.GetInt64(f.KV, "tokenizer.ggml.bos_token_id"); ok {
		a.CLS = int(v)
	}
	if v, ok := gguf.GetInt64(f.KV, "tokenizer.ggml.eos_token_id"); ok {
		a.EOS = int(v)
	}
	if v, ok := gguf.GetInt64(f.KV, "tokenizer.ggml.padding_token_id"); ok {
		a.PAD = int(v)
	}
	if v, ok := gguf.GetInt64(f.KV, "tokenizer.ggml.unk_token_id"); ok {
		a.UNK = int(v)
	}
	return a, nil
}

// Len returns the vocabulary size.
func (a *Alphabet) Len() int { return len(a.tokens) }

// Token returns the string form of id.
func (a *Alphabet) Token(id int) string {
	if id < 0 || id >= len(a.tokens) {
		return unkToken
	}
	return a.tokens[id]
}

// Get returns the id for tok, or the unk id when absent.
func (a *Alphabet) Get(tok string) int {
	if id, ok := a.lookup[tok]; ok {
		return id
	}
	return a.UNK
}

// Encode tokenizes a residue sequence as CLS + residues + EOS. Residues
// beyond truncate are dropped before the specials are added; truncate <= 0
// means no truncation. Lowercase residues are accepted, and a residue is
// one rune, so truncation never splits a multibyte character.
func (a *Alphabet) Encode(seq string, truncate int) []int {
	runes := []rune(strings.ToUpper(seq))
	if truncate > 0 && len(runes) > truncate {
		runes = runes[:truncate]
	}
	out := make([]int, 0, len(runes)+2)
	out = append(out, a.CLS)
	for _, r := range runes {
		out = append(out, a.Get(string(r)))
	}
	return append(out, a.EOS)
}
