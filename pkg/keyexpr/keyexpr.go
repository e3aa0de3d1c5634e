// Package keyexpr implements the key expressions used to address values in
// the middleware: '/'-separated chunks where "*" matches exactly one chunk
// and "**" matches any number of chunks, including none.
package keyexpr

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Separator splits a key expression into chunks.
	Separator = "/"
	// SingleWild matches exactly one chunk.
	SingleWild = "*"
	// DoubleWild matches zero or more chunks.
	DoubleWild = "**"
)

// ErrInvalid is returned for malformed key expressions.
var ErrInvalid = errors.New("invalid key expression")

// KeyExpr is a validated, canonical key expression.
// The zero value is the empty key, which is never a valid expression on its
// own but is used by storages to address their strip prefix.
type KeyExpr string

// New validates s and returns its canonical form.
func New(s string) (KeyExpr, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalid)
	}
	if strings.ContainsAny(s, "#?$") {
		return "", fmt.Errorf("%w: %q contains a forbidden character", ErrInvalid, s)
	}

	chunks := strings.Split(s, Separator)
	for _, c := range chunks {
		if c == "" {
			return "", fmt.Errorf("%w: %q contains an empty chunk", ErrInvalid, s)
		}
		if strings.Contains(c, SingleWild) && c != SingleWild && c != DoubleWild {
			return "", fmt.Errorf("%w: %q mixes wildcards and characters in chunk %q", ErrInvalid, s, c)
		}
	}

	return KeyExpr(strings.Join(canonicalize(chunks), Separator)), nil
}

// MustNew is like New but panics on error.
func MustNew(s string) KeyExpr {
	k, err := New(s)
	if err != nil {
		panic(err)
	}
	return k
}

// canonicalize collapses "**/**" into "**" and rewrites "**/*" as "*/**"
// until the chunk list stops changing.
func canonicalize(chunks []string) []string {
	for {
		changed := false
		out := make([]string, 0, len(chunks))
		for i := 0; i < len(chunks); i++ {
			c := chunks[i]
			if c == DoubleWild && i+1 < len(chunks) {
				switch chunks[i+1] {
				case DoubleWild:
					changed = true
					continue
				case SingleWild:
					out = append(out, SingleWild, DoubleWild)
					i++
					changed = true
					continue
				}
			}
			out = append(out, c)
		}
		chunks = out
		if !changed {
			return chunks
		}
	}
}

func (k KeyExpr) String() string { return string(k) }

// IsEmpty reports whether k is the empty key.
func (k KeyExpr) IsEmpty() bool { return k == "" }

// IsWild reports whether k contains a wildcard chunk.
func (k KeyExpr) IsWild() bool {
	return strings.Contains(string(k), SingleWild)
}

// Chunks returns the chunks of k.
func (k KeyExpr) Chunks() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), Separator)
}

// Intersects reports whether at least one key matches both a and b.
func Intersects(a, b KeyExpr) bool {
	return intersect(a.Chunks(), b.Chunks())
}

// Intersects is the method form of Intersects.
func (k KeyExpr) Intersects(other KeyExpr) bool {
	return Intersects(k, other)
}

func intersect(a, b []string) bool {
	switch {
	case len(a) == 0 && len(b) == 0:
		return true
	case len(a) == 0:
		return onlyDoubleWild(b)
	case len(b) == 0:
		return onlyDoubleWild(a)
	}

	if a[0] == DoubleWild {
		if intersect(a[1:], b) {
			return true
		}
		return !isVerbatim(b[0]) && intersect(a, b[1:])
	}
	if b[0] == DoubleWild {
		if intersect(a, b[1:]) {
			return true
		}
		return !isVerbatim(a[0]) && intersect(a[1:], b)
	}

	return chunkIntersects(a[0], b[0]) && intersect(a[1:], b[1:])
}

func onlyDoubleWild(chunks []string) bool {
	for _, c := range chunks {
		if c != DoubleWild {
			return false
		}
	}
	return true
}

func chunkIntersects(a, b string) bool {
	if a == b {
		return true
	}
	if a == SingleWild {
		return !isVerbatim(b)
	}
	if b == SingleWild {
		return !isVerbatim(a)
	}
	return false
}

// isVerbatim reports whether c can only be matched by itself. Chunks
// starting with '@' are reserved and never matched by wildcards.
func isVerbatim(c string) bool {
	return strings.HasPrefix(c, "@")
}

// Join appends key to prefix. An empty key yields prefix, an empty prefix
// yields key.
func Join(prefix, key KeyExpr) KeyExpr {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return KeyExpr(string(prefix) + Separator + string(key))
}

// StripPrefix removes prefix from key. The result is empty when key equals
// prefix. An error is returned when prefix is not a chunk-aligned prefix of
// key.
func StripPrefix(prefix, key KeyExpr) (KeyExpr, error) {
	if prefix == "" {
		return key, nil
	}
	if key == prefix {
		return "", nil
	}
	rest, ok := strings.CutPrefix(string(key), string(prefix)+Separator)
	if !ok {
		return "", fmt.Errorf("%w: %q is not prefixed by %q", ErrInvalid, key, prefix)
	}
	return KeyExpr(rest), nil
}

// HasPrefix reports whether prefix is a chunk-aligned prefix of k, or equal
// to it.
func (k KeyExpr) HasPrefix(prefix KeyExpr) bool {
	if prefix == "" || k == prefix {
		return true
	}
	return strings.HasPrefix(string(k), string(prefix)+Separator)
}
