// Package secrets hides secret values from anything written for humans.
package secrets

import (
	"sort"
	"strings"
	"sync"
)

// Placeholder replaces every secret occurrence.
const Placeholder = "***"

// Masker records secret values and redacts them from text.
type Masker interface {
	Add(secret string)
	Mask(text string) string
}

// List is the default Masker.
type List struct {
	mu      sync.RWMutex
	secrets []string
}

// NewList creates an empty List.
func NewList() *List {
	return &List{}
}

// Add registers a secret. Empty and duplicate values are ignored.
func (l *List) Add(secret string) {
	if strings.TrimSpace(secret) == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.secrets {
		if s == secret {
			return
		}
	}
	l.secrets = append(l.secrets, secret)
	// Longest first so a secret containing another is masked whole.
	sort.SliceStable(l.secrets, func(i, j int) bool {
		return len(l.secrets[i]) > len(l.secrets[j])
	})
}

// Mask replaces every registered secret in text.
func (l *List) Mask(text string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.secrets {
		text = strings.ReplaceAll(text, s, Placeholder)
	}
	return text
}

// EnvName turns a secret key into the environment variable it is exported as.
func EnvName(key string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_", ":", "_")
	return strings.ToUpper(r.Replace(key))
}
