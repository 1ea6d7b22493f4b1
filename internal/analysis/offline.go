package analysis

import (
	"context"
	"fmt"
	"strings"
)

// OfflineProvider produces deterministic local summaries without calling a
// remote service. It is used for dry runs and when no API key is available.
type OfflineProvider struct {
	model string
	cache *Cache
}

// NewOfflineProvider creates a new offline analyzer
func NewOfflineProvider(cache *Cache) *OfflineProvider {
	return &OfflineProvider{
		model: "offline-outline",
		cache: cache,
	}
}

func (l *OfflineProvider) Analyze(ctx context.Context, req Request) (string, error) {
	if err := ValidateRequest(req); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	hash := ComputeHash(req)
	if l.cache != nil {
		if text, ok := l.cache.Get(hash); ok {
			return text, nil
		}
	}

	lines := strings.Split(strings.TrimRight(req.Content, "\n"), "\n")
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %d lines, %d bytes.", req.Kind, req.Path, len(lines), len(req.Content))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if isOutlineLine(trimmed) {
			fmt.Fprintf(&b, "\n- %s", trimmed)
		}
	}
	text := b.String()

	if l.cache != nil {
		l.cache.Set(hash, text)
	}
	return text, nil
}

// isOutlineLine picks declaration-looking lines and directory context headings
func isOutlineLine(line string) bool {
	for _, prefix := range []string{
		"### ", "class ", "public ", "interface ", "struct ", "enum ",
		"func ", "type ", "def ", "fn ", "namespace ", "package ", "module ",
	} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func (l *OfflineProvider) Provider() string {
	return ProviderOffline
}

func (l *OfflineProvider) Model() string {
	return l.model
}

func (l *OfflineProvider) Close() error {
	return nil
}
