package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dsouza-anush/open-deep-research/internal/chat"
)

// Exporter writes conversation transcripts to markdown files.
type Exporter struct {
	dir string
}

func New(dir string) (*Exporter, error) {
	if strings.TrimSpace(dir) == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve cwd: %w", err)
		}
		dir = cwd
	}
	return &Exporter{dir: dir}, nil
}

// Export writes the conversation to a timestamped markdown file and
// returns its path.
func (e *Exporter) Export(c *chat.Conversation, now time.Time) (string, error) {
	name := fmt.Sprintf("deep-research-%s-%s.md", slugify(c.Title), now.Format("20060102-150405"))
	path := filepath.Join(e.dir, name)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	md := BuildReportMarkdown(c, now)
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return path, nil
}

func BuildReportMarkdown(c *chat.Conversation, now time.Time) string {
	var b strings.Builder
	b.WriteString("# " + c.Title + "\n\n")
	b.WriteString("_Exported " + now.UTC().Format(time.RFC3339) + "_\n\n")

	for _, m := range c.Messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if m.Role == chat.RoleUser {
			b.WriteString("## You\n\n")
		} else {
			b.WriteString("## Researcher\n\n")
		}
		b.WriteString(content + "\n\n")
	}
	return strings.TrimSpace(b.String()) + "\n"
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "conversation"
	}
	if len(out) > 40 {
		out = strings.Trim(out[:40], "-")
	}
	return out
}
