package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

const archiveTimeLayout = "20060102150405"

// Archive keeps a copy of every accepted artifact under a local directory,
// one file per generation, for offline review and manual deployment.
type Archive struct {
	dir string
	now func() time.Time
}

func NewArchive(dir string) *Archive {
	return &Archive{dir: dir, now: time.Now}
}

func (a *Archive) Dir() string { return a.dir }

// Save writes artifact with a comment header and returns the file path.
// Scala artifacts are named after the description (scala/RuleCallerDialsMore.scala);
// everything else goes to <language>-rules/<rule name>_<timestamp>.<ext>.
func (a *Archive) Save(p *Profile, req Request, artifact string) (string, error) {
	now := a.now().UTC()
	var rel string
	switch p.Language {
	case "scala":
		rel = filepath.Join("scala", "Rule"+camelWords(req.Description, 4)+".scala")
	default:
		lang := p.Language
		if lang == "" {
			lang = "text"
		}
		rel = filepath.Join(lang+"-rules", slug(req.RuleName)+"_"+now.Format(archiveTimeLayout)+"."+extension(lang))
	}
	path := filepath.Join(a.dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("archive artifact: %w", err)
	}
	body := header(p.Language, req, now) + artifact + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("archive artifact: %w", err)
	}
	return path, nil
}

func header(language string, req Request, at time.Time) string {
	prefix := "// "
	if language == "sql" {
		prefix = "-- "
	}
	var b strings.Builder
	if req.RuleName != "" {
		fmt.Fprintf(&b, "%sRule: %s\n", prefix, req.RuleName)
	}
	fmt.Fprintf(&b, "%sGenerated at %s\n", prefix, at.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "%sDescription: %s\n\n", prefix, strings.Join(strings.Fields(req.Description), " "))
	return b.String()
}

// camelWords capitalizes the first n words of s, keeping letters and digits.
func camelWords(s string, n int) string {
	var b strings.Builder
	for i, w := range strings.Fields(s) {
		if i == n {
			break
		}
		w = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, w)
		if w == "" {
			continue
		}
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	if b.Len() == 0 {
		return "Unnamed"
	}
	return b.String()
}

func slug(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		case r == '_' || r == '-' || unicode.IsSpace(r):
			return '_'
		default:
			return -1
		}
	}, strings.TrimSpace(s))
	if s == "" {
		return "rule"
	}
	return s
}

func extension(language string) string {
	switch language {
	case "sql":
		return "sql"
	case "scala":
		return "scala"
	default:
		return "txt"
	}
}
