package guard

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy defines what may be ingested into the knowledge index.
type Policy struct {
	MaxUploadBytes  int64    `json:"max_upload_bytes"`
	MaxChunks       int      `json:"max_chunks"`
	UploadGlobs     []string `json:"upload_globs"`
	BlockedHosts    []string `json:"blocked_hosts"`
	AllowedSchemes  []string `json:"allowed_schemes"`
	MaxMessageRunes int      `json:"max_message_runes"`
}

// DefaultPolicy provides safe defaults.
var DefaultPolicy = Policy{
	MaxUploadBytes:  50 << 20,
	MaxChunks:       5000,
	UploadGlobs:     []string{"*.pdf"},
	BlockedHosts:    []string{"localhost", "127.*", "0.0.0.0", "169.254.*", "::1"},
	AllowedSchemes:  []string{"http", "https"},
	MaxMessageRunes: 8000,
}

// Violation represents a specific breach of policy.
type Violation struct {
	Rule    string
	Message string
}

func (v *Violation) Error() string {
	return v.Message
}

// Guard enforces the policy.
type Guard struct {
	policy Policy
}

func New(p Policy) *Guard {
	if len(p.AllowedSchemes) == 0 {
		p.AllowedSchemes = DefaultPolicy.AllowedSchemes
	}
	return &Guard{policy: p}
}

// Policy returns the guard's current policy configuration.
func (g *Guard) Policy() Policy {
	return g.policy
}

// CheckUpload verifies an uploaded file's name against the allowed globs and
// its size against the limit. Directories in name are ignored and the match
// is case-insensitive.
func (g *Guard) CheckUpload(name string, size int64) *Violation {
	base := filepath.Base(filepath.Clean("/" + name))
	if len(g.policy.UploadGlobs) > 0 {
		lower := strings.ToLower(base)
		allowed := false
		for _, pattern := range g.policy.UploadGlobs {
			match, err := doublestar.Match(strings.ToLower(pattern), lower)
			if err == nil && match {
				allowed = true
				break
			}
		}
		if !allowed {
			return &Violation{Rule: "upload_globs", Message: "Type de fichier non accepté : " + base}
		}
	}

	if g.policy.MaxUploadBytes > 0 && size > g.policy.MaxUploadBytes {
		return &Violation{
			Rule:    "max_upload_bytes",
			Message: fmt.Sprintf("Fichier trop volumineux : %d octets (maximum %d)", size, g.policy.MaxUploadBytes),
		}
	}
	return nil
}

// CheckURL verifies the scheme and host of a page to scrape. Hosts are
// matched against BlockedHosts globs, so "10.*" blocks a whole range.
func (g *Guard) CheckURL(raw string) *Violation {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return &Violation{Rule: "url", Message: "URL invalide : " + raw}
	}

	schemeOK := false
	for _, s := range g.policy.AllowedSchemes {
		if strings.EqualFold(s, u.Scheme) {
			schemeOK = true
			break
		}
	}
	if !schemeOK {
		return &Violation{Rule: "allowed_schemes", Message: "Schéma non autorisé : " + u.Scheme}
	}

	host := strings.ToLower(u.Hostname())
	for _, pattern := range g.policy.BlockedHosts {
		pattern = strings.Trim(strings.ToLower(pattern), "[]")
		match, err := doublestar.Match(pattern, host)
		if err == nil && match {
			return &Violation{Rule: "blocked_hosts", Message: "Hôte non autorisé : " + host}
		}
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() && len(g.policy.BlockedHosts) > 0 {
		return &Violation{Rule: "blocked_hosts", Message: "Hôte non autorisé : " + host}
	}
	return nil
}

// CheckChunks bounds how many chunks a single source may add.
func (g *Guard) CheckChunks(n int) *Violation {
	if g.policy.MaxChunks > 0 && n > g.policy.MaxChunks {
		return &Violation{
			Rule:    "max_chunks",
			Message: fmt.Sprintf("Source trop longue : %d morceaux (maximum %d)", n, g.policy.MaxChunks),
		}
	}
	return nil
}

// CheckMessage bounds the length of a chat message.
func (g *Guard) CheckMessage(msg string) *Violation {
	if g.policy.MaxMessageRunes > 0 && len([]rune(msg)) > g.policy.MaxMessageRunes {
		return &Violation{
			Rule:    "max_message_runes",
			Message: fmt.Sprintf("Message trop long (maximum %d caractères)", g.policy.MaxMessageRunes),
		}
	}
	return nil
}
