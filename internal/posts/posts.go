// Package posts manages the experiment corpus: which pages carry a prepared
// AI-rewritten variant, where the original text sits in the page, and the
// canned model responses used when the study runs without a live model.
package posts

import (
	"math/rand"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Post describes one prepared page of the corpus.
type Post struct {
	// URLMatch identifies the page; stored-response lookups match it
	// exactly, page matching uses substring containment.
	URLMatch string `yaml:"urlMatch" json:"urlMatch"`

	// Selector narrows where in the page the original text lives.
	Selector string `yaml:"selector" json:"selector"`

	// ContentSnippet is a fragment of the original text used to locate the
	// target element.
	ContentSnippet string `yaml:"contentSnippet" json:"contentSnippet"`

	// AIText is the prepared AI-generated replacement.
	AIText string `yaml:"aiText" json:"aiText"`

	// Canned evaluation payloads per displayed variant. The single legacy
	// field predates the split and is used when the variant ones are absent.
	StoredResponseAI    map[string]any `yaml:"storedLLMResponseAI" json:"storedLLMResponseAI,omitempty"`
	StoredResponseHuman map[string]any `yaml:"storedLLMResponseHuman" json:"storedLLMResponseHuman,omitempty"`
	StoredResponse      map[string]any `yaml:"storedLLMResponse" json:"storedLLMResponse,omitempty"`
}

// Corpus is the loaded post set.
type Corpus struct {
	Posts []Post
}

// Load reads a corpus file (YAML, which also accepts JSON).
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "posts: read %s", path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "posts: parse %s", path)
	}
	return c, nil
}

// Parse decodes a corpus document, a YAML list of posts.
func Parse(data []byte) (*Corpus, error) {
	var posts []Post
	if err := yaml.Unmarshal(data, &posts); err != nil {
		return nil, eris.Wrap(err, "posts: decode corpus")
	}
	return &Corpus{Posts: posts}, nil
}

// Find returns the post whose URLMatch the page URL contains, or nil.
func (c *Corpus) Find(pageURL string) *Post {
	for i := range c.Posts {
		if c.Posts[i].URLMatch != "" && strings.Contains(pageURL, c.Posts[i].URLMatch) {
			return &c.Posts[i]
		}
	}
	return nil
}

// StoredResponse returns the canned evaluation payload for a page and
// displayed variant, falling back to the legacy single-response field. The
// page URL must match exactly.
func (c *Corpus) StoredResponse(pageURL string, aiVariant bool) (map[string]any, bool) {
	for i := range c.Posts {
		p := &c.Posts[i]
		if p.URLMatch != pageURL {
			continue
		}
		if aiVariant && p.StoredResponseAI != nil {
			return p.StoredResponseAI, true
		}
		if !aiVariant && p.StoredResponseHuman != nil {
			return p.StoredResponseHuman, true
		}
		if p.StoredResponse != nil {
			return p.StoredResponse, true
		}
	}
	return nil, false
}

// Shuffled returns the posts in a random order, leaving the corpus itself
// untouched so trial numbering stays stable.
func (c *Corpus) Shuffled(r *rand.Rand) []Post {
	out := make([]Post, len(c.Posts))
	copy(out, c.Posts)
	// Fisher-Yates
	for i := len(out) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// AssignVariant flips a fair coin: true means the tab shows the AI-rewritten
// text, false the original.
func AssignVariant(r *rand.Rand) bool {
	return r.Float64() < 0.5
}
