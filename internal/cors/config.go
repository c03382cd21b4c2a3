package cors

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Wildcard allows every origin.
const Wildcard = "*"

// Default policy values.
const (
	DefaultMaxAge = 86400
)

// Config describes a cross-origin policy.
type Config struct {
	// Origins is the allow-list. "*" allows every origin; entries containing
	// "*" elsewhere are patterns.
	Origins []string `yaml:"origins,omitempty" json:"origins,omitempty"`

	// OriginScalar records that a single origin was configured as a plain
	// string rather than a list.
	OriginScalar bool `yaml:"-" json:"-"`

	// Methods is the list of allowed methods.
	Methods []string `yaml:"methods,omitempty" json:"methods,omitempty"`

	// Headers is the list of allowed request headers.
	Headers []string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// Credentials enables Access-Control-Allow-Credentials.
	Credentials bool `yaml:"credentials,omitempty" json:"credentials,omitempty"`

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int `yaml:"maxAge,omitempty" json:"maxAge,omitempty"`

	// Expose is the list of response headers exposed to the client.
	Expose []string `yaml:"expose,omitempty" json:"expose,omitempty"`
}

// DefaultConfig returns the default policy: every origin, common methods and
// a one day preflight lifetime.
func DefaultConfig() Config {
	return Config{
		Origins: []string{Wildcard},
		Methods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodDelete, http.MethodPatch, http.MethodOptions,
		},
		Headers: []string{"Content-Type", "Authorization"},
		MaxAge:  DefaultMaxAge,
	}
}

// Development returns a permissive policy with credentials enabled.
func Development() Config {
	cfg := DefaultConfig()
	cfg.Credentials = true
	cfg.Headers = []string{
		"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin", "X-CSRF-Token",
	}
	return cfg
}

// Production returns a policy restricted to origins with credentials enabled.
func Production(origins []string) Config {
	cfg := DefaultConfig()
	cfg.Origins = slices.Clone(origins)
	cfg.Credentials = true
	cfg.Headers = []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"}
	return cfg
}

// UnmarshalYAML accepts either "origins: [...]" or the shorthand
// "origin: value". A scalar origin sets OriginScalar. When both keys are
// present "origins" wins.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config
	p := plain(*c)
	if err := value.Decode(&p); err != nil {
		return err
	}

	var originNode *yaml.Node
	hasOrigins := false
	for i := 0; i+1 < len(value.Content); i += 2 {
		switch value.Content[i].Value {
		case "origins":
			hasOrigins = true
		case "origin":
			originNode = value.Content[i+1]
		}
	}

	if originNode != nil && !hasOrigins {
		switch originNode.Kind {
		case yaml.ScalarNode:
			p.Origins = []string{originNode.Value}
			p.OriginScalar = true
		case yaml.SequenceNode:
			var list []string
			if err := originNode.Decode(&list); err != nil {
				return fmt.Errorf("cors origin: %w", err)
			}
			p.Origins = list
			p.OriginScalar = false
		default:
			return fmt.Errorf("cors origin: unsupported YAML node at line %d", originNode.Line)
		}
	}

	*c = Config(p)
	return nil
}

// Normalize returns a copy with trimmed, de-duplicated lists. Origins are
// sorted and methods upper-cased. Methods, headers and expose keep their
// first-seen order.
func (c Config) Normalize() Config {
	out := Config{
		Origins:      cleanList(c.Origins, false),
		OriginScalar: c.OriginScalar,
		Methods:      cleanList(upper(c.Methods), true),
		Headers:      cleanList(c.Headers, true),
		Credentials:  c.Credentials,
		MaxAge:       c.MaxAge,
		Expose:       cleanList(c.Expose, true),
	}
	slices.Sort(out.Origins)
	if len(out.Origins) != 1 {
		out.OriginScalar = false
	}
	return out
}

// AllowsAll reports whether the policy contains the wildcard origin.
func (c Config) AllowsAll() bool {
	return slices.Contains(c.Origins, Wildcard)
}

// fingerprintForm is the canonical, hashed shape of a normalized Config.
type fingerprintForm struct {
	Origins      []string `json:"origins"`
	OriginScalar bool     `json:"originScalar"`
	Methods      []string `json:"methods"`
	Headers      []string `json:"headers"`
	Credentials  bool     `json:"credentials"`
	MaxAge       int      `json:"maxAge"`
	Expose       []string `json:"expose"`
}

// Fingerprint returns the sha256 hex digest of the normalized policy. Configs
// that are equal after normalization share a fingerprint.
func Fingerprint(cfg Config) string {
	n := cfg.Normalize()
	// The form holds only strings, bools and ints, so Marshal cannot fail.
	data, _ := json.Marshal(fingerprintForm{
		Origins:      n.Origins,
		OriginScalar: n.OriginScalar,
		Methods:      n.Methods,
		Headers:      n.Headers,
		Credentials:  n.Credentials,
		MaxAge:       n.MaxAge,
		Expose:       n.Expose,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func cleanList(in []string, foldCase bool) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := v
		if foldCase {
			k = strings.ToLower(v)
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.ToUpper(v)
	}
	return out
}
