package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"doclife/internal/domain"
)

// Wildcard keys in the matrix: "*" as a status applies to statuses without
// an explicit row for the role; "*" as a field covers unlisted fields.
const Wildcard = "*"

// EveryoneRole is held implicitly by every authenticated user.
const EveryoneRole = "everyone"

const (
	SideUnicef  = "unicef"
	SidePartner = "partner"
	SideNone    = "none"
)

// Config models doclife.yml.
type Config struct {
	Roles         map[string]Role                                  `yaml:"roles"`
	Matrix        map[string]map[string]map[string]map[string]Cell `yaml:"matrix"`
	Court         map[string]CourtRule                             `yaml:"court"`
	States        map[string]map[string]StateRule                  `yaml:"states"`
	Transitions   map[string]map[string]TransitionRule             `yaml:"transitions"`
	Create        map[string][]string                              `yaml:"create"`
	Delete        map[string][]string                              `yaml:"delete"`
	Notifications []NotificationRule                               `yaml:"notifications"`
	Policy        Policy                                           `yaml:"policy"`
	Webhooks      []WebhookConfig                                  `yaml:"webhooks"`
}

type Role struct {
	Description string   `yaml:"description"`
	Side        string   `yaml:"side"`
	Groups      []string `yaml:"groups"`
	Instance    bool     `yaml:"instance"`
}

// Cell is one matrix entry. View defaults to true and Edit to false.
type Cell struct {
	View *bool `yaml:"view"`
	Edit *bool `yaml:"edit"`
}

func (c Cell) CanView() bool {
	if c.View == nil {
		return true
	}
	return *c.View || c.CanEdit()
}

func (c Cell) CanEdit() bool {
	return c.Edit != nil && *c.Edit
}

type CourtRule struct {
	Field        string   `yaml:"field"`
	ExemptFields []string `yaml:"exempt_fields"`
}

type StateRule struct {
	Required []string `yaml:"required"`
	Rigid    []string `yaml:"rigid"`
}

type TransitionRule struct {
	Roles []string `yaml:"roles"`
}

type NotificationRule struct {
	Kind       string   `yaml:"kind"`
	Transition string   `yaml:"transition"`
	KeyEvent   string   `yaml:"key_event"`
	Template   string   `yaml:"template"`
	Recipients []string `yaml:"recipients"`
}

type Policy struct {
	PCACutoff               string `yaml:"pca_cutoff"`
	FinalReviewThreshold    string `yaml:"final_review_threshold"`
	SSFAAgreementSignatures string `yaml:"ssfa_agreement_signatures"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Templates      []string `yaml:"templates"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// RecipientActor selects the acting user as a notification recipient.
const RecipientActor = "actor"

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with doclife config default > %s", path, path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "doclife.yml")
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the parsed default config. It panics if the embedded
// template is invalid, which only a broken build can cause.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Cutoff returns the PCA uniqueness cutoff date.
func (c *Config) Cutoff() domain.Date {
	if c.Policy.PCACutoff == "" {
		return domain.MustDate("2015-07-01")
	}
	d, err := domain.ParseDate(c.Policy.PCACutoff)
	if err != nil {
		return domain.MustDate("2015-07-01")
	}
	return d
}

// FinalReviewThreshold is the UNICEF cash amount above which closing a PD
// requires a final partnership review attachment.
func (c *Config) FinalReviewThreshold() decimal.Decimal {
	if c.Policy.FinalReviewThreshold == "" {
		return decimal.NewFromInt(100000)
	}
	d, err := decimal.NewFromString(c.Policy.FinalReviewThreshold)
	if err != nil {
		return decimal.NewFromInt(100000)
	}
	return d
}

// RejectSSFASignatures reports whether signature fields on an SSFA agreement are refused.
func (c *Config) RejectSSFASignatures() bool {
	return c.Policy.SSFAAgreementSignatures != "allow"
}

// State returns the required/rigid rule for a kind and status.
func (c *Config) State(kind domain.Kind, status domain.Status) StateRule {
	return c.States[string(kind)][string(status)]
}

// RoleSide returns the court side of a role, SideNone when unknown.
func (c *Config) RoleSide(role string) string {
	r, ok := c.Roles[role]
	if !ok || r.Side == "" {
		return SideNone
	}
	return r.Side
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Roles) == 0 {
		return fmt.Errorf("config.roles is required")
	}
	for id, role := range c.Roles {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("config.roles contains empty role id")
		}
		switch role.Side {
		case "", SideUnicef, SidePartner, SideNone:
		default:
			return fmt.Errorf("role %s has unknown side %q", id, role.Side)
		}
		if role.Instance && len(role.Groups) > 0 {
			return fmt.Errorf("role %s is an instance role and cannot list groups", id)
		}
	}
	if err := c.validateMatrix(); err != nil {
		return err
	}
	for kind, rule := range c.Court {
		k, err := c.kind("court", kind)
		if err != nil {
			return err
		}
		if !domain.HasField(k, rule.Field) {
			return fmt.Errorf("court %s references unknown field %s", kind, rule.Field)
		}
		for _, f := range rule.ExemptFields {
			if !domain.HasField(k, f) {
				return fmt.Errorf("court %s exempts unknown field %s", kind, f)
			}
		}
	}
	for kind, states := range c.States {
		k, err := c.kind("states", kind)
		if err != nil {
			return err
		}
		for status, rule := range states {
			if !k.HasStatus(domain.Status(status)) {
				return fmt.Errorf("states.%s has unknown status %s", kind, status)
			}
			for _, path := range append(append([]string{}, rule.Required...), rule.Rigid...) {
				if !domain.HasField(k, strings.Split(path, ".")[0]) {
					return fmt.Errorf("states.%s.%s references unknown field %s", kind, status, path)
				}
			}
		}
	}
	for kind, rules := range c.Transitions {
		if _, err := c.kind("transitions", kind); err != nil {
			return err
		}
		for name, rule := range rules {
			if err := c.knownRoles(fmt.Sprintf("transitions.%s.%s", kind, name), rule.Roles); err != nil {
				return err
			}
		}
	}
	for section, table := range map[string]map[string][]string{"create": c.Create, "delete": c.Delete} {
		for kind, roles := range table {
			if _, err := c.kind(section, kind); err != nil {
				return err
			}
			if err := c.knownRoles(section+"."+kind, roles); err != nil {
				return err
			}
		}
	}
	for i, n := range c.Notifications {
		k, err := c.kind(fmt.Sprintf("notifications[%d]", i), n.Kind)
		if err != nil {
			return err
		}
		if strings.TrimSpace(n.Template) == "" {
			return fmt.Errorf("notifications[%d] has empty template", i)
		}
		if (n.Transition == "") == (n.KeyEvent == "") {
			return fmt.Errorf("notifications[%d] needs exactly one of transition or key_event", i)
		}
		for _, r := range n.Recipients {
			if r != RecipientActor && !domain.HasField(k, r) {
				return fmt.Errorf("notifications[%d] recipient %s is not a field of %s", i, r, n.Kind)
			}
		}
	}
	if c.Policy.PCACutoff != "" {
		if _, err := domain.ParseDate(c.Policy.PCACutoff); err != nil {
			return fmt.Errorf("policy.pca_cutoff: %w", err)
		}
	}
	if c.Policy.FinalReviewThreshold != "" {
		if _, err := decimal.NewFromString(c.Policy.FinalReviewThreshold); err != nil {
			return fmt.Errorf("policy.final_review_threshold: %w", err)
		}
	}
	switch c.Policy.SSFAAgreementSignatures {
	case "", "reject", "allow":
	default:
		return fmt.Errorf("policy.ssfa_agreement_signatures must be reject or allow")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
	}
	return nil
}

func (c *Config) validateMatrix() error {
	for _, k := range domain.Kinds() {
		statuses, ok := c.Matrix[string(k)]
		if !ok {
			return fmt.Errorf("config.matrix.%s is required", k)
		}
		if _, ok := statuses[Wildcard]; ok {
			continue
		}
		for _, s := range k.Statuses() {
			if _, ok := statuses[string(s)]; !ok {
				return fmt.Errorf("config.matrix.%s.%s is required (or a %q status row)", k, s, Wildcard)
			}
		}
	}
	for kind, statuses := range c.Matrix {
		k, err := c.kind("matrix", kind)
		if err != nil {
			return err
		}
		for status, roles := range statuses {
			if status != Wildcard && !k.HasStatus(domain.Status(status)) {
				return fmt.Errorf("matrix.%s has unknown status %s", kind, status)
			}
			for role, fields := range roles {
				if err := c.knownRoles(fmt.Sprintf("matrix.%s.%s", kind, status), []string{role}); err != nil {
					return err
				}
				for field, cell := range fields {
					if field != Wildcard && !domain.HasField(k, field) {
						return fmt.Errorf("matrix.%s.%s.%s references unknown field %s", kind, status, role, field)
					}
					if cell.CanEdit() && cell.View != nil && !*cell.View {
						return fmt.Errorf("matrix.%s.%s.%s.%s grants edit without view", kind, status, role, field)
					}
				}
			}
		}
	}
	return nil
}

func (c *Config) kind(section, raw string) (domain.Kind, error) {
	k := domain.Kind(raw)
	if !k.Valid() {
		return "", fmt.Errorf("%s references unknown entity kind %q", section, raw)
	}
	return k, nil
}

func (c *Config) knownRoles(section string, roles []string) error {
	for _, r := range roles {
		if r == EveryoneRole {
			continue
		}
		if _, ok := c.Roles[r]; !ok {
			return fmt.Errorf("%s references unknown role %s", section, r)
		}
	}
	return nil
}

// RoleNames lists declared roles plus the implicit everyone role, sorted.
func (c *Config) RoleNames() []string {
	out := []string{EveryoneRole}
	for r := range c.Roles {
		if r != EveryoneRole {
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out
}
