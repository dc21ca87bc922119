package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"veribond/internal/domain"
)

const FileName = "veribond.yml"

// Config models veribond.yml.
type Config struct {
	Policy    domain.Policy   `yaml:"policy"`
	Operators []string        `yaml:"operators" validate:"dive,required"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Locks     LockConfig      `yaml:"locks"`
	Logging   LoggingConfig   `yaml:"logging"`
	Keeper    KeeperConfig    `yaml:"keeper"`
	Webhooks  []WebhookConfig `yaml:"webhooks" validate:"dive"`
}

type OracleConfig struct {
	// Backend is "sim" for the bundled simulator.
	Backend     string           `yaml:"backend" validate:"oneof=sim"`
	MinimumBond int64            `yaml:"minimum_bond" validate:"gte=0"`
	BondByAsset map[string]int64 `yaml:"bond_by_asset" validate:"dive,gte=0"`
	BondAccount string           `yaml:"bond_account" validate:"required,external_account"`
}

type LockConfig struct {
	Backend   string        `yaml:"backend" validate:"oneof=local redis"`
	RedisAddr string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisDB   int           `yaml:"redis_db" validate:"gte=0"`
	TTL       time.Duration `yaml:"ttl" validate:"gte=0"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN WARNING ERROR debug info warn warning error"`
	JSON        bool   `yaml:"json"`
	BufferLines int    `yaml:"buffer_lines" validate:"gte=0,lte=100000"`
}

type KeeperConfig struct {
	Workers int `yaml:"workers" validate:"gte=0,lte=64"`
	Batch   int `yaml:"batch" validate:"gte=0"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" validate:"required,url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds" validate:"gte=0"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with ledger rules registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterStructValidation(policySplitRule, domain.Policy{})
		_ = validate.RegisterValidation("external_account", func(fl validator.FieldLevel) bool {
			return fl.Field().String() != domain.EscrowAccount
		})
	})
	return validate
}

func policySplitRule(sl validator.StructLevel) {
	p := sl.Current().Interface().(domain.Policy)
	if p.Split.Sum() != domain.BasisPoints {
		sl.ReportError(p.Split, "Split", "slash_split", "bps_sum", "")
	}
	if p.Resolver != "admin" && p.Resolver != "assertion" {
		sl.ReportError(p.Resolver, "Resolver", "resolver", "resolver", "")
	}
}

// ValidatePolicy checks a policy against the field and cross-field rules.
func ValidatePolicy(p domain.Policy) error {
	return describe(Validator().Struct(p))
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	return describe(Validator().Struct(c))
}

func describe(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "bps_sum":
			msgs = append(msgs, fmt.Sprintf("%s must sum to %d basis points", fe.Namespace(), domain.BasisPoints))
		case "external_account":
			msgs = append(msgs, fmt.Sprintf("%s cannot be the %s account", fe.Namespace(), domain.EscrowAccount))
		case "resolver":
			msgs = append(msgs, fmt.Sprintf("%s must be admin or assertion", fe.Namespace()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s %s", fe.Namespace(), fe.Tag(), fe.Param()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with vb init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns Default() when the workspace has no config file.
func LoadOrDefault(workspace string) (*Config, error) {
	if _, err := os.Stat(Path(workspace)); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(workspace)
}

// GenerateDefault returns default config YAML with operator seeded.
func GenerateDefault(operator string) string {
	if operator == "" {
		operator = "local-operator"
	}
	return fmt.Sprintf(defaultTemplate, operator)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(""))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted fields
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Operators = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `policy:
  min_stake: 10
  slash_percent: 50
  slash_split:
    reward_bps: 5000
    protocol_bps: 5000
    market_bps: 0
  bonus_rate_bps: 500
  bonus_cap: 50
  resolver: admin
  liveness_seconds: 300
  bond_currency: USDC
  protocol_treasury: treasury:protocol
  market_treasury: ""

operators:
  - %s

oracle:
  backend: sim
  minimum_bond: 10
  bond_account: oracle:bond

locks:
  backend: local
  ttl: 30s

logging:
  level: INFO
  json: false
  buffer_lines: 5000

keeper:
  workers: 4
  batch: 100
`
