package txsigner

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/erc7824/tokenkit/pkg/log"
	"github.com/erc7824/tokenkit/pkg/sign"
)

const (
	DefaultRPCURL         = "https://mainnet.base.org"
	DefaultDerivationPath = "44'/60'/0'/0/0"
)

// Config selects and configures a signer backend.
type Config struct {
	Type   Kind   `yaml:"type" env:"SIGNER_TYPE" validate:"required"`
	RPCURL string `yaml:"rpc_url" env:"RPC_URL" env-default:"https://mainnet.base.org" validate:"required,url"`
	// PrivateKey is the hex key of a local signer, with or without 0x.
	PrivateKey string `yaml:"private_key" env:"PRIVATE_KEY"`
	// DerivationPath of a ledger signer, with or without the leading "m/".
	DerivationPath string        `yaml:"derivation_path" env:"DERIVATION_PATH"`
	DeviceTimeout  time.Duration `yaml:"device_timeout" env:"DEVICE_TIMEOUT"`

	Logger  log.Logger   `yaml:"-" validate:"-"`
	Metrics *Metrics     `yaml:"-" validate:"-"`
	Tracer  trace.Tracer `yaml:"-" validate:"-"`
	// Client replaces the provider dialled from RPCURL. The signer does not
	// close a client it was given.
	Client ChainClient `yaml:"-" validate:"-"`
	// DeviceOpener replaces the USB Ledger transport.
	DeviceOpener DeviceOpener `yaml:"-" validate:"-"`
}

// profile is the declarative part of Config as read from files and the
// environment.
type profile struct {
	Type           string        `yaml:"type" env:"SIGNER_TYPE"`
	RPCURL         string        `yaml:"rpc_url" env:"RPC_URL" env-default:"https://mainnet.base.org"`
	PrivateKey     string        `yaml:"private_key" env:"PRIVATE_KEY"`
	DerivationPath string        `yaml:"derivation_path" env:"DERIVATION_PATH"`
	DeviceTimeout  time.Duration `yaml:"device_timeout" env:"DEVICE_TIMEOUT"`
}

func (p profile) config() Config {
	return Config{
		Type:           Kind(strings.ToLower(strings.TrimSpace(p.Type))),
		RPCURL:         p.RPCURL,
		PrivateKey:     p.PrivateKey,
		DerivationPath: p.DerivationPath,
		DeviceTimeout:  p.DeviceTimeout,
	}
}

// LoadConfigFromEnv reads SIGNER_TYPE, RPC_URL, PRIVATE_KEY, DERIVATION_PATH
// and DEVICE_TIMEOUT.
func LoadConfigFromEnv() (Config, error) {
	var p profile
	if err := cleanenv.ReadEnv(&p); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return p.config(), nil
}

// LoadConfigFile reads a YAML signer profile. An empty rpc_url falls back to
// DefaultRPCURL.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	defer f.Close()

	var p profile
	if err := yaml.NewDecoder(f).Decode(&p); err != nil {
		return Config{}, fmt.Errorf("%w: failed to parse %s: %w", ErrConfiguration, path, err)
	}
	if p.RPCURL == "" {
		p.RPCURL = DefaultRPCURL
	}
	return p.config(), nil
}

// Validate checks cfg without building anything.
func (cfg Config) Validate() error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	switch cfg.Type {
	case KindLocal:
		if strings.TrimSpace(cfg.PrivateKey) == "" {
			return fmt.Errorf("%w: private key is required for a local signer", ErrConfiguration)
		}
	case KindLedger:
		if _, err := ParseDerivationPath(cfg.DerivationPath); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSignerType, cfg.Type)
	}
	if cfg.DeviceTimeout < 0 {
		return fmt.Errorf("%w: negative device timeout", ErrConfiguration)
	}
	return nil
}

// New builds the signer described by cfg. It performs no network or device
// I/O; failures are configuration errors.
func New(cfg Config) (Signer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := Options{
		Logger:        cfg.Logger,
		Metrics:       cfg.Metrics,
		Tracer:        cfg.Tracer,
		DeviceTimeout: cfg.DeviceTimeout,
	}
	client, owned := cfg.Client, false
	if client == nil {
		client, owned = NewProvider(cfg.RPCURL), true
	}

	switch cfg.Type {
	case KindLocal:
		key, err := sign.NewEthereumSigner(cfg.PrivateKey)
		if err != nil {
			// The parse error never echoes the key.
			return nil, fmt.Errorf("%w: invalid private key", ErrConfiguration)
		}
		s := NewLocalSigner(key, client, opts)
		s.ownsClient = owned
		return s, nil

	case KindLedger:
		path, err := ParseDerivationPath(cfg.DerivationPath)
		if err != nil {
			return nil, err
		}
		open := cfg.DeviceOpener
		if open == nil {
			open = OpenLedger
		}
		h := NewHardwareSigner(client, open, path, opts)
		h.ownsClient = owned
		return h, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignerType, cfg.Type)
	}
}

// ParseDerivationPath parses a BIP-32 path such as "44'/60'/0'/0/0". Paths
// without a leading "m/" are taken as absolute. Empty means
// DefaultDerivationPath.
func ParseDerivationPath(p string) (accounts.DerivationPath, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		p = DefaultDerivationPath
	}
	if !strings.HasPrefix(p, "m/") {
		p = "m/" + p
	}
	path, err := accounts.ParseDerivationPath(p)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid derivation path %q: %w", ErrConfiguration, p, err)
	}
	return path, nil
}
