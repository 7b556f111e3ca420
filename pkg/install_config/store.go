// pkg/install_config/store.go

package install_config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// DefaultPath lives outside any filesystem the installer unmounts, so it
// survives the chroot handoff (after being copied into the target) and a
// full reboot of the installed system.
const DefaultPath = "/var/lib/bedrock/install.env"

// Store persists the configuration as a flat key=value file. The dotenv
// format is readable from the provisioning environment, inside the target
// root, and by the post-reboot finalizer without any shared process state.
type Store struct {
	Path string
}

func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{Path: path}
}

// Save persists all fields, overwriting any prior configuration for the
// current installation attempt. There is no history.
func (s *Store) Save(rc *bedrock_io.RuntimeContext, cfg *Config) error {
	log := otelzap.Ctx(rc.Ctx)

	if err := cfg.Validate(); err != nil {
		return cerr.Wrap(err, "refusing to persist invalid configuration")
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return cerr.Wrapf(err, "create configuration directory for %s", s.Path)
	}

	if err := godotenv.Write(marshal(cfg), s.Path); err != nil {
		return cerr.Wrapf(err, "write configuration to %s", s.Path)
	}

	log.Info("Configuration persisted", zap.String("path", s.Path))
	return nil
}

// Load reads a previously saved configuration. A missing file is fatal:
// no phase may invent configuration values.
func (s *Store) Load(rc *bedrock_io.RuntimeContext) (*Config, error) {
	log := otelzap.Ctx(rc.Ctx)

	values, err := godotenv.Read(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &bedrock_err.ConfigurationMissing{Path: s.Path}
		}
		return nil, cerr.Wrapf(err, "read configuration from %s", s.Path)
	}

	cfg := unmarshal(values)
	if err := cfg.Validate(); err != nil {
		return nil, cerr.Wrapf(err, "persisted configuration at %s is invalid", s.Path)
	}

	log.Debug("Configuration loaded", zap.String("path", s.Path))
	return cfg, nil
}

const (
	keyPrimaryDisk    = "BEDROCK_PRIMARY_DISK"
	keyAuxDisks       = "BEDROCK_AUX_DISKS"
	keyEFISize        = "BEDROCK_EFI_SIZE"
	keyBootSize       = "BEDROCK_BOOT_SIZE"
	keySwapSize       = "BEDROCK_SWAP_SIZE"
	keyRootContainer  = "BEDROCK_ROOT_CONTAINER"
	keyDataContainers = "BEDROCK_DATA_CONTAINERS"
	keySystemVG       = "BEDROCK_SYSTEM_VG"
	keyDataVG         = "BEDROCK_DATA_VG"
	keyHostname       = "BEDROCK_HOSTNAME"
	keyUsername       = "BEDROCK_USERNAME"
	keyLocale         = "BEDROCK_LOCALE"
	keyTimezone       = "BEDROCK_TIMEZONE"
	keyGenerator      = "BEDROCK_INITRAMFS_GENERATOR"
	keyTargetRoot     = "BEDROCK_TARGET_ROOT"
)

func marshal(cfg *Config) map[string]string {
	return map[string]string{
		keyPrimaryDisk:    cfg.PrimaryDisk,
		keyAuxDisks:       strings.Join(cfg.AuxDisks, ","),
		keyEFISize:        cfg.EFISize,
		keyBootSize:       cfg.BootSize,
		keySwapSize:       cfg.SwapSize,
		keyRootContainer:  cfg.RootContainer,
		keyDataContainers: strings.Join(cfg.DataContainers, ","),
		keySystemVG:       cfg.SystemVG,
		keyDataVG:         cfg.DataVG,
		keyHostname:       cfg.Hostname,
		keyUsername:       cfg.Username,
		keyLocale:         cfg.Locale,
		keyTimezone:       cfg.Timezone,
		keyGenerator:      cfg.Generator,
		keyTargetRoot:     cfg.TargetRoot,
	}
}

func unmarshal(values map[string]string) *Config {
	return &Config{
		PrimaryDisk:    values[keyPrimaryDisk],
		AuxDisks:       splitList(values[keyAuxDisks]),
		EFISize:        values[keyEFISize],
		BootSize:       values[keyBootSize],
		SwapSize:       values[keySwapSize],
		RootContainer:  values[keyRootContainer],
		DataContainers: splitList(values[keyDataContainers]),
		SystemVG:       values[keySystemVG],
		DataVG:         values[keyDataVG],
		Hostname:       values[keyHostname],
		Username:       values[keyUsername],
		Locale:         values[keyLocale],
		Timezone:       values[keyTimezone],
		Generator:      values[keyGenerator],
		TargetRoot:     values[keyTargetRoot],
	}
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
