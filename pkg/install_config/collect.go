// pkg/install_config/collect.go

package install_config

import (
	"strings"

	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/interaction"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// CollectInteractive prompts for every setting the guided run needs,
// starting from defaults, then shows a summary and asks for confirmation.
// The operator gets exactly one edit pass before the configuration is
// considered final; declining twice aborts the run.
func CollectInteractive(rc *bedrock_io.RuntimeContext, prompter interaction.Prompter, defaults *Config) (*Config, error) {
	log := otelzap.Ctx(rc.Ctx)
	if defaults == nil {
		defaults = DefaultConfig()
	}

	cfg := collectOnce(prompter, defaults)

	for attempt := 0; attempt < 2; attempt++ {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		log.Info("Configuration collected", zap.String("primary_disk", cfg.PrimaryDisk))

		if prompter.Confirm("Apply this configuration?\n"+cfg.Summary(), true) {
			return cfg, nil
		}
		if attempt == 0 {
			log.Info("Operator requested configuration edit")
			cfg = collectOnce(prompter, cfg)
		}
	}

	return nil, bedrock_err.NewUserError("configuration not confirmed, aborting installation")
}

func collectOnce(prompter interaction.Prompter, defaults *Config) *Config {
	cfg := *defaults

	cfg.PrimaryDisk = prompter.Input("Primary disk (e.g. /dev/nvme0n1)", defaults.PrimaryDisk)
	auxDefault := strings.Join(defaults.AuxDisks, ",")
	if aux := prompter.Input("Auxiliary mirror disks, comma separated (blank for none)", auxDefault); aux != "" {
		cfg.AuxDisks = splitList(aux)
	} else {
		cfg.AuxDisks = nil
	}

	cfg.EFISize = prompter.Input("EFI partition size", defaults.EFISize)
	cfg.BootSize = prompter.Input("Boot partition size", defaults.BootSize)
	cfg.SwapSize = prompter.Input("Swap volume size", defaults.SwapSize)

	cfg.RootContainer = prompter.Input("Root container name", defaults.RootContainer)
	cfg.SystemVG = prompter.Input("System volume group name", defaults.SystemVG)
	if cfg.HasDataMirror() {
		cfg.DataVG = prompter.Input("Data volume group name", defaults.DataVG)
	}

	cfg.Hostname = prompter.Input("Hostname", defaults.Hostname)
	cfg.Username = prompter.Input("Username", defaults.Username)
	cfg.Locale = prompter.Input("Locale", defaults.Locale)
	cfg.Timezone = prompter.Input("Timezone", defaults.Timezone)

	generator, err := prompter.Select("Initramfs generator", []string{"mkinitcpio", "dracut"})
	if err == nil {
		cfg.Generator = generator
	}

	return &cfg
}
