// pkg/phase/phase.go

package phase

import (
	"fmt"
	"strings"
)

// Phase identifies one step of the provisioning pipeline. The order of
// the constants is the execution order; each phase depends on the device
// state left behind by the previous one.
type Phase int

const (
	Partition Phase = iota
	Encrypt
	VolumeManage
	Filesystem
	Mount
	BaseInstall
	InTargetConfigure
	PostReboot
)

var names = map[Phase]string{
	Partition:         "partition",
	Encrypt:           "encrypt",
	VolumeManage:      "volume-manage",
	Filesystem:        "filesystem",
	Mount:             "mount",
	BaseInstall:       "base-install",
	InTargetConfigure: "in-target-configure",
	PostReboot:        "post-reboot",
}

func (p Phase) String() string {
	if name, ok := names[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Parse maps a phase name back to its Phase.
func Parse(name string) (Phase, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for p, n := range names {
		if n == needle {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", name)
}

// Order returns every phase in execution order.
func Order() []Phase {
	return []Phase{
		Partition, Encrypt, VolumeManage, Filesystem,
		Mount, BaseInstall, InTargetConfigure, PostReboot,
	}
}
