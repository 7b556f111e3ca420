// pkg/lvm/lvm.go

package lvm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bedrock-install/bedrock/pkg/bedrock_err"
	"github.com/bedrock-install/bedrock/pkg/bedrock_io"
	"github.com/bedrock-install/bedrock/pkg/execute"
	"github.com/bedrock-install/bedrock/pkg/topology"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// alreadyMade recognizes the create tools refusing work they finished on
// an earlier attempt, which lets an interrupted volume phase re-run to
// completion instead of failing on its own leftovers.
func alreadyMade(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "already exists") ||
		strings.Contains(lower, "already in volume group")
}

// CreatePhysicalVolume initializes an opened container as a PV member.
// A device already initialized into a group is left alone.
func CreatePhysicalVolume(rc *bedrock_io.RuntimeContext, exe execute.Executor, device string) error {
	log := otelzap.Ctx(rc.Ctx)
	log.Info("Creating physical volume", zap.String("device", device))

	out, err := exe.Run(rc.Ctx, execute.Options{
		Command: "pvcreate",
		Args:    []string{"-y", device},
		Capture: true,
	})
	if err != nil {
		if alreadyMade(out) {
			log.Info("Physical volume already initialized", zap.String("device", device))
			return nil
		}
		return bedrock_err.WrapStep(err, "pvcreate "+device, "pvcreate", out)
	}
	return nil
}

// CreateVolumeGroup groups physical volumes under a named VG.
func CreateVolumeGroup(rc *bedrock_io.RuntimeContext, exe execute.Executor, vg *topology.VolumeGroup) error {
	log := otelzap.Ctx(rc.Ctx)

	if vg.Name == "" {
		return bedrock_err.NewUserError("volume group name is required")
	}
	if len(vg.Containers) == 0 {
		return bedrock_err.NewUserError("at least one physical volume is required for %s", vg.Name)
	}

	devices := make([]string, len(vg.Containers))
	for i, c := range vg.Containers {
		devices[i] = c.MapperPath()
	}

	log.Info("Creating volume group",
		zap.String("name", vg.Name),
		zap.Strings("pvs", devices))

	args := append([]string{"-y", vg.Name}, devices...)
	out, err := exe.Run(rc.Ctx, execute.Options{
		Command: "vgcreate",
		Args:    args,
		Capture: true,
	})
	if err != nil {
		if alreadyMade(out) {
			log.Info("Volume group already exists", zap.String("name", vg.Name))
			return nil
		}
		return bedrock_err.WrapStep(err, "vgcreate "+vg.Name, "vgcreate", out)
	}
	return nil
}

// CreateLogicalVolume carves one volume from its group. Mirrored groups
// get raid1 volumes spanning both members.
func CreateLogicalVolume(rc *bedrock_io.RuntimeContext, exe execute.Executor, lv *topology.LogicalVolume) error {
	log := otelzap.Ctx(rc.Ctx)
	log.Info("Creating logical volume",
		zap.String("vg", lv.VG.Name),
		zap.String("name", lv.Name),
		zap.String("size", lv.Size),
		zap.Bool("remaining", lv.Remaining))

	args := []string{"-y", "-n", lv.Name}
	if lv.Remaining {
		args = append(args, "-l", "100%FREE")
	} else {
		args = append(args, "-L", lv.Size)
	}
	if lv.VG.Mirrored {
		args = append(args, "--type", "raid1", "-m", "1")
	}
	args = append(args, lv.VG.Name)

	out, err := exe.Run(rc.Ctx, execute.Options{
		Command: "lvcreate",
		Args:    args,
		Capture: true,
	})
	if err != nil {
		if alreadyMade(out) {
			log.Info("Logical volume already exists",
				zap.String("vg", lv.VG.Name),
				zap.String("name", lv.Name))
			return nil
		}
		return bedrock_err.WrapStep(err, fmt.Sprintf("lvcreate %s/%s", lv.VG.Name, lv.Name), "lvcreate", out)
	}
	return nil
}

// ActivateVolumeGroup makes a group's logical volumes available.
func ActivateVolumeGroup(rc *bedrock_io.RuntimeContext, exe execute.Executor, name string) error {
	out, err := exe.Run(rc.Ctx, execute.Options{
		Command: "vgchange",
		Args:    []string{"-ay", name},
		Capture: true,
	})
	if err != nil {
		return bedrock_err.WrapStep(err, "vgchange -ay "+name, "vgchange", out)
	}
	return nil
}

// DeactivateVolumeGroup takes a group's volumes offline.
func DeactivateVolumeGroup(rc *bedrock_io.RuntimeContext, exe execute.Executor, name string) error {
	out, err := exe.Run(rc.Ctx, execute.Options{
		Command: "vgchange",
		Args:    []string{"-an", name},
		Capture: true,
	})
	if err != nil {
		return bedrock_err.WrapStep(err, "vgchange -an "+name, "vgchange", out)
	}
	return nil
}

// VolumeGroupExists probes for a named VG on the live system.
func VolumeGroupExists(rc *bedrock_io.RuntimeContext, exe execute.Executor, name string) bool {
	_, err := exe.Run(rc.Ctx, execute.Options{
		Command: "vgdisplay",
		Args:    []string{name},
		Capture: true,
	})
	return err == nil
}

// DeviceSizeBytes reads the byte size of a block device.
func DeviceSizeBytes(rc *bedrock_io.RuntimeContext, exe execute.Executor, device string) (int64, error) {
	out, err := execute.Capture(rc.Ctx, exe, "lsblk", "-bdno", "SIZE", device)
	if err != nil {
		return 0, cerr.Wrapf(err, "read size of %s", device)
	}
	size, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, cerr.Wrapf(err, "parse size of %s from %q", device, out)
	}
	return size, nil
}
