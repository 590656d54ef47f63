// Package firecracker converts a Firecracker microVM snapshot's memory
// file into a JIF pheader. Firecracker's snapshot_mem file is a flat,
// potentially sparse dump of guest physical memory; jiftool mmaps it
// read-only and runs it through the same zero-page scan used to punch
// holes in a snapshot file before shipping it, so an already-sparse
// region of the memfile never gets materialized as private data.
package firecracker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	firecracker "github.com/firecracker-microvm/firecracker-go-sdk"
	"github.com/firecracker-microvm/firecracker-go-sdk/client/models"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/bsdinis/jiftool/internal/jif"
	"github.com/bsdinis/jiftool/internal/jif/dedup"
	"github.com/bsdinis/jiftool/internal/jif/diffbuild"
	"github.com/bsdinis/jiftool/internal/jif/pheader"
	"github.com/bsdinis/jiftool/internal/jiflog"
)

// Config describes one Firecracker memfile to convert.
type Config struct {
	// MemFilePath is the path to Firecracker's snapshot_mem file.
	MemFilePath string
	// GuestPhysBase is the guest-physical address the memfile's first
	// byte corresponds to — normally 0 for a single-region guest.
	GuestPhysBase uint64
}

// mmapMemFile maps path read-only and returns the bytes alongside a closer
// that must be called once the caller is done reading them.
func mmapMemFile(path string) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Size() == 0 {
		return nil, nil, fmt.Errorf("%s is empty", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return data, func() error { return unix.Munmap(data) }, nil
}

// BuildJIF reads cfg.MemFilePath and returns a single-pheader Jif whose
// interval tree holds only the non-zero pages of the memfile — the same
// pages a loader would need to actually materialize, since any page this
// scan finds all-zero resolves from the JIF's implicit zero page instead.
func BuildJIF(cfg Config) (*jif.Jif, error) {
	data, closeMmap, err := mmapMemFile(cfg.MemFilePath)
	if err != nil {
		return nil, err
	}
	defer closeMmap()

	tree, err := diffbuild.FromZeroPageAnon(data, cfg.GuestPhysBase)
	if err != nil {
		return nil, fmt.Errorf("scanning %s for zero pages: %w", cfg.MemFilePath, err)
	}

	dd := dedup.New()
	pheader.DedupeOnto(tree, dd)

	p := &pheader.Pheader{
		VBegin: cfg.GuestPhysBase,
		VEnd:   tree.VRange[1],
		Tree:   tree,
		Prot:   pheader.ProtRead | pheader.ProtWrite,
	}

	return &jif.Jif{Pheaders: []*pheader.Pheader{p}, Dedup: dd}, nil
}

// SnapshotConfig describes how to boot, pause and snapshot a Firecracker
// microVM through the SDK in order to capture its guest memory as a JIF,
// rather than converting a memfile some other process already dumped.
type SnapshotConfig struct {
	// BinPath is the path to the firecracker binary.
	BinPath string
	// KernelImagePath and RootDrivePath are the guest's boot kernel and
	// root block device, passed straight through to firecracker.Config.
	KernelImagePath string
	RootDrivePath   string
	// InstanceDir is a scratch directory for the API socket and the
	// snapshot_mem/snapshot_vmstate files CreateSnapshot writes.
	InstanceDir string
	// VCPUCount and MemSizeMiB size the guest's virtual machine.
	VCPUCount  int64
	MemSizeMiB int64
	// BootWait is how long the guest runs before being paused and
	// snapshotted; callers that need the guest to reach a particular
	// point (e.g. an application warmed up) should instead pause it
	// through an out-of-band signal and set BootWait to 0.
	BootWait time.Duration
}

// SnapshotAndBuildJIF boots a Firecracker microVM per cfg using the SDK,
// lets it run for cfg.BootWait, pauses it, snapshots its memory, and
// converts that snapshot into a JIF the same way BuildJIF does for a
// memfile captured by some other means.
func SnapshotAndBuildJIF(ctx context.Context, cfg SnapshotConfig) (*jif.Jif, error) {
	if err := os.MkdirAll(cfg.InstanceDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating instance dir %s: %w", cfg.InstanceDir, err)
	}
	socketPath := filepath.Join(cfg.InstanceDir, "firecracker.sock")

	vcpuCount, memSize := cfg.VCPUCount, cfg.MemSizeMiB
	fcCfg := firecracker.Config{
		SocketPath:      socketPath,
		KernelImagePath: cfg.KernelImagePath,
		Drives: []models.Drive{
			{
				DriveID:      firecracker.String("rootfs"),
				PathOnHost:   firecracker.String(cfg.RootDrivePath),
				IsRootDevice: firecracker.Bool(true),
				IsReadOnly:   firecracker.Bool(false),
			},
		},
		MachineCfg: models.MachineConfiguration{
			VcpuCount:  &vcpuCount,
			MemSizeMib: &memSize,
		},
	}

	fcCmd := firecracker.VMCommandBuilder{}.
		WithBin(cfg.BinPath).
		WithSocketPath(socketPath).
		Build(ctx)

	machine, err := firecracker.NewMachine(ctx, fcCfg,
		firecracker.WithProcessRunner(fcCmd),
		firecracker.WithLogger(log.NewEntry(jiflog.Logger())),
	)
	if err != nil {
		return nil, fmt.Errorf("creating firecracker machine: %w", err)
	}

	if err := machine.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting firecracker vm: %w", err)
	}
	defer machine.StopVMM()

	select {
	case <-time.After(cfg.BootWait):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := machine.PauseVM(ctx); err != nil {
		return nil, fmt.Errorf("pausing firecracker vm: %w", err)
	}

	memPath := filepath.Join(cfg.InstanceDir, "snapshot_mem")
	statePath := filepath.Join(cfg.InstanceDir, "snapshot_vmstate")
	if err := machine.CreateSnapshot(ctx, memPath, statePath); err != nil {
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}

	return BuildJIF(Config{MemFilePath: memPath})
}

// FindMemFile searches dirs, in order, for a "snapshot_mem" file and
// returns the first one found. It backs the CLI's fallback when the user
// does not pass an explicit --memfile: the candidate directories come from
// the jiftool config's snapshot_search list.
func FindMemFile(dirs []string) (string, error) {
	for _, dir := range dirs {
		candidate := filepath.Join(dir, "snapshot_mem")
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no snapshot_mem found in any of %v", dirs)
}
