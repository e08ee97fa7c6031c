// Package boot implements kernel boot sequencing (spec.md C11): bring
// up C1-C3 (memory), then C4-C5 (device discovery from the device-tree
// blob), then C6 (scheduler, with the first timer tick armed to the
// configured quantum), then C8-C9 (mount the root filesystem on block
// device minor 0), then create and run the init thread.
//
// Grounded on the teacher's ufs.BootFS/StartFS sequencing and on
// original_source/src/soft/hal/soc/almo1-mips/soc.c's per-device-class
// discovery loops (soc_icu_init, soc_tty_init, soc_timer_init,
// soc_dma_init, soc_bd_init), each walking the tree for one compatible
// string, allocating a registry entry, and wiring its IRQ line.
package boot

import (
	"ko6/blockio"
	"ko6/defs"
	"ko6/dev"
	"ko6/devtree"
	"ko6/fs1"
	"ko6/irq"
	"ko6/mem"
	"ko6/slab"
	"ko6/syscall"
	"ko6/thread"
	"ko6/ustack"
	"ko6/vfs"
)

// / Config is everything boot needs that a real kernel would read off
// / the command line or the device tree itself; per spec.md §6 "the
// / kernel does not parse [the simulator's flags]; it only observes
// / their effect on the device tree", so the few knobs that don't flow
// / through the device tree (disk image path, table sizes) are passed
// / in directly rather than parsed here.
type Config struct {
	DeviceTree []byte

	// BackingDisk is the path to the block device's backing image,
	// opened for the "soclib,bd" node found.
	BackingDisk string

	NumPages      int
	CacheLineSize int
	MaxThreads    int
	NCPUs         int
	MaxInodes     int

	UserStackLow uintptr
	UserStackTop uintptr
	UserAddrLow  uintptr
	UserAddrSize int

	// TimerQuantum is the tick count armed on every discovered timer,
	// spec.md §4.11 "scheduler with the first timer tick set to the
	// configured quantum".
	TimerQuantum int

	// Init is the entry body of the thread created last, after the
	// root filesystem is mounted (spec.md §4.11).
	Init func(arg any)
	// InitArg is passed to Init unchanged.
	InitArg any
}

// / TimerDevice is the registry payload for a discovered timer: the
// / quantum it was armed with and the CPU whose preemption it drives.
type TimerDevice struct {
	Quantum int
	CPU     int
}

// / Kernel holds every subsystem boot brought up, for the caller (a
// / simulator driver loop, or a test) to drive further.
type Kernel struct {
	PA      *mem.Allocator
	Heap    *slab.Heap
	Stacks  *ustack.Pool
	Devices *dev.Registry
	ICU     *dev.ICU
	IRQ     *irq.Router
	Sched   *thread.Scheduler
	VFS     *vfs.VFS
	Cache   *blockio.Cache
	Root    vfs.Ops
	Init    *thread.Thread

	userAddrLow  uintptr
	userAddrSize int
}

// / Boot brings up every subsystem in spec.md §4.11 order and starts
// / the init thread. A failure at any stage is reported as the
// / defs.Err_t of the stage that failed, matching every other kernel
// / entry point's error convention.
func Boot(cfg Config) (*Kernel, defs.Err_t) {
	tree, perr := devtree.Parse(cfg.DeviceTree)
	if perr != nil {
		return nil, -defs.EINVAL
	}

	// C1-C3: memory.
	pa := mem.NewAllocator(cfg.NumPages)
	heap := slab.NewHeap(pa, cfg.CacheLineSize)
	stacks := ustack.NewPool(cfg.UserStackLow, cfg.UserStackTop)

	// C4-C5: device discovery, in dependency order (ICU, TTY, DMA,
	// block, timer last).
	registry := dev.NewRegistry()

	if len(tree.ByCompatible(devtree.CompatICU)) == 0 {
		return nil, -defs.ENOENT
	}
	icu := dev.NewICU()
	registry.Alloc(defs.ICU, icu)
	router := irq.NewRouter(64, icu)

	for _, n := range tree.ByCompatible(devtree.CompatTTY) {
		tty := dev.NewTTY(4096)
		registry.Alloc(defs.CHAR, tty)
		icu.Unmask(n.Interrupts)
		router.Register(n.Interrupts, func(cookie any) {}, tty)
	}

	for range tree.ByCompatible(devtree.CompatDMA) {
		registry.Alloc(defs.DMA, dev.NewDMAChannels(4))
	}

	cache := blockio.NewCache(pa)
	bdNodes := tree.ByCompatible(devtree.CompatBD)
	if len(bdNodes) == 0 {
		return nil, -defs.ENOENT
	}
	disk, derr := blockio.OpenDisk(cfg.BackingDisk)
	if derr != 0 {
		return nil, derr
	}
	blockDesc := registry.Alloc(defs.BLOCK, disk)
	cache.Attach(blockDesc.Minor, disk)
	icu.Unmask(bdNodes[0].Interrupts)

	sched := thread.NewScheduler(cfg.MaxThreads, cfg.NCPUs, pa, stacks)

	for i, n := range tree.ByCompatible(devtree.CompatTimer) {
		cpu := i % cfg.NCPUs
		td := &TimerDevice{Quantum: cfg.TimerQuantum, CPU: cpu}
		registry.Alloc(defs.TIMER, td)
		icu.Unmask(n.Interrupts)
		router.Register(n.Interrupts, func(cookie any) {
			sched.RequestPreempt(td.CPU)
		}, td)
	}

	// C8-C9: mount root on block minor 0.
	root, ferr := fs1.Mount(cache, blockDesc.Minor)
	if ferr != 0 {
		return nil, ferr
	}
	vfsCore := vfs.New(cfg.MaxInodes)
	if _, merr := vfsCore.Mount("/", root); merr != 0 {
		return nil, merr
	}

	// Init thread, last.
	if cfg.Init == nil {
		return nil, -defs.EINVAL
	}
	initThread, cerr := sched.Create(cfg.Init, cfg.InitArg)
	if cerr != 0 {
		return nil, cerr
	}
	sched.Boot(0, initThread)

	return &Kernel{
		PA:           pa,
		Heap:         heap,
		Stacks:       stacks,
		Devices:      registry,
		ICU:          icu,
		IRQ:          router,
		Sched:        sched,
		VFS:          vfsCore,
		Cache:        cache,
		Root:         root,
		Init:         initThread,
		userAddrLow:  cfg.UserAddrLow,
		userAddrSize: cfg.UserAddrSize,
	}, 0
}

// / NewSyscallContext builds a per-thread syscall dispatch context
// / wired to this kernel's scheduler, a fresh user address space, and
// / the tty registered as the console (minor 0), matching the handoff
// / from boot to C10 described in spec.md §4.11's closing step "load
// / its context".
func (k *Kernel) NewSyscallContext(cpu int) (*syscall.Context, defs.Err_t) {
	d, ok := k.Devices.Get(defs.CHAR, 0)
	if !ok {
		return nil, -defs.ENOENT
	}
	tty, ok := d.Driver.(*dev.TTY)
	if !ok {
		return nil, -defs.EINVAL
	}
	as := syscall.NewAddrSpace(k.userAddrLow, k.userAddrSize)
	return syscall.NewContext(k.Sched, as, k.Stacks, cpu, tty, k.Heap.LineSize()), 0
}
