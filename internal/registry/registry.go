package registry

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"alloc-bench/internal/config"
	"alloc-bench/internal/logging"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

type ActivationKind int

const (
	// Preload injects a shared library into the workload process.
	Preload ActivationKind = iota
	// System leaves the platform allocator in place.
	System
)

// SystemMarker is exported to workloads measured against the system allocator.
const SystemMarker = "SYSMALLOC=1"

type Activation struct {
	Kind    ActivationKind
	Library string
}

// Overlay returns the environment entries that select this variant.
func (a Activation) Overlay() []string {
	if a.Kind == System {
		return []string{SystemMarker}
	}
	return []string{PreloadVar() + "=" + a.Library}
}

func PreloadVar() string {
	if runtime.GOOS == "darwin" {
		return "DYLD_INSERT_LIBRARIES"
	}
	return "LD_PRELOAD"
}

func DylibExt() string {
	if runtime.GOOS == "darwin" {
		return "dylib"
	}
	return "so"
}

// Variant is a resolved subject under test.
type Variant struct {
	Name       string
	Activation Activation
}

// Workload is an immutable benchmark definition with its command already split into argv.
type Workload struct {
	Name         string
	Command      string
	Argv         []string
	Dir          string
	Input        string
	Pre          [][]string
	Post         [][]string
	AllowFailure bool
	Timeout      time.Duration
}

type Registry struct {
	profile       config.Profile
	variants      map[string]config.VariantConfig
	variantOrder  []string
	discoverDir   string
	workloads     map[string]Workload
	workloadOrder []string
}

// New builds the registry for one build profile. Workload commands are
// split and checked here; variant artifacts are checked on Resolve, since
// the build step may create them later.
func New(cfg *config.SuiteConfig, profile config.Profile) (*Registry, error) {
	r := &Registry{
		profile:   profile,
		variants:  make(map[string]config.VariantConfig),
		workloads: make(map[string]Workload),
	}

	for _, v := range cfg.Variants {
		if _, dup := r.variants[v.Name]; dup {
			return nil, config.Errorf("variant %s: defined more than once", v.Name)
		}
		r.variants[v.Name] = v
		r.variantOrder = append(r.variantOrder, v.Name)
	}

	r.discoverDir = cfg.Suite.Discover
	if err := r.Rediscover(); err != nil {
		return nil, err
	}

	for _, wc := range cfg.Workloads {
		if _, dup := r.workloads[wc.Name]; dup {
			return nil, config.Errorf("workload %s: defined more than once", wc.Name)
		}
		w, err := newWorkload(wc)
		if err != nil {
			return nil, err
		}
		r.workloads[w.Name] = w
		r.workloadOrder = append(r.workloadOrder, w.Name)
	}

	return r, nil
}

func newWorkload(wc config.WorkloadConfig) (Workload, error) {
	w := Workload{
		Name:         wc.Name,
		Command:      expandProcs(wc.Command),
		Dir:          wc.Dir,
		AllowFailure: wc.AllowFailure,
	}

	argv, err := splitCommand(w.Command)
	if err != nil {
		return Workload{}, config.Errorf("workload %s: %v", wc.Name, err)
	}
	w.Argv = argv

	if wc.Input != "" {
		input, err := filepath.Abs(wc.Input)
		if err != nil {
			return Workload{}, config.Errorf("workload %s: input %s: %v", wc.Name, wc.Input, err)
		}
		w.Input = input
	}

	for _, hook := range wc.Pre {
		argv, err := splitCommand(expandProcs(hook))
		if err != nil {
			return Workload{}, config.Errorf("workload %s: pre hook: %v", wc.Name, err)
		}
		w.Pre = append(w.Pre, argv)
	}
	for _, hook := range wc.Post {
		argv, err := splitCommand(expandProcs(hook))
		if err != nil {
			return Workload{}, config.Errorf("workload %s: post hook: %v", wc.Name, err)
		}
		w.Post = append(w.Post, argv)
	}

	if w.Timeout, err = wc.GetTimeout(); err != nil {
		return Workload{}, config.Errorf("workload %s: invalid timeout %q", wc.Name, wc.Timeout)
	}

	return w, nil
}

func splitCommand(cmd string) ([]string, error) {
	args, err := shlex.Split(cmd)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, config.Errorf("empty command")
	}
	return args, nil
}

// expandProcs substitutes {nproc} and {nproc2} with the logical CPU count and twice that.
func expandProcs(s string) string {
	n := runtime.NumCPU()
	return strings.NewReplacer(
		"{nproc2}", strconv.Itoa(2*n),
		"{nproc}", strconv.Itoa(n),
	).Replace(s)
}

// Rediscover scans the discovery directory again, registering libraries
// that appeared since the last scan. Known variants are left untouched.
func (r *Registry) Rediscover() error {
	if r.discoverDir == "" {
		return nil
	}
	return r.discover(r.discoverDir)
}

// discover registers every lib<name>.<dylib> in dir that is not already a named variant.
func (r *Registry) discover(dirTemplate string) error {
	logger := logging.GetLogger()

	dir := r.expandLibrary(dirTemplate, "")
	matches, err := filepath.Glob(filepath.Join(dir, "lib*."+DylibExt()))
	if err != nil {
		return config.Errorf("discover %s: %v", dir, err)
	}
	sort.Strings(matches)

	for _, path := range matches {
		base := filepath.Base(path)
		name := strings.TrimSuffix(strings.TrimPrefix(base, "lib"), "."+DylibExt())
		if name == "" {
			continue
		}
		if _, exists := r.variants[name]; exists {
			continue
		}
		r.variants[name] = config.VariantConfig{Name: name, Library: path}
		r.variantOrder = append(r.variantOrder, name)

		logger.WithFields(logrus.Fields{
			"variant": name,
			"library": path,
		}).Debug("Discovered variant")
	}
	return nil
}

func (r *Registry) expandLibrary(tmpl, name string) string {
	return strings.NewReplacer(
		"{profile}", string(r.profile),
		"{name}", name,
		"{dylib}", DylibExt(),
	).Replace(tmpl)
}

func (r *Registry) Profile() config.Profile {
	return r.profile
}

// VariantNames returns registered variants in registration order, discovered ones last.
func (r *Registry) VariantNames() []string {
	return append([]string(nil), r.variantOrder...)
}

func (r *Registry) WorkloadNames() []string {
	return append([]string(nil), r.workloadOrder...)
}

// Resolve turns a variant name into its activation. The library must exist.
func (r *Registry) Resolve(name string) (Variant, error) {
	vc, ok := r.variants[name]
	if !ok {
		return Variant{}, config.Errorf("unknown variant %q", name)
	}
	if vc.System {
		return Variant{Name: name, Activation: Activation{Kind: System}}, nil
	}

	lib, err := filepath.Abs(r.expandLibrary(vc.Library, name))
	if err != nil {
		return Variant{}, config.Errorf("variant %s: %v", name, err)
	}
	if _, err := os.Stat(lib); err != nil {
		return Variant{}, config.Errorf("variant %s: artifact %s not found", name, lib)
	}
	return Variant{Name: name, Activation: Activation{Kind: Preload, Library: lib}}, nil
}

func (r *Registry) Workload(name string) (Workload, error) {
	w, ok := r.workloads[name]
	if !ok {
		return Workload{}, config.Errorf("unknown workload %q", name)
	}
	return w, nil
}

// ResolveAll resolves a selection, failing on the first unknown or dangling name.
func (r *Registry) ResolveAll(variants, workloads []string) ([]Variant, []Workload, error) {
	vs := make([]Variant, 0, len(variants))
	for _, name := range variants {
		v, err := r.Resolve(name)
		if err != nil {
			return nil, nil, err
		}
		vs = append(vs, v)
	}
	ws := make([]Workload, 0, len(workloads))
	for _, name := range workloads {
		w, err := r.Workload(name)
		if err != nil {
			return nil, nil, err
		}
		ws = append(ws, w)
	}
	return vs, ws, nil
}

// Check validates a selection by name only, without touching artifacts.
func (r *Registry) Check(variants, workloads []string) error {
	for _, name := range variants {
		if _, ok := r.variants[name]; !ok {
			return config.Errorf("unknown variant %q", name)
		}
	}
	for _, name := range workloads {
		if _, ok := r.workloads[name]; !ok {
			return config.Errorf("unknown workload %q", name)
		}
	}
	return nil
}
