package device

// Launch is one recorded kernel invocation.
type Launch struct {
	// Kernel is the compile order of the kernel that ran (0 = first compiled).
	Kernel           int
	Timestep         int32
	RealizationStart int32
}

// RecordingCompiler compiles nothing. Each Compile call returns a kernel that
// appends its launches to Launches, so callers can inspect exactly what a run
// would have executed.
type RecordingCompiler struct {
	// Sources holds the source passed to each Compile call, in order.
	Sources []string
	// Bindings holds the constants mapping each kernel was compiled against.
	Bindings []map[string]any
	// Launches holds every launch of every kernel, in order.
	Launches []Launch

	// CompileErr, if set, is returned by Compile.
	CompileErr error
	// LaunchErr, if set, is consulted before recording each launch; a non-nil
	// result aborts that launch.
	LaunchErr func(Launch) error
}

// NewRecordingCompiler creates an empty RecordingCompiler.
func NewRecordingCompiler() *RecordingCompiler {
	return &RecordingCompiler{}
}

func (r *RecordingCompiler) Compile(source string, constants map[string]any) (Kernel, error) {
	if r.CompileErr != nil {
		return nil, r.CompileErr
	}
	idx := len(r.Sources)
	r.Sources = append(r.Sources, source)
	r.Bindings = append(r.Bindings, constants)
	return KernelFunc(func(timestep, realizationStart int32) error {
		l := Launch{Kernel: idx, Timestep: timestep, RealizationStart: realizationStart}
		if r.LaunchErr != nil {
			if err := r.LaunchErr(l); err != nil {
				return err
			}
		}
		r.Launches = append(r.Launches, l)
		return nil
	}), nil
}

// LaunchesOf returns the timesteps at which the given kernel ran.
func (r *RecordingCompiler) LaunchesOf(kernel int) []int32 {
	var out []int32
	for _, l := range r.Launches {
		if l.Kernel == kernel {
			out = append(out, l.Timestep)
		}
	}
	return out
}
