// Package meshfilter implements a self-filtering engine for depth sensors
// mounted on a robot: given a raw depth image and the meshes of the robot's
// own body, it classifies every pixel as robot body ("self"), occluded
// region ("shadow"), or environment ("background"), and produces a filtered
// metric depth image alongside the label image.
//
// The engine is a single-consumer task actor. One worker goroutine,
// pinned to its OS thread, exclusively owns the render backend (on a GPU
// backend, the context is not transferable between threads); every public
// operation marshals its effect onto the worker as a job and optionally
// blocks until completion. The job queue is strictly FIFO with no
// coalescing or priorities.
package meshfilter

import (
	"fmt"
	"log"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/bodyfilter/internal/meshfilter/render"
	"github.com/banshee-data/bodyfilter/internal/monitoring"
)

// Default runtime tuning values.
const (
	DefaultShadowThreshold = 0.5
	DefaultPaddingScale    = 1.0
	DefaultPaddingOffset   = 0.01
)

// Config configures a MeshFilter.
type Config struct {
	// Sensor describes the depth sensor; required.
	Sensor SensorModelParams

	// Shaders holds the four opaque program sources compiled on the worker
	// before the first job runs. A zero value selects DefaultShaders().
	Shaders ShaderSet

	// Backend is the rendering implementation. Nil selects the software
	// backend. The engine takes exclusive ownership; the backend must not
	// be used elsewhere.
	Backend render.Backend

	// TransformCallback supplies per-mesh poses; replaceable later with
	// SetTransformCallback. With no callback installed, filter passes
	// render an empty model.
	TransformCallback TransformCallback

	// Logger is optional; nil uses log.Default().
	Logger *log.Logger
}

// MeshFilter is the engine. All methods are safe for concurrent use from
// arbitrary goroutines. Close must be called to release the worker.
type MeshFilter struct {
	params  SensorModelParams // cloned at construction
	codec   DepthCodec
	backend render.Backend
	logger  *log.Logger

	jobsMu   sync.Mutex
	jobsCond *sync.Cond
	jobs     []job
	stopped  bool
	done     chan struct{}

	// meshesMu serializes concurrent AddMesh/RemoveMesh callers against
	// each other. The mesh map itself is mutated only on the worker, inside
	// jobs those callers block on, so the map is never accessed from two
	// goroutines at once.
	meshesMu   sync.Mutex
	meshes     map[MeshHandle]*meshEntry
	nextHandle MeshHandle
	minHandle  MeshHandle

	cbMu        sync.Mutex
	transformCB TransformCallback

	// Tuning scalars. Stored atomically and read once per filter pass with
	// no further synchronization: if a setter races a pass, the last write
	// before the next pass wins. That is accepted behaviour, not a bug.
	shadowThreshold atomic.Uint32
	paddingScale    atomic.Uint32
	paddingOffset   atomic.Uint32

	// Current render target size; differs from params after SetSize.
	curWidth  atomic.Int32
	curHeight atomic.Int32

	// Worker-owned state below; touched only on the worker goroutine
	// after initialization.
	modelProgram  render.Program
	filterProgram render.Program
	normScratch   []float32
}

// New constructs the engine and spawns its worker. The worker compiles the
// shader programs and allocates the render targets before New returns; a
// failure there is fatal and reported here, and no half-initialized engine
// escapes.
func New(cfg Config) (*MeshFilter, error) {
	if err := cfg.Sensor.Validate(); err != nil {
		return nil, err
	}
	backend := cfg.Backend
	if backend == nil {
		backend = render.NewSoftwareBackend()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	shaders := cfg.Shaders
	if shaders == (ShaderSet{}) {
		shaders = DefaultShaders()
	}

	f := &MeshFilter{
		params:      cfg.Sensor,
		codec:       cfg.Sensor.Codec(),
		backend:     backend,
		logger:      logger,
		meshes:      make(map[MeshHandle]*meshEntry),
		nextHandle:  FirstHandle,
		minHandle:   FirstHandle,
		transformCB: cfg.TransformCallback,
		done:        make(chan struct{}),
	}
	f.jobsCond = sync.NewCond(&f.jobsMu)
	f.shadowThreshold.Store(math.Float32bits(DefaultShadowThreshold))
	f.paddingScale.Store(math.Float32bits(DefaultPaddingScale))
	f.paddingOffset.Store(math.Float32bits(DefaultPaddingOffset))

	initErr := make(chan error, 1)
	go f.run(shaders, initErr)
	if err := <-initErr; err != nil {
		<-f.done
		return nil, fmt.Errorf("mesh filter startup: %w", err)
	}
	return f, nil
}

// run is the worker goroutine: one-time initialization, then the job loop,
// then teardown. The OS thread is locked for the backend's whole life.
func (f *MeshFilter) run(shaders ShaderSet, initErr chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(f.done)

	if err := f.initialize(shaders); err != nil {
		f.jobsMu.Lock()
		f.stopped = true
		f.jobsMu.Unlock()
		f.backend.Close()
		initErr <- err
		return
	}
	initErr <- nil

	for {
		f.jobsMu.Lock()
		for len(f.jobs) == 0 && !f.stopped {
			f.jobsCond.Wait()
		}
		if f.stopped && len(f.jobs) == 0 {
			f.jobsMu.Unlock()
			break
		}
		j := f.jobs[0]
		f.jobs = f.jobs[1:]
		f.jobsMu.Unlock()
		j.execute()
	}

	f.deinitialize()
}

func (f *MeshFilter) initialize(shaders ShaderSet) error {
	w, h := f.params.Width, f.params.Height
	err := f.backend.Init(render.Params{
		Width: w, Height: h,
		Fx: float32(w), Fy: float32(w),
		Cx: float32(w) / 2, Cy: float32(h) / 2,
		Near: f.params.NearClip, Far: f.params.FarClip,
	})
	if err != nil {
		return err
	}
	if f.modelProgram, err = f.backend.CompileProgram(shaders.ModelVertex, shaders.ModelFragment); err != nil {
		return fmt.Errorf("model program: %w", err)
	}
	if f.filterProgram, err = f.backend.CompileProgram(shaders.FilterVertex, shaders.FilterFragment); err != nil {
		return fmt.Errorf("filter program: %w", err)
	}
	f.normScratch = make([]float32, w*h)
	f.curWidth.Store(int32(w))
	f.curHeight.Store(int32(h))
	f.logger.Printf("mesh filter worker started: %dx%d, clip [%v, %v]", w, h, f.params.NearClip, f.params.FarClip)
	return nil
}

func (f *MeshFilter) deinitialize() {
	for handle := range f.meshes {
		f.backend.ReleaseMesh(uint32(handle))
		delete(f.meshes, handle)
	}
	f.backend.Close()
	f.logger.Printf("mesh filter worker stopped")
}

// Close stops the engine: every job still queued is cancelled without
// running, any goroutine blocked in a synchronous call is released with
// ErrStopped, and the worker tears down the backend and exits. Close is
// idempotent and blocks until the worker is gone.
func (f *MeshFilter) Close() {
	f.jobsMu.Lock()
	if f.stopped {
		f.jobsMu.Unlock()
		<-f.done
		return
	}
	f.stopped = true
	cancelled := len(f.jobs)
	for _, j := range f.jobs {
		j.cancel()
	}
	f.jobs = nil
	f.jobsMu.Unlock()
	f.jobsCond.Broadcast()
	<-f.done
	if cancelled > 0 {
		monitoring.Logf("mesh filter: cancelled %d queued jobs at shutdown", cancelled)
	}
}

// addJob appends the job to the FIFO, or cancels it immediately if the
// engine has stopped. Safe from any goroutine.
func (f *MeshFilter) addJob(j job) {
	f.jobsMu.Lock()
	if f.stopped {
		f.jobsMu.Unlock()
		j.cancel()
		return
	}
	f.jobs = append(f.jobs, j)
	f.jobsMu.Unlock()
	f.jobsCond.Signal()
}

// addJobs appends several jobs under one lock acquisition so no other
// submission can interleave between them.
func (f *MeshFilter) addJobs(js ...job) {
	f.jobsMu.Lock()
	if f.stopped {
		f.jobsMu.Unlock()
		for _, j := range js {
			j.cancel()
		}
		return
	}
	f.jobs = append(f.jobs, js...)
	f.jobsMu.Unlock()
	f.jobsCond.Signal()
}

// queueLen reports the number of queued jobs. Test hook.
func (f *MeshFilter) queueLen() int {
	f.jobsMu.Lock()
	defer f.jobsMu.Unlock()
	return len(f.jobs)
}

// AddMesh registers an occluder mesh and returns its handle. The call is
// synchronous: the worker has materialized the mesh's backend resources by
// the time AddMesh returns, so the handle is immediately renderable.
// Handles are the smallest unused integer >= FirstHandle; handles freed by
// RemoveMesh are reused first.
func (f *MeshFilter) AddMesh(g MeshGeometry) (MeshHandle, error) {
	if err := g.Validate(); err != nil {
		return 0, err
	}

	f.meshesMu.Lock()
	defer f.meshesMu.Unlock()

	handle := f.nextHandle
	j := newJob(func() error {
		if err := f.backend.UploadMesh(uint32(handle), render.Geometry{Vertices: g.Vertices, Indices: g.Indices}); err != nil {
			return err
		}
		f.meshes[handle] = &meshEntry{handle: handle, geometry: g}
		return nil
	})
	f.addJob(j)
	res, err := j.wait()
	if err != nil {
		return 0, err
	}
	if res != nil {
		return 0, fmt.Errorf("add mesh: %w", res)
	}

	// Advance to the smallest unused handle at or above the lower bound.
	// Reading the mesh map here is safe: the worker only mutates it inside
	// add/remove jobs, which are serialized by meshesMu and waited on.
	limit := uint32(f.minHandle) + uint32(len(f.meshes)) + 1
	for i := f.minHandle; uint32(i) < limit; i++ {
		if _, ok := f.meshes[i]; !ok {
			f.nextHandle = i
			break
		}
	}
	f.minHandle = f.nextHandle
	return handle, nil
}

// RemoveMesh unregisters a mesh and releases its backend resources. It
// reports ErrMeshNotFound if the handle was never registered or has
// already been removed.
func (f *MeshFilter) RemoveMesh(handle MeshHandle) error {
	f.meshesMu.Lock()
	defer f.meshesMu.Unlock()

	j := newJob(func() bool {
		if _, ok := f.meshes[handle]; !ok {
			return false
		}
		f.backend.ReleaseMesh(uint32(handle))
		delete(f.meshes, handle)
		return true
	})
	f.addJob(j)
	ok, err := j.wait()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("remove mesh %d: %w", handle, ErrMeshNotFound)
	}
	if handle < f.minHandle {
		f.minHandle = handle
	}
	f.nextHandle = f.minHandle
	return nil
}

// MeshCount returns the number of currently registered meshes.
func (f *MeshFilter) MeshCount() int {
	f.meshesMu.Lock()
	defer f.meshesMu.Unlock()
	return len(f.meshes)
}

// SetTransformCallback replaces the transform provider. The callback
// variable has its own lock and the render pass only snapshots it, so
// replacement never blocks on an in-flight filter pass.
func (f *MeshFilter) SetTransformCallback(cb TransformCallback) {
	f.cbMu.Lock()
	f.transformCB = cb
	f.cbMu.Unlock()
}

// SetShadowThreshold sets the depth-difference cutoff, in metres, beyond
// which a pixel behind the model surface is classified shadow.
func (f *MeshFilter) SetShadowThreshold(v float32) { f.shadowThreshold.Store(math.Float32bits(v)) }

// SetPaddingScale sets the multiplier applied to the padding coefficients.
func (f *MeshFilter) SetPaddingScale(v float32) { f.paddingScale.Store(math.Float32bits(v)) }

// SetPaddingOffset sets the constant term added to the padding tolerance,
// in metres.
func (f *MeshFilter) SetPaddingOffset(v float32) { f.paddingOffset.Store(math.Float32bits(v)) }

// ShadowThreshold returns the current shadow threshold in metres.
func (f *MeshFilter) ShadowThreshold() float32 {
	return math.Float32frombits(f.shadowThreshold.Load())
}

// PaddingScale returns the current padding scale.
func (f *MeshFilter) PaddingScale() float32 {
	return math.Float32frombits(f.paddingScale.Load())
}

// PaddingOffset returns the current padding offset in metres.
func (f *MeshFilter) PaddingOffset() float32 {
	return math.Float32frombits(f.paddingOffset.Load())
}

// SetSize resizes the render targets and updates the camera model to the
// convention fx=fy=width, cx=width/2, cy=height/2. Synchronous; buffers
// passed to Filter and the accessors must match the new size afterwards.
func (f *MeshFilter) SetSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("set size: invalid size %dx%d", width, height)
	}
	j := newJob(func() error {
		f.backend.Resize(width, height, float32(width), float32(width), float32(width)/2, float32(height)/2)
		f.normScratch = make([]float32, width*height)
		f.curWidth.Store(int32(width))
		f.curHeight.Store(int32(height))
		return nil
	})
	f.addJob(j)
	res, err := j.wait()
	if err != nil {
		return err
	}
	return res
}

// Filter runs one two-pass filter cycle over the sensor frame. The
// encoding and buffer length are validated synchronously before anything
// is enqueued: an unsupported frame fails immediately and leaves the queue
// untouched. With wait true the call blocks until both passes complete;
// otherwise it returns after enqueueing and completion is observable only
// through a subsequent blocking accessor. The frame's buffer is read on
// the worker; callers must not mutate it until the pass has completed.
func (f *MeshFilter) Filter(frame SensorFrame, wait bool) error {
	pixels := int(f.curWidth.Load()) * int(f.curHeight.Load())
	if err := frame.validate(pixels); err != nil {
		return err
	}
	j := newJob(func() error { return f.doFilter(frame) })
	f.addJob(j)
	if !wait {
		return nil
	}
	res, err := j.wait()
	if err != nil {
		return err
	}
	return res
}

// doFilter executes both passes on the worker goroutine.
func (f *MeshFilter) doFilter(frame SensorFrame) error {
	f.cbMu.Lock()
	cb := f.transformCB
	f.cbMu.Unlock()

	// Pass A: render every registered mesh whose transform provider
	// reports it visible this frame.
	draws := make([]render.Draw, 0, len(f.meshes))
	if cb != nil {
		for handle := range f.meshes {
			if pose, ok := cb(handle); ok {
				draws = append(draws, render.Draw{Label: uint32(handle), Pose: pose})
			}
		}
	}
	f.backend.RenderModel(f.modelProgram, draws)

	// Pass B: upload the sensor frame through the codec and classify.
	if err := f.codec.NormalizeFrame(frame, f.normScratch); err != nil {
		return err
	}
	padding := f.params.paddingVector(f.PaddingScale(), f.PaddingOffset())
	f.backend.RenderFilter(f.filterProgram, f.normScratch, padding, f.ShadowThreshold())
	return nil
}

// GetModelDepth reads the model-pass depth buffer back into depth, in
// metric metres. Readback and metric conversion are enqueued back to back
// under one lock so no other submission can interleave between them.
func (f *MeshFilter) GetModelDepth(depth []float32) error {
	return f.depthReadback(f.backend.ModelDepth, depth)
}

// GetFilteredDepth reads the filter-pass depth buffer back into depth, in
// metric metres. Pixels the filter blanked come back as the near-clip
// distance; use GetFilteredLabels to identify them.
func (f *MeshFilter) GetFilteredDepth(depth []float32) error {
	return f.depthReadback(f.backend.FilteredDepth, depth)
}

func (f *MeshFilter) depthReadback(read func([]float32) error, depth []float32) error {
	var readOK bool
	j1 := newJob(func() error {
		if err := read(depth); err != nil {
			return err
		}
		readOK = true
		return nil
	})
	j2 := newJob(func() error {
		if readOK {
			f.codec.MetricBuffer(depth)
		}
		return nil
	})
	f.addJobs(j1, j2)
	res, err := j1.wait()
	if err != nil {
		return err
	}
	if res != nil {
		// The conversion job still runs (as a no-op); wait it out so the
		// caller observes a quiet queue.
		j2.wait()
		return res
	}
	if _, err := j2.wait(); err != nil {
		return err
	}
	return nil
}

// GetModelLabels reads the model-pass label buffer back into labels. Each
// element is the handle of the mesh covering that pixel, or LabelBackground.
func (f *MeshFilter) GetModelLabels(labels []uint32) error {
	return f.labelReadback(f.backend.ModelLabels, labels)
}

// GetFilteredLabels reads the filter-pass label buffer back into labels:
// LabelBackground, LabelShadow, or the covering mesh handle for self
// pixels.
func (f *MeshFilter) GetFilteredLabels(labels []uint32) error {
	return f.labelReadback(f.backend.FilteredLabels, labels)
}

func (f *MeshFilter) labelReadback(read func([]uint32) error, labels []uint32) error {
	j := newJob(func() error { return read(labels) })
	f.addJob(j)
	res, err := j.wait()
	if err != nil {
		return err
	}
	return res
}
