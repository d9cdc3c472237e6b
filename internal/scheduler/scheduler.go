// Package scheduler implements the cooperative execution loop that
// multiplexes many environments over a fixed worker pool (spec.md §4.5):
// one goroutine per scheduler, each owning a disjoint FIFO of envs and
// driving them forward one instruction ("pass") at a time. Style grounded
// on bgpfix's goroutine-per-direction + channel idiom (pipe/line.go,
// pipe/proc.go): a dedicated inbox channel per worker, an atomic counter
// for round-robin assignment, and explicit start/Stop lifecycle methods rather than a
// bare `go func(){}()`.
package scheduler

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/pumpkindb/pumpkindb/internal/bytecode"
	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/vm"
)

// Result is what ScheduleEnv's caller eventually receives: either
// EnvTerminated (Err is nil) or EnvFailed (Err is set), always carrying a
// snapshot of the final value stack.
type Result struct {
	ID    vm.ID
	Stack [][]byte
	Err   *vm.ProgramError
}

type request struct {
	env    *vm.Env
	result chan<- Result
}

// Pool is a fixed set of schedulers, each running its own single-threaded
// cooperative loop. Envs are assigned round-robin at ScheduleEnv time and
// never migrate between schedulers afterwards.
type Pool struct {
	workers []*worker
	next    atomic.Uint64
	log     zerolog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger attaches structured logging.
func WithLogger(l zerolog.Logger) Option { return func(p *Pool) { p.log = l } }

// WithWorkers overrides the worker count (default: one per CPU).
func WithWorkers(n int) Option {
	return func(p *Pool) { p.workers = make([]*worker, n) }
}

// New creates a Pool backed by the given dispatcher and starts its
// worker goroutines. Call Stop to shut them down.
func New(disp *dispatch.Dispatcher, opts ...Option) *Pool {
	p := &Pool{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	if len(p.workers) == 0 {
		p.workers = make([]*worker, runtime.NumCPU())
	}
	for i := range p.workers {
		w := newWorker(disp, p.log)
		p.workers[i] = w
		w.start()
	}
	return p
}

// ScheduleEnv allocates a fresh Env around program, assigns it to one
// scheduler round-robin, and returns a channel that receives exactly one
// Result once the env terminates or fails.
func (p *Pool) ScheduleEnv(program []byte, mode vm.DictMode, delivery vm.DeliveryFunc) <-chan Result {
	env := vm.New(vm.NewID(), program, mode)
	if delivery != nil {
		env.SetDeliveryCallback(delivery)
	}
	result := make(chan Result, 1)
	idx := p.next.Add(1) % uint64(len(p.workers))
	p.workers[idx].submit(request{env: env, result: result})
	return result
}

// Stop signals every worker to drain its FIFO and exit, then waits for
// them to do so. In-flight envs are dropped without a Result, per
// spec.md §4.5's Shutdown contract.
func (p *Pool) Stop() {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			w.stop()
		}(w)
	}
	wg.Wait()
}

type worker struct {
	disp   *dispatch.Dispatcher
	log    zerolog.Logger
	inbox  chan request
	fifo   []*vm.Env
	pending map[vm.ID]chan<- Result
	done   chan struct{}
}

func newWorker(disp *dispatch.Dispatcher, log zerolog.Logger) *worker {
	return &worker{
		disp:    disp,
		log:     log,
		inbox:   make(chan request, 64),
		pending: make(map[vm.ID]chan<- Result),
		done:    make(chan struct{}),
	}
}

func (w *worker) submit(req request) {
	w.inbox <- req
}

func (w *worker) stop() {
	close(w.inbox)
	<-w.done
}

func (w *worker) start() {
	go w.run()
}

// run is the main loop described in spec.md §4.5: drive the head of the
// FIFO one pass, drain the inbox opportunistically, block on the inbox
// only when the FIFO is empty.
func (w *worker) run() {
	defer close(w.done)
	for {
		if len(w.fifo) == 0 {
			req, ok := <-w.inbox
			if !ok {
				return
			}
			w.admit(req)
			continue
		}

		if !w.drainInbox() {
			// Stop closed the inbox: drop the in-flight envs, sending no Result.
			for _, env := range w.fifo {
				w.disp.Done(env)
			}
			return
		}

		env := w.fifo[0]
		w.fifo = w.fifo[1:]

		err := pass(env, w.disp)
		switch {
		case err == nil && env.ProgramEmpty():
			w.finish(env, nil)
		case err == vm.ErrReschedule:
			w.fifo = append(w.fifo, env)
		case err != nil:
			if pe, ok := err.(*vm.ProgramError); ok {
				w.finish(env, pe)
			} else {
				w.finish(env, vm.ErrDatabase(err.Error()))
			}
		default:
			w.fifo = append(w.fifo, env)
		}
	}
}

func (w *worker) admit(req request) {
	w.disp.Init(req.env)
	w.pending[req.env.ID] = req.result
	w.fifo = append(w.fifo, req.env)
}

// drainInbox admits every request already waiting in the inbox. It
// reports false once Stop has closed the inbox.
func (w *worker) drainInbox() bool {
	for {
		select {
		case req, ok := <-w.inbox:
			if !ok {
				return false
			}
			w.admit(req)
		default:
			return true
		}
	}
}

func (w *worker) finish(env *vm.Env, failure *vm.ProgramError) {
	w.disp.Done(env)
	result, ok := w.pending[env.ID]
	delete(w.pending, env.ID)
	if !ok {
		return
	}
	result <- Result{ID: env.ID, Stack: env.StackCopy(), Err: failure}
	close(result)
}

// pass runs exactly one step of the interpreter loop (spec.md §4.5 "The
// pass procedure"): pop one program fragment, parse the next token,
// handle TRY/TRY_END directly, then fall through the dispatcher chain
// and finally the dictionary.
func pass(env *vm.Env, disp *dispatch.Dispatcher) error {
	frag, ok := env.PopProgram()
	if !ok {
		return nil
	}

	tok, rest, err := bytecode.ParseOne(frag)
	if err != nil {
		return vm.ErrDecoding(frag)
	}
	if len(rest) > 0 {
		env.PushProgram(rest)
	}

	aborting := len(env.Aborting) > 0

	if tok.Kind == bytecode.KindData {
		if !aborting {
			env.Push(tok.Bytes)
		}
		return nil
	}

	instr := dispatch.Instruction{Name: tok.Bytes, Internal: tok.Internal}

	if aborting && !(tok.Internal && string(tok.Bytes) == "TRY_END") {
		return nil
	}

	if tok.Internal {
		switch string(tok.Bytes) {
		case "TRY_END":
			return tryEnd(env)
		}
	} else if string(tok.Bytes) == "TRY" {
		return tryStart(env)
	}

	err = disp.Handle(env, instr)
	if err == nil {
		return nil
	}
	if err == vm.ErrUnhandled {
		if def, found := env.Lookup(string(tok.Bytes)); found {
			env.PushProgram(def)
			return nil
		}
		err = vm.ErrUnknownInstruction(tok.Bytes)
	}
	if err == vm.ErrReschedule {
		// put the instruction back so the next pass retries it whole.
		env.PushProgram(bytecode.Encode(tok))
		return vm.ErrReschedule
	}

	if pe, ok := err.(*vm.ProgramError); ok {
		if env.TryDepth > 0 {
			env.Aborting = append(env.Aborting, pe)
			return nil
		}
		return pe
	}
	return err
}

func tryStart(env *vm.Env) error {
	code, ok := env.Pop()
	if !ok {
		return vm.ErrEmptyStack()
	}
	env.TryDepth++
	env.PushProgram(bytecode.EncodeInstruction(nil, []byte("TRY_END"), true))
	env.PushProgram(code)
	return nil
}

func tryEnd(env *vm.Env) error {
	if env.TryDepth > 0 {
		env.TryDepth--
	}
	if n := len(env.Aborting); n > 0 {
		pe := env.Aborting[n-1]
		env.Aborting = env.Aborting[:n-1]
		env.Push(env.AllocCopy(pe.Encode()))
		return nil
	}
	env.Push(nil)
	return nil
}
