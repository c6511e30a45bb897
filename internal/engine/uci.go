// Package engine drives external UCI chess engines and adapts them to the
// annotator evaluator interfaces.
//
// An Engine owns one process: it is started once, configured with a fixed set
// of options, reused for many searches and shut down explicitly with Close.
// A process that exits or stops responding marks the Engine dead; every later
// search fails with ErrUnavailable and the Engine is never restarted.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnavailable indicates the engine process failed to start, exited or
	// stopped responding.
	ErrUnavailable = errors.New("engine: unavailable")

	// ErrClosed indicates the engine has been closed.
	ErrClosed = errors.New("engine: closed")
)

// Setting is one UCI option sent with setoption during the handshake.
type Setting struct {
	Name  string
	Value string
}

// Config describes how to start and configure an engine process.
type Config struct {
	// Path is the engine executable.
	Path string
	Args []string

	// Settings are sent in order after uciok.
	Settings []Setting

	// HandshakeTimeout bounds uci/isready. Default 10s.
	HandshakeTimeout time.Duration

	// SearchTimeout bounds a single search. Zero means only the context bounds it.
	SearchTimeout time.Duration

	// StopGrace is how long to wait for bestmove after sending stop. Default 2s.
	StopGrace time.Duration

	// QuitTimeout is how long Close waits for the process before killing it.
	// Default 3s.
	QuitTimeout time.Duration

	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 2 * time.Second
	}
	if c.QuitTimeout <= 0 {
		c.QuitTimeout = 3 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// WithSetting returns a copy of c with the option set, replacing any earlier
// value for the same name.
func (c Config) WithSetting(name, value string) Config {
	settings := make([]Setting, 0, len(c.Settings)+1)
	for _, s := range c.Settings {
		if !strings.EqualFold(s.Name, name) {
			settings = append(settings, s)
		}
	}
	c.Settings = append(settings, Setting{Name: name, Value: value})
	return c
}

// Limit is the search budget. Exactly one field should be set.
type Limit struct {
	Depth int
	Nodes int64
}

func (l Limit) command() (string, error) {
	switch {
	case l.Depth > 0 && l.Nodes == 0:
		return "go depth " + strconv.Itoa(l.Depth), nil
	case l.Nodes > 0 && l.Depth == 0:
		return "go nodes " + strconv.FormatInt(l.Nodes, 10), nil
	default:
		return "", fmt.Errorf("engine: invalid limit %+v", l)
	}
}

// Result is the outcome of one search, from the side to move's point of view.
// Fields are taken from the last principal-variation info line.
type Result struct {
	Depth    int
	SelDepth int
	Nodes    int64
	ScoreCP  *int
	Mate     *int
	WDL      *[3]int
	PV       []string
	BestMove string
}

// Engine is one running UCI process. Searches are serialized.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	name   string

	cmd *exec.Cmd

	writeMu sync.Mutex
	stdin   io.WriteCloser
	w       *bufio.Writer

	lines chan string
	done  chan struct{}

	searchMu sync.Mutex
	dead     atomic.Bool
	closed   atomic.Bool
}

// Start launches the engine process and performs the UCI handshake.
func Start(ctx context.Context, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	cmd := exec.Command(cfg.Path, cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %v", ErrUnavailable, cfg.Path, err)
	}

	e := newEngine(stdin, stdout, cfg)
	e.cmd = cmd
	if err := e.handshake(ctx); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

// newEngine wires an engine to an already running process's pipes.
func newEngine(stdin io.WriteCloser, stdout io.Reader, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:    cfg,
		logger: cfg.Logger.With(zap.String("engine", cfg.Path)),
		stdin:  stdin,
		w:      bufio.NewWriter(stdin),
		lines:  make(chan string, 64),
		done:   make(chan struct{}),
	}
	go e.readLoop(stdout)
	return e
}

// readLoop is the only reader of the process output.
func (e *Engine) readLoop(r io.Reader) {
	defer close(e.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		select {
		case e.lines <- sc.Text():
		case <-e.done:
			return
		}
	}
	if err := sc.Err(); err != nil {
		e.logger.Debug("engine output closed", zap.Error(err))
	}
}

func (e *Engine) handshake(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.HandshakeTimeout)
	defer cancel()

	if err := e.send("uci"); err != nil {
		return err
	}
	err := e.expect(ctx, "uciok", func(line string) {
		if name, ok := strings.CutPrefix(line, "id name "); ok {
			e.name = name
		}
	})
	if err != nil {
		return err
	}
	for _, s := range e.cfg.Settings {
		if err := e.send("setoption name " + s.Name + " value " + s.Value); err != nil {
			return err
		}
	}
	if err := e.ready(ctx); err != nil {
		return err
	}

	e.logger.Info("engine ready",
		zap.String("name", e.name),
		zap.Int("settings", len(e.cfg.Settings)),
	)
	return nil
}

func (e *Engine) ready(ctx context.Context) error {
	if err := e.send("isready"); err != nil {
		return err
	}
	return e.expect(ctx, "readyok", nil)
}

// expect consumes lines until one equals want. Running out of time or output
// kills the engine.
func (e *Engine) expect(ctx context.Context, want string, onLine func(string)) error {
	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				return e.fail("process exited waiting for %s", want)
			}
			if line == want {
				return nil
			}
			if onLine != nil {
				onLine(line)
			}
		case <-ctx.Done():
			return e.fail("no %s: %v", want, ctx.Err())
		}
	}
}

// Name returns the engine's self-reported name.
func (e *Engine) Name() string {
	return e.name
}

// Dead reports whether the engine has failed or been closed.
func (e *Engine) Dead() bool {
	return e.dead.Load() || e.closed.Load()
}

// NewGame tells the engine that following positions are unrelated to earlier
// ones, clearing its hash.
func (e *Engine) NewGame(ctx context.Context) error {
	e.searchMu.Lock()
	defer e.searchMu.Unlock()

	if e.Dead() {
		return e.unavailable()
	}
	if err := e.send("ucinewgame"); err != nil {
		return err
	}
	return e.ready(ctx)
}

// Go searches fen within limit and returns the final result. If ctx is done the
// search is stopped and ctx's error returned; an engine that does not answer the
// stop within the grace period is marked dead.
func (e *Engine) Go(ctx context.Context, fen string, limit Limit) (Result, error) {
	goCmd, err := limit.command()
	if err != nil {
		return Result{}, err
	}

	e.searchMu.Lock()
	defer e.searchMu.Unlock()

	if e.Dead() {
		return Result{}, e.unavailable()
	}
	if err := e.send("position fen " + fen); err != nil {
		return Result{}, err
	}
	if err := e.send(goCmd); err != nil {
		return Result{}, err
	}

	var timeout <-chan time.Time
	if e.cfg.SearchTimeout > 0 {
		t := time.NewTimer(e.cfg.SearchTimeout)
		defer t.Stop()
		timeout = t.C
	}

	var res Result
	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				return Result{}, e.fail("process exited during search")
			}
			if done := parseLine(line, &res); done {
				return res, nil
			}
		case <-ctx.Done():
			if err := e.stop(); err != nil {
				return Result{}, err
			}
			return Result{}, ctx.Err()
		case <-timeout:
			if err := e.stop(); err != nil {
				return Result{}, err
			}
			return Result{}, e.fail("search exceeded %s", e.cfg.SearchTimeout)
		}
	}
}

// stop interrupts the running search and discards output up to bestmove.
func (e *Engine) stop() error {
	if err := e.send("stop"); err != nil {
		return err
	}
	grace := time.NewTimer(e.cfg.StopGrace)
	defer grace.Stop()
	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				return e.fail("process exited after stop")
			}
			if strings.HasPrefix(line, "bestmove") {
				return nil
			}
		case <-grace.C:
			return e.fail("no bestmove within %s of stop", e.cfg.StopGrace)
		}
	}
}

func (e *Engine) send(cmd string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if _, err := e.w.WriteString(cmd + "\n"); err != nil {
		return e.fail("write %q: %v", cmd, err)
	}
	if err := e.w.Flush(); err != nil {
		return e.fail("write %q: %v", cmd, err)
	}
	return nil
}

// fail marks the engine dead and returns an ErrUnavailable error.
func (e *Engine) fail(format string, args ...any) error {
	if !e.dead.Swap(true) {
		e.logger.Error("engine unavailable", zap.String("reason", fmt.Sprintf(format, args...)))
	}
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

func (e *Engine) unavailable() error {
	if e.closed.Load() {
		return fmt.Errorf("%w: %w", ErrUnavailable, ErrClosed)
	}
	return fmt.Errorf("%w: engine is dead", ErrUnavailable)
}

// Close sends quit and waits for the process to exit, killing it after
// QuitTimeout. A second call returns ErrClosed.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	e.writeMu.Lock()
	_, _ = e.w.WriteString("quit\n")
	_ = e.w.Flush()
	_ = e.stdin.Close()
	e.writeMu.Unlock()
	close(e.done)

	if e.cmd == nil {
		return nil
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- e.cmd.Wait() }()
	select {
	case err := <-waitErr:
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			return fmt.Errorf("waiting for %s: %w", e.cfg.Path, err)
		}
	case <-time.After(e.cfg.QuitTimeout):
		e.logger.Warn("engine did not quit, killing")
		_ = e.cmd.Process.Kill()
		<-waitErr
	}
	return nil
}

// parseLine folds one output line into res and reports whether it was bestmove.
func parseLine(line string, res *Result) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "bestmove":
		if len(fields) > 1 {
			res.BestMove = fields[1]
		}
		return true
	case "info":
		parseInfo(fields[1:], res)
	}
	return false
}

// parseInfo applies an info line. Lines for secondary PVs and bound scores are
// ignored so the result tracks the exact primary line.
func parseInfo(fields []string, res *Result) {
	var (
		next  Result
		score bool
		bound bool
	)
	intAt := func(j int) (int, bool) {
		if j >= len(fields) {
			return 0, false
		}
		n, err := strconv.Atoi(fields[j])
		return n, err == nil
	}

	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "string":
			return
		case "multipv":
			if n, ok := intAt(i + 1); ok && n != 1 {
				return
			}
			i++
		case "depth":
			next.Depth, _ = intAt(i + 1)
			i++
		case "seldepth":
			next.SelDepth, _ = intAt(i + 1)
			i++
		case "nodes":
			if i+1 < len(fields) {
				next.Nodes, _ = strconv.ParseInt(fields[i+1], 10, 64)
			}
			i++
		case "score":
			if i+2 >= len(fields) {
				return
			}
			n, ok := intAt(i + 2)
			if !ok {
				return
			}
			switch fields[i+1] {
			case "cp":
				next.ScoreCP = &n
			case "mate":
				next.Mate = &n
			}
			score = true
			i += 2
		case "lowerbound", "upperbound":
			bound = true
		case "wdl":
			w, ok1 := intAt(i + 1)
			d, ok2 := intAt(i + 2)
			l, ok3 := intAt(i + 3)
			if ok1 && ok2 && ok3 {
				next.WDL = &[3]int{w, d, l}
			}
			i += 3
		case "pv":
			next.PV = append([]string(nil), fields[i+1:]...)
			i = len(fields)
		}
	}

	if next.Depth > 0 {
		res.Depth = next.Depth
	}
	if next.SelDepth > 0 {
		res.SelDepth = next.SelDepth
	}
	if next.Nodes > 0 {
		res.Nodes = next.Nodes
	}
	if score && !bound {
		res.ScoreCP, res.Mate = next.ScoreCP, next.Mate
		if next.WDL != nil {
			res.WDL = next.WDL
		}
		if next.PV != nil {
			res.PV = next.PV
		}
	}
}
