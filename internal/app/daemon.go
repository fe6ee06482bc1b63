// Package app provides the main application structure and coordination.
package app

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dshills/yacd/internal/dispatch"
	"github.com/dshills/yacd/internal/editorconn"
	"github.com/dshills/yacd/internal/lsp"
	"github.com/dshills/yacd/internal/picker"
	"github.com/dshills/yacd/internal/progress"
	"github.com/dshills/yacd/internal/reactor"
	"github.com/dshills/yacd/internal/transform"
)

// Config configures the daemon.
type Config struct {
	// SocketPath is the Unix domain socket the editor connects to.
	SocketPath string
	// ServerTable is the language-server table the registry routes by.
	ServerTable []lsp.ServerEntry
	// IdleTimeout, when non-zero, shuts down LSP clients that have
	// been silent for this long.
	IdleTimeout time.Duration
	// Logger is the daemon logger; nil uses the process default.
	Logger *Logger
}

// lspPending correlates one in-flight LSP request with its
// originating editor request.
type lspPending struct {
	client *lsp.Client
	id     int64
}

// origin is everything needed to answer the editor once the LSP
// response arrives.
type origin struct {
	clientID editorconn.ClientID
	vimReqID int64
	method   string
	sshHost  string
	file     string
	mode     string
}

// deferredRequest is a frozen editor request awaiting a server's
// initialize handshake.
type deferredRequest struct {
	clientID  editorconn.ClientID
	vimReqID  int64
	method    string
	rawParams string
}

// Application is the daemon: the event loop and every subsystem it
// multiplexes — editor clients, LSP clients, the picker scanner, and
// the correlation state tying them together. All of it is touched
// only from the thread running Run.
type Application struct {
	logger   *Logger
	cfg      Config
	listener *editorconn.Listener
	registry *lsp.Registry
	table    *dispatch.Table
	poller   *reactor.Reactor
	progress *progress.Tracker
	picker   *pickerController

	clients       map[editorconn.ClientID]*editorconn.Client
	pendingLSP    map[lspPending]origin
	pendingEditor map[int64]editorconn.ClientID
	deferred      map[string][]deferredRequest
	lastActivity  map[*lsp.Client]time.Time

	quit atomic.Bool
}

// New builds the daemon and binds its socket.
func New(cfg Config) (*Application, error) {
	if cfg.SocketPath == "" {
		return nil, &InitError{Component: "socket", Err: fmt.Errorf("no socket path")}
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}
	if len(cfg.ServerTable) == 0 {
		cfg.ServerTable = lsp.DefaultServerTable()
	}

	log := cfg.Logger
	lsp.SetStderrLogger(func(languageID, line string) {
		log.WithComponent("lsp").WithField("language", languageID).Debug("%s", line)
	})

	listener, err := editorconn.Listen(cfg.SocketPath)
	if err != nil {
		return nil, &InitError{Component: "socket", Err: err}
	}

	app := &Application{
		logger:        cfg.Logger,
		cfg:           cfg,
		listener:      listener,
		registry:      lsp.NewRegistry(cfg.ServerTable, lsp.Spawn),
		poller:        reactor.New(),
		progress:      progress.NewTracker(),
		clients:       make(map[editorconn.ClientID]*editorconn.Client),
		pendingLSP:    make(map[lspPending]origin),
		pendingEditor: make(map[int64]editorconn.ClientID),
		deferred:      make(map[string][]deferredRequest),
		lastActivity:  make(map[*lsp.Client]time.Time),
	}
	app.picker = &pickerController{log: cfg.Logger.WithComponent("picker")}
	app.table = dispatch.NewTable(app.registry, app.picker,
		dispatch.WithLogger(cfg.Logger.WithComponent("dispatch")))
	return app, nil
}

// Stop asks the run loop to exit after its current iteration. Safe to
// call from a signal-handling goroutine.
func (app *Application) Stop() {
	app.quit.Store(true)
}

// Run drives the event loop until Stop is called or the listener
// fails.
func (app *Application) Run() error {
	app.logger.Info("listening on %s", app.cfg.SocketPath)
	defer app.shutdown()

	for !app.quit.Load() {
		if err := app.runOnce(); err != nil {
			return err
		}
	}
	return nil
}

// runOnce is one iteration: build the poll set, wait, handle every
// ready fd, reap idle servers.
func (app *Application) runOnce() error {
	app.poller.Reset()

	listenFd, err := app.listener.Fd()
	if err != nil {
		return fmt.Errorf("listener fd: %w", err)
	}
	app.poller.Add(listenFd, reactor.Readable)

	clientByFd := make(map[int]*editorconn.Client, len(app.clients))
	for _, c := range app.clients {
		fd := int(c.Fd())
		clientByFd[fd] = c
		app.poller.Add(fd, reactor.Readable)
	}

	lspByFd := make(map[int]*lsp.Client)
	for _, lc := range app.registry.Clients() {
		if lc.State() == lsp.ClientShutdown {
			continue
		}
		fd := int(lc.StdoutFd())
		lspByFd[fd] = lc
		app.poller.Add(fd, reactor.Readable)
	}

	pickerFd := -1
	if fd, ok := app.picker.fd(); ok {
		pickerFd = fd
		app.poller.Add(fd, reactor.Readable)
	}

	ready, err := app.poller.Poll(app.pollTimeout())
	if err != nil {
		return err
	}

	for _, r := range ready {
		switch {
		case r.Fd == listenFd:
			app.acceptClients()
		case clientByFd[r.Fd] != nil:
			app.readEditorClient(clientByFd[r.Fd])
		case lspByFd[r.Fd] != nil:
			app.readLspClient(lspByFd[r.Fd], r.Hup)
		case r.Fd == pickerFd:
			app.picker.drain()
		}
	}

	app.reapIdle()
	return nil
}

// pollTimeout returns how long the readiness wait may block: until
// the next idle deadline, or forever when idle shutdown is off.
func (app *Application) pollTimeout() time.Duration {
	if app.cfg.IdleTimeout <= 0 {
		return -1
	}
	next := time.Duration(-1)
	now := time.Now()
	for _, last := range app.lastActivity {
		d := last.Add(app.cfg.IdleTimeout).Sub(now)
		if d < 0 {
			d = 0
		}
		if next < 0 || d < next {
			next = d
		}
	}
	return next
}

// reapIdle shuts down LSP clients past the idle deadline.
func (app *Application) reapIdle() {
	if app.cfg.IdleTimeout <= 0 {
		return
	}
	now := time.Now()
	for _, lc := range app.registry.Clients() {
		last, ok := app.lastActivity[lc]
		if !ok || now.Sub(last) < app.cfg.IdleTimeout {
			continue
		}
		app.logger.Info("shutting down idle %s", lc.Entry.Command)
		_ = lc.Shutdown()
		app.registry.Drop(lc.Entry, lc.WorkspaceRoot)
		delete(app.lastActivity, lc)
	}
}

func (app *Application) acceptClients() {
	c, err := app.listener.Accept()
	if err != nil {
		app.logger.Warn("accept: %v", err)
		return
	}
	app.clients[c.ID] = c
	app.logger.Debug("editor client %d connected", c.ID)
}

// readEditorClient reads available bytes and dispatches every
// complete frame.
func (app *Application) readEditorClient(c *editorconn.Client) {
	buf := make([]byte, 64<<10)
	n, err := c.Read(buf)
	if err != nil || n == 0 {
		app.dropEditorClient(c)
		return
	}

	for _, frame := range c.Feed(buf[:n]) {
		app.handleEditorFrame(c, frame)
	}
}

// handleEditorFrame dispatches one editor request and acts on the
// handler's decision.
func (app *Application) handleEditorFrame(c *editorconn.Client, frame editorconn.Frame) {
	res := app.table.Dispatch(dispatch.Request{
		ClientID:  c.ID,
		RequestID: frame.RequestID,
		Method:    frame.Method,
		Params:    frame.Params,
	})
	app.applyResult(c, c.ID, frame.RequestID, frame.Method, frame.Params.Raw(), res)
}

// applyResult is shared between live dispatch and deferred replay. c
// may be nil when a deferred request's editor disconnected before its
// server finished initializing; the reply is then dropped but the
// correlation state is still recorded under clientID.
func (app *Application) applyResult(c *editorconn.Client, clientID editorconn.ClientID, vimReqID int64, method, rawParams string, res dispatch.Result) {
	if res.Toast != "" && c != nil {
		app.toast(c, res.Toast, res.ToastError)
	}

	switch res.Kind {
	case dispatch.KindNone:

	case dispatch.KindData:
		app.respond(c, vimReqID, res.Data)

	case dispatch.KindEmpty:
		app.respond(c, vimReqID, nil)

	case dispatch.KindPendingLSP:
		app.pendingLSP[lspPending{client: res.Client, id: res.LSPID}] = origin{
			clientID: clientID,
			vimReqID: vimReqID,
			method:   method,
			sshHost:  res.SSHHost,
			file:     res.File,
			mode:     res.Mode,
		}
		if vimReqID != 0 {
			app.pendingEditor[vimReqID] = clientID
		}
		app.lastActivity[res.Client] = time.Now()

	case dispatch.KindInitializing:
		key := clientKey(res.Entry, res.Root)
		app.deferred[key] = append(app.deferred[key], deferredRequest{
			clientID:  clientID,
			vimReqID:  vimReqID,
			method:    method,
			rawParams: rawParams,
		})
	}
}

// clientKey matches lsp.Client.Key for a (language, root) pair the
// daemon has not spawned yet.
func clientKey(entry lsp.ServerEntry, root string) string {
	return entry.LanguageID + "\x00" + root
}

// respond writes a `[vim_req_id, value]` frame; a zero id means the
// editor expects no reply.
func (app *Application) respond(c *editorconn.Client, vimReqID int64, value []byte) {
	if vimReqID == 0 || c == nil {
		return
	}
	if err := c.Write(editorconn.EncodeResponse(vimReqID, value)); err != nil {
		app.dropEditorClient(c)
	}
}

// toast shows a single-line message in the editor. A nil client
// broadcasts to every connected editor.
func (app *Application) toast(c *editorconn.Client, msg string, isError bool) {
	script := "echo '" + transform.VimEscape(msg) + "'"
	if isError {
		script = "echohl ErrorMsg | " + script + " | echohl None"
	}
	frame := editorconn.EncodeEx(script)

	if c != nil {
		if err := c.Write(frame); err != nil {
			app.dropEditorClient(c)
		}
		return
	}
	for _, cl := range app.clients {
		if err := cl.Write(frame); err != nil {
			app.dropEditorClient(cl)
		}
	}
}

// call invokes an editor function on every connected client.
func (app *Application) call(funcName string, argsJSON []byte) {
	frame := editorconn.EncodeCall(funcName, argsJSON)
	for _, cl := range app.clients {
		if err := cl.Write(frame); err != nil {
			app.dropEditorClient(cl)
		}
	}
}

// dropEditorClient disconnects an editor and cancels its pending
// responses. In-flight LSP requests continue; their results are
// discarded on arrival.
func (app *Application) dropEditorClient(c *editorconn.Client) {
	if _, ok := app.clients[c.ID]; !ok {
		return
	}
	delete(app.clients, c.ID)
	_ = c.Close()

	for id, owner := range app.pendingEditor {
		if owner == c.ID {
			delete(app.pendingEditor, id)
		}
	}
	app.logger.Debug("editor client %d disconnected", c.ID)
}

// shutdown tears everything down on loop exit.
func (app *Application) shutdown() {
	for _, lc := range app.registry.Clients() {
		_ = lc.Shutdown()
	}
	app.picker.Close()
	for _, c := range app.clients {
		_ = c.Close()
	}
	_ = app.listener.Close()
	app.logger.Info("daemon stopped")
}

// pickerController owns the picker scanner and index for the current
// picker session and implements dispatch.Picker. The scanner's stdout
// fd joins the poll set via fd().
type pickerController struct {
	log     *Logger
	scanner *picker.Scanner
	index   *picker.Index
}

func (p *pickerController) Open(cwd string, recent []string) []picker.Item {
	p.Close()
	p.index = picker.NewIndex(recent)

	s, err := picker.StartScanner(cwd)
	if err != nil {
		// Recent files still work without an index.
		p.log.Warn("file scanner: %v", err)
		return p.index.Recent()
	}
	p.scanner = s
	return p.index.Recent()
}

func (p *pickerController) QueryFiles(query string) []picker.Item {
	if p.index == nil {
		return nil
	}
	return p.index.QueryFiles(query)
}

func (p *pickerController) Close() {
	if p.scanner != nil {
		p.scanner.Stop()
		p.scanner = nil
	}
	p.index = nil
}

func (p *pickerController) fd() (int, bool) {
	if p.scanner == nil {
		return 0, false
	}
	return int(p.scanner.Fd()), true
}

// drain moves freshly scanned paths into the index. EOF means the
// scanner finished; the index stays for queries.
func (p *pickerController) drain() {
	if p.scanner == nil {
		return
	}
	buf := make([]byte, 64<<10)
	n, err := p.scanner.Read(buf)
	if err != nil || n == 0 {
		p.scanner.Stop()
		p.scanner = nil
		return
	}
	if p.index != nil {
		p.index.Feed(buf[:n])
	}
}
