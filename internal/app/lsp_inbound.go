package app

import (
	"encoding/json"
	"time"

	"github.com/dshills/yacd/internal/dispatch"
	"github.com/dshills/yacd/internal/jsonrpc"
	"github.com/dshills/yacd/internal/lsp"
	"github.com/dshills/yacd/internal/progress"
	"github.com/dshills/yacd/internal/transform"
)

// readLspClient reads available bytes from a server's stdout and
// handles every complete message. EOF, a read error, or a framing
// error all mean the server is gone or unusable.
func (app *Application) readLspClient(lc *lsp.Client, hup bool) {
	buf := make([]byte, 64<<10)
	n, err := lc.Read(buf)
	if err != nil || n == 0 {
		app.handleLspDeath(lc)
		return
	}

	inbound, err := lc.Feed(buf[:n])
	if err != nil {
		app.logger.Error("%s: %v", lc.Entry.Command, err)
		app.handleLspDeath(lc)
		return
	}

	app.lastActivity[lc] = time.Now()
	for _, in := range inbound {
		switch in.Kind {
		case lsp.InboundResponse:
			app.handleLspResponse(lc, in)
		case lsp.InboundNotification:
			app.handleLspNotification(lc, in)
		case lsp.InboundServerRequest:
			app.handleLspServerRequest(lc, in)
		}
	}

	if hup && len(inbound) == 0 {
		app.handleLspDeath(lc)
	}
}

// handleLspResponse routes one response: the initialize handshake
// completes here; everything else resolves a pending correlation.
func (app *Application) handleLspResponse(lc *lsp.Client, in lsp.Inbound) {
	req, known := lc.TakePending(in.ID)
	if !known {
		app.logger.Debug("%s: response for unknown id %d", lc.Entry.Command, in.ID)
		return
	}

	switch req.Method {
	case "initialize":
		app.finishHandshake(lc, in)
		return
	case "shutdown":
		return
	}

	key := lspPending{client: lc, id: in.ID}
	orig, ok := app.pendingLSP[key]
	if !ok {
		return
	}
	delete(app.pendingLSP, key)
	delete(app.pendingEditor, orig.vimReqID)

	c := app.clients[orig.clientID]
	if c == nil {
		// Editor went away mid-request; the result is dropped.
		return
	}

	if in.Err != nil {
		app.toast(c, "[yac] "+in.Err.Message, true)
		app.respond(c, orig.vimReqID, nil)
		return
	}

	value, err := transform.ForMethod(orig.method, in.Result, orig.sshHost, orig.file, orig.mode)
	if err != nil {
		app.logger.Error("transform %s: %v", orig.method, err)
		value = nil
	}
	app.respond(c, orig.vimReqID, value)
}

// finishHandshake completes initialize: record capabilities, send
// `initialized`, replay queued opens in arrival order, then replay
// deferred requests FIFO.
func (app *Application) finishHandshake(lc *lsp.Client, in lsp.Inbound) {
	if in.Err != nil {
		app.logger.Error("%s initialize failed: %s", lc.Entry.Command, in.Err.Message)
		app.handleLspDeath(lc)
		return
	}

	var result lsp.InitializeResult
	if err := json.Unmarshal(in.Result, &result); err != nil {
		app.logger.Error("%s initialize result: %v", lc.Entry.Command, err)
	}
	if err := lsp.FinishInitialize(lc, result.Capabilities); err != nil {
		app.handleLspDeath(lc)
		return
	}
	app.logger.Info("%s ready", lc.Entry.Command)

	for _, open := range app.registry.DrainOpens(lc.Entry, lc.WorkspaceRoot) {
		err := lc.SendNotification("textDocument/didOpen", lsp.DidOpenTextDocumentParams{
			TextDocument: lsp.TextDocumentItem{
				URI:        open.URI,
				LanguageID: open.LanguageID,
				Version:    1,
				Text:       open.Text,
			},
		})
		if err != nil {
			app.handleLspDeath(lc)
			return
		}
	}

	key := lc.Key()
	queued := app.deferred[key]
	delete(app.deferred, key)
	for _, d := range queued {
		c := app.clients[d.clientID]
		res := app.table.Dispatch(dispatch.Request{
			ClientID:  d.clientID,
			RequestID: d.vimReqID,
			Method:    d.method,
			Params:    jsonrpc.ParseString(d.rawParams),
		})
		app.applyResult(c, d.clientID, d.vimReqID, d.method, d.rawParams, res)
	}
}

// handleLspNotification routes server-initiated notifications.
func (app *Application) handleLspNotification(lc *lsp.Client, in lsp.Inbound) {
	switch in.Method {
	case "textDocument/publishDiagnostics":
		app.publishDiagnostics(in.Params)

	case "$/progress":
		app.handleProgress(lc, in.Params)

	case "window/showMessage":
		v := jsonrpc.Parse(in.Params)
		msg := v.Get("message").String()
		if msg != "" {
			app.toast(nil, "[yac] "+msg, v.Get("type").Int() == int64(lsp.MessageTypeError))
		}

	case "window/logMessage":
		v := jsonrpc.Parse(in.Params)
		app.logger.WithComponent("lsp").Debug("%s: %s", lc.Entry.Command, v.Get("message").String())

	default:
		app.logger.Debug("%s: notification %s ignored", lc.Entry.Command, in.Method)
	}
}

// publishDiagnostics rewrites the document URI to an editor path and
// forwards the diagnostics to every connected editor.
func (app *Application) publishDiagnostics(params json.RawMessage) {
	v := jsonrpc.Parse(params)
	uri := v.Get("uri").String()
	if uri == "" {
		return
	}

	payload, err := json.Marshal(struct {
		File        string          `json:"file"`
		Diagnostics json.RawMessage `json:"diagnostics"`
	}{
		File:        lsp.URIToFilePath(lsp.DocumentURI(uri)),
		Diagnostics: diagnosticsRaw(v),
	})
	if err != nil {
		return
	}
	app.call("yac#diagnostics", []byte("["+string(payload)+"]"))
}

func diagnosticsRaw(v jsonrpc.Value) json.RawMessage {
	diags := v.Get("diagnostics")
	if diags.Kind() != jsonrpc.KindArray {
		return json.RawMessage("[]")
	}
	return json.RawMessage(diags.Raw())
}

// handleProgress maintains the per-(client, token) title map and
// renders toasts, per the begin/report/end protocol.
func (app *Application) handleProgress(lc *lsp.Client, params json.RawMessage) {
	v := jsonrpc.Parse(params)
	token := v.Get("token").String()
	if token == "" {
		return
	}
	key := progress.Key{ClientKey: lc.Key(), Token: token}

	value := v.Get("value")
	message := value.Get("message").String()
	pct := value.Get("percentage")
	hasPct := pct.Exists()

	switch value.Get("kind").String() {
	case "begin":
		line := app.progress.Begin(key, value.Get("title").String(), message, int(pct.Int()), hasPct)
		app.toast(nil, line, false)
	case "report":
		if !app.progress.Active(key) {
			return
		}
		line := app.progress.Report(key, message, int(pct.Int()), hasPct)
		app.toast(nil, line, false)
	case "end":
		line := app.progress.End(key, message)
		if message != "" {
			app.toast(nil, line, false)
		}
	}
}

// handleLspServerRequest answers server-to-client requests. Anything
// the daemon does not implement is acknowledged with null rather than
// an error, so servers keep working.
func (app *Application) handleLspServerRequest(lc *lsp.Client, in lsp.Inbound) {
	switch in.Method {
	case "workspace/applyEdit":
		v := jsonrpc.Parse(in.Params)
		edit := v.Get("edit")
		result := lsp.ApplyWorkspaceEditResult{Applied: true}
		if edit.Kind() == jsonrpc.KindObject {
			// The call frame is fire-and-forget, so applied:true means
			// "handed to the editor", not "confirmed applied".
			app.call("yac#apply_edit", []byte("["+edit.Raw()+"]"))
		} else {
			result = lsp.ApplyWorkspaceEditResult{
				Applied:       false,
				FailureReason: "request carried no edit",
			}
		}
		if err := lc.RespondToServerRequest(in.ID, result); err != nil {
			app.handleLspDeath(lc)
		}

	case "window/workDoneProgress/create":
		if err := lc.RespondToServerRequest(in.ID, nil); err != nil {
			app.handleLspDeath(lc)
		}

	default:
		// client/registerCapability, workspace/configuration, and
		// anything newer: acknowledge and move on.
		if err := lc.RespondToServerRequest(in.ID, nil); err != nil {
			app.handleLspDeath(lc)
		}
	}
}

// handleLspDeath drops a dead server: every pending request it owed
// an answer resolves to null, deferred requests for it resolve to
// null, the editor hears about the crash once, and the registry entry
// goes away so the next request re-spawns.
func (app *Application) handleLspDeath(lc *lsp.Client) {
	if lc.State() == lsp.ClientShutdown {
		return
	}

	app.toast(nil, "[yac] "+lc.Entry.Command+" crashed", true)

	for key, orig := range app.pendingLSP {
		if key.client != lc {
			continue
		}
		delete(app.pendingLSP, key)
		delete(app.pendingEditor, orig.vimReqID)
		app.respond(app.clients[orig.clientID], orig.vimReqID, nil)
	}

	dkey := lc.Key()
	for _, d := range app.deferred[dkey] {
		app.respond(app.clients[d.clientID], d.vimReqID, nil)
	}
	delete(app.deferred, dkey)

	lc.Kill()
	lc.SetState(lsp.ClientShutdown)
	app.registry.Drop(lc.Entry, lc.WorkspaceRoot)
	delete(app.lastActivity, lc)
}
