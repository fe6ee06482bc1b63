package lsp

import "os"

// daemonVersion is stamped into clientInfo; overridable at link time.
var daemonVersion = "dev"

// Initialize sends the `initialize` request for a freshly spawned
// client and moves it to ClientInitializing. The response arrives
// later through the reactor; see the event loop's handling of the
// pending "initialize" method, which completes the handshake by
// sending `initialized` and replaying queued opens.
func Initialize(c *Client, workspaceRoot string) (int64, error) {
	if c.State() != ClientUninitialized {
		return 0, ErrAlreadyStarted
	}

	params := InitializeParams{
		ProcessID:    os.Getpid(),
		ClientInfo:   &ClientInfo{Name: "yacd", Version: daemonVersion},
		Capabilities: DefaultClientCapabilities(),
	}
	if workspaceRoot != "" {
		params.RootURI = FilePathToURI(workspaceRoot)
		params.RootPath = workspaceRoot
		params.WorkspaceFolders = []WorkspaceFolder{{
			URI:  FilePathToURI(workspaceRoot),
			Name: workspaceRoot,
		}}
	}

	id, err := c.SendRequest("initialize", params)
	if err != nil {
		return 0, err
	}
	c.SetState(ClientInitializing)
	return id, nil
}

// FinishInitialize completes the handshake after the `initialize`
// response: records capabilities, transitions to ClientInitialized,
// and sends the `initialized` notification. Queued opens are the
// registry's to replay; callers drain them right after this returns.
func FinishInitialize(c *Client, caps ServerCapabilities) error {
	c.SetCapabilities(caps)
	c.SetState(ClientInitialized)
	return c.SendNotification("initialized", InitializedParams{})
}
