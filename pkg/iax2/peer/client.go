package peer

import (
	"log/slog"
	"net"

	"github.com/arzzra/iax2/pkg/iax2/command"
	"github.com/arzzra/iax2/pkg/iax2/dialog"
	"github.com/arzzra/iax2/pkg/iax2/frame"
)

// Client is an IAX2 endpoint that answers calls and lag requests and
// keeps outbound registrations alive, but accepts no registrations
// itself. It does not originate calls or lag requests: NEW and LAGRQ
// commands are logged and dropped.
type Client struct {
	*Peer
}

// NewClient creates a client bound to localPort when Run is called.
func NewClient(localPort uint16) *Client {
	c := &Client{Peer: newPeer(localPort)}
	c.role = c
	return c
}

// processIncomingFrame creates a dialog for the unsolicited triggers a
// client honours (NEW, LAGRQ) and routes everything else to an existing
// dialog.
func (c *Client) processIncomingFrame(f *frame.Frame, src *net.UDPAddr) {
	var d dialog.Dialog

	switch {
	case isIAX2Trigger(f, frame.SubclassNew):
		d = dialog.NewCall(c.Peer, c.NextCallNum(), src)
		c.addDialog(d)

	case isIAX2Trigger(f, frame.SubclassLagRq):
		d = dialog.NewLag(c.Peer, c.NextCallNum(), src)
		c.addDialog(d)

	default:
		var ok bool
		if d, ok = c.lookupDialog(f, src); !ok {
			c.handleUnrouted(f, src)
			return
		}
	}

	c.dispatchToDialog(d, f, src)
}

// handleNewCallCommand: a client has no registration table to resolve the
// URI against, so it cannot originate calls.
func (c *Client) handleNewCallCommand(cmd *command.Command) {
	slog.Warn("client cannot originate calls", "uri", cmd.Str())
}

// handleLagRqCommand: same limitation as handleNewCallCommand.
func (c *Client) handleLagRqCommand(cmd *command.Command) {
	slog.Warn("client cannot originate lag requests", "uri", cmd.Str())
}

// isIAX2Trigger reports whether f is a FULL IAX2 frame with the given
// subclass, the shape of every new-dialog trigger.
func isIAX2Trigger(f *frame.Frame, sc frame.Subclass) bool {
	return f.Shell() == frame.ShellFull &&
		f.Type() == frame.TypeIAX2 &&
		f.Subclass() == sc
}
