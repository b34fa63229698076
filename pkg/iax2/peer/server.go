package peer

import (
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/arzzra/iax2/pkg/iax2/command"
	"github.com/arzzra/iax2/pkg/iax2/dialog"
	"github.com/arzzra/iax2/pkg/iax2/event"
	"github.com/arzzra/iax2/pkg/iax2/frame"
)

// uriScheme prefixes the peer names NewCall and NewLag resolve.
const uriScheme = "iax2:"

// Server is an IAX2 endpoint that additionally acts as a registrar: it
// accepts registrations and can originate calls and lag requests to
// registered peers by name.
type Server struct {
	*Peer
	registrations []*registration
}

// NewServer creates a server bound to localPort when Run is called.
func NewServer(localPort uint16) *Server {
	s := &Server{Peer: newPeer(localPort)}
	s.role = s
	return s
}

// processIncomingFrame creates a dialog for the unsolicited triggers a
// server honours (REGREQ, LAGRQ, NEW) and routes everything else to an
// existing dialog.
func (s *Server) processIncomingFrame(f *frame.Frame, src *net.UDPAddr) {
	var d dialog.Dialog

	switch {
	case isIAX2Trigger(f, frame.SubclassRegReq):
		d = dialog.NewRegistrar(s, s.NextCallNum())
		s.addDialog(d)

	case isIAX2Trigger(f, frame.SubclassLagRq):
		d = dialog.NewLag(s.Peer, s.NextCallNum(), src)
		s.addDialog(d)

	case isIAX2Trigger(f, frame.SubclassNew):
		d = dialog.NewCall(s.Peer, s.NextCallNum(), src)
		s.addDialog(d)

	default:
		var ok bool
		if d, ok = s.lookupDialog(f, src); !ok {
			s.handleUnrouted(f, src)
			return
		}
	}

	s.dispatchToDialog(d, f, src)
}

// handleNewCallCommand resolves the URI against the registration table
// and starts a call dialog to the registered address. Unknown or
// malformed URIs are logged and dropped.
func (s *Server) handleNewCallCommand(cmd *command.Command) {
	reg, ok := s.resolveURI(cmd.Str())
	if !ok {
		return
	}

	d := dialog.NewCall(s.Peer, cmd.CallNum(), reg.addr)
	s.addDialog(d)

	if err := d.Start(); err != nil {
		slog.Error("call start failed", "call_num", cmd.CallNum(), "error", err)
	}
}

// handleLagRqCommand resolves the URI and starts a lag dialog.
func (s *Server) handleLagRqCommand(cmd *command.Command) {
	reg, ok := s.resolveURI(cmd.Str())
	if !ok {
		return
	}

	d := dialog.NewLag(s.Peer, cmd.CallNum(), reg.addr)
	s.addDialog(d)

	if err := d.Start(); err != nil {
		slog.Error("lag start failed", "call_num", cmd.CallNum(), "error", err)
	}
}

// resolveURI strips the iax2: scheme and looks the name up among
// completed inbound registrations.
func (s *Server) resolveURI(uri string) (*registration, bool) {
	if len(uri) < len(uriScheme) || !strings.EqualFold(uri[:len(uriScheme)], uriScheme) {
		slog.Warn("malformed uri", "uri", uri)
		return nil, false
	}
	name := uri[len(uriScheme):]

	for _, reg := range s.registrations {
		if strings.EqualFold(reg.username, name) {
			return reg, true
		}
	}

	slog.Warn("no registration for uri", "uri", uri)
	return nil, false
}

// RegisterPeer records a completed inbound registration, or refreshes the
// expiry of an existing one; part of the dialog.Server contract.
func (s *Server) RegisterPeer(username string, addr *net.UDPAddr) {
	for _, reg := range s.registrations {
		if strings.EqualFold(reg.username, username) {
			slog.Debug("refreshing registration", "username", username)
			reg.refresh()
			return
		}
	}

	reg := &registration{
		server:   s,
		username: username,
		addr:     addr,
	}
	s.registrations = append(s.registrations, reg)

	s.QueueEvent(event.New(event.TypeRegistrationNew, 0, event.Str(username)))
	reg.timerID = s.StartTimer(reg, time.Now().Add(dialog.DefaultRefresh))
}

// expirePeer drops a registration whose refresh never came.
func (s *Server) expirePeer(reg *registration) {
	for i, r := range s.registrations {
		if r == reg {
			s.registrations = append(s.registrations[:i], s.registrations[i+1:]...)
			break
		}
	}

	s.QueueEvent(event.New(event.TypeRegistrationExpired, 0, event.Str(reg.username)))
}

// registration is one completed inbound registration. It lives outside
// the dialog table but implements dialog.Dialog so the peer's timer queue
// can expire it.
type registration struct {
	server   *Server
	username string
	addr     *net.UDPAddr
	timerID  uint32
}

func (r *registration) CallNum() uint16          { return 0 }
func (r *registration) RemoteCallNum() uint16    { return 0 }
func (r *registration) RemoteAddr() *net.UDPAddr { return r.addr }

func (r *registration) ProcessIncomingFrame(f *frame.Frame, src *net.UDPAddr) dialog.Result {
	return dialog.ResultInval
}

func (r *registration) ProcessCommand(cmd *command.Command) dialog.CommandResult {
	return dialog.CommandUnsupported
}

// TimerCallback fires when the registration aged out without a refresh.
func (r *registration) TimerCallback() dialog.Result {
	r.server.expirePeer(r)
	return dialog.ResultDelete
}

func (r *registration) Stop() {
	if r.timerID != 0 {
		r.server.StopTimer(r.timerID)
		r.timerID = 0
	}
}

func (r *registration) ClearTimer() { r.timerID = 0 }

// refresh pushes the expiry out by another refresh interval.
func (r *registration) refresh() {
	r.Stop()
	r.timerID = r.server.StartTimer(r, time.Now().Add(dialog.DefaultRefresh))
}
