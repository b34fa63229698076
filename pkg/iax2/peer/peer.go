// Package peer implements the IAX2 endpoint: the protocol goroutine
// multiplexing the UDP socket, the application command queue and the timer
// queue, plus the event dispatch worker delivering callbacks to the
// application. Client and Server wrap the shared core with role-specific
// frame dispatch.
package peer

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/arzzra/iax2/pkg/iax2/command"
	"github.com/arzzra/iax2/pkg/iax2/dialog"
	"github.com/arzzra/iax2/pkg/iax2/event"
	"github.com/arzzra/iax2/pkg/iax2/frame"
	"github.com/arzzra/iax2/pkg/iax2/transport"
)

// DefaultPort is the IAX2 UDP port.
const DefaultPort = 4569

// ErrPeerShutdown is returned by SendCommand once the peer has shut down.
var ErrPeerShutdown = errors.New("peer is shut down")

// role is the part of frame and command handling that differs between
// client and server.
type role interface {
	// processIncomingFrame routes one parsed frame: create a new dialog
	// for the role's unsolicited triggers, or dispatch to an existing
	// one.
	processIncomingFrame(f *frame.Frame, src *net.UDPAddr)
	// handleNewCallCommand services a NEW command from the application.
	handleNewCallCommand(cmd *command.Command)
	// handleLagRqCommand services a LAGRQ command from the application.
	handleLagRqCommand(cmd *command.Command)
}

// outboundRegistration is one registration queued by the application
// before Run.
type outboundRegistration struct {
	username string
	addr     *net.UDPAddr
}

// Peer is the shared endpoint core. The dialog table, timer queue and
// socket are owned by the protocol goroutine and need no locking; the
// command queue, event queue, handler list and call-number counter each
// have a dedicated mutex and no two are ever held at once.
type Peer struct {
	localPort uint16
	transport *transport.UDPTransport

	// Protocol goroutine state.
	dialogs map[uint16]dialog.Dialog
	timers  *timerQueue
	role    role

	nextCallNumMu sync.Mutex
	nextCallNum   uint16

	commandMu    sync.Mutex
	commandQueue []*command.Command
	// commandAlert is the self-pipe analogue: one (coalescing) wake per
	// submission.
	commandAlert chan struct{}

	eventMu       sync.Mutex
	eventQueue    []*event.Event
	eventCond     *sync.Cond
	eventTeardown bool
	dispatchWG    sync.WaitGroup

	handlersMu sync.Mutex
	handlers   []event.Handler

	outboundRegistrations []outboundRegistration

	capabilities  uint32
	preferred     uint32
	referenceTime time.Time
	shutdownFlag  atomic.Bool
}

// newPeer builds the shared core and starts the event dispatch worker.
func newPeer(localPort uint16) *Peer {
	p := &Peer{
		localPort:     localPort,
		transport:     transport.NewUDP(),
		dialogs:       make(map[uint16]dialog.Dialog),
		timers:        newTimerQueue(),
		nextCallNum:   1,
		commandAlert:  make(chan struct{}, 1),
		capabilities:  frame.FormatSlinear,
		preferred:     frame.FormatSlinear,
		referenceTime: time.Now(),
	}
	p.eventCond = sync.NewCond(&p.eventMu)

	p.dispatchWG.Add(1)
	go p.eventDispatcher()

	return p
}

// NextCallNum allocates a local call number: unique, non-zero, wrapping.
func (p *Peer) NextCallNum() uint16 {
	p.nextCallNumMu.Lock()
	defer p.nextCallNumMu.Unlock()

	for {
		num := p.nextCallNum
		p.nextCallNum++
		if num != 0 {
			return num
		}
	}
}

// LocalAddr is the bound socket address, nil before Run.
func (p *Peer) LocalAddr() *net.UDPAddr { return p.transport.LocalAddr() }

// Capabilities returns the codec capability mask.
func (p *Peer) Capabilities() uint32 { return p.capabilities }

// SetCapabilities sets the codec capability mask and re-resolves the
// preferred format. Call before Run.
func (p *Peer) SetCapabilities(mask uint32) {
	p.capabilities = mask
	p.preferred = preferredFormat(mask)
}

// PreferredFormat is the preferred codec resolved from the capabilities.
func (p *Peer) PreferredFormat() uint32 { return p.preferred }

// ChooseFormats intersects our capabilities with the remote side's.
func (p *Peer) ChooseFormats(peerCapabilities uint32) uint32 {
	return chooseFormats(p.capabilities, peerCapabilities)
}

// ReferenceTime is the peer's construction time, the zero point for lag
// timestamps.
func (p *Peer) ReferenceTime() time.Time { return p.referenceTime }

// StartTimer schedules a dialog timer; part of the dialog.Peer contract.
func (p *Peer) StartTimer(d dialog.Dialog, fireAt time.Time) uint32 {
	return p.timers.start(d, fireAt)
}

// StopTimer cancels a dialog timer by id.
func (p *Peer) StopTimer(id uint32) {
	p.timers.stop(id)
}

// SendFrame encodes and transmits a frame. After any successful send the
// frame is marked as a retransmission so a later physical re-send carries
// the flag.
func (p *Peer) SendFrame(f *frame.Frame, addr *net.UDPAddr) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}

	slog.Debug("send frame", "frame", f, "to", addr)

	if f.Retransmission() {
		metricRetransmissions.Inc()
	}

	if err := p.transport.WriteTo(data, addr); err != nil {
		return err
	}

	metricFramesSent.WithLabelValues(f.Shell().String()).Inc()
	f.SetRetransmission(true)

	return nil
}

// RegisterEventHandler appends an application event handler. Handlers run
// serialised on the dispatch worker, in registration order.
func (p *Peer) RegisterEventHandler(h event.Handler) {
	p.handlersMu.Lock()
	p.handlers = append(p.handlers, h)
	p.handlersMu.Unlock()
}

// QueueEvent hands an event to the dispatch worker.
func (p *Peer) QueueEvent(ev *event.Event) {
	if ev == nil {
		return
	}

	p.eventMu.Lock()
	p.eventQueue = append(p.eventQueue, ev)
	p.eventCond.Signal()
	p.eventMu.Unlock()
}

// eventDispatcher delivers events to the registered handlers. It sleeps on
// the condition variable until an event is queued or teardown is
// signalled, and drains whatever is queued before exiting.
func (p *Peer) eventDispatcher() {
	defer p.dispatchWG.Done()

	p.eventMu.Lock()
	for {
		for len(p.eventQueue) == 0 && !p.eventTeardown {
			p.eventCond.Wait()
		}
		if len(p.eventQueue) == 0 {
			p.eventMu.Unlock()
			return
		}

		ev := p.eventQueue[0]
		p.eventQueue = p.eventQueue[1:]
		// Handlers run without the queue lock so they do not block
		// queueing more events.
		p.eventMu.Unlock()

		p.handlersMu.Lock()
		for _, h := range p.handlers {
			h(ev)
		}
		p.handlersMu.Unlock()

		metricEventsDispatched.Inc()

		p.eventMu.Lock()
	}
}

// AddOutboundRegistration queues a registration to start when Run begins.
// Call before Run.
func (p *Peer) AddOutboundRegistration(username, ip string, port uint16) {
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: int(port)}
	p.outboundRegistrations = append(p.outboundRegistrations,
		outboundRegistration{username: username, addr: addr})
}

// NewCall allocates a call number and asks the protocol goroutine to
// originate a call to the given iax2: URI.
func (p *Peer) NewCall(uri string) uint16 {
	num := p.NextCallNum()
	p.SendCommand(command.NewString(command.TypeNew, num, uri))
	return num
}

// NewLag allocates a call number and asks the protocol goroutine to start
// a lag measurement against the given iax2: URI.
func (p *Peer) NewLag(uri string) uint16 {
	num := p.NextCallNum()
	p.SendCommand(command.NewString(command.TypeLagRq, num, uri))
	return num
}

// Shutdown asks the protocol goroutine to exit its run loop.
func (p *Peer) Shutdown() {
	p.SendCommand(command.New(command.TypeShutdown, 0))
}

// SendCommand enqueues a command for the protocol goroutine and wakes it.
// It fails only once the peer has shut down; per-command failures inside
// the protocol goroutine are logged, not returned.
func (p *Peer) SendCommand(cmd *command.Command) error {
	if p.shutdownFlag.Load() {
		return ErrPeerShutdown
	}

	p.commandMu.Lock()
	p.commandQueue = append(p.commandQueue, cmd)
	p.commandMu.Unlock()

	select {
	case p.commandAlert <- struct{}{}:
	default:
	}

	return nil
}

// Run binds the socket, starts the queued outbound registrations, signals
// readiness and serves the protocol loop until a Shutdown command is
// processed. Only the bind can fail.
func (p *Peer) Run(ready chan<- struct{}) error {
	if err := p.transport.Listen(fmt.Sprintf(":%d", p.localPort)); err != nil {
		return errors.Wrapf(err, "bind udp port %d", p.localPort)
	}

	p.startRegistrations()

	if ready != nil {
		close(ready)
	}

	p.runLoop()
	p.teardown()

	return nil
}

// startRegistrations drains the pending outbound-registration list,
// creating and starting a register dialog per entry.
func (p *Peer) startRegistrations() {
	for _, reg := range p.outboundRegistrations {
		d := dialog.NewRegister(p, p.NextCallNum(), reg.addr)
		p.addDialog(d)
		if err := d.Start(reg.username); err != nil {
			slog.Error("outbound registration start failed",
				"username", reg.username, "error", err)
		}
	}
	p.outboundRegistrations = nil
}

// runLoop is the protocol loop: wait for the earliest timer, a datagram or
// a command wake, whichever comes first. select picks ready cases at
// random, so neither the socket nor the command queue can starve the
// other under load.
func (p *Peer) runLoop() {
	packets := p.transport.Packets()

	for {
		var timerC <-chan time.Time
		var timer *time.Timer
		if wait, ok := p.timers.untilNext(time.Now()); ok {
			if wait == 0 {
				p.runCallbacks()
				continue
			}
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-timerC:
			p.runCallbacks()

		case pkt, ok := <-packets:
			if !ok {
				// Socket died; keep serving timers and commands until
				// the application shuts the peer down.
				packets = nil
				break
			}
			p.recvPacket(pkt)

		case <-p.commandAlert:
			if p.handleCommands() {
				if timer != nil {
					timer.Stop()
				}
				return
			}
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

// recvPacket parses one datagram and hands the frame to the role-specific
// dispatcher. Malformed datagrams are logged and dropped; no dialog state
// changes.
func (p *Peer) recvPacket(pkt transport.Packet) {
	f, err := frame.Parse(pkt.Data)
	if err != nil {
		metricDecodeErrors.Inc()
		slog.Warn("dropping malformed datagram", "from", pkt.Addr,
			"len", len(pkt.Data), "error", err)
		return
	}

	metricFramesReceived.WithLabelValues(f.Shell().String()).Inc()
	slog.Debug("recv frame", "frame", f, "from", pkt.Addr)

	p.role.processIncomingFrame(f, pkt.Addr)
}

// handleCommands drains the command queue. It reports true when a
// Shutdown command was processed.
func (p *Peer) handleCommands() bool {
	for {
		p.commandMu.Lock()
		if len(p.commandQueue) == 0 {
			p.commandMu.Unlock()
			return false
		}
		cmd := p.commandQueue[0]
		p.commandQueue = p.commandQueue[1:]
		// The queue stays unlocked while the command is processed.
		p.commandMu.Unlock()

		metricCommandsProcessed.Inc()
		slog.Debug("processing command", "command", cmd)

		switch cmd.Type() {
		case command.TypeNew:
			p.role.handleNewCallCommand(cmd)
			continue
		case command.TypeLagRq:
			p.role.handleLagRqCommand(cmd)
			continue
		case command.TypeShutdown:
			return true
		}

		d, ok := p.dialogs[cmd.CallNum()]
		if !ok {
			slog.Warn("no dialog for command", "call_num", cmd.CallNum(),
				"type", cmd.Type())
			continue
		}
		if res := d.ProcessCommand(cmd); res != dialog.CommandSuccess {
			slog.Warn("command not accepted by dialog",
				"call_num", cmd.CallNum(), "type", cmd.Type(), "result", res)
		}
	}
}

// runCallbacks fires every due timer. A timer that becomes due while
// callbacks run is fired in the same pass.
func (p *Peer) runCallbacks() {
	for {
		entry, ok := p.timers.popDue(time.Now())
		if !ok {
			return
		}

		d := entry.dialog
		d.ClearTimer()

		switch d.TimerCallback() {
		case dialog.ResultDestroy:
			p.removeDialog(d.CallNum())
			d.Stop()
		case dialog.ResultDelete:
			d.Stop()
		}
	}
}

// dispatchToDialog runs a frame through a dialog and acts on the result;
// the shared tail of role-specific frame routing.
func (p *Peer) dispatchToDialog(d dialog.Dialog, f *frame.Frame, src *net.UDPAddr) {
	switch d.ProcessIncomingFrame(f, src) {
	case dialog.ResultDestroy:
		p.removeDialog(d.CallNum())
		d.Stop()
	case dialog.ResultDelete:
		d.Stop()
	case dialog.ResultInval:
		slog.Warn("frame not valid in dialog state", "call_num", d.CallNum(),
			"frame", f)
		p.sendInval(f, src)
	}
}

// lookupDialog finds the dialog a non-trigger frame is destined for. FULL
// frames address the destination call number directly. MINI and META
// frames carry the sender's call number, so the lookup walks the table
// matching (remote call number, remote address) against the frame's
// source; media frames cannot be routed any other way.
func (p *Peer) lookupDialog(f *frame.Frame, src *net.UDPAddr) (dialog.Dialog, bool) {
	if f.Shell() == frame.ShellFull {
		d, ok := p.dialogs[f.DestCallNum()]
		return d, ok
	}

	for _, d := range p.dialogs {
		if d.RemoteCallNum() != f.SourceCallNum() {
			continue
		}
		addr := d.RemoteAddr()
		if addr == nil || !addr.IP.Equal(src.IP) || addr.Port != src.Port {
			continue
		}
		return d, true
	}
	return nil, false
}

// handleUnrouted deals with a frame that matched no dialog: log it and,
// for FULL frames, answer with INVAL so the far side can kill its dialog.
func (p *Peer) handleUnrouted(f *frame.Frame, src *net.UDPAddr) {
	slog.Warn("no dialog for frame", "frame", f, "from", src)
	p.sendInval(f, src)
}

// sendInval answers a frame with an INVAL. INVAL and ACK frames are never
// answered, otherwise two confused peers would INVAL each other forever;
// media frames are dropped silently.
func (p *Peer) sendInval(f *frame.Frame, src *net.UDPAddr) {
	if f.Shell() != frame.ShellFull {
		return
	}
	if f.Type() == frame.TypeIAX2 &&
		(f.Subclass() == frame.SubclassInval || f.Subclass() == frame.SubclassAck) {
		return
	}

	inval := frame.New().
		SetDirection(frame.DirectionOut).
		SetShell(frame.ShellFull).
		SetType(frame.TypeIAX2).
		SetSubclass(frame.SubclassInval).
		SetSourceCallNum(f.DestCallNum()).
		SetDestCallNum(f.SourceCallNum()).
		SetInSeqNum(f.OutSeqNum() + 1).
		SetOutSeqNum(f.InSeqNum()).
		SetTimestamp(f.Timestamp())
	if err := p.SendFrame(inval, src); err != nil {
		slog.Error("inval send failed", "to", src, "error", err)
	}
}

func (p *Peer) addDialog(d dialog.Dialog) {
	p.dialogs[d.CallNum()] = d
	metricActiveDialogs.Inc()
}

func (p *Peer) removeDialog(callNum uint16) {
	if _, ok := p.dialogs[callNum]; ok {
		delete(p.dialogs, callNum)
		metricActiveDialogs.Dec()
	}
}

// teardown destroys all dialogs, closes the socket and stops the event
// dispatch worker. Runs on the protocol goroutine after the loop exits.
func (p *Peer) teardown() {
	p.shutdownFlag.Store(true)

	for num, d := range p.dialogs {
		d.Stop()
		delete(p.dialogs, num)
		metricActiveDialogs.Dec()
	}

	p.transport.Close()

	p.eventMu.Lock()
	p.eventTeardown = true
	p.eventCond.Signal()
	p.eventMu.Unlock()
	p.dispatchWG.Wait()
}
