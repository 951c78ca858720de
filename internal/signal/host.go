// Package signal establishes the single game channel between two peers. The
// host publishes an offer (token + reachable endpoints) on the rendezvous
// relay under a short room code; the guest answers through the relay and then
// dials the host directly. The relay never sees game traffic.
package signal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mweiss/tagduel/internal/channel"
	"github.com/mweiss/tagduel/internal/rendezvous"
)

var ErrWaitTimeout = errors.New("timed out waiting for a guest")
var ErrTokenMismatch = errors.New("answer does not match the published offer")

// Options bound the establishment steps. Zero values fall back to defaults;
// tests compress them.
type Options struct {
	GatherTimeout time.Duration // candidate gathering, best effort
	PollInterval  time.Duration // answer polling cadence
	PollTimeout   time.Duration // overall wait for a guest
	DialTimeout   time.Duration // per-candidate dial attempt
}

func (o Options) withDefaults() Options {
	if o.GatherTimeout == 0 {
		o.GatherTimeout = 10 * time.Second
	}
	if o.PollInterval == 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.PollTimeout == 0 {
		o.PollTimeout = 300 * time.Second
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = 10 * time.Second
	}
	return o
}

// Host is the offering side of channel establishment. CreateRoom then
// WaitForGuest; Close releases the listener once the session is over.
type Host struct {
	client *rendezvous.Client
	opts   Options
	log    *zap.Logger

	token    string
	code     string
	listener net.Listener
	server   *http.Server
	accepted chan channel.Channel
}

func NewHost(client *rendezvous.Client, opts Options, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{
		client:   client,
		opts:     opts.withDefaults(),
		log:      log,
		token:    uuid.NewString(),
		accepted: make(chan channel.Channel, 1),
	}
}

// CreateRoom opens the local listener, gathers candidate endpoints (partial
// sets are fine, a wedge in interface enumeration must not block room
// creation), and publishes the offer. Returns the room code to hand to the
// other player.
func (h *Host) CreateRoom(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return "", fmt.Errorf("open listener: %w", err)
	}
	h.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/channel", h.handleChannel)
	h.server = &http.Server{Handler: mux}
	go func() { _ = h.server.Serve(ln) }()

	port := ln.Addr().(*net.TCPAddr).Port
	gatherCtx, cancel := context.WithTimeout(ctx, h.opts.GatherTimeout)
	candidates := gatherCandidates(gatherCtx, port)
	cancel()
	if len(candidates) == 0 {
		h.shutdown()
		return "", errors.New("no usable local endpoints")
	}
	h.log.Info("gathered candidates", zap.Strings("candidates", candidates))

	offer := encodeOffer(offerBlob{Token: h.token, Candidates: candidates})
	code, err := h.client.CreateRoom(ctx, offer)
	if err != nil {
		h.shutdown()
		return "", err
	}
	h.code = code
	return code, nil
}

// WaitForGuest polls the relay for an answer and then waits for the guest's
// dial. onTimeout fires once if the overall wait elapses; the room is
// then dead and a new CreateRoom is needed.
func (h *Host) WaitForGuest(ctx context.Context, onTimeout func()) (channel.Channel, error) {
	deadline := time.Now().Add(h.opts.PollTimeout)
	ticker := time.NewTicker(h.opts.PollInterval)
	defer ticker.Stop()

	for {
		status, err := h.client.RoomStatus(ctx, h.code)
		if errors.Is(err, rendezvous.ErrNotFound) {
			h.shutdown()
			return nil, fmt.Errorf("room expired: %w", err)
		}
		if err == nil && status.HasAnswer {
			answer, err := decodeAnswer(status.Answer)
			if err != nil {
				h.shutdown()
				return nil, err
			}
			if answer.Token != h.token {
				h.shutdown()
				return nil, ErrTokenMismatch
			}
			return h.awaitDial(ctx)
		}
		if err != nil {
			h.log.Warn("room poll failed", zap.Error(err))
		}

		if time.Now().After(deadline) {
			h.shutdown()
			if onTimeout != nil {
				onTimeout()
			}
			return nil, ErrWaitTimeout
		}
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *Host) awaitDial(ctx context.Context) (channel.Channel, error) {
	select {
	case ch := <-h.accepted:
		return ch, nil
	case <-time.After(h.opts.DialTimeout):
		h.shutdown()
		return nil, errors.New("guest answered but never connected")
	case <-ctx.Done():
		h.shutdown()
		return nil, ctx.Err()
	}
}

func (h *Host) handleChannel(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") != h.token {
		http.Error(w, "unknown token", http.StatusForbidden)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // peers are on arbitrary origins; the token gates access
	})
	if err != nil {
		return
	}
	ch := channel.NewWS(conn, h.log)
	select {
	case h.accepted <- ch:
	default:
		// room is single use, a second dial loses
		_ = ch.Close()
		return
	}
	// Hold the handler open for the connection's lifetime.
	<-ch.Done()
}

// Close tears down the listener. Call after the session ends (the
// established channel stays usable only while the listener's server is up).
func (h *Host) Close() {
	h.shutdown()
}

func (h *Host) shutdown() {
	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = h.server.Shutdown(ctx)
		cancel()
		h.server = nil
	}
}

// gatherCandidates enumerates local addresses and shapes them into channel
// URLs. On timeout it returns whatever was collected so far rather than
// failing the room.
func gatherCandidates(ctx context.Context, port int) []string {
	type result struct {
		addrs []net.Addr
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		addrs, err := net.InterfaceAddrs()
		ch <- result{addrs, err}
	}()

	var addrs []net.Addr
	select {
	case <-ctx.Done():
		return nil
	case r := <-ch:
		if r.err != nil {
			return nil
		}
		addrs = r.addrs
	}

	var candidates []string
	var loopback []string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil {
			continue
		}
		url := fmt.Sprintf("ws://%s/channel", net.JoinHostPort(ip.String(), fmt.Sprint(port)))
		if ip.IsLoopback() {
			loopback = append(loopback, url)
			continue
		}
		candidates = append(candidates, url)
	}
	// Loopback last: only useful when both peers share a machine.
	return append(candidates, loopback...)
}
