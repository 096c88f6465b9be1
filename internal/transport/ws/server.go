// Package ws serves the observer websocket endpoint. Observers are
// read-mostly: they subscribe to snapshot frames and may request cell
// inspections; nothing they send can mutate a world.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"evocell.ai/internal/protocol"
	"evocell.ai/internal/sim/multisim"
	"evocell.ai/internal/sim/world"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	readTimeout      = 60 * time.Second
	inspectTimeout   = 2 * time.Second

	// Snapshot frames buffered per observer before drop-oldest kicks in.
	outQueue = 8
)

type Server struct {
	mgr *multisim.Manager
	log *log.Logger

	upgrader websocket.Upgrader
	nextSess atomic.Uint64
}

func NewServer(mgr *multisim.Manager, logger *log.Logger) *Server {
	return &Server{
		mgr: mgr,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		rt, sessID, out := s.handshake(conn)
		if rt == nil {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				sendLatest(out, errorFrame(protocol.ErrBadMessage, err.Error()))
				continue
			}
			switch base.Type {
			case protocol.TypeInspect:
				var req protocol.InspectMsg
				if err := json.Unmarshal(msg, &req); err != nil {
					sendLatest(out, errorFrame(protocol.ErrBadMessage, "malformed INSPECT"))
					continue
				}
				s.handleInspect(ctx, rt.World, req, out)
			default:
				sendLatest(out, errorFrame(protocol.ErrBadMessage, "unexpected message type "+base.Type))
			}
		}

		rt.World.ObserverLeave() <- sessID
		s.log.Printf("observer %s left world %s", sessID, rt.Spec.ID)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*multisim.Runtime, string, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeSubscribe {
		closePolicy(conn, "expected SUBSCRIBE")
		return nil, "", nil
	}

	var sub protocol.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		closePolicy(conn, "malformed SUBSCRIBE")
		return nil, "", nil
	}
	if sub.ProtocolVersion != protocol.Version {
		writeJSON(conn, protocol.NewError(protocol.ErrBadVersion, fmt.Sprintf("want protocol_version %d", protocol.Version)))
		closePolicy(conn, "bad protocol_version")
		return nil, "", nil
	}
	if p := strings.TrimSpace(sub.WorldID); p != "" && !s.mgr.Has(p) {
		writeJSON(conn, protocol.NewError(protocol.ErrUnknownWorld, "unknown world "+p))
		closePolicy(conn, "unknown world")
		return nil, "", nil
	}

	rt := s.mgr.Pick(sub.WorldID)
	if rt == nil {
		writeJSON(conn, protocol.NewError(protocol.ErrInternal, "no default world"))
		return nil, "", nil
	}

	sessID := fmt.Sprintf("obs-%d", s.nextSess.Add(1))
	out := make(chan []byte, outQueue)
	rt.World.ObserverJoin() <- world.ObserverJoinRequest{SessionID: sessID, Out: out}
	s.log.Printf("observer %s subscribed to world %s", sessID, rt.Spec.ID)
	return rt, sessID, out
}

func (s *Server) handleInspect(ctx context.Context, w *world.World, req protocol.InspectMsg, out chan []byte) {
	reqCtx, cancel := context.WithTimeout(ctx, inspectTimeout)
	defer cancel()
	res, err := w.RequestInspect(reqCtx, req.Pos[0], req.Pos[1])
	if err != nil {
		sendLatest(out, errorFrame(protocol.ErrInternal, err.Error()))
		return
	}
	msg := protocol.CellMsg{
		Type:  protocol.TypeCell,
		Tick:  w.CurrentTick(),
		Found: res.OK,
	}
	if res.OK {
		c := res.Cell
		msg.Cell = &c
	}
	if b, err := json.Marshal(msg); err == nil {
		sendLatest(out, b)
	}
}

// sendLatest mirrors the world-side publisher: never block, drop the
// oldest frame when the queue is full.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func errorFrame(code, message string) []byte {
	b, _ := json.Marshal(protocol.NewError(code, message))
	return b
}

func writeJSON(conn *websocket.Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}
