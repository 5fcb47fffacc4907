// Package ws is a demo channel bridge: each websocket connection is
// registered as its own tiny kernel subsystem (a single route whose
// handler writes the delivered message to the socket) so it can be added
// as a channel participant and receive fan-out deliveries the same way
// any other subsystem does (spec §4.5 channel manager: "no replication
// of identity; each participant sees the original caller"). Connection
// handling follows the read-loop/typed-dispatch/JSON-write shape of the
// teacher's internal/ws package.
package ws

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/channel"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/message"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/principal"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/router"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inMessage is the JSON shape a connected client sends. Every inbound
// frame addresses the channel itself (not an arbitrary path) — that is
// what the kernel's fan-out retargets onto each participant subsystem's
// own scheme (spec §4.5 channel manager).
type inMessage struct {
	Type string                 `json:"type"`
	Body map[string]interface{} `json:"body"`
}

var connCounter uint64

// Bridge upgrades HTTP connections to websockets, registering each one
// as a disposable kernel subsystem wired into a channel.
type Bridge struct {
	k *kernel.Kernel
}

// NewBridge constructs a websocket bridge over k.
func NewBridge(k *kernel.Kernel) *Bridge {
	return &Bridge{k: k}
}

// HandleConnection upgrades the request, registers a one-per-connection
// subsystem whose route forwards deliveries to the socket, joins it to
// the channel at "<owner>://channel/<localName>" (creating the channel
// on first connection), and relays inbound client frames into the
// channel via SendToChannel.
func (b *Bridge) HandleConnection(c *gin.Context, owner, localName string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	connName := fmt.Sprintf("ws-conn-%d", atomic.AddUint64(&connCounter, 1))
	pkr, err := b.k.RegisterSubsystem(connName, kernel.SubsystemOptions{
		Synchronous: true,
		Routes: []kernel.RouteDef{{
			// Fan-out retargets the channel's own path onto this
			// subsystem's scheme (spec §4.5 channel manager), so the
			// route must match "channel/<name>" generically rather
			// than a connection-specific verb.
			Pattern: "channel/{name}",
			Handler: func(msg *message.Message, params map[string]string, opts router.RouteOptions) (interface{}, error) {
				return nil, writeJSON(conn, msg.Body)
			},
			Metadata: router.Metadata{},
		}},
	})
	if err != nil {
		_ = writeJSON(conn, map[string]interface{}{"type": "error", "message": err.Error()})
		return
	}
	defer func() { _ = b.k.DisposeSubsystem(connName) }()

	route := fmt.Sprintf("%s://channel/%s", owner, localName)
	ch, ok := b.k.GetChannel(route)
	if ok {
		if err := b.k.AddChannelParticipant(route, pkr); err != nil {
			_ = writeJSON(conn, map[string]interface{}{"type": "error", "message": err.Error()})
			return
		}
	} else {
		ch, err = b.k.CreateChannel(owner, localName, channel.CreateOptions{Participants: []principal.PKR{pkr}})
		if err != nil {
			_ = writeJSON(conn, map[string]interface{}{"type": "error", "message": err.Error()})
			return
		}
	}

	caller, err := b.k.Principals().CreatePrincipal(principal.KindFriend, principal.CreateOptions{})
	if err != nil {
		_ = writeJSON(conn, map[string]interface{}{"type": "error", "message": err.Error()})
		return
	}

	_ = writeJSON(conn, map[string]interface{}{"type": "joined", "route": ch.Route, "subsystem": connName})

	for {
		var in inMessage
		if err := conn.ReadJSON(&in); err != nil {
			return
		}

		msgType := message.TypeSimple
		if in.Type != "" {
			msgType = message.Type(in.Type)
		}
		msg, err := message.NewWithType(ch.Route, map[string]interface{}(in.Body), msgType)
		if err != nil {
			_ = writeJSON(conn, map[string]interface{}{"type": "error", "message": err.Error()})
			continue
		}

		results, err := b.k.SendToChannel(caller, ch.Route, msg)
		if err != nil {
			_ = writeJSON(conn, map[string]interface{}{"type": "error", "message": err.Error()})
			continue
		}
		_ = writeJSON(conn, map[string]interface{}{
			"type":      "ack",
			"timestamp": time.Now().Unix(),
			"results":   summarize(results),
		})
	}
}

func writeJSON(conn *websocket.Conn, data interface{}) error {
	return conn.WriteJSON(data)
}

func summarize(results []channel.FanOutResult) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		entry := map[string]interface{}{"participant": r.Participant.PublicKey}
		if r.Err != nil {
			entry["error"] = r.Err.Error()
		} else {
			entry["result"] = r.Result
		}
		out = append(out, entry)
	}
	return out
}
