package gateway

import (
	"encoding/hex"
	"net/http"
	"net/netip"
	"time"

	"github.com/danmuck/spinelctl/internal/ncp"
	"github.com/danmuck/spinelctl/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

// notificationMessage is the JSON shape of one notification on the stream.
type notificationMessage struct {
	Epoch    uint64 `json:"epoch"`
	Command  string `json:"command"`
	Property string `json:"property,omitempty"`
	ID       uint32 `json:"id"`
	Value    any    `json:"value,omitempty"`
	Raw      string `json:"raw"`
	Error    string `json:"error,omitempty"`
}

func toMessage(n ncp.Notification) notificationMessage {
	m := notificationMessage{
		Epoch:    n.Epoch,
		Command:  n.Command.ID.String(),
		Property: n.Name,
		ID:       uint32(n.Property),
		Value:    JSONValue(n.Value),
		Raw:      hex.EncodeToString(n.Raw),
	}
	if n.Err != nil {
		m.Error = n.Err.Error()
	}
	return m
}

func (s *Server) upgrader() websocket.Upgrader {
	allowed := make(map[string]bool, len(s.cfg.CORSOrigins))
	for _, o := range s.cfg.CORSOrigins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
}

// notifications streams unsolicited frames as JSON. Repeat the property
// query parameter to filter, e.g. ?property=STREAM_DEBUG&property=STREAM_LOG.
func (s *Server) notifications(c *gin.Context) {
	var props []protocol.PropertyID
	for _, ref := range c.QueryArray("property") {
		d, err := s.dev.Lookup(ref)
		if err != nil {
			respondError(c, err)
			return
		}
		props = append(props, d.ID)
	}

	up := s.upgrader()
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("gateway.notifications upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.dev.Subscribe(props...)
	defer sub.Close()

	// Reads only drain control frames; a read error means the peer left.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case n, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(toMessage(n)); err != nil {
				log.Debug().Err(err).Msg("gateway.notifications write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// JSONValue makes decoded property values JSON friendly. Byte data is
// rendered as hex, which is also what the write routes accept.
func JSONValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return hex.EncodeToString(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = JSONValue(x[i])
		}
		return out
	case netip.Addr:
		return x.String()
	default:
		return v
	}
}
