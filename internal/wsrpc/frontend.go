// Package wsrpc implements the WebSocket JSON-RPC frontend: the /ws/mcp endpoint, its
// execute/control/ping method dispatch, and the /health and /metrics HTTP endpoints.
package wsrpc

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cc-executor/cc-executor/internal/common/config"
	"github.com/cc-executor/cc-executor/internal/session"
	"github.com/cc-executor/cc-executor/pkg/jsonrpc"
)

// serverVersion is reported to clients in the connected notification so they can
// detect a protocol/behavior change across deployments.
const serverVersion = "1.0.0"

// Frontend serves the WebSocket JSON-RPC API and owns the Session Registry's
// connection-level lifecycle (session_id assignment on upgrade, cleanup on
// disconnect).
type Frontend struct {
	cfg      *config.Config
	registry *session.Registry
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// New builds a Frontend bound to registry.
func New(cfg *config.Config, registry *session.Registry, log *zap.Logger) *Frontend {
	return &Frontend{
		cfg:      cfg,
		registry: registry,
		log:      log.With(zap.String("component", "wsrpc")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the connection, admits a new Session through the registry, and runs
// its read/write pumps until disconnect.
func (f *Frontend) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sessionID := uuid.New().String()
	sess, err := f.registry.Admit(sessionID)
	if err != nil {
		f.log.Warn("session admission rejected", zap.Error(err))
		_ = conn.WriteJSON(jsonrpc.NewNotification("admission_rejected", map[string]string{"reason": err.Error()}))
		conn.Close()
		return
	}

	pingInterval := time.Duration(f.cfg.Server.WSPingIntervalS) * time.Second
	pongTimeout := time.Duration(f.cfg.Server.WSPongTimeoutS) * time.Second
	conn.SetReadLimit(f.cfg.Server.WSMaxMessageBytes)

	c := newConnection(conn, sess, pingInterval, pongTimeout, f.log)
	sess.SetNotifier(c)

	go c.writePump()
	c.Notify("connected", map[string]interface{}{
		"session_id":     sessionID,
		"server_version": serverVersion,
		"limits": map[string]interface{}{
			"total_timeout_s": f.cfg.Execution.DefaultTotalTimeoutS,
			"stall_timeout_s": f.cfg.Execution.DefaultStallTimeoutS,
			"max_total_bytes": f.cfg.Execution.MaxTotalBytes,
			"max_line_bytes":  f.cfg.Execution.MaxLineBytes,
			"queue_depth_one": f.cfg.Server.QueueDepthOne,
		},
	})

	c.readPump(func(req *jsonrpc.Request) *jsonrpc.Response {
		return f.dispatch(sess, req)
	})

	c.close()
	f.registry.Remove(sessionID)
}

func (f *Frontend) dispatch(sess *session.Session, req *jsonrpc.Request) *jsonrpc.Response {
	switch req.Method {
	case "execute":
		return f.handleExecute(sess, req)
	case "control":
		return f.handleControl(sess, req)
	case "ping":
		return jsonrpc.NewResponse(req.ID, map[string]interface{}{"pong": true, "server_time": time.Now().UTC().Format(time.RFC3339Nano)})
	default:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.MethodNotFound, "unknown method: "+req.Method, nil)
	}
}

// executeParams matches §6.2's execute params exactly: command, an optional env
// object, and optional per-request total/stall timeout overrides. tools is accepted
// and currently ignored — unknown/unused fields are never an error per §6.3.
type executeParams struct {
	Command       string            `json:"command"`
	Env           map[string]string `json:"env,omitempty"`
	TotalTimeoutS *float64          `json:"total_timeout_s,omitempty"`
	StallTimeoutS *float64          `json:"stall_timeout_s,omitempty"`
	Tools         []string          `json:"tools,omitempty"`
}

func (f *Frontend) handleExecute(sess *session.Session, req *jsonrpc.Request) *jsonrpc.Response {
	var params executeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.InvalidParams, "invalid execute params", nil)
	}
	if params.Command == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.InvalidParams, "command must not be empty", nil)
	}

	execution, err := sess.Execute(session.ExecuteParams{
		Command:       params.Command,
		EnvOverrides:  params.Env,
		TotalTimeoutS: params.TotalTimeoutS,
		StallTimeoutS: params.StallTimeoutS,
	})
	if err != nil {
		e := rpcError(err)
		return jsonrpc.NewErrorResponse(req.ID, e.Code, e.Message, nil)
	}
	return jsonrpc.NewResponse(req.ID, map[string]interface{}{
		"execution_id": execution.ExecutionID,
		"accepted":     true,
	})
}

// controlParams matches §6.2's control params: {type: "PAUSE"|"RESUME"|"CANCEL"}.
type controlParams struct {
	Type string `json:"type"`
}

func (f *Frontend) handleControl(sess *session.Session, req *jsonrpc.Request) *jsonrpc.Response {
	var params controlParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.InvalidParams, "invalid control params", nil)
	}

	if err := sess.Control(params.Type); err != nil {
		e := rpcError(err)
		return jsonrpc.NewErrorResponse(req.ID, e.Code, e.Message, nil)
	}
	return jsonrpc.NewResponse(req.ID, map[string]interface{}{"acknowledged": true})
}
