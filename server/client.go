package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/jonwraymond/exercisegrade/grade"
	"github.com/jonwraymond/exercisegrade/runtime"
)

// client is one WebSocket connection and the grading session behind it.
type client struct {
	srv     *Server
	id      string
	conn    *websocket.Conn
	engine  *Engine
	session *grade.Session
	limiter *rate.Limiter
	log     runtime.Logger

	writeMu sync.Mutex
	tasks   sync.WaitGroup
}

func (s *Server) newClient(conn *websocket.Conn) (*client, error) {
	engine, err := NewEngine(s.cfg.Engine)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	session, err := grade.NewSession(grade.SessionConfig{
		Executor: engine,
		ID:       id,
		Sink:     s.cfg.Sink,
		Logger:   s.cfg.Logger,
	})
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	return &client{
		srv:     s,
		id:      id,
		conn:    conn,
		engine:  engine,
		session: session,
		limiter: rate.NewLimiter(s.cfg.RunRate, s.cfg.RunBurst),
		log:     s.cfg.Logger,
	}, nil
}

func (c *client) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		_ = c.conn.Close()
		c.tasks.Wait()
		if err := c.engine.Close(); err != nil {
			c.log.Warn("closing engine failed", "session", c.id, "error", err)
		}
		c.log.Info("session closed", "session", c.id)
	}()

	c.conn.SetReadLimit(c.srv.cfg.ReadLimit)
	c.watch(ctx)
	c.log.Info("session opened", "session", c.id, "remote", c.conn.RemoteAddr().String())
	c.sendState("")

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read failed", "session", c.id, "error", err)
			}
			return
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(CodeBadRequest, "message is not valid JSON")
			continue
		}
		messagesTotal.WithLabelValues(msg.Type).Inc()
		c.handle(ctx, msg)
	}
}

func (c *client) handle(ctx context.Context, msg Inbound) {
	switch msg.Type {
	case TypeSelectExercise:
		c.selectExercise(ctx, msg.ExerciseID)
	case TypeRun:
		c.run(ctx, msg.Code)
	case TypeReset:
		if err := c.session.Reset(ctx); err != nil {
			code := CodeResetFailed
			if errors.Is(err, grade.ErrNoExercise) {
				code = CodeNoExercise
			}
			c.sendError(code, err.Error())
			return
		}
		c.sendState("")
	default:
		c.sendError(CodeBadRequest, "unknown message type "+msg.Type)
	}
}

func (c *client) selectExercise(ctx context.Context, id string) {
	ex, err := c.srv.cfg.Catalog.Exercise(id)
	if err != nil {
		c.sendError(CodeUnknown, err.Error())
		return
	}
	if err := c.session.SetExercise(ex); err != nil {
		c.sendError(CodeBadRequest, err.Error())
		return
	}

	if c.engine.State(ex.Language) == runtime.StateReady {
		c.sendState("")
		return
	}

	// Boot the interpreter in the background so the client can show the
	// loading state and enable Run once it is ready.
	c.sendState(runtime.StateInitializing.String())
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		if err := c.engine.Initialize(ctx, ex.Language); err != nil {
			c.sendError(CodeInitialization, err.Error())
		}
		c.sendState("")
	}()
}

func (c *client) run(ctx context.Context, code string) {
	if !c.limiter.Allow() {
		rateLimitedTotal.Inc()
		c.sendError(CodeRateLimited, "too many runs; wait a moment and try again")
		return
	}
	if _, ok := c.session.Exercise(); !ok {
		c.sendError(CodeNoExercise, grade.ErrNoExercise.Error())
		return
	}
	if !c.session.Ready() {
		c.sendError(CodeLoading, "the interpreter is still loading")
		return
	}

	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		out, err := c.session.Run(ctx, code)
		if err != nil {
			if ctx.Err() == nil {
				c.sendError(codeFor(err), err.Error())
			}
			return
		}
		verdictsTotal.WithLabelValues(string(out.Verdict.Reason)).Inc()
		c.send(Outbound{Type: TypeResult, SessionID: c.id, Result: &out.Result})
		c.send(Outbound{Type: TypeVerdict, SessionID: c.id, Verdict: &out.Verdict})
		c.sendState("")
	}()
}

func (c *client) sendState(rt string) {
	msg := Outbound{Type: TypeState, SessionID: c.id, Phase: c.session.Phase().String()}
	if ex, ok := c.session.Exercise(); ok {
		msg.ExerciseID = ex.ID
		msg.Runtime = rt
		if msg.Runtime == "" {
			msg.Runtime = c.engine.State(ex.Language).String()
		}
	}
	c.send(msg)
}

func (c *client) sendError(code, message string) {
	c.send(Outbound{Type: TypeError, SessionID: c.id, Code: code, Message: message})
}

func (c *client) send(msg Outbound) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.log.Debug("websocket write failed", "session", c.id, "type", msg.Type, "error", err)
	}
}

// watch keeps the connection alive with pings and closes it when ctx is done.
func (c *client) watch(ctx context.Context) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		ticker := time.NewTicker(c.srv.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.writeMu.Lock()
				err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.srv.cfg.WriteTimeout))
				c.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	// Unblock the read loop on shutdown.
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		<-ctx.Done()
		_ = c.conn.Close()
	}()
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, grade.ErrNoExercise):
		return CodeNoExercise
	case errors.Is(err, grade.ErrRunInProgress), errors.Is(err, runtime.ErrBusy):
		return CodeRunInProgress
	case errors.Is(err, grade.ErrSuperseded):
		return CodeSuperseded
	default:
		return CodeBadRequest
	}
}
