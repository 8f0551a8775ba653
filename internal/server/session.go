package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/admitly/admissions/internal/errors"
	"github.com/admitly/admissions/pkg/form"
	"github.com/admitly/admissions/pkg/formsync"
	"github.com/admitly/admissions/pkg/urlparam"
)

// FormSession is one open form page.
type FormSession struct {
	srv    *Server
	conn   *websocket.Conn
	schema *form.Schema
	ctrl   *formsync.Controller
	logger *slog.Logger
	config SessionConfig

	// ctx is cancelled on close; background work runs under it.
	ctx    context.Context
	cancel context.CancelFunc

	inbox      chan clientMessage
	dispatchCh chan func()
	done       chan struct{}
	closeOnce  sync.Once

	// Owned by the event loop.
	submitting bool
	sentPhase  formsync.Phase
	sentState  form.State
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	schema, ok := s.schema(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		if s.metrics != nil {
			s.metrics.WebSocketErrors.WithLabelValues("upgrade").Inc()
		}
		s.logger.Warn("websocket upgrade failed", "form", schema.Name, "error", err)
		return
	}

	fs := s.newFormSession(conn, schema)
	if !s.track(fs) {
		s.logger.Debug("refusing form session during shutdown", "form", schema.Name)
		fs.Close()
		return
	}
	go func() {
		defer s.wg.Done()
		fs.run()
	}()
}

func (s *Server) newFormSession(conn *websocket.Conn, schema *form.Schema) *FormSession {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := s.session.withDefaults()
	fs := &FormSession{
		srv:        s,
		conn:       conn,
		schema:     schema,
		logger:     s.logger.With("form", schema.Name, "remote", conn.RemoteAddr().String()),
		config:     cfg,
		ctx:        ctx,
		cancel:     cancel,
		inbox:      make(chan clientMessage, cfg.InboxSize),
		dispatchCh: make(chan func(), 8),
		done:       make(chan struct{}),
		sentPhase:  -1,
	}
	nav := urlparam.NewNavigator(func(query string, mode urlparam.URLMode) {
		fs.send(serverMessage{Type: msgURLReplace, Query: &query})
	})
	fs.ctrl = formsync.New(schema, nav, formsync.WithLogger(fs.logger))
	return fs
}

// run starts the read loop and the metadata fetch, then runs the event loop
// until the session closes.
func (fs *FormSession) run() {
	defer fs.srv.untrack(fs)
	fs.logger.Debug("session opened")

	go fs.readLoop()
	go fs.loadMetadata()
	fs.eventLoop()
}

// loadMetadata fetches the catalog once per session and hands it to the
// event loop.
func (fs *FormSession) loadMetadata() {
	catalog := fs.srv.loader.Load(fs.ctx)
	fs.dispatch(func() {
		fs.ctrl.SetMetadata(catalog)
		fs.afterTurn()
	})
}

// dispatch queues fn on the event loop. It is dropped once the session is
// closed.
func (fs *FormSession) dispatch(fn func()) {
	select {
	case <-fs.done:
		return
	default:
	}
	select {
	case fs.dispatchCh <- fn:
	case <-fs.done:
	}
}

func (fs *FormSession) readLoop() {
	defer fs.Close()

	fs.conn.SetReadLimit(64 << 10)
	fs.conn.SetReadDeadline(time.Now().Add(fs.config.ReadTimeout))
	fs.conn.SetPongHandler(func(string) error {
		fs.conn.SetReadDeadline(time.Now().Add(fs.config.ReadTimeout))
		return nil
	})

	for {
		_, data, err := fs.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				fs.logger.Warn("read error", "error", err)
				fs.countError("read")
			}
			return
		}
		fs.conn.SetReadDeadline(time.Now().Add(fs.config.ReadTimeout))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			fs.logger.Debug("message decode error", "error", err)
			fs.dispatch(func() {
				fs.sendError(errors.New(errors.CodeBadMessage))
			})
			continue
		}

		select {
		case fs.inbox <- msg:
		case <-fs.done:
			return
		default:
			fs.countError("queue_full")
			fs.logger.Warn("session inbox full, dropping message", "type", msg.Type)
		}
	}
}

func (fs *FormSession) eventLoop() {
	ping := time.NewTicker(fs.config.PingInterval)
	defer ping.Stop()

	for {
		select {
		case msg := <-fs.inbox:
			fs.safely(func() { fs.handle(msg) })

		case fn := <-fs.dispatchCh:
			fs.safely(fn)

		case <-ping.C:
			deadline := time.Now().Add(fs.config.WriteTimeout)
			if err := fs.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				fs.countError("ping")
				fs.Close()
				return
			}

		case <-fs.done:
			return
		}
	}
}

func (fs *FormSession) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			fs.logger.Error("session panic",
				"panic", r,
				"stack", string(debug.Stack()))
			fs.Close()
		}
	}()
	fn()
}

func (fs *FormSession) handle(msg clientMessage) {
	switch msg.Type {
	case msgMount, msgQuery:
		fs.ctrl.ObserveQuery(msg.Query)

	case msgSet:
		if err := fs.set(msg.Field, msg.Value); err != nil {
			fs.sendError(err)
			return
		}

	case msgSubmit:
		fs.submit()
		return

	default:
		fs.sendError(errors.New(errors.CodeBadMessage).WithDetail("unknown type " + msg.Type))
		return
	}
	fs.afterTurn()
}

func (fs *FormSession) set(field string, raw json.RawMessage) error {
	if _, ok := fs.schema.Field(field); !ok {
		return errors.New(errors.CodeUnknownField).WithField(field, "unknown field")
	}
	var v form.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return errors.New(errors.CodeFieldKind).WithField(field, err.Error())
	}
	if err := fs.ctrl.Set(field, v); err != nil {
		return errors.New(errors.CodeFieldKind).WithField(field, err.Error())
	}
	return nil
}

// afterTurn renders the state if it changed, then lets the controller sync
// the URL, the same order a page renders and then runs its effects.
func (fs *FormSession) afterTurn() {
	phase := fs.ctrl.Phase()
	st := fs.ctrl.State()
	if phase != fs.sentPhase || !st.Equal(fs.sentState) {
		fs.sentPhase, fs.sentState = phase, st
		fs.send(serverMessage{
			Type:     msgState,
			Phase:    phase.String(),
			State:    st,
			Mirrored: fs.mirrored(),
		})
	}

	res := fs.ctrl.Sync()
	if fs.srv.metrics != nil && res != formsync.SyncNotReady {
		fs.srv.metrics.FormSync.WithLabelValues(fs.schema.Name, res.String()).Inc()
	}
}

func (fs *FormSession) mirrored() []string {
	var out []string
	for _, f := range fs.schema.Fields {
		if fs.ctrl.Mirrored(f.Name) {
			out = append(out, f.Name)
		}
	}
	return out
}

func (fs *FormSession) submit() {
	if !fs.ctrl.Hydrated() {
		fs.sendError(errors.New(errors.CodeNotReady))
		return
	}
	if fs.submitting {
		fs.sendError(errors.New(errors.CodeSubmitPending))
		return
	}
	fs.submitting = true
	st := fs.ctrl.State()

	go func() {
		// Closing the page does not abort a submission already sent.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(fs.ctx), fs.config.SubmitTimeout)
		defer cancel()
		receipt, err := fs.srv.submit(ctx, fs.schema, st)
		fs.dispatch(func() {
			fs.submitting = false
			if err != nil {
				fs.sendError(err)
				return
			}
			fs.logger.Info("form submitted", "doctype", receipt.Doctype, "name", receipt.Name)
			fs.send(serverMessage{Type: msgSubmitted, Name: receipt.Name})
		})
	}()
}

func (fs *FormSession) sendError(err error) {
	e := errors.FromError(err, errors.CodeSubmitRejected)
	msg := serverMessage{Type: msgError, Code: e.Code, Message: e.Message}
	if field, fieldMsg, ok := e.FirstField(); ok {
		msg.Field = field
		if e.Category != errors.CategoryValidation {
			msg.Message = e.Message + ": " + fieldMsg
		}
	}
	fs.send(msg)
}

// send writes one message. Only the event loop writes data frames.
func (fs *FormSession) send(msg serverMessage) {
	select {
	case <-fs.done:
		return
	default:
	}
	fs.conn.SetWriteDeadline(time.Now().Add(fs.config.WriteTimeout))
	if err := fs.conn.WriteJSON(msg); err != nil {
		fs.countError("write")
		fs.logger.Debug("write error", "error", err)
		fs.Close()
	}
}

func (fs *FormSession) countError(kind string) {
	if fs.srv.metrics != nil {
		fs.srv.metrics.WebSocketErrors.WithLabelValues(kind).Inc()
	}
}

// Close ends the session. It is safe to call more than once.
func (fs *FormSession) Close() {
	fs.closeOnce.Do(func() {
		close(fs.done)
		fs.cancel()
		fs.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		fs.conn.Close()
		fs.logger.Debug("session closed")
	})
}
