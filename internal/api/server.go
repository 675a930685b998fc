package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"interviewrec/events"
	"interviewrec/internal/service"
	"interviewrec/transcribe"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeTimeout = 5 * time.Second

// Options configures the control server.
type Options struct {
	HTTPAddr string
	// GRPCAddr is unix:<path>, npipe:<name> or host:port. Empty disables gRPC.
	GRPCAddr string
	// AutoTranscribe is the default for stop requests that do not say.
	AutoTranscribe bool
	Version        string
}

type Server struct {
	Recording     *service.RecordingService
	Transcription *service.TranscriptionService
	Bus           *events.Bus

	opts Options
	log  *zap.SugaredLogger

	mu    sync.Mutex
	peers map[*client]struct{}
}

func NewServer(rec *service.RecordingService, ts *service.TranscriptionService, bus *events.Bus, opts Options, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		Recording:     rec,
		Transcription: ts,
		Bus:           bus,
		opts:          opts,
		log:           log,
		peers:         make(map[*client]struct{}),
	}
}

// Run serves HTTP, gRPC and the event broadcaster until ctx is cancelled or
// one of them fails.
func (s *Server) Run(ctx context.Context) error {
	// Listeners are opened before anything runs so a bind failure leaves
	// nothing behind.
	var httpLis, grpcLis net.Listener
	if s.opts.HTTPAddr != "" {
		lis, err := net.Listen("tcp", s.opts.HTTPAddr)
		if err != nil {
			return err
		}
		httpLis = lis
	}
	if s.opts.GRPCAddr != "" {
		lis, err := listenGRPC(s.opts.GRPCAddr)
		if err != nil {
			if httpLis != nil {
				httpLis.Close()
			}
			return err
		}
		grpcLis = lis
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.Broadcast(ctx)
		return nil
	})
	if httpLis != nil {
		g.Go(func() error { return s.ServeHTTP(ctx, httpLis) })
	}
	if grpcLis != nil {
		g.Go(func() error { return s.ServeGRPC(ctx, grpcLis) })
	}

	return g.Wait()
}

// ServeHTTP serves the gin router on lis until ctx is done.
func (s *Server) ServeHTTP(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Infof("HTTP listening on %s", lis.Addr())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Broadcast drains the event bus and fans every event out to all peers.
func (s *Server) Broadcast(ctx context.Context) {
	ch, cancel := s.Bus.Subscribe(64)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			s.broadcast(eventMessage(e))
		}
	}
}

func eventMessage(e events.Event) Message {
	switch e.Kind {
	case events.KindLevel:
		return Message{Type: MsgLevel, Level: e.Level}
	case events.KindStatus:
		return Message{Type: MsgStatus, Status: e.Status}
	case events.KindTick:
		return Message{Type: MsgTick, Elapsed: e.Elapsed, Seconds: e.Seconds}
	case events.KindProgress:
		return Message{Type: MsgProgress, Line: e.Line}
	case events.KindJobCompleted:
		msg := Message{Type: MsgJobCompleted}
		if job, ok := e.Job.(*transcribe.Job); ok {
			msg.Job = job
			msg.Error = job.Error
		}
		return msg
	}
	return Message{Type: string(e.Kind)}
}

func (s *Server) addPeer(p *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[p] = struct{}{}
}

func (s *Server) removePeer(p *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, p)
}

func (s *Server) broadcast(msg Message) {
	s.mu.Lock()
	peers := make([]*client, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		if err := p.send(msg); err != nil {
			s.log.Debugf("Dropping %s client: %v", p.name, err)
			s.removePeer(p)
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("WebSocket upgrade: %v", err)
		return
	}

	p := newClient("websocket", func(msg Message) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(msg)
	}, func() { conn.Close() }, s.log)
	s.addPeer(p)
	defer func() {
		s.removePeer(p)
		p.close()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debugf("WebSocket read: %v", err)
			}
			return
		}
		if err := p.send(s.handleCommand(r.Context(), msg)); err != nil {
			return
		}
	}
}

// handleCommand executes a client command and returns the reply.
func (s *Server) handleCommand(ctx context.Context, msg Message) Message {
	switch msg.Type {
	case MsgStartRecording:
		sess, err := s.Recording.Start(ctx, msg.Name)
		if err != nil {
			return errorMessage(msg.Type, err)
		}
		return Message{Type: MsgRecordingStarted, Session: sess}

	case MsgStopRecording:
		sess, job, err := s.Recording.Stop(ctx, s.wantTranscript(msg.Transcribe))
		if err != nil && sess == nil {
			return errorMessage(msg.Type, err)
		}
		reply := Message{Type: MsgRecordingStopped, Session: sess, Job: job}
		if err != nil {
			reply.Error = err.Error()
		}
		return reply

	case MsgTranscribe:
		job, err := s.Transcription.Submit(ctx, msg.Path, service.Options{
			Language: msg.Language,
			Model:    msg.Model,
			Mode:     msg.Mode,
		})
		if err != nil {
			return errorMessage(msg.Type, err)
		}
		return Message{Type: MsgTranscriptionStarted, Job: job}

	case MsgCancel:
		if err := s.Recording.Cancel(ctx); err != nil {
			return errorMessage(msg.Type, err)
		}
		return Message{Type: MsgCancelled}

	case MsgGetStatus:
		st := s.Recording.Status()
		return Message{Type: MsgStatusSnapshot, Snapshot: &st}
	}
	return Message{Type: MsgError, Data: msg.Type, Error: "unknown message type"}
}

func (s *Server) wantTranscript(v *bool) bool {
	if v != nil {
		return *v
	}
	return s.opts.AutoTranscribe
}

func errorMessage(cmd string, err error) Message {
	return Message{Type: MsgError, Data: cmd, Error: err.Error()}
}

// Router builds the HTTP routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())

	engine.GET("/healthz", s.healthz)
	engine.GET("/ws", func(c *gin.Context) {
		s.handleWebSocket(c.Writer, c.Request)
	})

	apiv1 := engine.Group("/api")
	{
		apiv1.POST("/recording/start", s.startRecording)
		apiv1.POST("/recording/stop", s.stopRecording)
		apiv1.POST("/transcriptions", s.submitTranscription)
		apiv1.POST("/cancel", s.cancel)
		apiv1.GET("/status", s.status)
		apiv1.GET("/recordings", s.recordings)
		apiv1.DELETE("/recordings/:name", s.deleteRecording)
	}
	return engine
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debugw("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
