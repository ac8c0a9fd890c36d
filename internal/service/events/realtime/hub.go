package realtime

import (
	"ChatCompanion/internal/config"
	"ChatCompanion/internal/service/events"
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Ensure interface compliance
var _ events.EventServer = (*Hub)(nil)
var _ http.Handler = (*Hub)(nil)

const writeWait = 10 * time.Second

// ShutdownText системное сообщение клиентам перед остановкой хаба.
const ShutdownText = "Сервер останавливается"

// Hub принимает WebSocket-подключения, держит множество живых соединений
// и на каждое входящее сообщение отвечает конвертом. Один обработчик на соединение.
type Hub struct {
	cfg      config.HubConfig
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader

	handler http.Handler
	srv     *http.Server
	ln      net.Listener
	stopped chan struct{}
	running atomic.Bool
	closing atomic.Bool

	mu    sync.RWMutex
	conns map[uuid.UUID]*Conn
	wg    sync.WaitGroup

	now func() time.Time
}

// Conn живое соединение и адрес клиента. Создаётся при подключении, удаляется при разрыве или остановке хаба.
type Conn struct {
	ID          uuid.UUID
	Remote      string
	ConnectedAt time.Time

	ws      *websocket.Conn
	writeMu sync.Mutex
}

// ConnInfo снимок записи о соединении.
type ConnInfo struct {
	ID          string
	Remote      string
	ConnectedAt time.Time
}

func NewHub(cfg config.HubConfig, logger *zap.SugaredLogger) *Hub {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "0.0.0.0:8765"
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 32 << 20
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 20 * time.Second
	}
	if cfg.WelcomeText == "" {
		cfg.WelcomeText = "WebSocket соединение установлено"
	}
	h := &Hub{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout:  10 * time.Second,
			EnableCompression: false,
			// Проверка Origin отключена: клиенты подключаются с любых страниц
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[uuid.UUID]*Conn),
		now:   time.Now,
	}

	// Путь не важен: любой URL принимается как точка подключения
	mux := http.NewServeMux()
	mux.Handle("/", h)
	h.handler = mux
	return h
}

// Start открывает слушатель и обслуживает подключения в фоне.
func (h *Hub) Start(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return nil
	}
	ln, err := net.Listen("tcp", h.cfg.BindAddr)
	if err != nil {
		h.running.Store(false)
		return err
	}
	// http.Server после Shutdown не переиспользуется, на каждый запуск свой
	srv := &http.Server{
		Addr:              h.cfg.BindAddr,
		Handler:           h.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stopped := make(chan struct{})
	h.mu.Lock()
	h.srv, h.ln, h.stopped = srv, ln, stopped
	h.mu.Unlock()
	h.closing.Store(false)

	go func() {
		h.logger.Infow("WebSocket hub listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) && err != nil {
			h.logger.Errorw("WebSocket hub stopped with error", "error", err)
		} else {
			h.logger.Infow("WebSocket hub stopped")
		}
	}()

	// Watch for context cancellation to stop this run of the server
	go func() {
		select {
		case <-ctx.Done():
			select {
			case <-stopped:
			default:
				_ = h.Stop(context.WithoutCancel(ctx))
			}
		case <-stopped:
		}
	}()
	return nil
}

// Stop закрывает слушатель, затем все живые соединения, и ждёт завершения их обработчиков.
func (h *Hub) Stop(ctx context.Context) error {
	if !h.running.CompareAndSwap(true, false) {
		return nil
	}
	h.closing.Store(true)
	shutdownCtx, cancel := context.WithTimeoutCause(ctx, 5*time.Second, errors.New("websocket hub shutdown timeout"))
	defer cancel()

	h.mu.Lock()
	srv, stopped := h.srv, h.stopped
	h.ln = nil
	h.mu.Unlock()
	if srv == nil {
		return nil
	}
	close(stopped)

	var err error
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		h.logger.Warnw("graceful shutdown error", "error", serr)
		err = srv.Close()
	}

	// Shutdown не трогает захваченные (hijacked) соединения: предупреждаем клиентов и закрываем их сами
	notified := h.Broadcast(mustEnvelope(TypeSystem, ShutdownText, h.now()))
	h.logger.Infow("Shutdown notice sent", "clients", notified)
	for _, c := range h.snapshot() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		h.logger.Warnw("Connections did not finish in time", "live", h.Count())
		return context.Cause(shutdownCtx)
	}
	return err
}

// Addr возвращает фактический адрес слушателя, если хаб запущен, иначе адрес из конфига.
func (h *Hub) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ln != nil {
		return h.ln.Addr().String()
	}
	return h.cfg.BindAddr
}

// Count число живых соединений.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Snapshot копия множества соединений, упорядоченная по времени подключения.
func (h *Hub) Snapshot() []ConnInfo {
	conns := h.snapshot()
	out := make([]ConnInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, ConnInfo{ID: c.ID.String(), Remote: c.Remote, ConnectedAt: c.ConnectedAt})
	}
	slices.SortFunc(out, func(a, b ConnInfo) int { return a.ConnectedAt.Compare(b.ConnectedAt) })
	return out
}

// Broadcast отправляет конверт всем живым соединениям. Возвращает число успешных отправок.
func (h *Hub) Broadcast(env Envelope) int {
	sent := 0
	for _, c := range h.snapshot() {
		if err := c.send(env); err != nil {
			h.logger.Warnw("Broadcast send failed", "conn", c.ID, "remote", c.Remote, "error", err)
			continue
		}
		sent++
	}
	return sent
}

func (h *Hub) snapshot() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

func (h *Hub) add(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c.ID)
	h.mu.Unlock()
}

// ServeHTTP поднимает соединение до WebSocket и обслуживает его до разрыва.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Add до Upgrade: Shutdown дожидается обработчиков только до захвата соединения
	h.wg.Add(1)
	defer h.wg.Done()
	if h.closing.Load() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader уже ответил клиенту HTTP-ошибкой
		h.logger.Warnw("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	h.serve(ws, r.RemoteAddr)
}

func (h *Hub) serve(ws *websocket.Conn, remote string) {
	c := &Conn{ID: uuid.New(), Remote: remote, ConnectedAt: h.now(), ws: ws}
	h.add(c)
	h.logger.Infow("New client connected", "conn", c.ID, "remote", remote, "live", h.Count())
	defer func() {
		h.remove(c)
		_ = ws.Close()
		h.logger.Infow("Client disconnected", "conn", c.ID, "remote", remote, "live", h.Count())
	}()
	if h.closing.Load() {
		return
	}

	ws.SetReadLimit(h.cfg.ReadLimit)
	// Без pong дольше interval+timeout соединение считается закрытым
	idle := h.cfg.PingInterval + h.cfg.PingTimeout
	_ = ws.SetReadDeadline(time.Now().Add(idle))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(idle))
	})

	done := make(chan struct{})
	defer close(done)
	go h.keepalive(c, done)

	if err := c.send(mustEnvelope(TypeSystem, h.cfg.WelcomeText, h.now())); err != nil {
		h.logger.Warnw("Welcome send failed", "conn", c.ID, "error", err)
		return
	}

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.logger.Warnw("Connection closed", "conn", c.ID, "error", err)
			}
			return
		}
		env := Reply(frame, h.now())
		if env.Type == TypeError {
			h.logger.Warnw("Bad frame", "conn", c.ID, "reason", env.Message, "bytes", len(frame))
		} else {
			h.logger.Debugw("Received message", "conn", c.ID, "bytes", len(frame))
		}
		if err := c.send(env); err != nil {
			h.logger.Warnw("Reply send failed", "conn", c.ID, "error", err)
			return
		}
	}
}

// keepalive шлёт ping с периодом PingInterval до закрытия done.
func (h *Hub) keepalive(c *Conn, done <-chan struct{}) {
	t := time.NewTicker(h.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.PingTimeout)); err != nil {
				return
			}
		}
	}
}

// send пишет конверт. gorilla допускает только одного писателя одновременно.
func (c *Conn) send(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(env)
}
