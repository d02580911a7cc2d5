// Package feedtest 进程内仪表盘后端桩，只供测试使用
// 实现登录/登出/me、摄像头列表与 /ws/video_feed/{camera_id} 推流端点
package feedtest

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lk2023060901/faceview/pkg/security"
)

// Secret 桩服务签发令牌使用的密钥
const Secret = "feedtest-secret"

// CookieName 令牌 cookie 名
const CookieName = "access_token"

type user struct {
	password string
	role     string
	active   bool
}

type camera struct {
	id       int
	name     string
	location string
	enabled  bool
}

type feed struct {
	// down 非 0 时握手直接返回该 HTTP 状态码
	down  int
	dials int
	conns map[*websocket.Conn]struct{}
}

// Server 后端桩
type Server struct {
	URL string

	srv      *httptest.Server
	tokens   *security.JWTManager
	upgrader websocket.Upgrader

	frame         []byte
	frameInterval time.Duration
	legacyBody    bool

	mu      sync.Mutex
	users   map[string]*user
	cameras map[int]*camera
	feeds   map[int]*feed
	done    chan struct{}
	closed  bool
}

// Option 选项
type Option func(*Server)

// WithFrameInterval 推帧间隔，默认 10ms
func WithFrameInterval(d time.Duration) Option {
	return func(s *Server) { s.frameInterval = d }
}

// WithFrame 推送的原始帧内容，发送前做 base64
func WithFrame(b []byte) Option {
	return func(s *Server) { s.frame = b }
}

// WithLegacyTokenBody 登录响应 body 中同时返回 access_token
func WithLegacyTokenBody() Option {
	return func(s *Server) { s.legacyBody = true }
}

// New 启动桩服务，测试结束时自动关闭
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := security.NewJWTManager(&security.JWTConfig{SecretKey: Secret})
	if err != nil {
		t.Fatalf("feedtest: jwt manager: %v", err)
	}

	s := &Server{
		tokens:        tokens,
		frame:         []byte{0xff, 0xd8, 0xff, 0xd9},
		frameInterval: 10 * time.Millisecond,
		users:         make(map[string]*user),
		cameras:       make(map[int]*camera),
		feeds:         make(map[int]*feed),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	engine.POST("/auth/token", s.login)
	engine.POST("/auth/logout", s.logout)
	engine.GET("/auth/me", s.requireUser, s.me)
	engine.GET("/api/cameras", s.requireUser, s.requireRole("admin", "super_admin"), s.listCameras)
	engine.GET("/ws/video_feed/:camera_id", s.videoFeed)

	s.srv = httptest.NewServer(engine)
	s.URL = s.srv.URL
	t.Cleanup(s.Close)
	return s
}

// WSBaseURL ws:// 形式的地址
func (s *Server) WSBaseURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// Close 断开所有推流并关闭服务
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	for _, f := range s.feeds {
		for c := range f.conns {
			_ = c.Close()
		}
	}
	s.mu.Unlock()
	s.srv.Close()
}

// AddUser 添加账号
func (s *Server) AddUser(username, password, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = &user{password: password, role: role, active: true}
}

// SetRole 修改账号角色，已签发的令牌不受影响
func (s *Server) SetRole(username, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		u.role = role
	}
}

// SetActive 启用或停用账号
func (s *Server) SetActive(username string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		u.active = active
	}
}

// AddCamera 添加摄像头
func (s *Server) AddCamera(id int, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cameras[id] = &camera{id: id, name: name, location: "floor-" + strconv.Itoa(id), enabled: true}
}

// SetCameraEnabled 启用或停用摄像头
func (s *Server) SetCameraEnabled(id int, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cameras[id]; ok {
		c.enabled = enabled
	}
}

// Token 为账号签发令牌
func (s *Server) Token(username string) string {
	s.mu.Lock()
	u, ok := s.users[username]
	s.mu.Unlock()
	if !ok {
		return ""
	}
	token, err := s.tokens.Sign(security.Identity{Subject: username, Role: u.role}, 0)
	if err != nil {
		return ""
	}
	return token
}

// SetFeedDown status 非 0 时该摄像头的握手返回该状态码，0 恢复
func (s *Server) SetFeedDown(cameraID int, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedLocked(cameraID).down = status
}

// DropFeed 直接断开底层 TCP 连接，客户端看到异常关闭
func (s *Server) DropFeed(cameraID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.feedLocked(cameraID).conns {
		_ = c.UnderlyingConn().Close()
	}
}

// CloseFeed 发送带关闭码的关闭帧
func (s *Server) CloseFeed(cameraID int, code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	for c := range s.feedLocked(cameraID).conns {
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
}

// Dials 该摄像头累计握手次数
func (s *Server) Dials(cameraID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedLocked(cameraID).dials
}

// Active 该摄像头当前推流连接数
func (s *Server) Active(cameraID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feedLocked(cameraID).conns)
}

func (s *Server) feedLocked(cameraID int) *feed {
	f, ok := s.feeds[cameraID]
	if !ok {
		f = &feed{conns: make(map[*websocket.Conn]struct{})}
		s.feeds[cameraID] = f
	}
	return f
}

func (s *Server) login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	s.mu.Lock()
	u, ok := s.users[username]
	s.mu.Unlock()
	if !ok || u.password != password {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Incorrect username or password"})
		return
	}

	token, err := s.tokens.Sign(security.Identity{Subject: username, Role: u.role}, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   3600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	body := gin.H{"status": "success", "role": u.role}
	if s.legacyBody {
		body["access_token"] = token
		body["token_type"] = "bearer"
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) logout(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1})
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Logged out"})
}

// tokenFrom 依次读取 cookie、Authorization 头与 token 查询参数
func tokenFrom(r *http.Request) string {
	if ck, err := r.Cookie(CookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (s *Server) requireUser(c *gin.Context) {
	id, err := s.tokens.Parse(tokenFrom(c.Request))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
		return
	}
	c.Set("identity", id)
	c.Next()
}

func (s *Server) requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.MustGet("identity").(*security.Identity)
		for _, r := range roles {
			if id.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "User does not have required role"})
	}
}

// me 返回账号当前角色，后端角色调整后可被客户端感知
func (s *Server) me(c *gin.Context) {
	id := c.MustGet("identity").(*security.Identity)
	s.mu.Lock()
	u, ok := s.users[id.Subject]
	var role string
	var active bool
	if ok {
		role, active = u.role, u.active
	}
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": id.Subject, "role": role, "is_active": active})
}

func (s *Server) listCameras(c *gin.Context) {
	s.mu.Lock()
	out := make([]gin.H, 0, len(s.cameras))
	for _, cam := range s.cameras {
		out = append(out, gin.H{
			"id":          cam.id,
			"camera_name": cam.name,
			"location":    cam.location,
			"is_enabled":  cam.enabled,
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i]["id"].(int) < out[j]["id"].(int) })
	c.JSON(http.StatusOK, out)
}

func (s *Server) videoFeed(c *gin.Context) {
	cameraID, err := strconv.Atoi(c.Param("camera_id"))
	if err != nil {
		c.AbortWithStatus(http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	f := s.feedLocked(cameraID)
	f.dials++
	down := f.down
	s.mu.Unlock()
	if down != 0 {
		c.AbortWithStatus(down)
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	id, err := s.tokens.Parse(tokenFrom(c.Request))
	if err != nil {
		closeWith(ws, websocket.ClosePolicyViolation, "Invalid authentication token")
		return
	}
	if id.Role != "admin" && id.Role != "super_admin" {
		closeWith(ws, websocket.ClosePolicyViolation, "Insufficient permissions")
		return
	}

	s.mu.Lock()
	_, known := s.cameras[cameraID]
	if known && !s.closed {
		f.conns[ws] = struct{}{}
	}
	s.mu.Unlock()
	if !known {
		closeWith(ws, websocket.CloseInternalServerErr, "Invalid camera ID")
		return
	}
	defer func() {
		s.mu.Lock()
		delete(f.conns, ws)
		s.mu.Unlock()
	}()

	// 读循环处理客户端关闭帧
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	payload := []byte(base64.StdEncoding.EncodeToString(s.frame))
	ticker := time.NewTicker(s.frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case <-s.done:
			return
		case <-ticker.C:
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

func closeWith(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}
