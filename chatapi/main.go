package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tomappdev/coach"
	"tomappdev/framing"
	"tomappdev/logger"
	"tomappdev/players"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RoleHeader carries the conversation role next to the message history.
const RoleHeader = "X-Role"

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

type RoleInfo struct {
	Role        coach.Role `json:"role"`
	Greeting    string     `json:"greeting"`
	Suggestions []string   `json:"suggestions"`
}

type PlayerProfile struct {
	Name             string                  `json:"name"`
	DisplayName      string                  `json:"studentName"`
	Age              int                     `json:"age"`
	Skills           map[players.Skill]int   `json:"skills"`
	Strengths        []string                `json:"strengths"`
	ImprovementAreas []string                `json:"improvementAreas"`
	Insights         []players.Insight       `json:"insights"`
	MonthlyProgress  []players.WeeklyAverage `json:"monthlyProgress"`
}

type ChatAPIConnectProps struct {
	Logger    *logger.LogMiddleware
	Generator *coach.Generator
	Player    *players.Statistics
	// RatePerMinute limits chat requests per client address. Zero disables it.
	// Loopback callers, such as the bundled Telegram bot, are not limited.
	RatePerMinute int
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only set it behind a proxy that overwrites those headers.
	TrustProxy bool
}

type ChatAPI struct {
	logger     *logger.LogMiddleware
	generator  *coach.Generator
	player     *players.Statistics
	limiter    *clientLimiter
	trustProxy bool
}

func Connect(ctx context.Context, args ChatAPIConnectProps) *ChatAPI {
	tracer := otel.Tracer("chatapi/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	if args.Logger == nil {
		args.Logger = logger.Nop()
	}

	generator := args.Generator
	if generator == nil {
		generator = coach.NewGenerator(nil)
	}
	player := args.Player
	if player == nil {
		player = players.Sample()
	}

	var limiter *clientLimiter
	if args.RatePerMinute > 0 {
		limiter = newClientLimiter(args.RatePerMinute)
	}

	span.SetAttributes(
		attribute.String("player.name", player.Name),
		attribute.Int("rate_per_minute", args.RatePerMinute),
		attribute.Bool("trust_proxy", args.TrustProxy),
	)
	args.Logger.Logger(ctx).Info("[ChatAPI] Chat API ready",
		zap.String("player", player.Name),
		zap.Int("rate_per_minute", args.RatePerMinute),
		zap.Bool("trust_proxy", args.TrustProxy),
	)

	return &ChatAPI{logger: args.Logger, generator: generator, player: player, limiter: limiter, trustProxy: args.TrustProxy}
}

// Handler returns the instrumented router.
func (c *ChatAPI) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if c.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestLoggerMiddleware(c.logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		if c.limiter != nil {
			r.With(c.limiter.middleware(c.logger)).Post("/chat", c.handleChat)
		} else {
			r.Post("/chat", c.handleChat)
		}
		r.Get("/roles", c.handleRoles)
		r.Get("/roles/{role}", c.handleRole)
		r.Get("/player", c.handlePlayer)
	})

	return otelhttp.NewHandler(r, "chatapi")
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down.
func (c *ChatAPI) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		c.logger.Logger(ctx).Info("[ChatAPI] Server starting", zap.String("addr", addr))
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("chat api server: %w", err)
	case <-ctx.Done():
	}

	c.logger.Logger(ctx).Info("[ChatAPI] Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("chat api shutdown: %w", err)
	}
	return nil
}

func (c *ChatAPI) handleChat(w http.ResponseWriter, r *http.Request) {
	tracer := otel.Tracer("chatapi/handleChat")
	ctx, span := tracer.Start(r.Context(), "handleChat")
	defer span.End()

	log := c.logger.Logger(ctx)

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		span.RecordError(err)
		log.Warn("[ChatAPI] Could not decode chat request", zap.Error(err))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	role, ok := coach.ParseRole(r.Header.Get(RoleHeader))
	if !ok {
		log.Warn("[ChatAPI] Unrecognised role, using generic replies", zap.String("role", string(role)))
	}

	lastMessage := ""
	if n := len(req.Messages); n > 0 {
		lastMessage = req.Messages[n-1].Content
	}

	response := c.generator.Generate(role, lastMessage, c.player)

	span.SetAttributes(
		attribute.String("chat.role", string(role)),
		attribute.Int("chat.history_length", len(req.Messages)),
		attribute.Int("chat.response_length", len(response)),
	)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	frames := framing.NewWriter(w)
	if err := frames.WriteText(response); err != nil {
		span.RecordError(err)
		log.Error("[ChatAPI] Could not write text frame", zap.Error(err))
		return
	}
	if err := frames.WriteEnd(); err != nil {
		span.RecordError(err)
		log.Error("[ChatAPI] Could not write end frame", zap.Error(err))
		return
	}

	log.Info("[ChatAPI] Response streamed",
		zap.String("role", string(role)),
		zap.Int("history_length", len(req.Messages)),
	)
}

func (c *ChatAPI) handleRoles(w http.ResponseWriter, r *http.Request) {
	infos := make([]RoleInfo, 0, len(coach.Roles))
	for _, role := range coach.Roles {
		infos = append(infos, roleInfo(role))
	}
	c.writeJSON(w, r, http.StatusOK, infos)
}

func (c *ChatAPI) handleRole(w http.ResponseWriter, r *http.Request) {
	value := chi.URLParam(r, "role")
	role, ok := coach.ParseRole(value)
	if !ok || value == "" {
		http.Error(w, "unknown role", http.StatusNotFound)
		return
	}
	c.writeJSON(w, r, http.StatusOK, roleInfo(role))
}

func (c *ChatAPI) handlePlayer(w http.ResponseWriter, r *http.Request) {
	p := c.player
	c.writeJSON(w, r, http.StatusOK, PlayerProfile{
		Name:             p.Name,
		DisplayName:      p.DisplayName,
		Age:              p.Age,
		Skills:           p.Scores(),
		Strengths:        p.StrengthAreas(),
		ImprovementAreas: p.ImprovementAreas(),
		Insights:         p.Insights(),
		MonthlyProgress:  players.MonthlyProgress(),
	})
}

func roleInfo(role coach.Role) RoleInfo {
	return RoleInfo{Role: role, Greeting: coach.Greeting(role), Suggestions: coach.Suggestions(role)}
}

func (c *ChatAPI) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		c.logger.Logger(r.Context()).Error("[ChatAPI] Could not encode response", zap.Error(err), zap.String("path", r.URL.Path))
	}
}

func requestLoggerMiddleware(logger *logger.LogMiddleware) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			logger.Logger(ctx).Info("Request Received",
				zap.String("url", r.URL.Path),
				zap.String("method", r.Method),
				zap.String("request_id", middleware.GetReqID(ctx)),
			)
			next.ServeHTTP(ww, r)
			logger.Logger(ctx).Info("Request Completed",
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
