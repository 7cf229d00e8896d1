package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elmojondesatan/backend-asist/internal/attendance"
	"github.com/elmojondesatan/backend-asist/internal/auth"
	"github.com/elmojondesatan/backend-asist/internal/config"
	"github.com/elmojondesatan/backend-asist/internal/httpmiddleware"
	"github.com/elmojondesatan/backend-asist/internal/metrics"
	"github.com/elmojondesatan/backend-asist/internal/notify"
	"github.com/elmojondesatan/backend-asist/internal/queue"
	"github.com/elmojondesatan/backend-asist/internal/store"
	"github.com/elmojondesatan/backend-asist/internal/user"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBPoolSize)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "asistencia:avisos")
	}

	users := user.NewService(user.NewRepository(db.Client), cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	att := attendance.NewService(attendance.NewRepository(db.Client), cfg.BatchTimeout)
	console := notify.Console{}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	loginLimit := httpmiddleware.NewRedisLimiter(redisClient.Client, "asistencia:auth", cfg.LoginRateLimit, time.Minute)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		ctx := c.Request.Context()
		redisHealthy := redisClient.Healthy(ctx)
		dbHealthy := db.Healthy(ctx)
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/register", func(c *gin.Context) {
		var req struct {
			Nombre   string `json:"nombre" binding:"required"`
			Correo   string `json:"correo" binding:"required,email"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "nombre, correo y password son obligatorios"})
			return
		}

		if _, err := users.Register(c.Request.Context(), req.Nombre, req.Correo, req.Password); err != nil {
			switch {
			case errors.Is(err, user.ErrInvalidInput):
				c.JSON(http.StatusBadRequest, gin.H{"error": "nombre, correo y password son obligatorios"})
			case errors.Is(err, user.ErrDuplicateEmail):
				c.JSON(http.StatusConflict, gin.H{"error": "el correo ya está registrado"})
			default:
				failStorage(c, "register", err)
			}
			return
		}
		c.JSON(http.StatusCreated, gin.H{"mensaje": "usuario registrado con éxito"})
	})

	r.POST("/login", loginLimit.GinMiddleware(), func(c *gin.Context) {
		var req struct {
			Correo   string `json:"correo" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "correo y password son obligatorios"})
			return
		}

		token, u, err := users.Login(c.Request.Context(), req.Correo, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, user.ErrUnknownEmail):
				metrics.Logins.WithLabelValues("rejected").Inc()
				c.JSON(http.StatusUnauthorized, gin.H{"error": "correo no registrado"})
			case errors.Is(err, user.ErrBadCredentials):
				metrics.Logins.WithLabelValues("rejected").Inc()
				c.JSON(http.StatusUnauthorized, gin.H{"error": "contraseña incorrecta"})
			default:
				metrics.Logins.WithLabelValues("error").Inc()
				failStorage(c, "login", err)
			}
			return
		}
		metrics.Logins.WithLabelValues("ok").Inc()
		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user":  gin.H{"id": u.ID, "nombre": u.Nombre, "correo": u.Correo},
		})
	})

	r.POST("/recover", loginLimit.GinMiddleware(), func(c *gin.Context) {
		var req struct {
			Correo string `json:"correo" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "correo es obligatorio"})
			return
		}

		u, plain, err := users.Recover(c.Request.Context(), req.Correo)
		if err != nil {
			if errors.Is(err, user.ErrUnknownEmail) {
				metrics.Recoveries.WithLabelValues("unknown").Inc()
				c.JSON(http.StatusNotFound, gin.H{"error": "correo no encontrado"})
				return
			}
			metrics.Recoveries.WithLabelValues("error").Inc()
			failStorage(c, "recover", err)
			return
		}

		notice := notify.Notice{Correo: u.Correo, Nombre: u.Nombre, Password: plain}
		body, _ := json.Marshal(notice)
		if err := q.Publish(c.Request.Context(), queue.Message{Type: "recovery", Body: body}); err != nil {
			// Delivery must not be lost when the queue is down.
			log.Printf("queue publish failed, delivering inline: %v", err)
			_ = console.Deliver(c.Request.Context(), notice)
		}
		metrics.Recoveries.WithLabelValues("ok").Inc()
		c.JSON(http.StatusOK, gin.H{"mensaje": "nueva contraseña generada y enviada"})
	})

	protected := r.Group("/", auth.RequireUser(cfg.JWTSecret, cfg.JWTIssuer))

	protected.GET("/alumnos", func(c *gin.Context) {
		students, err := att.Students(c.Request.Context())
		if err != nil {
			failStorage(c, "list alumnos", err)
			return
		}
		if students == nil {
			students = []attendance.Student{}
		}
		c.JSON(http.StatusOK, students)
	})

	protected.POST("/alumnos", func(c *gin.Context) {
		var req struct {
			Nombre   string  `json:"nombre" binding:"required"`
			Apellido *string `json:"apellido"`
			Correo   *string `json:"correo"`
			GradoID  *string `json:"grado_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "nombre es obligatorio"})
			return
		}
		created, err := att.AddStudent(c.Request.Context(), attendance.Student{
			Nombre:   req.Nombre,
			Apellido: req.Apellido,
			Correo:   req.Correo,
			GradoID:  req.GradoID,
		})
		if err != nil {
			failStorage(c, "create alumno", err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": created.ID})
	})

	protected.POST("/asistencias/guardar", func(c *gin.Context) {
		obs, err := decodeObservations(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cuerpo inválido: se espera un objeto o un arreglo de asistencias"})
			return
		}

		saved, rejected, err := att.SaveBatch(c.Request.Context(), c.GetString(auth.CtxUserID), obs)
		if err != nil {
			if errors.Is(err, attendance.ErrEmptyBatch) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "ninguna asistencia válida en el lote", "omitidas": rejected})
				return
			}
			failStorage(c, "guardar asistencias", err)
			return
		}
		if rejected == nil {
			rejected = []attendance.Rejected{}
		}
		c.JSON(http.StatusOK, gin.H{
			"mensaje":   "asistencias guardadas correctamente",
			"guardadas": saved,
			"omitidas":  rejected,
		})
	})

	protected.GET("/asistencias", func(c *gin.Context) {
		fecha := time.Now().UTC()
		if v := c.Query("fecha"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "fecha inválida, formato AAAA-MM-DD"})
				return
			}
			fecha = parsed
		}
		fecha = fecha.Truncate(24 * time.Hour)
		records, err := att.RecordsFor(c.Request.Context(), fecha)
		if err != nil {
			failStorage(c, "list asistencias", err)
			return
		}
		if records == nil {
			records = []attendance.Record{}
		}
		c.JSON(http.StatusOK, records)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

// decodeObservations accepts a single observation object or an array of
// them, matching what the frontend sends.
func decodeObservations(body io.Reader) ([]attendance.Observation, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}
	if trimmed[0] == '[' {
		var obs []attendance.Observation
		if err := json.Unmarshal(trimmed, &obs); err != nil {
			return nil, err
		}
		return obs, nil
	}
	var single attendance.Observation
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, err
	}
	return []attendance.Observation{single}, nil
}

// failStorage maps storage errors to a response. Pool exhaustion is a
// distinguished retryable condition; everything else is an opaque 500 with
// detail kept in the server log.
func failStorage(c *gin.Context, op string, err error) {
	log.Printf("%s failed: %v", op, err)
	if store.IsPoolExhausted(err) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "servicio saturado, intente de nuevo"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "error del servidor"})
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
