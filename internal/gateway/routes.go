package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danmuck/spinelctl/internal/auth"
	"github.com/danmuck/spinelctl/internal/ncp"
	"github.com/danmuck/spinelctl/internal/protocol"
	"github.com/danmuck/spinelctl/internal/protocol/pack"
	"github.com/danmuck/spinelctl/internal/protocol/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		st := s.dev.Stats()
		body := gin.H{
			"status":     "ok",
			"uptime":     time.Since(s.appeared).String(),
			"service":    s.cfg.Name,
			"version":    "0.0.1",
			"epoch":      st.Epoch,
			"in_flight":  st.InFlight,
			"orphaned":   st.Orphaned,
			"last_reset": st.LastReset.String(),
		}
		if major, minor, ok := s.dev.Negotiated(); ok {
			body["protocol"] = fmt.Sprintf("%d.%d", major, minor)
		}
		c.JSON(http.StatusOK, body)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.GET("/info", func(c *gin.Context) {
		ctx, cancel := s.requestContext(c)
		defer cancel()
		info, err := s.dev.Identify(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	})

	v1.GET("/properties", func(c *gin.Context) {
		list := s.dev.Registry().List()
		out := make([]gin.H, 0, len(list))
		for _, d := range list {
			out = append(out, gin.H{
				"name":      d.Name,
				"id":        uint32(d.ID),
				"signature": d.Signature.String(),
			})
		}
		c.JSON(http.StatusOK, gin.H{"properties": out})
	})

	v1.GET("/properties/:name", func(c *gin.Context) {
		d, err := s.dev.Lookup(c.Param("name"))
		if err != nil {
			respondError(c, err)
			return
		}
		ctx, cancel := s.requestContext(c)
		defer cancel()
		v, err := s.dev.Get(ctx, d.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"property": d.Name,
			"id":       uint32(d.ID),
			"value":    JSONValue(v),
		})
	})

	v1.PUT("/properties/:name", s.requireToken, s.writeHandler("set", Device.Set))
	v1.POST("/properties/:name/insert", s.requireToken, s.writeHandler("insert", Device.Insert))
	v1.POST("/properties/:name/remove", s.requireToken, s.writeHandler("remove", Device.Remove))

	v1.POST("/reset", s.requireToken, func(c *gin.Context) {
		ctx, cancel := s.requestContext(c)
		defer cancel()
		reason, err := s.dev.Reset(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"reason": reason.String(),
			"epoch":  s.dev.Stats().Epoch,
		})
	})

	v1.GET("/notifications", s.notifications)
}

// writeFunc is a Device method expression such as Device.Set.
type writeFunc func(d Device, ctx context.Context, prop protocol.PropertyID, value any) error

type valueBody struct {
	Value any `json:"value"`
}

func (s *Server) writeHandler(op string, write writeFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := s.dev.Lookup(c.Param("name"))
		if err != nil {
			respondError(c, err)
			return
		}
		var body valueBody
		dec := json.NewDecoder(c.Request.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid body: %v", err)})
			return
		}

		ctx, cancel := s.requestContext(c)
		defer cancel()
		if err := write(s.dev, ctx, d.ID, body.Value); err != nil {
			respondError(c, err)
			return
		}
		log.Info().Msgf("gateway.%s property=%s", op, d.Name)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "property": d.Name})
	}
}

// requireToken guards mutating routes when a token is configured.
func (s *Server) requireToken(c *gin.Context) {
	if s.cfg.Token == "" {
		c.Next()
		return
	}
	if err := auth.Check(auth.StaticToken{Token: s.cfg.Token}, c.GetHeader("Authorization")); err != nil {
		log.Warn().Msgf("gateway.auth rejected path=%s err=%v", c.FullPath(), err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.Next()
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ncp.ErrUnknownProperty):
		return http.StatusNotFound
	case badValue(err):
		return http.StatusBadRequest
	case errors.Is(err, pack.ErrCodec), errors.Is(err, ncp.ErrDeviceStatus), errors.Is(err, ncp.ErrProtocolMismatch):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, session.ErrTooManyInFlight),
		errors.Is(err, session.ErrDeviceReset),
		errors.Is(err, session.ErrSessionClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// badValue reports a client value that could not be packed.
func badValue(err error) bool {
	var ce *pack.CodecError
	if errors.As(err, &ce) && ce.Op == "encode" {
		return true
	}
	return errors.Is(err, pack.ErrArity) || errors.Is(err, pack.ErrValueType) || errors.Is(err, pack.ErrValueRange)
}

func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var se *ncp.StatusError
	if errors.As(err, &se) {
		body["device_status"] = se.Status.String()
	}
	c.JSON(statusFor(err), body)
}
