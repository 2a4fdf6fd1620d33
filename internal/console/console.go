// Package console feeds the instructor console. Each connection runs its own sync client
// inside the server and streams the mirror as server-sent events.
package console

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/simlive/internal/alert"
	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/errors"
	"github.com/victornm/simlive/internal/event"
	"github.com/victornm/simlive/internal/fingerprint"
	"github.com/victornm/simlive/internal/session"
	"github.com/victornm/simlive/internal/syncclient"
)

const frameBuffer = 16

type Config struct {
	Session  *session.Service
	EventBus *event.Bus
	// Fingerprints is optional. Without it polls read the store.
	Fingerprints *fingerprint.Service
	Interval     time.Duration
}

type Console struct {
	c Config
}

func New(c Config) *Console {
	return &Console{c: c}
}

// RegisterHTTP mounts the stream under /v1/console/:code/stream. Query flags are the viewer
// flags (mute, autoreport).
func (h *Console) RegisterHTTP(r gin.IRouter) {
	r.GET("/v1/console/:code/stream", h.stream)
}

type frame struct {
	name string
	data any
}

func (h *Console) stream(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	frames := make(chan frame, frameBuffer)
	emit := func(f frame) {
		select {
		case frames <- f:
		case <-ctx.Done():
		}
	}

	flags := syncclient.ParseFlags(c.Request.URL.Query())
	client := syncclient.New(syncclient.Config{
		Code:         c.Param("code"),
		Puller:       syncclient.LocalPuller{Session: h.c.Session, Fingerprints: h.c.Fingerprints},
		Subscriber:   syncclient.BusSubscriber{EventBus: h.c.EventBus},
		Interval:     h.c.Interval,
		JoinAttempts: 1,
		Flags:        flags,
		Alerter: alert.New(alert.Config{
			Player: alert.PlayerFunc(func(_ context.Context, cue alert.Cue) error {
				emit(frame{name: "cue", data: gin.H{"cue": cue}})
				return nil
			}),
			Unlocked: true,
		}),
		OnChange: func(s domain.Snapshot) {
			emit(frame{name: "snapshot", data: s})
		},
		OnEnded: func(sessionID string) {
			emit(frame{name: "ended", data: gin.H{"sessionId": sessionID}})
		},
	})

	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx)
	}()

	c.Stream(func(io.Writer) bool {
		select {
		case f := <-frames:
			c.SSEvent(f.name, f.data)
			return true

		case err := <-done:
			done <- err
			if err != nil && !c.Writer.Written() {
				e := errors.Convert(err)
				c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{
					"code":    e.Code.String(),
					"message": e.Message,
				})
			}
			return false

		case <-ctx.Done():
			return false
		}
	})

	cancel()
	if err := <-done; err != nil {
		slog.DebugContext(ctx, "console: stream closed", "code", c.Param("code"), "error", err)
	}
}
