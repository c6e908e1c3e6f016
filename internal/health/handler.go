package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/notesservice/pkg"
)

const pingTimeout = 2 * time.Second

// Pinger is a dependency the service can not work without.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// RedisPinger adapts a redis client, whose Ping returns a *redis.StatusCmd.
func RedisPinger(rdb redis.UniversalClient) Pinger {
	return PingerFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
}

type response struct {
	Status    string `json:"status"`
	Component string `json:"component,omitempty"`
}

type Handler struct {
	components map[string]Pinger
	order      []string
}

func NewHandler() *Handler {
	return &Handler{
		components: map[string]Pinger{},
	}
}

// With adds a named component to be checked, in the order added.
func (h *Handler) With(name string, pinger Pinger) *Handler {
	if _, ok := h.components[name]; !ok {
		h.order = append(h.order, name)
	}
	h.components[name] = pinger
	return h
}

// Components returns the names of the checked components, in check order.
func (h *Handler) Components() []string {
	return append([]string(nil), h.order...)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	for _, name := range h.order {
		if err := h.components[name].Ping(ctx); err != nil {
			log.Errorf("health check, ping %s: %s", name, err)
			pkg.WriteJSONResponse(w, http.StatusServiceUnavailable, response{
				Status:    "unavailable",
				Component: name,
			})
			return
		}
	}

	pkg.WriteJSONResponse(w, http.StatusOK, response{Status: "ok"})
}
