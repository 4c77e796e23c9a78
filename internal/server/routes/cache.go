package routes

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/any-hub/pagecache/internal/cache"
)

// RegisterCacheRoutes 暴露 /-/cache 诊断接口与 /-/metrics 指标，供 SRE 查看 Slot 分布。
// gatherer 为空时不注册 /-/metrics。
func RegisterCacheRoutes(app *fiber.App, c *cache.Cache, gatherer prometheus.Gatherer) {
	if app == nil || c == nil {
		return
	}

	app.Get("/-/cache", func(ctx fiber.Ctx) error {
		payload, err := encodeListing(c)
		if err != nil {
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_list_failed"})
		}
		return ctx.JSON(payload)
	})

	app.Get("/-/cache/hash", func(ctx fiber.Ctx) error {
		key := ctx.Query("key")
		if key == "" {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "key_required"})
		}
		return ctx.JSON(hashPayload{
			Key:  key,
			Hash: fmt.Sprintf("%d", cache.Hash(key)),
			Slot: cache.SlotID(key),
		})
	})

	if gatherer != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

type listingPayload struct {
	Slots     []cache.Entry `json:"slots"`
	Count     int           `json:"count"`
	SizeLimit int           `json:"size_limit"`
}

type hashPayload struct {
	Key  string `json:"key"`
	Hash string `json:"hash"`
	Slot string `json:"slot"`
}

func encodeListing(c *cache.Cache) (listingPayload, error) {
	payload := listingPayload{Slots: []cache.Entry{}, SizeLimit: c.Size()}
	if !c.Enabled() {
		return payload, nil
	}
	for entry, err := range c.List() {
		if err != nil {
			return listingPayload{}, err
		}
		payload.Slots = append(payload.Slots, entry)
	}
	payload.Count = len(payload.Slots)
	return payload, nil
}
