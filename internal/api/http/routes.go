package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/radarcache/radarcache/internal/cache"
	"github.com/radarcache/radarcache/internal/radar"
	"github.com/radarcache/radarcache/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *cache.Orchestrator) {
	v1 := app.Group("/api/v1")

	v1.Get("/radar/current", func(c *fiber.Ctx) error {
		locReq, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		loc := locReq.toLocation()

		// Trigger first so a stale cache starts refreshing while we serve
		// the last good imagery.
		status := service.TriggerUpdate(loc)

		folder, meta, frames, err := service.GetCurrentFrames(loc)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
					"message": "radar imagery not yet available",
					"update":  status,
				})
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read radar cache")
		}

		return c.JSON(fiber.Map{
			"location": loc,
			"folder":   folder.Name,
			"metadata": meta,
			"frames":   frames,
			"update":   status,
		})
	})

	v1.Post("/radar/update", func(c *fiber.Ctx) error {
		locReq, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		return c.JSON(service.TriggerUpdate(locReq.toLocation()))
	})

	v1.Get("/radar/folders", func(c *fiber.Ctx) error {
		locReq, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		folders, err := service.GetAllFolders(locReq.toLocation())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list cache folders")
		}

		return c.JSON(fiber.Map{"folders": folders})
	})

	v1.Get("/radar/range", func(c *fiber.Ctx) error {
		locReq, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rng, err := service.GetCacheRange(locReq.toLocation())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to compute cache range")
		}

		return c.JSON(rng)
	})

	v1.Get("/radar/series", func(c *fiber.Ctx) error {
		var req seriesQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		series, err := service.GetSeries(req.Location.toLocation(), req.From, req.To)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to assemble time series")
		}

		return c.JSON(fiber.Map{
			"location": req.Location.toLocation(),
			"folders":  series,
		})
	})

	v1.Get("/radar/frame/:index", func(c *fiber.Ctx) error {
		locReq, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		index, err := strconv.Atoi(c.Params("index"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "frame index must be an integer")
		}

		path, err := service.GetFrame(locReq.toLocation(), index)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no radar frames for requested location")
			}
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		return c.SendFile(path)
	})

	v1.Delete("/radar", func(c *fiber.Ctx) error {
		locReq, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		deleted, err := service.DeleteLocation(locReq.toLocation())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to delete cached imagery")
		}

		return c.JSON(fiber.Map{"deleted": deleted})
	})
}

// locationQuery holds query parameters for identifying a location.
type locationQuery struct {
	Suburb string `validate:"required"`
	State  string `validate:"required"`
}

func (l locationQuery) toLocation() radar.Location {
	return radar.Location{
		Suburb: l.Suburb,
		State:  l.State,
	}
}

func parseLocationQuery(c *fiber.Ctx) (locationQuery, error) {
	var q locationQuery

	q.Suburb = c.Query("suburb")
	q.State = c.Query("state")

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}

// seriesQuery holds query parameters for the time-series endpoint. The
// range bounds are optional; an absent bound leaves that side open.
type seriesQuery struct {
	Location locationQuery
	From     *time.Time
	To       *time.Time
}

func (s *seriesQuery) bind(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return err
	}
	s.Location = loc

	if fromStr := c.Query("from"); fromStr != "" {
		from, err := parseTime(fromStr)
		if err != nil {
			return err
		}
		s.From = &from
	}
	if toStr := c.Query("to"); toStr != "" {
		to, err := parseTime(toStr)
		if err != nil {
			return err
		}
		s.To = &to
	}
	if s.From != nil && s.To != nil && s.To.Before(*s.From) {
		return errors.New("to must not be before from")
	}

	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
