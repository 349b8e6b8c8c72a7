package httpapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/mtnpow/snow-data-aggregation/internal/snow"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *snow.Service) {
	api := app.Group("/api/snow")

	// Trigger a synchronous fetch from all providers. The response carries a
	// per-source outcome; only total failure maps to a gateway error.
	api.Post("/fetch", func(c *fiber.Ctx) error {
		result := service.Fetch(c.Context())

		code := fiber.StatusOK
		if result.Status == snow.StatusError {
			code = fiber.StatusBadGateway
		}
		return c.Status(code).JSON(result)
	})

	api.Get("/top-resorts", func(c *fiber.Ctx) error {
		var q topResortsQuery
		q.State = c.Query("state")
		q.Limit = c.QueryInt("limit")

		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		summaries, err := service.TopResorts(c.Context(), snow.TopResortsQuery{
			State: q.State,
			Limit: q.Limit,
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weekly snow summary")
		}
		if len(summaries) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "no snow reports found matching the criteria")
		}

		return c.JSON(summaries)
	})

	api.Get("/reports", func(c *fiber.Ctx) error {
		var q stagedReportsQuery
		q.Source = c.Query("source")
		q.Limit = c.QueryInt("limit", defaultStagedLimit)

		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		source, err := snow.ParseDataSource(q.Source)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		reports, err := service.StagedReports(c.Context(), source, q.Limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch staged reports")
		}
		if reports == nil {
			reports = []snow.SnowReport{}
		}

		return c.JSON(fiber.Map{
			"source":  source,
			"count":   len(reports),
			"reports": reports,
		})
	})
}

const defaultStagedLimit = 100

// topResortsQuery holds query parameters for the weekly summary endpoint.
// The limit never exceeds the 10-row cap of the underlying view.
type topResortsQuery struct {
	State string `validate:"omitempty,alpha,len=2"`
	Limit int    `validate:"omitempty,min=1,max=10"`
}

// stagedReportsQuery holds query parameters for the staging-view endpoint.
type stagedReportsQuery struct {
	Source string `validate:"required,oneof=SNOTEL WeatherUnlocked"`
	Limit  int    `validate:"omitempty,min=1,max=500"`
}
