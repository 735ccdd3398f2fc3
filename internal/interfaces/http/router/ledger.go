package router

import (
	"github.com/dairyflow/backend/internal/interfaces/http/handler"
)

// Handlers bundles the handlers served under /api/v1
type Handlers struct {
	Materials    *handler.MaterialHandler
	Batches      *handler.BatchHandler
	Allocations  *handler.AllocationHandler
	Reservations *handler.ReservationHandler
	Consumptions *handler.ConsumptionHandler
	Spoilage     *handler.SpoilageHandler
}

// LedgerRoutes builds one domain group per ledger resource
func LedgerRoutes(h Handlers) []*DomainGroup {
	materials := NewDomainGroup("materials", "/materials")
	materials.
		POST("", h.Materials.Register).
		GET("/:id", h.Materials.GetByID)

	batches := NewDomainGroup("batches", "/batches")
	batches.
		POST("", h.Batches.Receive).
		GET("", h.Batches.List).
		GET("/trace/:code", h.Batches.Trace).
		GET("/:id", h.Batches.GetByID).
		POST("/:id/approve", h.Batches.Approve).
		POST("/:id/reject", h.Batches.Reject).
		POST("/:id/spoilage", h.Spoilage.Record).
		POST("/:id/dispose", h.Spoilage.Dispose)

	production := NewDomainGroup("production", "/production-outputs")
	production.POST("", h.Batches.RecordProductionOutput)

	allocations := NewDomainGroup("allocations", "/allocations")
	allocations.
		POST("/preview", h.Allocations.Preview).
		POST("/validate-scan", h.Allocations.ValidateScan)

	reservations := NewDomainGroup("reservations", "/reservations")
	reservations.
		POST("", h.Reservations.Reserve).
		POST("/sweep", h.Reservations.Sweep).
		POST("/:order_ref/release", h.Reservations.Release).
		POST("/:order_ref/fulfill", h.Reservations.Fulfill)

	consumptions := NewDomainGroup("consumptions", "/consumptions")
	consumptions.
		POST("/production", h.Consumptions.IssueForProduction).
		POST("/sale", h.Consumptions.DispatchForSale)

	spoilage := NewDomainGroup("spoilage", "/spoilage")
	spoilage.
		GET("", h.Spoilage.List).
		GET("/export", h.Spoilage.Export).
		POST("/scan", h.Spoilage.Scan).
		POST("/:id/approve", h.Spoilage.Approve)

	return []*DomainGroup{materials, batches, production, allocations, reservations, consumptions, spoilage}
}
