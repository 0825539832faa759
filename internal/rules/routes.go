package rules

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the rule engine endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Route("/{ruleID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/activate", h.Activate)
		r.Post("/archive", h.Archive)
		r.Post("/restore", h.Restore)
		r.Post("/rollback", h.Rollback)
		r.Post("/clone", h.Clone)
		r.Get("/versions", h.ListVersions)
		r.Post("/simulate", h.Simulate)
		r.Post("/simulate-batch", h.SimulateBatch)
		r.Get("/script", h.GenerateScript)
		if h.refs != nil {
			r.Get("/references", h.ListReferences)
			r.Post("/references", h.AddReference)
			r.Delete("/references", h.RemoveReference)
		}
	})
}

// MountToolRoutes attaches the standalone validation helpers that do not
// target a stored rule.
func (h *Handler) MountToolRoutes(r chi.Router) {
	r.Post("/expressions/validate", h.ValidateExpression)
	r.Post("/numscript/validate", h.ValidateScript)
}
