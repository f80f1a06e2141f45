package pipeline

import "github.com/use-agent/promptopt/models"

// Health reports which collaborators are wired. The pipeline is degraded
// when no text-generation provider or no translation backend is available.
func (p *Pipeline) Health() models.PipelineHealth {
	h := models.PipelineHealth{
		Status:         "healthy",
		TargetLanguage: p.cfg.TargetLanguage,
		Concurrency:    p.cfg.Concurrency,
	}

	if d, ok := p.distiller.(interface{ Providers() []string }); ok {
		h.Distillers = d.Providers()
	}
	if d, ok := p.distiller.(interface{ Model() string }); ok {
		h.DefaultModel = d.Model()
	}
	if t, ok := p.translator.(interface{ Backends() []string }); ok {
		h.Translators = t.Backends()
	}
	if c, ok := p.counter.(interface{ Names() []string }); ok {
		h.TokenCounters = c.Names()
	}

	if len(h.Distillers) == 0 || len(h.Translators) == 0 {
		h.Status = "degraded"
	}
	return h
}
