package clinic

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Service is one bookable clinic offering. The catalog is loaded once at
// startup and never mutated afterwards.
type Service struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"durationMinutes"`
}

// Catalog is the immutable set of services the receptionist can talk about.
type Catalog struct {
	services []Service
	byID     map[string]Service
}

// LoadCatalog reads the services JSON file. A missing or unreadable file
// yields an empty catalog rather than an error; the agent handles having
// nothing to offer.
func LoadCatalog(path string) *Catalog {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewCatalog(nil)
	}
	var services []Service
	if err := json.Unmarshal(data, &services); err != nil {
		return NewCatalog(nil)
	}
	return NewCatalog(services)
}

func NewCatalog(services []Service) *Catalog {
	byID := make(map[string]Service, len(services))
	for _, svc := range services {
		byID[svc.ID] = svc
	}
	return &Catalog{services: append([]Service(nil), services...), byID: byID}
}

// Services returns a copy of the catalog contents.
func (c *Catalog) Services() []Service {
	return append([]Service(nil), c.services...)
}

// Lookup returns the service with the given id.
func (c *Catalog) Lookup(id string) (Service, bool) {
	svc, ok := c.byID[id]
	return svc, ok
}

func (c *Catalog) Len() int { return len(c.services) }

// PromptSummary renders the catalog for the agent's grounding prompt.
func (c *Catalog) PromptSummary() string {
	if len(c.services) == 0 {
		return "No services available at this time."
	}
	var b strings.Builder
	for _, svc := range c.services {
		fmt.Fprintf(&b, "\n- %s: %s ($%.0f, %d minutes)", svc.Name, svc.Description, svc.Price, svc.DurationMinutes)
	}
	return b.String()
}
