package coordination

import (
	"sort"
	"strings"

	"disruptline/internal/config"
	"disruptline/internal/domain"
)

type roleSpec struct {
	role     string
	method   string
	priority string
}

type stakeholderPlan struct {
	required []roleSpec
	optional []roleSpec
}

var stakeholderMatrix = map[string]stakeholderPlan{
	"customs_hold": {
		required: []roleSpec{
			{"CHA", "whatsapp", "high"},
			{"shipping_line", "api", "high"},
		},
		optional: []roleSpec{
			{"customs_officer", "phone", "medium"},
			{"port_ops", "sms", "low"},
		},
	},
	"truck_breakdown": {
		required: []roleSpec{
			{"driver", "phone", "high"},
			{"mechanic", "phone", "high"},
		},
		optional: []roleSpec{
			{"depot_manager", "whatsapp", "medium"},
			{"backup_truck", "sms", "high"},
		},
	},
	"port_congestion": {
		required: []roleSpec{
			{"port_ops", "phone", "high"},
			{"shipping_line", "api", "high"},
		},
		optional: []roleSpec{
			{"alternate_port", "api", "medium"},
		},
	},
	"documentation_issue": {
		required: []roleSpec{
			{"shipper", "whatsapp", "high"},
			{"CHA", "whatsapp", "high"},
		},
		optional: []roleSpec{
			{"documentation_team", "email", "medium"},
		},
	},
}

// Regions recognised in free-text locations.
const (
	RegionWest    = "west"
	RegionSouth   = "south"
	RegionNorth   = "north"
	RegionEast    = "east"
	RegionDefault = "default"
)

var regionKeywords = map[string]string{
	"mumbai":      RegionWest,
	"jnpt":        RegionWest,
	"nhava sheva": RegionWest,
	"mundra":      RegionWest,
	"pune":        RegionWest,
	"ahmedabad":   RegionWest,
	"chennai":     RegionSouth,
	"cochin":      RegionSouth,
	"bangalore":   RegionSouth,
	"bengaluru":   RegionSouth,
	"whitefield":  RegionSouth,
	"tuticorin":   RegionSouth,
	"vizag":       RegionSouth,
	"delhi":       RegionNorth,
	"tughlakabad": RegionNorth,
	"ludhiana":    RegionNorth,
	"kolkata":     RegionEast,
	"haldia":      RegionEast,
}

var regionalCHA = map[string]domain.Contact{
	RegionWest: {
		Name:     "Jagdish Customs Clearing",
		Phone:    "+91-98765-43210",
		WhatsApp: "+91-98765-43210",
		Email:    "jagdish@customsclearance.com",
	},
	RegionSouth: {
		Name:     "Seahorse Shipping",
		Phone:    "+91-44-2522-0000",
		WhatsApp: "+91-98400-11223",
		Email:    "clearance@seahorseshipping.in",
	},
	RegionNorth: {
		Name:     "Jeena & Company",
		Phone:    "+91-11-2638-0000",
		WhatsApp: "+91-98110-44556",
		Email:    "ops@jeena.co.in",
	},
}

var defaultDirectory = map[string]domain.Contact{
	"CHA": regionalCHA[RegionWest],
	"shipping_line": {
		Name:        "Maersk Line India",
		APIEndpoint: "https://api.maersk.com/india",
		Email:       "india@maersk.com",
	},
	"shipper": {
		Name:     "Raj Electronics Pvt Ltd",
		Phone:    "+91-98765-00000",
		WhatsApp: "+91-98765-00000",
		Email:    "logistics@rajelectronics.com",
	},
}

// Identifier maps a disruption to the stakeholders worth contacting.
type Identifier struct {
	keywords map[string]string
	ordered  []string
	contacts map[string]map[string]domain.Contact
}

// NewIdentifier builds an identifier from the built-in tables plus any
// keyword and contact overrides in cfg.
func NewIdentifier(cfg config.RegionsConfig) Identifier {
	id := Identifier{
		keywords: make(map[string]string, len(regionKeywords)+len(cfg.Keywords)),
		contacts: map[string]map[string]domain.Contact{},
	}
	for k, v := range regionKeywords {
		id.keywords[k] = v
	}
	for k, v := range cfg.Keywords {
		id.keywords[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	for k := range id.keywords {
		if k != "" {
			id.ordered = append(id.ordered, k)
		}
	}
	// longest keyword first so "nhava sheva" is not shadowed by a shorter match
	sort.Slice(id.ordered, func(i, j int) bool {
		a, b := id.ordered[i], id.ordered[j]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	for region, roles := range cfg.Contacts {
		region = strings.ToLower(strings.TrimSpace(region))
		if id.contacts[region] == nil {
			id.contacts[region] = map[string]domain.Contact{}
		}
		for role, c := range roles {
			id.contacts[region][role] = domain.Contact{
				Name:        c.Name,
				Phone:       c.Phone,
				WhatsApp:    c.WhatsApp,
				SMS:         c.SMS,
				Email:       c.Email,
				APIEndpoint: c.APIEndpoint,
			}
		}
	}
	return id
}

// NormalizeDisruptionType lowercases t and folds spaces and hyphens to
// underscores, so "Customs Hold" matches customs_hold.
func NormalizeDisruptionType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(t)
}

// Identify returns required stakeholders followed by optional ones. An
// unknown disruption type yields an empty list.
func (id Identifier) Identify(disruptionType, location string) []domain.Stakeholder {
	plan, ok := stakeholderMatrix[NormalizeDisruptionType(disruptionType)]
	if !ok {
		return []domain.Stakeholder{}
	}
	region := id.Region(location)
	out := make([]domain.Stakeholder, 0, len(plan.required)+len(plan.optional))
	add := func(specs []roleSpec, required bool) {
		for _, s := range specs {
			out = append(out, domain.Stakeholder{
				Role:          s.role,
				ContactMethod: s.method,
				Priority:      s.priority,
				Required:      required,
				Contact:       id.contact(s.role, region, location),
			})
		}
	}
	add(plan.required, true)
	add(plan.optional, false)
	return out
}

// Region resolves a free-text location to a coarse region.
func (id Identifier) Region(location string) string {
	loc := strings.ToLower(location)
	for _, k := range id.ordered {
		if strings.Contains(loc, k) {
			return id.keywords[k]
		}
	}
	return RegionDefault
}

func (id Identifier) contact(role, region, location string) domain.Contact {
	if c, ok := id.contacts[region][role]; ok {
		return c
	}
	if c, ok := id.contacts[RegionDefault][role]; ok {
		return c
	}
	if role == "CHA" {
		if c, ok := regionalCHA[region]; ok {
			return c
		}
	}
	if role == "port_ops" {
		return domain.Contact{
			Name:  strings.TrimSpace(location + " Port Operations"),
			Phone: "+91-22-1234-5678",
			SMS:   "+91-22-1234-5678",
		}
	}
	if c, ok := defaultDirectory[role]; ok {
		return c
	}
	return domain.Contact{Name: "Unknown " + role}
}
