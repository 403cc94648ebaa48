package catalog

import (
	"strconv"
	"strings"
)

// Plan is a subscription tier. MonthlyPrice is in VND; a nil price means "contact sales".
type Plan struct {
	Name         string   `json:"name" yaml:"name"`
	MonthlyPrice *int     `json:"monthlyPrice,omitempty" yaml:"monthly_price,omitempty"`
	Description  string   `json:"description" yaml:"description"`
	Features     []string `json:"features" yaml:"features"`
	Highlight    bool     `json:"highlight,omitempty" yaml:"highlight,omitempty"`
}

func price(v int) *int {
	return &v
}

var plans = []Plan{
	{
		Name:         "Free",
		MonthlyPrice: price(0),
		Description:  "Perfect for trying the service",
		Features: []string{
			"5,000 characters per month",
			"3 basic voices",
			"Limited speech-to-text",
			"Standard processing speed",
		},
	},
	{
		Name:         "Pro",
		MonthlyPrice: price(199000),
		Description:  "For individuals and content creators",
		Features: []string{
			"100,000 characters per month",
			"Full voice library",
			"Priority processing",
			"Voice cloning",
			"Unlimited speech-to-text",
		},
		Highlight: true,
	},
	{
		Name:        "Enterprise",
		Description: "Custom solutions for businesses",
		Features: []string{
			"Unlimited characters",
			"Dedicated API integration",
			"24/7 support",
			"Custom voices",
			"Advanced security",
		},
	},
}

// Plans returns the pricing tiers, cheapest first.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	for i, p := range plans {
		p.Features = append([]string(nil), p.Features...)
		if p.MonthlyPrice != nil {
			p.MonthlyPrice = price(*p.MonthlyPrice)
		}
		out[i] = p
	}
	return out
}

// PlanByName finds a tier case-insensitively.
func PlanByName(name string) (Plan, bool) {
	for _, p := range Plans() {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Plan{}, false
}

// PriceLabel renders the monthly price the way the pricing page shows it.
func (p Plan) PriceLabel() string {
	if p.MonthlyPrice == nil {
		return "Contact us"
	}
	return groupThousands(*p.MonthlyPrice) + "đ/month"
}

func groupThousands(n int) string {
	s := []byte(strings.TrimPrefix(strconv.Itoa(n), "-"))
	var out []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if n < 0 {
		return "-" + string(out)
	}
	return string(out)
}
