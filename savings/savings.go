// Package savings converts saved tokens into money, energy and emissions.
// Every function is linear in tokensSaved so historical records stay
// comparable.
package savings

import "strings"

const (
	// CostPerToken is the notional price of one token in USD.
	CostPerToken = 0.002
	// EnergyPerToken is the energy used to process one token, in kWh.
	EnergyPerToken = 0.00004
	// GridCarbonIntensity is kg CO2e emitted per kWh.
	GridCarbonIntensity = 0.416
	// ElectricityCostPerKWh is the price of one kWh in USD.
	ElectricityCostPerKWh = 0.305
)

// MoneySaved returns tokensSaved * CostPerToken.
func MoneySaved(tokensSaved int) float64 {
	return float64(tokensSaved) * CostPerToken
}

// EnergySaved returns tokensSaved * EnergyPerToken in kWh.
func EnergySaved(tokensSaved int) float64 {
	return float64(tokensSaved) * EnergyPerToken
}

// EmissionsSaved returns EnergySaved * GridCarbonIntensity in kg CO2e.
func EmissionsSaved(tokensSaved int) float64 {
	return EnergySaved(tokensSaved) * GridCarbonIntensity
}

// EnergyCost returns the electricity price of EnergySaved.
func EnergyCost(tokensSaved int) float64 {
	return EnergySaved(tokensSaved) * ElectricityCostPerKWh
}

// Metrics bundles every derived value for one reduction.
type Metrics struct {
	TokensSaved    int
	MoneySaved     float64
	EnergySaved    float64
	EmissionsSaved float64
	EnergyCost     float64
}

// Compute derives all metrics for tokensSaved.
func Compute(tokensSaved int) Metrics {
	return Metrics{
		TokensSaved:    tokensSaved,
		MoneySaved:     MoneySaved(tokensSaved),
		EnergySaved:    EnergySaved(tokensSaved),
		EmissionsSaved: EmissionsSaved(tokensSaved),
		EnergyCost:     EnergyCost(tokensSaved),
	}
}

// modelPrices is USD per input token, matched by model id prefix. Longer
// prefixes come first so "gpt-4-turbo" wins over "gpt-4".
var modelPrices = []struct {
	prefix string
	price  float64
}{
	{"gpt-4-turbo", 0.00001},
	{"gpt-4", 0.00003},
	{"gpt-3.5-turbo", 0.000002},
	{"claude-3-opus", 0.000015},
	{"claude-3-sonnet", 0.000003},
	{"claude-3-haiku", 0.00000025},
}

// DefaultModelPrice applies to models missing from the price table.
const DefaultModelPrice = 0.000002

// ModelPrice returns the per-token price for model.
func ModelPrice(model string) float64 {
	m := strings.ToLower(model)
	for _, p := range modelPrices {
		if strings.HasPrefix(m, p.prefix) {
			return p.price
		}
	}
	return DefaultModelPrice
}

// ModelCostSaved prices tokensSaved at the model's rate.
func ModelCostSaved(tokensSaved int, model string) float64 {
	return float64(tokensSaved) * ModelPrice(model)
}
