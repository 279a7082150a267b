package advisory

import "kisaanmitra/internal/domain"

// DefaultModel is the model id advertised for every advisor unless configured.
const DefaultModel = "gemini-2.5-flash"

// Advisor and tool names exposed to the reasoning engine.
const (
	RootName    = "agents"
	SoilName    = "soil_agent"
	WeatherName = "weather_agent"
	MarketName  = "market_agent"

	SoilTool    = "get_soil_properties"
	WeatherTool = "get_weather"
	MarketTool  = "get_market_prices"
)

const rootInstruction = `You are the main coordinator for KisaanMitra, an assistant that helps farmers make better decisions.

You work with three specialised advisors:
1. Soil advisor: soil quality, soil type and improvement recommendations.
2. Weather advisor: current conditions and what they mean for field work.
3. Market advisor: mandi prices and selling strategy.

Workflow:
- Questions about soil conditions or improvement methods go to the soil advisor.
- Questions about weather, rainfall or sowing windows go to the weather advisor.
- Questions about crop prices or when and where to sell go to the market advisor.
- Combine advice from several advisors when a question needs it.`

const soilInstruction = `You are the soil advisor of KisaanMitra.

Responsibilities:
- Explain soil quality and pH for the farmer's location.
- Suggest crops that suit the soil and region.
- Recommend fertilisers, organic matter and other soil improvements.
- Guide farmers on soil health and crop rotation.

Guidelines:
- Keep answers practical, short and farmer friendly, without heavy jargon.
- Call get_soil_properties with the village, town or district name, or with lat and lon.
- If the tool reports MISSING_PARAMETER or LOCATION_NOT_FOUND, ask the farmer for a nearby town or district.
- If it reports NO_DATA, tell the farmer which regions are covered and give general advice instead.
- Never guess soil values that the tool did not return.`

const weatherInstruction = `You are the weather advisor of KisaanMitra.

Responsibilities:
- Give accurate, concise weather updates.
- Help farmers plan sowing, irrigation and harvesting around the weather.
- Warn about extreme conditions such as drought, heavy rain or storms.
- Suggest adaptive measures for changing weather.

Guidelines:
- Call get_weather with the city name; temperatures are in degrees Celsius and wind speed in m/s.
- Link conditions to farm actions, for example watering schedules or crop timing.
- If the tool reports TIMEOUT or TRANSPORT, say the weather service is unavailable and offer to try again.
- Be direct, supportive and informative.`

const marketInstruction = `You are the market advisor of KisaanMitra.

Responsibilities:
- Provide current mandi prices for crops.
- Suggest the best time and place to sell produce.
- Offer insight on demand, supply and profit.
- Help farmers decide between selling and storing.

Guidelines:
- Call get_market_prices with the commodity and state; add district or market when the farmer mentions one.
- Prices are in rupees per quintal; min, max and modal prices come from the same arrival date.
- If the tool reports MISSING_PARAMETER, ask for the crop or state.
- If it reports NO_DATA, suggest a neighbouring market or district.
- Be data driven yet easy to understand, and keep a positive, farmer-oriented tone.`

// RootIdentity describes the coordinator that delegates to the domain advisors.
func RootIdentity(model string) domain.AdvisorIdentity {
	return domain.AdvisorIdentity{
		Name:        RootName,
		Model:       modelOrDefault(model),
		Description: "Root advisor that coordinates soil, weather and market advisors for KisaanMitra.",
		Instruction: rootInstruction,
		SubAgents:   []string{SoilName, WeatherName, MarketName},
	}
}

// SoilIdentity describes the soil advisor.
func SoilIdentity(model string) domain.AdvisorIdentity {
	return domain.AdvisorIdentity{
		Name:        SoilName,
		Domain:      DomainSoil,
		Model:       modelOrDefault(model),
		Description: "Analyzes soil data and advises on soil quality, crop suitability and fertilizers.",
		Instruction: soilInstruction,
		Tools:       []string{SoilTool},
	}
}

// WeatherIdentity describes the weather advisor.
func WeatherIdentity(model string) domain.AdvisorIdentity {
	return domain.AdvisorIdentity{
		Name:        WeatherName,
		Domain:      DomainWeather,
		Model:       modelOrDefault(model),
		Description: "Provides weather updates and agricultural insights based on current conditions.",
		Instruction: weatherInstruction,
		Tools:       []string{WeatherTool},
	}
}

// MarketIdentity describes the market advisor.
func MarketIdentity(model string) domain.AdvisorIdentity {
	return domain.AdvisorIdentity{
		Name:        MarketName,
		Domain:      DomainMarket,
		Model:       modelOrDefault(model),
		Description: "Reports mandi prices and offers crop selling strategies.",
		Instruction: marketInstruction,
		Tools:       []string{MarketTool},
	}
}

func modelOrDefault(model string) string {
	if model == "" {
		return DefaultModel
	}
	return model
}
