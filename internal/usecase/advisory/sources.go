// Package advisory defines the soil, weather and market advisors: their data
// sources, guidance text, and the registry that exposes them as tools.
package advisory

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"kisaanmitra/internal/usecase/lookup"
	"kisaanmitra/internal/usecase/normalize"
)

// Domain names.
const (
	DomainSoil    = "soil"
	DomainWeather = "weather"
	DomainMarket  = "market"
)

// Upstream defaults.
const (
	DefaultWeatherEndpoint   = "https://api.openweathermap.org/data/2.5/weather"
	DefaultWeatherCredential = "OPENWEATHER_API_KEY"
	DefaultMarketEndpoint    = "https://api.data.gov.in/resource/9ef84268-d588-465a-a308-a864a43d0070"
	DefaultMarketCredential  = "DATA_GOV_API_KEY"

	// MandiDateLayout is the DD/MM/YYYY layout used by mandi price data.
	MandiDateLayout = "02/01/2006"
)

// Weather units accepted by the weather source.
const (
	UnitsMetric   = "metric"
	UnitsStandard = "standard"
)

// DefaultSoilProperties are requested from the soil source when none are configured.
var DefaultSoilProperties = []string{"ph", "organic_carbon", "nitrogen", "phosphorus", "potassium"}

// SoilSettings configures the soil source.
type SoilSettings struct {
	Endpoint   string
	Properties []string
	// Coverage names the regions the soil source has data for.
	Coverage []string
	Timeout  time.Duration
}

// WeatherSettings configures the weather source.
type WeatherSettings struct {
	Endpoint   string
	Credential string
	Units      string
	Timeout    time.Duration
}

// MarketSettings configures the market price source.
type MarketSettings struct {
	Endpoint   string
	Credential string
	Timeout    time.Duration
	// DatasetName is the provenance tag for dataset-backed lookups.
	DatasetName string
}

// SoilSource describes the gridded soil-property API.
func SoilSource(s SoilSettings) lookup.SourceConfig {
	props := s.Properties
	if len(props) == 0 {
		props = DefaultSoilProperties
	}
	hint := "the soil service has no data for this location"
	if len(s.Coverage) > 0 {
		hint = fmt.Sprintf("soil data is only available for %s; ask the user for a location in a supported region",
			strings.Join(s.Coverage, ", "))
	}

	soil := func(name string) string { return "properties.soil_properties." + name }
	return lookup.SourceConfig{
		Domain:       DomainSoil,
		Source:       "soil-properties",
		Kind:         lookup.SourceHTTP,
		Endpoint:     s.Endpoint,
		FixedParams:  url.Values{"nearby": {"true"}, "properties": props},
		Timeout:      s.Timeout,
		RecordsPath:  "features",
		NoDataStatus: []int{204},
		MessagePaths: []string{"message", "detail", "error"},
		Params: []lookup.ParamSpec{
			{Name: "location", Description: "Village, town or district name"},
			{Name: "lat", Description: "Latitude in decimal degrees, used instead of location", Type: "number"},
			{Name: "lon", Description: "Longitude in decimal degrees, used instead of location", Type: "number"},
		},
		Geocode: &lookup.GeocodeSpec{
			PlaceParam: "location", LatParam: "lat", LonParam: "lon",
			UpstreamLat: "lat", UpstreamLon: "lon",
		},
		Fields: normalize.FieldMapping{
			{Name: "ph", Aliases: []string{soil("ph"), soil("phh2o"), soil("pH")}, Convert: normalize.Chain(normalize.Float(), normalize.Round(2)), Required: true},
			{Name: "organic_carbon", Aliases: []string{soil("organic_carbon"), soil("soc"), soil("oc")}, Convert: normalize.Chain(normalize.Float(), normalize.Round(2))},
			{Name: "nitrogen", Aliases: []string{soil("nitrogen"), soil("n")}, Convert: normalize.Float()},
			{Name: "phosphorus", Aliases: []string{soil("phosphorus"), soil("p")}, Convert: normalize.Float()},
			{Name: "potassium", Aliases: []string{soil("potassium"), soil("k")}, Convert: normalize.Float()},
			{Name: "soil_type", Aliases: []string{soil("soil_type"), "properties.soil_type"}, Convert: normalize.Text()},
		},
		NoDataHint: hint,
	}
}

// WeatherSource describes the current-weather API. With standard units the
// upstream reports Kelvin and temperatures are converted to Celsius.
func WeatherSource(s WeatherSettings) lookup.SourceConfig {
	units := s.Units
	if units == "" {
		units = UnitsMetric
	}
	temp := normalize.Float()
	if units == UnitsStandard {
		temp = normalize.KelvinToCelsius()
	}
	credential := s.Credential
	if credential == "" {
		credential = DefaultWeatherCredential
	}
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultWeatherEndpoint
	}

	return lookup.SourceConfig{
		Domain:          DomainWeather,
		Source:          "openweathermap",
		Kind:            lookup.SourceHTTP,
		Endpoint:        endpoint,
		Credential:      credential,
		CredentialParam: "appid",
		FixedParams:     url.Values{"units": {units}},
		Timeout:         s.Timeout,
		MessagePaths:    []string{"message"},
		Params: []lookup.ParamSpec{
			{Name: "city", Description: "City or town name, e.g. Pune", Required: true, Upstream: "q"},
		},
		Fields: normalize.FieldMapping{
			{Name: "condition", Aliases: []string{"weather.0.description"}, Convert: normalize.Capitalize(), Required: true},
			{Name: "temperature", Aliases: []string{"main.temp"}, Convert: temp, Required: true},
			{Name: "feels_like", Aliases: []string{"main.feels_like"}, Convert: temp},
			{Name: "humidity", Aliases: []string{"main.humidity"}, Convert: normalize.Float()},
			{Name: "wind_speed", Aliases: []string{"wind.speed"}, Convert: normalize.Float()},
		},
		NoDataHint: "no weather report for this city; ask the user for a nearby larger town",
	}
}

var marketParams = []lookup.ParamSpec{
	{Name: "commodity", Description: "Crop or produce name, e.g. Onion", Required: true, Upstream: "filters[commodity]"},
	{Name: "state", Description: "Indian state, e.g. Maharashtra", Required: true, Upstream: "filters[state.keyword]"},
	{Name: "district", Description: "District within the state", Upstream: "filters[district]"},
	{Name: "market", Description: "Mandi (market yard) name", Upstream: "filters[market]"},
}

func marketFields() normalize.FieldMapping {
	price := func(name, title string) normalize.FieldSpec {
		return normalize.FieldSpec{
			Name: name + "_price",
			Aliases: []string{
				name + "_price",
				title + "_x0020_Price",
				title + " X0020 Price",
				title + " Price",
				title + "_Price",
			},
			Convert:  normalize.Integer(),
			Required: name == "modal",
		}
	}
	text := func(name, title string) normalize.FieldSpec {
		return normalize.FieldSpec{Name: name, Aliases: []string{name, title}, Convert: normalize.Text()}
	}
	return normalize.FieldMapping{
		text("commodity", "Commodity"),
		text("state", "State"),
		text("district", "District"),
		text("market", "Market"),
		text("variety", "Variety"),
		price("min", "Min"),
		price("max", "Max"),
		price("modal", "Modal"),
		{
			Name:     "arrival_date",
			Aliases:  []string{"arrival_date", "Arrival_Date", "Arrival Date"},
			Convert:  normalize.Date(MandiDateLayout, normalize.ISODate),
			Required: true,
		},
	}
}

const marketNoDataHint = "no mandi prices found; check the commodity spelling or try a neighbouring district or state"

// MarketAPISource describes the data.gov.in mandi price API.
func MarketAPISource(s MarketSettings) lookup.SourceConfig {
	credential := s.Credential
	if credential == "" {
		credential = DefaultMarketCredential
	}
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultMarketEndpoint
	}
	return lookup.SourceConfig{
		Domain:          DomainMarket,
		Source:          "data.gov.in",
		Kind:            lookup.SourceHTTP,
		Endpoint:        endpoint,
		Credential:      credential,
		CredentialParam: "api-key",
		FixedParams:     url.Values{"format": {"json"}, "limit": {"1"}},
		Timeout:         s.Timeout,
		RecordsPath:     "records",
		MessagePaths:    []string{"message", "error"},
		Params:          marketParams,
		Fields:          marketFields(),
		NoDataHint:      marketNoDataHint,
	}
}

// MarketDatasetSource describes a local mandi price table. State is matched
// exactly; commodity, district and market by substring.
func MarketDatasetSource(s MarketSettings) lookup.SourceConfig {
	name := s.DatasetName
	if name == "" {
		name = "mandi-dataset"
	}
	params := make([]lookup.ParamSpec, len(marketParams))
	for i, p := range marketParams {
		p.Upstream = ""
		params[i] = p
	}
	return lookup.SourceConfig{
		Domain: DomainMarket,
		Source: name,
		Kind:   lookup.SourceDataset,
		Params: params,
		Filters: []lookup.DatasetFilter{
			{Param: "commodity", Columns: []string{"Commodity", "commodity"}, Policy: lookup.MatchContains},
			{Param: "state", Columns: []string{"State", "state"}, Policy: lookup.MatchExact},
			{Param: "district", Columns: []string{"District", "district"}, Policy: lookup.MatchContains},
			{Param: "market", Columns: []string{"Market", "market"}, Policy: lookup.MatchContains},
		},
		DateColumns: []string{"Arrival_Date", "arrival_date", "Arrival Date"},
		DateLayouts: []string{MandiDateLayout, normalize.ISODate},
		Fields:      marketFields(),
		NoDataHint:  marketNoDataHint,
	}
}
