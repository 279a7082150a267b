package tool

import (
	"fmt"
	"sort"
	"strings"

	"kisaanmitra/internal/domain"
	"kisaanmitra/internal/usecase/advisory"
)

// Summarize renders an envelope as the short text a model reads back to the user.
// place names the location or city the caller asked about.
func Summarize(env domain.ResultEnvelope, place string) string {
	if env.IsError() {
		if env.Error == nil {
			return "lookup failed"
		}
		return fmt.Sprintf("%s lookup failed (%s): %s", env.Domain, env.Error.Kind, env.Error.Hint)
	}
	rec := env.Record
	if rec == nil {
		return ""
	}

	var b strings.Builder
	switch rec.Domain {
	case advisory.DomainWeather:
		summarizeWeather(&b, rec, place)
	case advisory.DomainSoil:
		summarizeSoil(&b, rec, place)
	case advisory.DomainMarket:
		summarizeMarket(&b, rec)
	default:
		fmt.Fprintf(&b, "%s data from %s:", rec.Domain, rec.Source)
		names := make([]string, 0, len(rec.Fields))
		for name := range rec.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "\n- %s: %v", name, rec.Fields[name])
		}
	}
	if len(rec.Missing) > 0 {
		fmt.Fprintf(&b, "\n(not reported: %s)", strings.Join(rec.Missing, ", "))
	}
	return b.String()
}

func summarizeWeather(b *strings.Builder, rec *domain.NormalizedRecord, city string) {
	if city == "" {
		city = "the requested city"
	}
	fmt.Fprintf(b, "Weather in %s:", city)
	if v, ok := rec.Fields["condition"]; ok {
		fmt.Fprintf(b, "\n- Condition: %v", v)
	}
	if v, ok := rec.Fields["temperature"]; ok {
		fmt.Fprintf(b, "\n- Temperature: %v°C", v)
		if f, ok := rec.Fields["feels_like"]; ok {
			fmt.Fprintf(b, " (feels like %v°C)", f)
		}
	}
	if v, ok := rec.Fields["humidity"]; ok {
		fmt.Fprintf(b, "\n- Humidity: %v%%", v)
	}
	if v, ok := rec.Fields["wind_speed"]; ok {
		fmt.Fprintf(b, "\n- Wind Speed: %v m/s", v)
	}
}

var soilLabels = []struct{ field, label string }{
	{"ph", "pH"},
	{"organic_carbon", "Organic carbon"},
	{"nitrogen", "Nitrogen"},
	{"phosphorus", "Phosphorus"},
	{"potassium", "Potassium"},
	{"soil_type", "Soil type"},
}

func summarizeSoil(b *strings.Builder, rec *domain.NormalizedRecord, place string) {
	switch {
	case place != "":
	case rec.Location != nil && rec.Location.DisplayName != "":
		place = rec.Location.DisplayName
	case rec.Location != nil:
		place = fmt.Sprintf("%.4f, %.4f", rec.Location.Latitude, rec.Location.Longitude)
	default:
		place = "the requested location"
	}
	fmt.Fprintf(b, "Soil at %s:", place)
	for _, l := range soilLabels {
		if v, ok := rec.Fields[l.field]; ok {
			fmt.Fprintf(b, "\n- %s: %v", l.label, v)
		}
	}
}

func summarizeMarket(b *strings.Builder, rec *domain.NormalizedRecord) {
	where := make([]string, 0, 3)
	for _, k := range []string{"market", "district", "state"} {
		if v, ok := rec.Fields[k]; ok {
			where = append(where, fmt.Sprint(v))
		}
	}
	commodity := "Commodity"
	if v, ok := rec.Fields["commodity"]; ok {
		commodity = fmt.Sprint(v)
	}
	fmt.Fprintf(b, "%s prices", commodity)
	if len(where) > 0 {
		fmt.Fprintf(b, " at %s", strings.Join(where, ", "))
	}
	if v, ok := rec.Fields["arrival_date"]; ok {
		fmt.Fprintf(b, " on %v", v)
	}
	b.WriteString(":")
	if v, ok := rec.Fields["variety"]; ok {
		fmt.Fprintf(b, "\n- Variety: %v", v)
	}
	for _, p := range []struct{ field, label string }{
		{"modal_price", "Modal"},
		{"min_price", "Min"},
		{"max_price", "Max"},
	} {
		if v, ok := rec.Fields[p.field]; ok {
			fmt.Fprintf(b, "\n- %s: Rs %v/quintal", p.label, v)
		}
	}
}
