package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	WeatherToolName       = "fetch_weather"
	defaultOpenWeatherURL = "https://api.openweathermap.org"
	weatherTimeout        = 10 * time.Second
)

// WeatherTool looks up current conditions on OpenWeatherMap. Every outcome,
// including configuration and upstream failures, is reported as a string the
// agent can relay; Execute only errors on a cancelled context.
type WeatherTool struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewWeatherTool(apiKey string, logger *slog.Logger) *WeatherTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherTool{
		apiKey:  apiKey,
		baseURL: defaultOpenWeatherURL,
		client:  &http.Client{Timeout: weatherTimeout},
		logger:  logger,
	}
}

// WithBaseURL overrides the OpenWeatherMap base URL (for testing).
func (w *WeatherTool) WithBaseURL(baseURL string) *WeatherTool {
	if baseURL != "" {
		w.baseURL = strings.TrimRight(baseURL, "/")
	}
	return w
}

func (w *WeatherTool) Name() string { return WeatherToolName }

func (w *WeatherTool) Description() string {
	return "Fetch the current weather for a given city from OpenWeatherMap. Returns a sentence describing the conditions."
}

func (w *WeatherTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{
				"type":        "string",
				"description": "The city to fetch the weather for, e.g. Paris or New York.",
			},
		},
		"required":             []string{"city"},
		"additionalProperties": false,
	}
}

func (w *WeatherTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	city, _ := params["city"].(string)
	out := w.Lookup(ctx, city)
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

type owmResponse struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// Lookup returns a one-sentence weather report for city in metric units, or
// an "Error..." string describing why it could not.
func (w *WeatherTool) Lookup(ctx context.Context, city string) string {
	if w.apiKey == "" {
		return "Error: OpenWeatherMap API key not found. Please set OPENWEATHER_API in your environment."
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return "Error: City name is required."
	}
	w.logger.Debug("weather_lookup", "city", city)

	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", w.apiKey)
	q.Set("units", "metric")
	endpoint := w.baseURL + "/data/2.5/weather?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Sprintf("Error fetching weather data: %v", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error fetching weather data: %v", redactKey(err, w.apiKey))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Sprintf("Error: City '%s' not found. Please check the spelling.", city)
	case resp.StatusCode == http.StatusUnauthorized:
		return "Error: Invalid API key. Please check your OPENWEATHER_API."
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Sprintf("Error: Unable to fetch weather data. Status code: %d", resp.StatusCode)
	}

	var data owmResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return fmt.Sprintf("Error fetching weather data: %v", err)
	}
	if len(data.Weather) == 0 {
		return "Error fetching weather data: response has no weather conditions"
	}

	return fmt.Sprintf(
		"Weather in %s: %s. Temperature: %s°C (feels like %s°C). Humidity: %s%%. Wind speed: %s m/s.",
		cases.Title(language.Und).String(city),
		capitalize(data.Weather[0].Description),
		num(data.Main.Temp),
		num(data.Main.FeelsLike),
		num(data.Main.Humidity),
		num(data.Wind.Speed),
	)
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// url.Error embeds the full request URL, appid included.
func redactKey(err error, key string) string {
	return strings.ReplaceAll(err.Error(), key, "***")
}
