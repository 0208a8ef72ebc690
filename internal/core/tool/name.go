// Package tool defines the tool request/response envelope, the tool registry
// and the input models with their validation rules.
// This is part of the Functional Core - all functions are pure with no I/O.
package tool

// Name identifies a tool.
type Name string

const (
	GoogleAddressValidation Name = "google_address_validation_tool"
	GoogleWebSearch         Name = "google_web_search_tool"
	LoopLookup              Name = "loop_lookup_tool"
	LoopMessage             Name = "loop_message_tool"
	PlaceSearch             Name = "place_search_tool"
	SendEmail               Name = "send_email_tool"
	Weather                 Name = "weather_tool"
	UsageLogging            Name = "usage_logging_tool"
)

// AllNames lists every tool name this service knows about.
var AllNames = []Name{
	GoogleAddressValidation,
	GoogleWebSearch,
	LoopLookup,
	LoopMessage,
	PlaceSearch,
	SendEmail,
	Weather,
	UsageLogging,
}

// Valid reports whether n is a known tool name.
func (n Name) Valid() bool {
	for _, known := range AllNames {
		if n == known {
			return true
		}
	}
	return false
}

func (n Name) String() string {
	return string(n)
}
