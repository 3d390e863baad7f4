package walkthrough

import "time"

// Config holds configuration for the walkthrough coordinator.
type Config struct {
	// SessionTTL is how long a session survives without any mutation.
	SessionTTL time.Duration `json:"session_ttl" mapstructure:"session_ttl"`

	// ClickAdvanceDelay is the auto-advance delay after a valid click.
	ClickAdvanceDelay time.Duration `json:"click_advance_delay" mapstructure:"click_advance_delay"`

	// SelectAdvanceDelay is the auto-advance delay after a dropdown change.
	SelectAdvanceDelay time.Duration `json:"select_advance_delay" mapstructure:"select_advance_delay"`

	// DefaultAdvanceDelay applies to every other non-navigating action.
	DefaultAdvanceDelay time.Duration `json:"default_advance_delay" mapstructure:"default_advance_delay"`

	// AllowedOrigins lists the companion web origins allowed to start a
	// walkthrough through the bridge.
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`

	// CompanionSource is the fixed source tag companion messages carry.
	CompanionSource string `json:"companion_source" mapstructure:"companion_source"`

	// FramesPerSecond limits inbound frames per page connection.
	FramesPerSecond float64 `json:"frames_per_second" mapstructure:"frames_per_second"`

	// FrameBurst is the token bucket size for inbound frames.
	FrameBurst int `json:"frame_burst" mapstructure:"frame_burst"`

	// HandlerTimeout bounds a single message handler.
	HandlerTimeout time.Duration `json:"handler_timeout" mapstructure:"handler_timeout"`

	// AdminToken guards the debug API with a bearer token. Empty disables
	// the check.
	AdminToken string `json:"-" mapstructure:"admin_token"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SessionTTL:          30 * time.Minute,
		ClickAdvanceDelay:   300 * time.Millisecond,
		SelectAdvanceDelay:  500 * time.Millisecond,
		DefaultAdvanceDelay: 800 * time.Millisecond,
		CompanionSource:     "walkthrough-companion",
		FramesPerSecond:     50,
		FrameBurst:          100,
		HandlerTimeout:      10 * time.Second,
		ShutdownTimeout:     15 * time.Second,
	}
}
