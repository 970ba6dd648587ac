package metrics

// Event names recorded across the bud daemons. Values are stable snake_case
// strings so downstream log tooling can filter on them.
const (
	EventFrameVolume         = "frame_volume"
	EventFrameDropped        = "frame_dropped"
	EventDeviceError         = "device_error"
	EventWakeScore           = "wake_score"
	EventWakeDetection       = "wake_detection"
	EventRecordingStart      = "recording_start"
	EventRecordingStop       = "recording_stop"
	EventNoSpeech            = "no_speech"
	EventTranscription       = "transcription"
	EventTranscriptionDenied = "transcription_denied"
	EventStateChange         = "state_change"
	EventIdleTimeout         = "idle_timeout"
	EventLLMRequest          = "llm_request"
	EventLLMResponse         = "llm_response"
	EventRateLimit           = "rate_limited"
	EventBreakerOpen         = "breaker_open"
	EventBreakerClose        = "breaker_close"
	EventBreakerDenied       = "breaker_denied"
	EventSpeakStart          = "speak_start"
	EventSpeakStop           = "speak_stop"
	EventExchange            = "exchange"
)
