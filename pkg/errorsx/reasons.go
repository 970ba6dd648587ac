package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonDeviceOpen ReasonCode = "device_open"
	ReasonDeviceRead ReasonCode = "device_read"

	ReasonBusConnect   ReasonCode = "bus_connect"
	ReasonBusPublish   ReasonCode = "bus_publish"
	ReasonBusSubscribe ReasonCode = "bus_subscribe"

	ReasonWakeModelConnect ReasonCode = "wake_model_connect"
	ReasonWakeScore        ReasonCode = "wake_score"

	ReasonRecorderActive ReasonCode = "recorder_active"

	ReasonTranscribeConnect ReasonCode = "transcribe_connect"
	ReasonTranscribeStream  ReasonCode = "transcribe_stream"

	ReasonLLMGenerate    ReasonCode = "llm_generate"
	ReasonLLMRateLimit   ReasonCode = "llm_rate_limit"
	ReasonLLMCircuitOpen ReasonCode = "llm_circuit_open"

	ReasonSynthesize ReasonCode = "tts_synthesize"
	ReasonPlayback   ReasonCode = "tts_playback"

	ReasonSessionTransition ReasonCode = "session_transition"

	ReasonScribeStore ReasonCode = "scribe_store"
)
