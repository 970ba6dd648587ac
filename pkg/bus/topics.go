package bus

// Topics carried on the bus. session/state and robot/emotion are published
// retained so late subscribers learn the current phase immediately.
const (
	TopicWakeDetected   = "session/wake_detected"
	TopicSessionState   = "session/state"
	TopicSessionCommand = "session/command"
	TopicTranscription  = "audio/transcription"
	TopicLLMRequest     = "llm/request"
	TopicLLMResponse    = "llm/response"
	TopicSpeaking       = "robot/speaking"
	TopicEmotion        = "robot/emotion"
)

// Commands accepted on TopicSessionCommand.
const (
	CommandReset  = "reset"
	CommandCancel = "cancel"
)
