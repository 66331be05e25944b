package bridge

import (
	"github.com/MrWong99/saathi/pkg/provider/stt"
	"github.com/MrWong99/saathi/pkg/provider/tts"
	"github.com/MrWong99/saathi/pkg/types"
)

// Frame types sent by the server.
const (
	TypeListen        = "listen"
	TypeStopListening = "stop_listening"
	TypeSpeak         = "speak"
	TypeCancelSpeech  = "cancel_speech"
	TypeState         = "state"
	TypeTurn          = "turn"
	TypeError         = "error"
)

// Frame types sent by the client.
const (
	TypeRecognitionStart  = "recognition_start"
	TypeRecognitionResult = "recognition_result"
	TypeRecognitionError  = "recognition_error"
	TypeRecognitionEnd    = "recognition_end"
	TypeSpeechEnd         = "speech_end"
	TypeSpeechError       = "speech_error"
	TypeStart             = "start"
	TypeCancel            = "cancel"
	TypeReset             = "reset"
)

// Frame is one JSON text message in either direction. Only the fields
// relevant to Type are set.
type Frame struct {
	Type string `json:"type"`

	// ID names a listen activation or a speak utterance. Clients echo it
	// on recognition_* and speech_* frames; an echo for anything but the
	// current activation or utterance is ignored. Recognition frames
	// without an ID apply to the current activation.
	ID string `json:"id,omitempty"`

	Locale string  `json:"locale,omitempty"`
	Text   string  `json:"text,omitempty"`
	Rate   float64 `json:"rate,omitempty"`
	Pitch  float64 `json:"pitch,omitempty"`
	Volume float64 `json:"volume,omitempty"`

	State    string `json:"state,omitempty"`
	Role     string `json:"role,omitempty"`
	Sequence int    `json:"sequence,omitempty"`

	// Kind and Message describe a server-side error.
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`

	// Error is the Web Speech error code reported by the client.
	Error string `json:"error,omitempty"`

	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// Alternative mirrors a SpeechRecognitionAlternative.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Command is a conversation command issued by the client.
type Command string

const (
	CommandStart  Command = TypeStart
	CommandCancel Command = TypeCancel
	CommandReset  Command = TypeReset
)

// RecognitionError maps a Web Speech recognition error code. It returns nil
// for "no-speech", which the controller treats as an empty utterance.
func RecognitionError(code string) error {
	op := "bridge: recognize " + code
	switch code {
	case "no-speech":
		return nil
	case "not-allowed", "service-not-allowed":
		return types.NewError(types.KindPermissionDenied, op, nil)
	case "audio-capture", "language-not-supported":
		return types.NewError(types.KindUnsupportedPlatform, op, nil)
	default:
		return types.NewError(types.KindRecognitionFailed, op, nil)
	}
}

// SpeechOutcome maps a Web Speech synthesis error code to the terminal
// event of the utterance.
func SpeechOutcome(code string) tts.Event {
	switch code {
	case "interrupted", "canceled":
		return tts.Event{Type: tts.EventCancelled}
	default:
		return tts.Event{Type: tts.EventError, Err: types.NewError(types.KindSynthesisFailed, "bridge: speak "+code, nil)}
	}
}

func toAlternatives(in []Alternative) []stt.Alternative {
	out := make([]stt.Alternative, len(in))
	for i, a := range in {
		out[i] = stt.Alternative{Transcript: a.Transcript, Confidence: a.Confidence}
	}
	return out
}
