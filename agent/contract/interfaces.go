package contract

import (
	"context"

	statex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/state"
)

// Completer is the language-model completion endpoint. It returns the raw
// text payload of the assistant message.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type Classifier interface {
	Classify(ctx context.Context, utterance string) (Classification, error)
}

type Specialist interface {
	Run(ctx context.Context, req SpecialistRequest) (SpecialistResponse, error)
}

type Registry interface {
	Classifier() Classifier
	Specialist(intent statex.Intent) (Specialist, error)
}

// TurnRecorder receives committed turns and call endings.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, rec TurnRecord) error
	MarkEnded(ctx context.Context, callID string, outcome string) error
}
