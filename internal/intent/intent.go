// Package intent defines the side-effect records emitted by the decision
// processor and executed by a storage adapter.
package intent

import (
	"time"

	"jobmate/swipe-service/internal/model"
)

// Kind discriminates the Intent variants.
type Kind string

const (
	KindRecordSwipe           Kind = "RecordSwipe"
	KindCreateApplication     Kind = "CreateApplication"
	KindBootstrapConversation Kind = "BootstrapConversation"
	KindToggleSave            Kind = "ToggleSave"
	KindExcludeFromFeed       Kind = "ExcludeFromFeed"
)

// Intent is a side effect the processor requires but never performs itself.
// Exactly one of the payload pointers is set, matching Kind.
type Intent struct {
	Kind         Kind                   `json:"kind"`
	Swipe        *model.SwipeRecord     `json:"swipe,omitempty"`
	Application  *model.Application     `json:"application,omitempty"`
	Conversation *ConversationBootstrap `json:"conversation,omitempty"`
	Save         *SaveToggle            `json:"save,omitempty"`
	Exclude      *FeedExclusion         `json:"exclude,omitempty"`
}

// ConversationBootstrap opens a chat between applicant and employer with a
// first message sent on the applicant's behalf.
type ConversationBootstrap struct {
	ID            string    `json:"id"`
	JobID         string    `json:"jobId"`
	ApplicationID string    `json:"applicationId"`
	SenderID      string    `json:"senderId"`
	RecipientID   string    `json:"recipientId"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SaveToggle adds (Saved=true) or removes a job from the saved set.
// Auto marks the save implied by an apply.
type SaveToggle struct {
	SeekerID string `json:"seekerId"`
	JobID    string `json:"jobId"`
	Saved    bool   `json:"saved"`
	Auto     bool   `json:"auto,omitempty"`
}

// FeedExclusion removes a decided job from the seeker's future feeds.
type FeedExclusion struct {
	SeekerID string `json:"seekerId"`
	JobID    string `json:"jobId"`
}

// Kinds lists the kinds of intents in order; handy for assertions and logs.
func Kinds(intents []Intent) []Kind {
	out := make([]Kind, len(intents))
	for i, in := range intents {
		out[i] = in.Kind
	}
	return out
}
