// Package events decodes push-stream lines into a closed set of typed
// updates. Anything outside the set is dropped without error.
package events

import "agentdeck/internal/types"

type Kind string

const (
	KindMessageUpdated Kind = "message.updated"
	KindMessageRemoved Kind = "message.removed"
	KindPartUpdated    Kind = "message.part.updated"
	KindPartRemoved    Kind = "message.part.removed"
	KindStatusChanged  Kind = "session.status"
	KindLog            Kind = "log"
	KindResult         Kind = "result"
	KindConnected      Kind = "connected"
	KindEnd            Kind = "end"
)

// Update is implemented only by the types in this package.
type Update interface {
	Kind() Kind
	sealed()
}

// MessageUpdated carries message metadata. Info.Parts is always empty and
// Info.Role is empty when the server did not report one.
type MessageUpdated struct {
	Info types.Message
}

type PartUpdated struct {
	Part     types.Part
	RoleHint types.Role
}

type MessageRemoved struct {
	MessageID string
}

type PartRemoved struct {
	MessageID string
	PartID    string
}

type StatusChanged struct {
	SessionID string
	Status    types.SessionStatus
}

// LogLine is one line of action output. Index is the server-side position
// of the line when the server reports it.
type LogLine struct {
	Text     string
	Index    int
	HasIndex bool
}

type Result struct {
	Result types.Result
}

type Connected struct{}

// End marks the intentional end of a stream.
type End struct{}

func (MessageUpdated) Kind() Kind { return KindMessageUpdated }
func (PartUpdated) Kind() Kind    { return KindPartUpdated }
func (MessageRemoved) Kind() Kind { return KindMessageRemoved }
func (PartRemoved) Kind() Kind    { return KindPartRemoved }
func (StatusChanged) Kind() Kind  { return KindStatusChanged }
func (LogLine) Kind() Kind        { return KindLog }
func (Result) Kind() Kind         { return KindResult }
func (Connected) Kind() Kind      { return KindConnected }
func (End) Kind() Kind            { return KindEnd }

func (MessageUpdated) sealed() {}
func (PartUpdated) sealed()    {}
func (MessageRemoved) sealed() {}
func (PartRemoved) sealed()    {}
func (StatusChanged) sealed()  {}
func (LogLine) sealed()        {}
func (Result) sealed()         {}
func (Connected) sealed()      {}
func (End) sealed()            {}
