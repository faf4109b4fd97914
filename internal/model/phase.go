package model

type Phase string

const (
	PhasePre       Phase = "pre"
	PhaseSelection Phase = "selection"
	PhaseBetween   Phase = "between"
	PhaseSwap      Phase = "swap"
	PhasePost      Phase = "post"
)

// PhaseSchedule derives the global phase purely as a function of current time.
type PhaseSchedule struct {
	ID               string `json:"id" bson:"_id,omitempty"`
	SelectionStartMs int64  `json:"selectionStartMs" bson:"selectionStartMs"`
	SelectionEndMs   int64  `json:"selectionEndMs" bson:"selectionEndMs"`
	SwapStartMs      int64  `json:"swapStartMs" bson:"swapStartMs"`
	SwapEndMs        int64  `json:"swapEndMs" bson:"swapEndMs"`
	CreatedAtMs      int64  `json:"createdAtMs" bson:"createdAtMs"`
}
