package dto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Conversation modes kept in the per-chat state.
const (
	ModeIntake     = "intake"
	ModeReceipt    = "receipt"
	ModeQuote      = "quote"
	ModeShipping   = "shipping"
	ModePickup     = "pickup"
	ModeChat       = "chat"
	ModeSubReceipt = "sub_receipt"
)

// Steps inside a mode.
const (
	StepCar         = "car"
	StepModel       = "model"
	StepVIN         = "vin"
	StepNotes       = "notes"
	StepItemName    = "item_name"
	StepItemPartNo  = "item_part_no"
	StepItemPhoto   = "item_photo"
	StepItemMore    = "item_more"
	StepPrepayNotes = "prepay_notes"

	StepQuoteAmount = "quote_amount"
	StepQuoteDays   = "quote_days"
	StepQuoteShip   = "quote_ship"

	StepCity       = "city"
	StepDistrict   = "district"
	StepStreet     = "street"
	StepPOBox      = "pobox"
	StepAdditional = "additional"
	StepBuilding   = "building"
	StepPhone      = "phone"
	StepLocation   = "location"

	StepText = "text"
	StepFile = "file"
)

// DraftItem is one part collected during intake.
type DraftItem struct {
	Name        string `json:"name"`
	PartNo      string `json:"part_no,omitempty"`
	PhotoFileID string `json:"photo,omitempty"`
}

// TelegramState is the conversation draft stored in the cache between
// updates.
type TelegramState struct {
	Mode    string            `json:"mode"`
	Step    string            `json:"step"`
	OrderID string            `json:"order_id,omitempty"`
	Target  string            `json:"target,omitempty"`
	Items   []DraftItem       `json:"items,omitempty"`
	Fields  map[string]string `json:"fields"`
}

func NewTelegramState(mode, step, orderID string) *TelegramState {
	return &TelegramState{
		Mode:    mode,
		Step:    step,
		OrderID: orderID,
		Fields:  make(map[string]string),
	}
}

func (s *TelegramState) Set(key, value string) {
	s.Fields[key] = strings.TrimSpace(value)
}

func (s *TelegramState) Get(key string) string {
	return s.Fields[key]
}

// CurrentItem returns the item being filled, starting a new one if needed.
func (s *TelegramState) CurrentItem() *DraftItem {
	if len(s.Items) == 0 {
		s.Items = append(s.Items, DraftItem{})
	}
	return &s.Items[len(s.Items)-1]
}

func (s *TelegramState) ToJSON() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return string(data), nil
}

func FromJSON(data string) (*TelegramState, error) {
	var state TelegramState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if state.Fields == nil {
		state.Fields = make(map[string]string)
	}
	return &state, nil
}

// Callback actions carried in inline button data.
const (
	ActPayMethod      = "pm"
	ActRejectPayment  = "rp"
	ActQuote          = "q"
	ActQuoteShip      = "qs"
	ActAcceptQuote    = "aq"
	ActAckGoods       = "ag"
	ActDelivery       = "dl"
	ActItemMore       = "im"
	ActChat           = "ch"
	ActConfirmSub     = "cs"
	ActCancelDraft    = "x"
	MaxCallbackLength = 64
)

// Callback is the JSON payload of an inline button; the Bot API caps it at
// 64 bytes.
type Callback struct {
	Action  string `json:"a"`
	OrderID string `json:"o,omitempty"`
	Value   string `json:"v,omitempty"`
}

func (c Callback) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	if len(data) > MaxCallbackLength {
		return "", fmt.Errorf("callback data is %d bytes", len(data))
	}
	return string(data), nil
}

func ParseCallback(raw string) (Callback, error) {
	var c Callback
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, fmt.Errorf("invalid callback data: %w", err)
	}
	if c.Action == "" {
		return c, fmt.Errorf("callback without action")
	}
	return c, nil
}
