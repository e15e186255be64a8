package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

type failingPayload struct{}

func (failingPayload) MarshalJSON() ([]byte, error) {
	return nil, errors.New("marshal failure")
}

func TestChangePayloadDefined(t *testing.T) {
	var undefined ChangePayload
	if undefined.Defined() {
		t.Fatalf("expected zero payload to be undefined")
	}
	if undefined.Raw() != nil {
		t.Fatalf("expected undefined payload to return nil raw bytes")
	}

	raw := json.RawMessage(`{"name":"Gauntlet"}`)
	defined := NewChangePayload(raw)
	if !defined.Defined() {
		t.Fatalf("expected raw payload to be defined")
	}
	if got := defined.Raw(); string(got) != string(raw) {
		t.Fatalf("expected raw payload %s, got %s", raw, got)
	}
}

func TestChangePayloadRawIsCloned(t *testing.T) {
	raw := json.RawMessage(`{"id":"cloned"}`)
	payload := NewChangePayload(raw)
	raw[2] = 'X'

	first := payload.Raw()
	first[2] = 'Y'
	second := payload.Raw()
	if string(first) == string(second) {
		t.Fatalf("expected raw payload to be cloned per call")
	}
	if string(second) != `{"id":"cloned"}` {
		t.Fatalf("payload mutated through caller buffer: %s", second)
	}
}

func TestChangePayloadFromValue(t *testing.T) {
	payload, err := NewChangePayloadFromValue(Currency{Name: "Choice Points", Abbrev: "CP", Budget: 1000})
	if err != nil {
		t.Fatalf("from value: %v", err)
	}
	var decoded Currency
	if err := payload.Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Budget != 1000 || decoded.Abbrev != "CP" {
		t.Fatalf("unexpected decoded currency %+v", decoded)
	}

	if _, err := NewChangePayloadFromValue(failingPayload{}); err == nil {
		t.Fatalf("expected marshal failure to surface")
	}
}

func TestUpdateJSONRoundTrip(t *testing.T) {
	value, err := NewChangePayloadFromValue(150)
	if err != nil {
		t.Fatalf("from value: %v", err)
	}
	in := []Update{
		{Path: P(EntityJump, JumpID(2), "bank_deposits", CharacterID(0)), Action: ActionUpdate, Value: value},
		{Path: P(EntityPurchase, PurchaseID(7)), Action: ActionDelete},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"path":["jumps",2,"bank_deposits",0],"action":"update","value":150},{"path":["purchases",7],"action":"delete","value":null}]`
	if string(data) != want {
		t.Fatalf("unexpected encoding:\nwant %s\ngot  %s", want, data)
	}

	var out []Update
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out[0].Path.Equal(in[0].Path) || out[0].Action != ActionUpdate {
		t.Fatalf("unexpected first update %+v", out[0])
	}
	if out[1].Value.Defined() {
		t.Fatalf("expected delete to carry no value")
	}
}
