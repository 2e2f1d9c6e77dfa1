package oracle

import "testing"

func TestParseJSONDirect(t *testing.T) {
	out, err := ParseJSON([]byte(`{"action":"skip"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"action":"skip"}` {
		t.Errorf("got %s", out)
	}
}

func TestParseJSONStripsFences(t *testing.T) {
	raw := []byte("```json\n{\"action\":\"start\",\"project\":\"foo\"}\n```")
	out, err := ParseJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"action":"start","project":"foo"}` {
		t.Errorf("got %s", out)
	}
}

func TestParseJSONBalancedExtraction(t *testing.T) {
	raw := []byte("Here is my decision:\n{\"action\":\"notify\",\"reason\":\"test\"} -- hope that helps!")
	out, err := ParseJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"action":"notify","reason":"test"}` {
		t.Errorf("got %s", out)
	}
}

func TestParseJSONTotalFailure(t *testing.T) {
	_, err := ParseJSON([]byte("no json anywhere in this text"))
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseJSONArray(t *testing.T) {
	out, err := ParseJSON([]byte(`prefix [{"action":"skip"},{"action":"notify"}] suffix`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `[{"action":"skip"},{"action":"notify"}]` {
		t.Errorf("got %s", out)
	}
}
