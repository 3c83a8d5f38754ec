package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONResultGoesToStdout(t *testing.T) {
	var out, errOut bytes.Buffer
	p := New(FormatJSON, &out, &errOut)

	if err := p.Result(map[string]string{"voice": "alice"}); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("stdout is not JSON: %v", err)
	}
	if decoded["voice"] != "alice" {
		t.Errorf("decoded = %v", decoded)
	}
	if errOut.Len() != 0 {
		t.Errorf("stderr not empty: %s", errOut.String())
	}
}

func TestJSONErrorGoesToStderr(t *testing.T) {
	var out, errOut bytes.Buffer
	p := New(FormatJSON, &out, &errOut)

	p.Error("NOT_FOUND", "voice not found: bob")

	var record struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(errOut.Bytes(), &record); err != nil {
		t.Fatalf("stderr is not JSON: %v", err)
	}
	if record.Error.Code != "NOT_FOUND" {
		t.Errorf("code = %s", record.Error.Code)
	}
	if out.Len() != 0 {
		t.Errorf("stdout not empty: %s", out.String())
	}
}

func TestHumanModeSuppressesRecords(t *testing.T) {
	var out, errOut bytes.Buffer
	p := New(FormatHuman, &out, &errOut)

	if err := p.Result(map[string]string{"voice": "alice"}); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("human mode emitted a record: %s", out.String())
	}

	p.Printf("spoke as %s\n", "alice")
	if !strings.Contains(out.String(), "spoke as alice") {
		t.Errorf("stdout = %q", out.String())
	}

	p.Error("NOT_FOUND", "voice not found: bob")
	if !strings.Contains(errOut.String(), "voice not found: bob") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestJSONModeSuppressesProse(t *testing.T) {
	var out, errOut bytes.Buffer
	p := New(FormatJSON, &out, &errOut)

	p.Printf("should not appear")
	p.Warnf("neither should this")
	if out.Len() != 0 || errOut.Len() != 0 {
		t.Errorf("json mode leaked prose: stdout=%q stderr=%q", out.String(), errOut.String())
	}
}
