package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/verifix/internal/document"
	"github.com/hitoshi/verifix/internal/model"
)

const validUser = `{
  "id": "user_2abc",
  "object": "user",
  "first_name": "Ada",
  "last_name": "",
  "email_addresses": [
    {"object": "email_address", "email_address": "ada@example.com",
     "verification": {"object": "verification_email_code", "status": "verified", "strategy": "email_code"}},
    {"object": "email_address", "email_address": "second@example.com"}
  ],
  "saml_accounts": [
    {"object": "saml_account",
     "verification": {"object": "verification_saml", "status": "verified", "strategy": "saml", "external_verification_redirect_url": null}}
  ],
  "created_at": 1690000000000
}`

const invalidUser = `{"id":"user_1","object":"user","zzz_extra":true,"email_addresses":[]}`

func TestDecode_Success(t *testing.T) {
	o := Decode(document.MustParse(validUser))

	d, ok := o.(Decoded)
	if !ok {
		t.Fatalf("expected Decoded, got %#v", o)
	}
	if d.Status() != StatusDecoded {
		t.Errorf("Status() = %q, want %q", d.Status(), StatusDecoded)
	}
	if d.Summary.Email == nil || *d.Summary.Email != "ada@example.com" {
		t.Errorf("Summary.Email = %v, want ada@example.com", d.Summary.Email)
	}
	if d.Summary.EmailAddresses != 2 || d.Summary.SAMLAccounts != 1 || d.Summary.EnterpriseAccounts != 0 {
		t.Errorf("counts = %d/%d/%d, want 2/1/0", d.Summary.EmailAddresses, d.Summary.SAMLAccounts, d.Summary.EnterpriseAccounts)
	}
}

func TestDecode_Failure_FieldsMatchTopLevelKeys(t *testing.T) {
	doc := document.MustParse(invalidUser)

	o := Decode(doc)

	f, ok := o.(Failed)
	if !ok {
		t.Fatalf("expected Failed, got %#v", o)
	}
	if f.Err.Kind != model.KindUnknownField || f.Err.Path != "zzz_extra" {
		t.Errorf("Err = %v, want unknown_field at zzz_extra", f.Err)
	}
	if diff := cmp.Diff(doc.Keys(), f.Fields); diff != "" {
		t.Errorf("Fields mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_Failure_NonObjectDocument(t *testing.T) {
	o := Decode(document.MustParse(`[1,2]`))

	f, ok := o.(Failed)
	if !ok {
		t.Fatalf("expected Failed, got %#v", o)
	}
	if len(f.Fields) != 0 {
		t.Errorf("Fields = %v, want empty", f.Fields)
	}
}

func TestSummary_Lines_AbsentMarkers(t *testing.T) {
	id := "user_1"
	empty := ""
	created := int64(1700000000)
	s := Summary{ID: &id, FirstName: &empty, CreatedAt: &created, EmailAddresses: 0}

	want := []Line{
		{"ID", `"user_1"`},
		{"First Name", `""`},
		{"Last Name", Absent},
		{"Email", Absent},
		{"Email Addresses Count", "0"},
		{"SAML Accounts Count", "0"},
		{"Enterprise Accounts Count", "0"},
		{"Created At", "1700000000"},
		{"Last Sign In", Absent},
	}
	if diff := cmp.Diff(want, s.Lines()); diff != "" {
		t.Errorf("Lines() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeAndReport_SuccessText(t *testing.T) {
	var buf bytes.Buffer

	o, err := DecodeAndReport(&buf, document.MustParse(validUser))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if o.Status() != StatusDecoded {
		t.Fatalf("Status() = %q, want %q", o.Status(), StatusDecoded)
	}

	want := `Successfully parsed user after cleanup:
  ID: "user_2abc"
  First Name: "Ada"
  Last Name: ""
  Email: "ada@example.com"
  Email Addresses Count: 2
  SAML Accounts Count: 1
  Enterprise Accounts Count: 0
  Created At: 1690000000000
  Last Sign In: <absent>
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeAndReport_FailureText(t *testing.T) {
	var buf bytes.Buffer

	o, err := DecodeAndReport(&buf, document.MustParse(invalidUser))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if o.Status() != StatusFailed {
		t.Fatalf("Status() = %q, want %q", o.Status(), StatusFailed)
	}

	out := buf.String()
	for _, want := range []string{
		"Still failed to parse user JSON after cleanup: unknown_field at zzz_extra",
		"Error kind: unknown_field\n",
		"Error path: zzz_extra\n",
		"Fields present in cleaned JSON:\n  - id\n  - object\n  - zzz_extra\n  - email_addresses\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteText_RootPath(t *testing.T) {
	var buf bytes.Buffer
	err := WriteText(&buf, Failed{Err: &model.DecodeError{Kind: model.KindTypeMismatch, Detail: "expected object, got array"}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(buf.String(), "Error path: (root)\n") {
		t.Errorf("output = %s", buf.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestDecodeAndReport_WriteError(t *testing.T) {
	o, err := DecodeAndReport(failingWriter{}, document.MustParse(validUser))
	if err == nil {
		t.Fatal("expected write error, got nil")
	}
	if o == nil || o.Status() != StatusDecoded {
		t.Errorf("outcome should still be returned, got %#v", o)
	}
}

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		wantStatus string
	}{
		{"decoded", validUser, "decoded"},
		{"failed", invalidUser, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteJSON(&buf, Decode(document.MustParse(tt.doc))); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			var got map[string]any
			if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
			}
			if got["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", got["status"], tt.wantStatus)
			}
			if tt.wantStatus == "decoded" {
				summary, _ := got["summary"].(map[string]any)
				if summary["last_sign_in_at"] != nil {
					t.Errorf("last_sign_in_at = %v, want null", summary["last_sign_in_at"])
				}
				if _, ok := summary["last_sign_in_at"]; !ok {
					t.Error("absent values must be reported as explicit null")
				}
			} else {
				fields, _ := got["fields"].([]any)
				if len(fields) != 4 {
					t.Errorf("fields = %v, want 4 entries", fields)
				}
			}
		})
	}
}
