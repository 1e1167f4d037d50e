package domain

import (
	"encoding/json"
	"testing"
)

func TestBindingRoundTripPreservesBytes(t *testing.T) {
	cases := []string{
		`{"type":"plain_text","name":"API_KEY","text":"secret"}`,
		`{"type":"kv_namespace","name":"CACHE","namespace_id":"abc123"}`,
		`{"type":"r2_bucket","name":"ASSETS","bucket_name":"static-assets"}`,
		`{"type":"d1","name":"DB","id":"x"}`,
		`{"type":"durable_object_namespace","name":"ROOMS","class_name":"Room","extra":{"nested":true}}`,
	}
	for _, raw := range cases {
		var b Binding
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		out, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("encode %s: %v", raw, err)
		}
		if string(out) != raw {
			t.Fatalf("round trip changed bytes:\n in: %s\nout: %s", raw, out)
		}
	}
}

func TestBindingUnmarshalPeeksTypeAndName(t *testing.T) {
	var b Binding
	if err := json.Unmarshal([]byte(`{"type":"kv_namespace","name":"CACHE","namespace_id":"abc"}`), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Type != BindingKVNamespace || b.Name != "CACHE" {
		t.Fatalf("unexpected header fields: type=%q name=%q", b.Type, b.Name)
	}
}

func TestBindingToleratesMissingFields(t *testing.T) {
	var b Binding
	if err := json.Unmarshal([]byte(`{"type":"plain_text"}`), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Name != "" {
		t.Fatalf("expected empty name, got %q", b.Name)
	}
	out, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(out) != `{"type":"plain_text"}` {
		t.Fatalf("expected descriptor forwarded as-is, got %s", out)
	}
}

func TestBindingConstructors(t *testing.T) {
	cases := []struct {
		binding  Binding
		wantType string
		wantKey  string
		wantVal  string
	}{
		{PlainTextBinding("API_KEY", "secret"), BindingPlainText, "text", "secret"},
		{KVNamespaceBinding("CACHE", "kv-1"), BindingKVNamespace, "namespace_id", "kv-1"},
		{R2BucketBinding("ASSETS", "bucket-1"), BindingR2Bucket, "bucket_name", "bucket-1"},
		{D1Binding("DB", "db-1"), BindingD1Database, "id", "db-1"},
	}
	for _, tc := range cases {
		if tc.binding.Type != tc.wantType {
			t.Fatalf("expected type %q, got %q", tc.wantType, tc.binding.Type)
		}
		out, err := json.Marshal(tc.binding)
		if err != nil {
			t.Fatalf("encode %s binding: %v", tc.wantType, err)
		}
		var fields map[string]string
		if err := json.Unmarshal(out, &fields); err != nil {
			t.Fatalf("decode %s binding: %v", tc.wantType, err)
		}
		if fields["type"] != tc.wantType {
			t.Fatalf("expected type field %q, got %q", tc.wantType, fields["type"])
		}
		if fields[tc.wantKey] != tc.wantVal {
			t.Fatalf("expected %s=%q, got %q", tc.wantKey, tc.wantVal, fields[tc.wantKey])
		}
	}
}
