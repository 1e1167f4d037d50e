package domain

import "encoding/json"

// Binding type tags understood by the hosting platform.
const (
	BindingPlainText   = "plain_text"
	BindingKVNamespace = "kv_namespace"
	BindingR2Bucket    = "r2_bucket"
	BindingD1Database  = "d1"
)

// Binding is one typed resource descriptor attached to a worker script.
// The original wire bytes are retained so descriptors reach the platform
// exactly as supplied; unknown tags are forwarded rather than rejected,
// leaving validation to the platform.
type Binding struct {
	Type string
	Name string
	raw  json.RawMessage
}

// UnmarshalJSON records the descriptor bytes and peeks at the common
// type/name fields. Entries missing either field are kept as-is; the
// platform decides whether to reject them.
func (b *Binding) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	b.Type = head.Type
	b.Name = head.Name
	b.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits the descriptor exactly as it arrived.
func (b Binding) MarshalJSON() ([]byte, error) {
	if len(b.raw) > 0 {
		return append(json.RawMessage(nil), b.raw...), nil
	}
	return json.Marshal(map[string]string{"type": b.Type, "name": b.Name})
}

func newBinding(typ, name string, fields map[string]string) Binding {
	payload := map[string]string{"type": typ, "name": name}
	for k, v := range fields {
		payload[k] = v
	}
	raw, _ := json.Marshal(payload)
	return Binding{Type: typ, Name: name, raw: raw}
}

// PlainTextBinding declares a text constant injected into the worker.
func PlainTextBinding(name, text string) Binding {
	return newBinding(BindingPlainText, name, map[string]string{"text": text})
}

// KVNamespaceBinding references a key-value namespace by identifier.
func KVNamespaceBinding(name, namespaceID string) Binding {
	return newBinding(BindingKVNamespace, name, map[string]string{"namespace_id": namespaceID})
}

// R2BucketBinding references an object-storage bucket by name.
func R2BucketBinding(name, bucketName string) Binding {
	return newBinding(BindingR2Bucket, name, map[string]string{"bucket_name": bucketName})
}

// D1Binding references a relational database by identifier.
func D1Binding(name, databaseID string) Binding {
	return newBinding(BindingD1Database, name, map[string]string{"id": databaseID})
}
