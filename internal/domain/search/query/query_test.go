package query

import "testing"

func TestQuery_Variants(t *testing.T) {
	tq := Text("red and white stripes")
	if tq.Kind() != KindText || tq.Text() != "red and white stripes" || tq.Image() != nil {
		t.Errorf("unexpected text query: %+v", tq)
	}

	iq := Image([]byte{0x89, 'P', 'N', 'G'})
	if iq.Kind() != KindImage || len(iq.Image()) != 4 || iq.Text() != "" {
		t.Errorf("unexpected image query: %+v", iq)
	}
}

func TestQuery_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want bool
	}{
		{"zero value", Query{}, true},
		{"empty text", Text(""), true},
		{"blank text", Text(" \t\n"), true},
		{"text", Text("stars"), false},
		{"nil image", Image(nil), true},
		{"image", Image([]byte{1}), false},
	}
	for _, tc := range tests {
		if got := tc.q.IsEmpty(); got != tc.want {
			t.Errorf("%s: IsEmpty() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
