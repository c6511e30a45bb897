package rowcodec

import (
	"errors"
	"testing"

	"github.com/discochess/annotator/internal/store"
)

func TestMarshalUnmarshal(t *testing.T) {
	rows := []store.Row{
		{Nodes: 5000, W: 700, D: 200, L: 100, Depth: store.Unset},
		{Nodes: store.Unset, Depth: 20, Score: 85, PV: "e2e4 e7e5"},
		{Nodes: 800, W: 0, D: 0, L: 1000, Depth: 18, Mate: -3},
		store.EmptyRow(),
	}

	for _, want := range rows {
		data, err := Marshal(want)
		if err != nil {
			t.Fatalf("Marshal(%+v) error = %v", want, err)
		}
		got, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", data, err)
		}
		if got != want {
			t.Errorf("Unmarshal(Marshal(%+v)) = %+v", want, got)
		}
	}
}

func TestUnmarshal_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "garbage"},
		{"truncated", `{"nodes":5000,"w":700`},
		{"wdl does not sum", `{"nodes":5000,"w":700,"d":200,"l":200,"depth":-1}`},
		{"negative wdl", `{"nodes":5000,"w":1100,"d":-100,"l":0,"depth":-1}`},
		{"zero depth budget", `{"nodes":-1,"depth":0,"score":12}`},
		{"nodes below sentinel", `{"nodes":-7,"depth":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data))
			if !errors.Is(err, store.ErrMalformedRecord) {
				t.Errorf("Unmarshal() error = %v, want ErrMalformedRecord", err)
			}
		})
	}
}

func TestUnmarshal_MissingColumnsDefaultToUnset(t *testing.T) {
	got, err := Unmarshal([]byte(`{"depth":12,"score":-40}`))
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Nodes != store.Unset {
		t.Errorf("Nodes = %d, want %d", got.Nodes, store.Unset)
	}
	if got.Depth != 12 || got.Score != -40 {
		t.Errorf("Unmarshal() = %+v", got)
	}
}

func TestMarshal_RejectsInvalid(t *testing.T) {
	_, err := Marshal(store.Row{Nodes: 10, W: 1, D: 1, L: 1, Depth: store.Unset})
	if !errors.Is(err, store.ErrMalformedRecord) {
		t.Errorf("Marshal() error = %v, want ErrMalformedRecord", err)
	}
}
