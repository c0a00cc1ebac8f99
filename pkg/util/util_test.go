package util

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestEpochTimeMillis(t *testing.T) {
	sec := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	if got := EpochTime(float64(sec * 1000)); got.Unix() != sec {
		t.Fatalf("expected ms to be scaled, got %v", got.Unix())
	}
	if got := EpochTime(float64(sec)); got.Unix() != sec {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestExtractInt(t *testing.T) {
	cases := []struct {
		in      any
		want    int64
		wantErr bool
	}{
		{in: "123", want: 123},
		{in: float64(77), want: 77},
		{in: json.Number("9007199254740993"), want: 9007199254740993},
		{in: 1.5, wantErr: true},
		{in: "abc", wantErr: true},
		{in: true, wantErr: true},
	}
	for _, tc := range cases {
		got, err := ExtractInt(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%v: expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%v: expected %d, got %d (%v)", tc.in, tc.want, got, err)
		}
	}
}

func TestIsNumeric(t *testing.T) {
	if !IsNumeric("5012345") || IsNumeric("") || IsNumeric("u-1") {
		t.Fatalf("unexpected IsNumeric result")
	}
}

func TestSplitCSV(t *testing.T) {
	got := SplitCSV(" k1:9092, ,k2:9092,")
	if len(got) != 2 || got[0] != "k1:9092" || got[1] != "k2:9092" {
		t.Fatalf("unexpected split: %q", got)
	}
}
