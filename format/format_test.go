package format

import "testing"

func TestHumanNumber(t *testing.T) {
	cases := []struct {
		input uint64
		want  string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.00K"},
		{16384, "16.4K"},
		{1048576, "1.05M"},
		{2500000000, "2.50B"},
	}

	for _, tt := range cases {
		t.Run(tt.want, func(t *testing.T) {
			if got := HumanNumber(tt.input); got != tt.want {
				t.Errorf("HumanNumber(%d) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHumanBytes(t *testing.T) {
	cases := []struct {
		input int64
		want  string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1.0 KB"},
		{1024 * 1024, "1.0 MB"},
		{2 * GigaByte, "2.0 GB"},
	}

	for _, tt := range cases {
		t.Run(tt.want, func(t *testing.T) {
			if got := HumanBytes(tt.input); got != tt.want {
				t.Errorf("HumanBytes(%d) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
