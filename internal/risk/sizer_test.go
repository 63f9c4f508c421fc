package risk

import "testing"

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func TestDynamicLot(t *testing.T) {
	tests := []struct {
		name    string
		base    float64
		initial float64
		current float64
		want    float64
	}{
		{"no growth keeps base", 0.1, 1000, 1000, 0.1},
		{"just below double keeps base", 0.1, 1000, 1999, 0.1},
		{"first double adds 30 percent", 0.1, 1000, 2000, 0.13},
		{"between doubles stays on step", 0.1, 1000, 3999, 0.13},
		{"second double compounds", 0.1, 1000, 4000, 0.17},
		{"third double compounds", 0.1, 1000, 8000, 0.22},
		{"balance below initial keeps base", 0.1, 1000, 500, 0.1},
		{"zero initial keeps base", 0.1, 0, 5000, 0.1},
		{"minimum lot rounds flat on first step", 0.01, 1000, 2000, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DynamicLot(tt.base, tt.initial, tt.current)
			if absFloat(got-tt.want) > 1e-9 {
				t.Errorf("DynamicLot(%v, %v, %v) = %v, want %v",
					tt.base, tt.initial, tt.current, got, tt.want)
			}
		})
	}
}
