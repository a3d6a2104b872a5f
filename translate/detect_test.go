package translate

import "testing"

func TestLinguaDetector(t *testing.T) {
	d := NewLinguaDetector([]string{"en", "es", "zh-cn", "xx"})

	tests := []struct {
		name string
		text string
		want string
	}{
		{"english", "The weather is lovely today and I would like to go for a walk in the park.", "en"},
		{"spanish", "El tiempo está muy agradable hoy y me gustaría dar un paseo por el parque.", "es"},
		{"chinese maps to catalog code", "今天天气很好，我想去公园散步。", "zh-cn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.Detect(tt.text)
			if !ok {
				t.Fatal("expected detection")
			}
			if got != tt.want {
				t.Errorf("Detect = %q, want %q", got, tt.want)
			}
		})
	}
}
